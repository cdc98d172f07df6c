// Package estimator turns a codebase/campaign's run history into the two
// numbers the scheduler needs: an expected run duration and a smoothed
// success probability. Grounded on the teacher's plain computation-service
// shape (a struct wrapping an injected store, no lifecycle of its own).
package estimator

import (
	"context"
	"time"

	"github.com/openjanitor/janitor/internal/janitor/domain"
	"github.com/openjanitor/janitor/internal/janitor/jerrors"
	"github.com/openjanitor/janitor/internal/janitor/storage"
)

// DependencyChecker re-evaluates whether a candidate's install-time
// dependencies are now satisfiable, letting the estimator discount a past
// install-deps-unsatisfied-dependencies failure instead of treating it as a
// permanent black mark.
type DependencyChecker interface {
	DependenciesSatisfied(ctx context.Context, codebase, campaign string) (bool, error)
}

// Config tunes the estimator's smoothing behavior.
type Config struct {
	// HistoryLimit bounds how many past runs feed the estimate.
	HistoryLimit int
	// IgnoreWorkerFailureAfter discards worker-failure outcomes older than
	// this age when computing the success probability, since a transient
	// worker/environment bug from a long time ago is unlikely to recur.
	IgnoreWorkerFailureAfter time.Duration
	// DefaultDuration is used when no duration history exists at any
	// fallback level.
	DefaultDuration time.Duration
}

// DefaultConfig returns the estimator defaults.
func DefaultConfig() Config {
	return Config{
		HistoryLimit:             20,
		IgnoreWorkerFailureAfter: 24 * time.Hour,
		DefaultDuration:          15 * time.Second,
	}
}

// Estimate is the estimator's output for one (codebase, campaign) pair.
type Estimate struct {
	ExpectedDuration   time.Duration
	SuccessProbability float64
	SampleSize         int
}

// Estimator computes estimates from a RunStore's history.
type Estimator struct {
	runs storage.RunStore
	deps DependencyChecker
	cfg  Config
	now  func() time.Time
}

// New creates an Estimator. deps may be nil, in which case no
// install-deps-unsatisfied-dependencies discounting is performed.
func New(runs storage.RunStore, deps DependencyChecker, cfg Config) *Estimator {
	return &Estimator{runs: runs, deps: deps, cfg: cfg, now: time.Now}
}

// Estimate computes the expected duration and smoothed success probability
// for (codebase, campaign) from its recent worker outcomes. context is the
// candidate's current scheduling context (e.g. a suite name); runs whose
// context doesn't match it are discounted by a similarity factor, since a
// success under a different context is a weaker signal.
func (e *Estimator) Estimate(ctx context.Context, codebase, campaign, context string) (Estimate, error) {
	outcomes, err := e.runs.WorkerOutcomes(ctx, codebase, campaign, e.cfg.HistoryLimit)
	if err != nil {
		return Estimate{}, err
	}

	successes, total := 0, 0
	var durationSum time.Duration
	durationSamples := 0
	now := e.now()

	for _, r := range outcomes {
		if r.ResultCode == jerrors.ResultInstallDepsUnsatisfiedDeps && e.deps != nil {
			satisfied, err := e.deps.DependenciesSatisfied(ctx, codebase, campaign)
			if err == nil && satisfied {
				// Dependencies have since become available: count the run as
				// a success rather than the failure it recorded.
				total++
				successes++
				if d := r.Duration(); d > 0 {
					durationSum += d
					durationSamples++
				}
				continue
			}
		}
		if r.ResultCode == jerrors.ResultWorkerFailure && e.cfg.IgnoreWorkerFailureAfter > 0 &&
			now.Sub(r.FinishTime) > e.cfg.IgnoreWorkerFailureAfter {
			continue
		}

		total++
		if r.Success() {
			successes++
		}
		if d := r.Duration(); d > 0 {
			durationSum += d
			durationSamples++
		}
	}

	prob := smoothedProbability(successes, total) * contextSimilarity(outcomes, context)

	expectedDuration, err := e.expectedDuration(ctx, codebase, campaign, durationSum, durationSamples)
	if err != nil {
		return Estimate{}, err
	}

	return Estimate{
		ExpectedDuration:   expectedDuration,
		SuccessProbability: prob,
		SampleSize:         total,
	}, nil
}

// contextSimilarity returns 1.0 when there is no history to compare against,
// or when the most recent run's context (or the context that instigated it)
// matches context; otherwise 0.1.
func contextSimilarity(outcomes []domain.Run, context string) float64 {
	if len(outcomes) == 0 || context == "" {
		return 1.0
	}
	latest := outcomes[len(outcomes)-1]
	if latest.Context == context || latest.InstigatedContext == context {
		return 1.0
	}
	return 0.1
}

// expectedDuration falls back from the (codebase, campaign) average to a
// per-codebase average, then a per-campaign average, then a fixed default,
// so the result is always defined and positive.
func (e *Estimator) expectedDuration(ctx context.Context, codebase, campaign string, pairSum time.Duration, pairSamples int) (time.Duration, error) {
	if pairSamples > 0 {
		return pairSum / time.Duration(pairSamples), nil
	}

	if avg, ok, err := e.averageDuration(ctx, codebase, ""); err != nil {
		return 0, err
	} else if ok {
		return avg, nil
	}

	if avg, ok, err := e.averageDuration(ctx, "", campaign); err != nil {
		return 0, err
	} else if ok {
		return avg, nil
	}

	return e.cfg.DefaultDuration, nil
}

func (e *Estimator) averageDuration(ctx context.Context, codebase, campaign string) (time.Duration, bool, error) {
	runs, err := e.runs.ListRuns(ctx, codebase, campaign, e.cfg.HistoryLimit)
	if err != nil {
		return 0, false, err
	}
	var sum time.Duration
	samples := 0
	for _, r := range runs {
		if d := r.Duration(); d > 0 {
			sum += d
			samples++
		}
	}
	if samples == 0 {
		return 0, false, nil
	}
	return sum / time.Duration(samples), true, nil
}

// smoothedProbability applies Laplace-style smoothing so a handful of
// observations doesn't swing the estimate to 0 or 1. total is floored at 1
// so a codebase/campaign with no history yet is treated as "one trial, zero
// successes" (p = 1/11) rather than a degenerate 0/0.
func smoothedProbability(successes, total int) float64 {
	t := total
	if t < 1 {
		t = 1
	}
	return (float64(successes)*10 + 1) / (float64(t)*10 + 1)
}
