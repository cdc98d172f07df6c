// Package scheduler turns a scheduling request for (codebase, campaign) into
// a queue entry with a computed offset: lower offsets run sooner. Grounded
// on the teacher's plain computation-service shape (internal/app/services/*),
// composing injected storage and estimator dependencies rather than owning
// its own state.
package scheduler

import (
	"context"
	"math"
	"time"

	"github.com/openjanitor/janitor/internal/janitor/domain"
	"github.com/openjanitor/janitor/internal/janitor/estimator"
	"github.com/openjanitor/janitor/internal/janitor/jerrors"
	"github.com/openjanitor/janitor/internal/janitor/storage"
)

const (
	// BucketDefault is where regular candidate work lands.
	BucketDefault = "default"
	// BucketControl holds schedule_control's unchanged-baseline runs.
	BucketControl = "control"

	firstRunBonus  = 100.0
	costFloor      = 20000.0
	costPerSecond  = 1000.0
	controlOffset  = 50000.0
	conflictOffset = -2.0
)

// Config tunes offset derivation.
type Config struct {
	DefaultOffset float64
}

// DefaultConfig returns the scheduler defaults.
func DefaultConfig() Config {
	return Config{DefaultOffset: 0}
}

// Scheduled is the scheduler's contract result.
type Scheduled struct {
	Offset            float64
	EstimatedDuration time.Duration
	QueueID           int64
	Bucket            string
}

// Scheduler converts candidates into queue entries.
type Scheduler struct {
	store     storage.Store
	estimator *estimator.Estimator
	cfg       Config
}

// New creates a Scheduler.
func New(store storage.Store, est *estimator.Estimator, cfg Config) *Scheduler {
	return &Scheduler{store: store, estimator: est, cfg: cfg}
}

// Schedule implements schedule(codebase, campaign, bucket, *). command and
// context, when empty, are resolved from the stored Candidate; if no
// candidate exists and no command was supplied, CandidateUnavailable is
// raised and the caller must treat it as a silent skip.
func (s *Scheduler) Schedule(ctx context.Context, codebase, campaign, command, context, bucket string) (Scheduled, error) {
	if bucket == "" {
		bucket = BucketDefault
	}

	candidate, candidateValue, successChance, err := s.resolveCandidate(ctx, codebase, campaign, command, context)
	if err != nil {
		return Scheduled{}, err
	}
	if command == "" {
		command = candidate.Command
	}
	if context == "" {
		context = candidate.Context
	}

	_, hasLastRun, err := s.store.LastRun(ctx, codebase, campaign)
	if err != nil {
		return Scheduled{}, err
	}
	if !hasLastRun {
		candidateValue += firstRunBonus
	}

	est, err := s.estimator.Estimate(ctx, codebase, campaign, context)
	if err != nil {
		return Scheduled{}, err
	}
	p := est.SuccessProbability
	if successChance != nil {
		p *= *successChance
	}

	normalizedCodebaseValue, err := s.normalizedCodebaseValue(ctx, codebase)
	if err != nil {
		return Scheduled{}, err
	}

	estimatedValue := normalizedCodebaseValue * p * candidateValue
	estimatedCost := costFloor + float64(est.ExpectedDuration/time.Second)*costPerSecond + float64((est.ExpectedDuration%time.Second)/time.Microsecond)

	offset := s.cfg.DefaultOffset + estimatedCost/math.Max(estimatedValue, math.SmallestNonzeroFloat64)
	if offset <= 0 {
		offset = math.SmallestNonzeroFloat64
	}

	item, err := s.store.Enqueue(ctx, domain.QueueItem{
		Codebase:           codebase,
		Campaign:           campaign,
		Command:            command,
		Context:            context,
		Bucket:             bucket,
		Priority:           int64(math.Round(offset)),
		EstimatedDuration:  est.ExpectedDuration,
		RequiredCapability: s.buildTargetClass(ctx, campaign),
	})
	if err != nil {
		return Scheduled{}, err
	}

	return Scheduled{
		Offset:            offset,
		EstimatedDuration: est.ExpectedDuration,
		QueueID:           item.ID,
		Bucket:            bucket,
	}, nil
}

// ScheduleControl synthesizes an unchanged-baseline run so the publisher can
// diff a successful run against an unmodified build, per schedule_control.
func (s *Scheduler) ScheduleControl(ctx context.Context, codebase, mainBranchRevision string) (Scheduled, error) {
	command := "brz up"
	if mainBranchRevision != "" {
		command = command + " --revision=" + mainBranchRevision
	}

	item, err := s.store.Enqueue(ctx, domain.QueueItem{
		Codebase: codebase,
		Campaign: "control",
		Command:  command,
		Bucket:   BucketControl,
		Priority: int64(controlOffset),
	})
	if err != nil {
		return Scheduled{}, err
	}
	return Scheduled{Offset: controlOffset, QueueID: item.ID, Bucket: BucketControl}, nil
}

// ScheduleConflictRefresh schedules an urgent, refresh=true re-attempt after
// the publisher detects a merge conflict on the existing proposal.
func (s *Scheduler) ScheduleConflictRefresh(ctx context.Context, codebase, campaign, command, context string) (Scheduled, error) {
	item, err := s.store.Enqueue(ctx, domain.QueueItem{
		Codebase:           codebase,
		Campaign:           campaign,
		Command:            command,
		Context:            context,
		Bucket:             BucketDefault,
		Priority:           int64(conflictOffset),
		Refresh:            true,
		RequiredCapability: s.buildTargetClass(ctx, campaign),
	})
	if err != nil {
		return Scheduled{}, err
	}
	return Scheduled{Offset: conflictOffset, QueueID: item.ID, Bucket: BucketDefault}, nil
}

// buildTargetClass resolves campaign's registered build target class, so
// next() can filter claims to workers that advertise the matching
// capability. Unknown campaigns carry no capability requirement: any
// worker may claim them, matching the pre-registration behavior an
// explicit command bypass already allows.
func (s *Scheduler) buildTargetClass(ctx context.Context, campaign string) domain.BuildTargetClass {
	c, err := s.store.GetCampaign(ctx, campaign)
	if err != nil {
		return ""
	}
	return c.BuildTargetClass
}

func (s *Scheduler) resolveCandidate(ctx context.Context, codebase, campaign, command, context string) (domain.Candidate, float64, *float64, error) {
	candidate, err := s.store.GetCandidate(ctx, domain.CandidateKey{Codebase: codebase, Campaign: campaign})
	if err != nil {
		if command == "" {
			return domain.Candidate{}, 0, nil, jerrors.CandidateUnavailable(codebase, campaign)
		}
		return domain.Candidate{Codebase: codebase, Campaign: campaign, Command: command, Context: context, Value: 1.0}, 1.0, nil, nil
	}
	return candidate, candidate.Value, candidate.SuccessChance, nil
}

// normalizedCodebaseValue is candidate codebase value divided by the highest
// value across all codebases, defaulting to 1.0 when no ranking exists (a
// single codebase, or every codebase sharing the same value).
func (s *Scheduler) normalizedCodebaseValue(ctx context.Context, codebase string) (float64, error) {
	cb, err := s.store.GetCodebase(ctx, codebase)
	if err != nil {
		return 1.0, nil
	}

	all, err := s.store.ListCodebases(ctx)
	if err != nil {
		return 0, err
	}
	max := cb.Value
	for _, other := range all {
		if other.Value > max {
			max = other.Value
		}
	}
	if max <= 0 {
		return 1.0, nil
	}
	return math.Min(cb.Value/max, 1.0), nil
}
