package estimator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/openjanitor/janitor/internal/janitor/domain"
	"github.com/openjanitor/janitor/internal/janitor/jerrors"
)

// fakeRuns is a minimal storage.RunStore double seeded directly by tests.
type fakeRuns struct {
	outcomes map[string][]domain.Run
	byPair   map[string][]domain.Run
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{outcomes: make(map[string][]domain.Run), byPair: make(map[string][]domain.Run)}
}

func key(codebase, campaign string) string { return codebase + "/" + campaign }

func (f *fakeRuns) seed(codebase, campaign string, runs ...domain.Run) {
	f.outcomes[key(codebase, campaign)] = runs
	f.byPair[key(codebase, campaign)] = runs
}

func (f *fakeRuns) CreateRun(context.Context, domain.Run) (domain.Run, error) { return domain.Run{}, nil }
func (f *fakeRuns) GetRun(context.Context, string) (domain.Run, error)        { return domain.Run{}, nil }
func (f *fakeRuns) LastRun(context.Context, string, string) (domain.Run, bool, error) {
	return domain.Run{}, false, nil
}
func (f *fakeRuns) ListRuns(_ context.Context, codebase, campaign string, limit int) ([]domain.Run, error) {
	// An empty codebase or campaign matches every value, as in the real stores.
	var runs []domain.Run
	for k, rs := range f.byPair {
		cb, camp, _ := strings.Cut(k, "/")
		if (codebase == "" || cb == codebase) && (campaign == "" || camp == campaign) {
			runs = append(runs, rs...)
		}
	}
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}
func (f *fakeRuns) WorkerOutcomes(_ context.Context, codebase, campaign string, limit int) ([]domain.Run, error) {
	runs := f.outcomes[key(codebase, campaign)]
	if limit > 0 && len(runs) > limit {
		runs = runs[len(runs)-limit:]
	}
	return runs, nil
}
func (f *fakeRuns) ListPublishReadyRuns(context.Context, int) ([]domain.Run, error) { return nil, nil }

func run(code jerrors.ResultCode, start time.Time, dur time.Duration, ctx string) domain.Run {
	return domain.Run{
		ResultCode: code,
		StartTime:  start,
		FinishTime: start.Add(dur),
		Context:    ctx,
	}
}

func TestSmoothedProbabilityMonotonicity(t *testing.T) {
	base := smoothedProbability(3, 10)

	if moreSuccess := smoothedProbability(4, 11); moreSuccess <= base {
		t.Fatalf("adding a success should strictly increase probability: %v -> %v", base, moreSuccess)
	}
	if moreFailure := smoothedProbability(3, 11); moreFailure >= base {
		t.Fatalf("adding a failure should strictly decrease probability: %v -> %v", base, moreFailure)
	}
}

func TestSmoothedProbabilityNoHistory(t *testing.T) {
	p := smoothedProbability(0, 0)
	if p <= 0 || p >= 1 {
		t.Fatalf("no-history probability must avoid the 0/1 extremes, got %v", p)
	}
}

func TestEstimateDurationFallbackChain(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newFakeRuns()
	// No (codebase, campaign) pair history, but the codebase has history
	// under a different campaign.
	store.seed("my-codebase", "other-campaign", run(jerrors.ResultSuccess, start, 30*time.Second, ""))

	est := New(store, nil, DefaultConfig())
	e, err := est.Estimate(context.Background(), "my-codebase", "lintian-fixes", "")
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if e.ExpectedDuration != 30*time.Second {
		t.Fatalf("ExpectedDuration = %v, want fallback to per-codebase average of 30s", e.ExpectedDuration)
	}
}

func TestEstimateDurationDefaultFallback(t *testing.T) {
	est := New(newFakeRuns(), nil, DefaultConfig())
	e, err := est.Estimate(context.Background(), "unknown-codebase", "unknown-campaign", "")
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if e.ExpectedDuration != DefaultConfig().DefaultDuration {
		t.Fatalf("ExpectedDuration = %v, want the fixed default", e.ExpectedDuration)
	}
}

func TestEstimateIgnoresAgedOutWorkerFailure(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newFakeRuns()
	store.seed("cb", "campaign",
		run(jerrors.ResultWorkerFailure, start, 10*time.Second, ""),
		run(jerrors.ResultSuccess, start.Add(time.Hour), 10*time.Second, ""),
	)

	cfg := DefaultConfig()
	cfg.IgnoreWorkerFailureAfter = 24 * time.Hour
	est := New(store, nil, cfg)
	est.now = func() time.Time { return start.Add(48 * time.Hour) }

	e, err := est.Estimate(context.Background(), "cb", "campaign", "")
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if e.SampleSize != 1 {
		t.Fatalf("SampleSize = %d, want 1 (aged-out worker-failure excluded)", e.SampleSize)
	}
}

// dependencyCheckerFunc adapts a plain function to the DependencyChecker
// interface.
type dependencyCheckerFunc func(ctx context.Context, codebase, campaign string) (bool, error)

func (f dependencyCheckerFunc) DependenciesSatisfied(ctx context.Context, codebase, campaign string) (bool, error) {
	return f(ctx, codebase, campaign)
}

// TestEstimateDependencyRetry is scenario S6: a run that failed with
// install-deps-unsatisfied-dependencies is counted as a success once its
// dependencies become satisfiable, strictly increasing the next estimate.
func TestEstimateDependencyRetry(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newFakeRuns()
	store.seed("cb", "campaign", run(jerrors.ResultInstallDepsUnsatisfiedDeps, start, 5*time.Second, ""))

	unsatisfied := New(store, dependencyCheckerFunc(func(context.Context, string, string) (bool, error) {
		return false, nil
	}), DefaultConfig())
	before, err := unsatisfied.Estimate(context.Background(), "cb", "campaign", "")
	if err != nil {
		t.Fatalf("Estimate (unsatisfied): %v", err)
	}

	satisfied := New(store, dependencyCheckerFunc(func(context.Context, string, string) (bool, error) {
		return true, nil
	}), DefaultConfig())
	after, err := satisfied.Estimate(context.Background(), "cb", "campaign", "")
	if err != nil {
		t.Fatalf("Estimate (satisfied): %v", err)
	}

	if after.SuccessProbability <= before.SuccessProbability {
		t.Fatalf("dependency becoming satisfiable should strictly raise success probability: %v -> %v",
			before.SuccessProbability, after.SuccessProbability)
	}
}

func TestContextSimilarity(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if got := contextSimilarity(nil, "suite-a"); got != 1.0 {
		t.Fatalf("no history should return 1.0, got %v", got)
	}

	matching := []domain.Run{run(jerrors.ResultSuccess, start, time.Second, "suite-a")}
	if got := contextSimilarity(matching, "suite-a"); got != 1.0 {
		t.Fatalf("matching context should return 1.0, got %v", got)
	}

	mismatched := []domain.Run{run(jerrors.ResultSuccess, start, time.Second, "suite-b")}
	if got := contextSimilarity(mismatched, "suite-a"); got != 0.1 {
		t.Fatalf("mismatched context should return 0.1, got %v", got)
	}
}
