package ingress

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/openjanitor/janitor/internal/janitor/domain"
	"github.com/openjanitor/janitor/internal/janitor/hoster"
	"github.com/openjanitor/janitor/internal/janitor/hoster/hosterfake"
	"github.com/openjanitor/janitor/internal/janitor/jerrors"
	"github.com/openjanitor/janitor/internal/janitor/policy"
	"github.com/openjanitor/janitor/internal/janitor/publisher"
	"github.com/openjanitor/janitor/internal/janitor/ratelimit"
	"github.com/openjanitor/janitor/internal/janitor/storage/memory"
	"github.com/openjanitor/janitor/internal/platform/pgnotify"
)

func newIngressPublisher(t *testing.T, fake *hosterfake.FakePublisher) (*publisher.Publisher, *memory.Memory) {
	t.Helper()
	store := memory.New()
	pol := &policy.Config{Rules: []policy.Rule{{Payload: policy.Payload{Mode: domain.PublishModePush}}}}
	pub := publisher.New(publisher.Config{
		Store:       store,
		Policy:      pol,
		Maintainers: ratelimit.None{},
		Hosts:       ratelimit.NewHostBackoff(0),
		Hoster:      hosterfake.New(),
		Publish:     fake,
	})
	return pub, store
}

func TestScheduledLoopTickPublishesPending(t *testing.T) {
	ctx := context.Background()
	fake := hosterfake.NewFakePublisher(hosterfake.PushResponse(hoster.PublishResponse{BranchName: "main", IsNew: true}))
	pub, store := newIngressPublisher(t, fake)

	if _, err := store.UpsertCodebase(ctx, domain.Codebase{Name: "cb"}); err != nil {
		t.Fatalf("UpsertCodebase: %v", err)
	}
	if _, err := store.CreateRun(ctx, domain.Run{
		Codebase: "cb", Campaign: "camp", ResultCode: jerrors.ResultSuccess,
		ResultBranches: []domain.ResultBranch{{Role: domain.BranchRoleMain, Name: "main", HeadRevision: "rev1"}},
	}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	loop := NewScheduledLoop(pub, ScheduledConfig{Interval: time.Minute, PendingLimit: 10}, nil)
	loop.Tick(ctx)

	if len(fake.Requests) != 1 {
		t.Fatalf("Tick should have published the one pending run, got %d publish_one calls", len(fake.Requests))
	}
}

func TestScheduledLoopStartStopIsClean(t *testing.T) {
	fake := hosterfake.NewFakePublisher()
	pub, _ := newIngressPublisher(t, fake)
	loop := NewScheduledLoop(pub, ScheduledConfig{Interval: time.Hour, PendingLimit: 10}, nil)

	ctx := context.Background()
	loop.Start(ctx)
	loop.Start(ctx) // second Start before Stop must be a no-op, not a double-running loop

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := loop.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := loop.Stop(stopCtx); err != nil {
		t.Fatalf("a second Stop on an already-stopped loop should be a no-op, got: %v", err)
	}
}

func TestEventLoopHandlePublishesOnSuccess(t *testing.T) {
	ctx := context.Background()
	fake := hosterfake.NewFakePublisher(hosterfake.PushResponse(hoster.PublishResponse{BranchName: "main", IsNew: true}))
	pub, store := newIngressPublisher(t, fake)
	if _, err := store.UpsertCodebase(ctx, domain.Codebase{Name: "cb"}); err != nil {
		t.Fatalf("UpsertCodebase: %v", err)
	}

	run := domain.Run{
		ID: "run-1", Codebase: "cb", Campaign: "camp", ResultCode: jerrors.ResultSuccess,
		ResultBranches: []domain.ResultBranch{{Role: domain.BranchRoleMain, Name: "main", HeadRevision: "rev1"}},
	}
	payload, err := json.Marshal(run)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}

	loop := NewEventLoop(nil, pub, nil)
	if err := loop.handle(ctx, pgnotify.Event{Channel: ResultChannel, Payload: payload}); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(fake.Requests) != 1 {
		t.Fatalf("handle should have published the successful run, got %d publish_one calls", len(fake.Requests))
	}
}

func TestEventLoopHandleIgnoresNonSuccessfulRun(t *testing.T) {
	fake := hosterfake.NewFakePublisher()
	pub, _ := newIngressPublisher(t, fake)

	run := domain.Run{ID: "run-1", Codebase: "cb", Campaign: "camp", ResultCode: jerrors.ResultWorkerFailure}
	payload, err := json.Marshal(run)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}

	loop := NewEventLoop(nil, pub, nil)
	if err := loop.handle(context.Background(), pgnotify.Event{Payload: payload}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(fake.Requests) != 0 {
		t.Fatalf("handle must not publish a non-successful run")
	}
}

func TestEventLoopHandleMalformedPayloadDoesNotError(t *testing.T) {
	fake := hosterfake.NewFakePublisher()
	pub, _ := newIngressPublisher(t, fake)
	loop := NewEventLoop(nil, pub, nil)

	if err := loop.handle(context.Background(), pgnotify.Event{Payload: []byte("not json")}); err != nil {
		t.Fatalf("handle should swallow a malformed payload, not error: %v", err)
	}
}

// TestEventLoopDebouncesPerCampaign checks that a second result for a
// campaign already being published is dropped rather than queued, leaving
// the scheduled tick to pick it up instead.
func TestEventLoopDebouncesPerCampaign(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	blocking := &blockingPublisher{entered: entered, release: release}
	pol := &policy.Config{Rules: []policy.Rule{{Payload: policy.Payload{Mode: domain.PublishModePush}}}}
	store := memory.New()
	pub := publisher.New(publisher.Config{
		Store:       store,
		Policy:      pol,
		Maintainers: ratelimit.None{},
		Hosts:       ratelimit.NewHostBackoff(0),
		Hoster:      hosterfake.New(),
		Publish:     blocking,
	})
	if _, err := store.UpsertCodebase(context.Background(), domain.Codebase{Name: "cb"}); err != nil {
		t.Fatalf("UpsertCodebase: %v", err)
	}

	loop := NewEventLoop(nil, pub, nil)

	run1 := domain.Run{
		ID: "run-1", Codebase: "cb", Campaign: "camp", ResultCode: jerrors.ResultSuccess,
		ResultBranches: []domain.ResultBranch{{Role: domain.BranchRoleMain, Name: "main", HeadRevision: "rev1"}},
	}
	payload1, _ := json.Marshal(run1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = loop.handle(context.Background(), pgnotify.Event{Payload: payload1})
	}()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatalf("first handle call never reached publish_one")
	}

	run2 := domain.Run{
		ID: "run-2", Codebase: "cb", Campaign: "camp", ResultCode: jerrors.ResultSuccess,
		ResultBranches: []domain.ResultBranch{{Role: domain.BranchRoleMain, Name: "main", HeadRevision: "rev2"}},
	}
	payload2, _ := json.Marshal(run2)
	if err := loop.handle(context.Background(), pgnotify.Event{Payload: payload2}); err != nil {
		t.Fatalf("second handle: %v", err)
	}

	close(release)
	wg.Wait()

	if len(blocking.requests()) != 1 {
		t.Fatalf("debounce should have dropped the concurrent second result, got %d publish_one calls", len(blocking.requests()))
	}
}

// blockingPublisher is a hoster.Publisher double that blocks on the first
// call until release is closed, letting a test observe the in-flight window.
type blockingPublisher struct {
	mu   sync.Mutex
	reqs []hoster.PublishRequest

	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingPublisher) PublishOne(ctx context.Context, req hoster.PublishRequest) (hoster.PublishResponse, error) {
	b.mu.Lock()
	b.reqs = append(b.reqs, req)
	b.mu.Unlock()

	b.once.Do(func() { close(b.entered) })
	<-b.release
	return hoster.PublishResponse{BranchName: "main", IsNew: true}, nil
}

func (b *blockingPublisher) requests() []hoster.PublishRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]hoster.PublishRequest(nil), b.reqs...)
}
