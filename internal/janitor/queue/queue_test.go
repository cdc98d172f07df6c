package queue

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/openjanitor/janitor/internal/janitor/domain"
	"github.com/openjanitor/janitor/internal/janitor/storage/memory"
)

// TestNextOrdering is scenario S2: insert items (default, 3500, id1),
// (control, 9999, id2), (default, 100, id3); next() must return id3, id1,
// id2 in that order.
func TestNextOrdering(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	q := New(store, DefaultConfig())

	mustEnqueue(t, store, "default", 3500) // id 1
	mustEnqueue(t, store, "control", 9999) // id 2
	mustEnqueue(t, store, "default", 100)  // id 3

	var order []int64
	for i := 0; i < 3; i++ {
		a, ok, err := q.Next(ctx, "worker-1", nil)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			t.Fatalf("Next returned ok=false before the queue was drained")
		}
		order = append(order, a.Item.ID)
		if err := q.Complete(ctx, a.Item.ID); err != nil {
			t.Fatalf("Complete: %v", err)
		}
	}

	want := []int64{3, 1, 2}
	if !equalIDs(order, want) {
		t.Fatalf("claim order = %v, want %v", order, want)
	}
}

func TestNextFIFOWithinTier(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	q := New(store, DefaultConfig())

	mustEnqueue(t, store, "default", 100) // id 1
	mustEnqueue(t, store, "default", 100) // id 2
	mustEnqueue(t, store, "default", 100) // id 3

	var order []int64
	for i := 0; i < 3; i++ {
		a, ok, err := q.Next(ctx, "worker-1", nil)
		if err != nil || !ok {
			t.Fatalf("Next: ok=%v err=%v", ok, err)
		}
		order = append(order, a.Item.ID)
		if err := q.Complete(ctx, a.Item.ID); err != nil {
			t.Fatalf("Complete: %v", err)
		}
	}

	if !equalIDs(order, []int64{1, 2, 3}) {
		t.Fatalf("equal-tier claim order = %v, want ascending insertion order [1 2 3]", order)
	}
}

func TestNextNeverDoubleAssigns(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	q := New(store, DefaultConfig())
	mustEnqueue(t, store, "default", 100)

	first, ok, err := q.Next(ctx, "worker-1", nil)
	if err != nil || !ok {
		t.Fatalf("first Next: ok=%v err=%v", ok, err)
	}

	_, ok, err = q.Next(ctx, "worker-2", nil)
	if err != nil {
		t.Fatalf("second Next: %v", err)
	}
	if ok {
		t.Fatalf("a claimed item must not be handed out to a second worker")
	}

	if err := q.Complete(ctx, first.Item.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	_, ok, err = q.Next(ctx, "worker-2", nil)
	if err != nil {
		t.Fatalf("Next after complete: %v", err)
	}
	if ok {
		t.Fatalf("a completed item must never reappear")
	}
}

func TestKeepaliveExpiryReclaims(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	cfg := DefaultConfig()
	cfg.KeepaliveTimeout = 10 * time.Second
	q := New(store, cfg)

	mustEnqueue(t, store, "default", 100)

	a, ok, err := q.Next(ctx, "worker-1", nil)
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}

	if _, err := store.ReclaimExpired(ctx, cfg.KeepaliveTimeout, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("ReclaimExpired: %v", err)
	}

	again, ok, err := q.Next(ctx, "worker-2", nil)
	if err != nil {
		t.Fatalf("Next after lease expiry: %v", err)
	}
	if !ok || again.Item.ID != a.Item.ID {
		t.Fatalf("an expired lease must be reclaimable by another worker")
	}
}

func TestBuckets(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	q := New(store, DefaultConfig())

	mustEnqueue(t, store, "default", 1)
	mustEnqueue(t, store, "default", 2)
	mustEnqueue(t, store, "control", 1)

	buckets, err := q.Buckets(ctx)
	if err != nil {
		t.Fatalf("Buckets: %v", err)
	}
	if buckets["default"] != 2 || buckets["control"] != 1 {
		t.Fatalf("Buckets() = %+v, want default=2 control=1", buckets)
	}

	total, err := q.Len(ctx)
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if total != 3 {
		t.Fatalf("Len() = %d, want 3", total)
	}
}

// TestNextCarriesRefreshAndRequestor checks that an item enqueued with
// Refresh=true and a Requestor set (ScheduleConflictRefresh sets Refresh
// after a detected merge conflict) is handed back to the worker unchanged, since
// the worker reads Refresh to decide whether it may resume a previous
// branch instead of rebuilding from scratch.
func TestNextCarriesRefreshAndRequestor(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	q := New(store, DefaultConfig())

	want := domain.QueueItem{
		Codebase:    "cb",
		Campaign:    "lintian-fixes",
		Command:     "brz up",
		Context:     "ctx-1",
		Bucket:      "default",
		Priority:    -2,
		Refresh:     true,
		Requestor:   "publisher-conflict-sweep",
		ChangeSetID: "cs-1",
	}
	if _, err := store.Enqueue(ctx, want); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	a, ok, err := q.Next(ctx, "worker-1", nil)
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}

	opts := cmpopts.IgnoreFields(domain.QueueItem{}, "ID", "CreatedAt", "EstimatedDuration", "RequiredBy")
	if diff := cmp.Diff(want, a.Item, opts); diff != "" {
		t.Fatalf("claimed item mismatch (-want +got):\n%s", diff)
	}
}

// TestNextFiltersByCapability is the worker-capability half of next()'s
// contract (spec §4.3): an item with a RequiredCapability must not be
// handed to a worker that hasn't advertised it, but must become claimable
// as soon as a worker that has is asked, without disturbing queue order
// for items with no requirement at all.
func TestNextFiltersByCapability(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	q := New(store, DefaultConfig())

	debianItem, err := store.Enqueue(ctx, domain.QueueItem{
		Codebase: "cb", Campaign: "debian-campaign", Bucket: "default", Priority: 1,
		RequiredCapability: domain.BuildTargetDebian,
	})
	if err != nil {
		t.Fatalf("Enqueue(debian): %v", err)
	}

	// A worker advertising no capabilities must not claim the debian item.
	_, ok, err := q.Next(ctx, "generic-worker", nil)
	if err != nil {
		t.Fatalf("Next(generic-worker): %v", err)
	}
	if ok {
		t.Fatalf("a worker with no matching capability claimed a RequiredCapability item")
	}

	// A worker advertising the wrong capability must not claim it either.
	_, ok, err = q.Next(ctx, "generic-worker", []domain.BuildTargetClass{domain.BuildTargetGeneric})
	if err != nil {
		t.Fatalf("Next(generic-worker, generic): %v", err)
	}
	if ok {
		t.Fatalf("a worker advertising an unrelated capability claimed a RequiredCapability item")
	}

	// A worker advertising the matching capability claims it.
	got, ok, err := q.Next(ctx, "debian-worker", []domain.BuildTargetClass{domain.BuildTargetDebian})
	if err != nil || !ok {
		t.Fatalf("Next(debian-worker): ok=%v err=%v", ok, err)
	}
	if got.Item.ID != debianItem.ID {
		t.Fatalf("Next(debian-worker) claimed item %d, want %d", got.Item.ID, debianItem.ID)
	}
}

func mustEnqueue(t *testing.T, store *memory.Memory, bucket string, priority int64) {
	t.Helper()
	if _, err := store.Enqueue(context.Background(), domain.QueueItem{
		Codebase: "cb", Campaign: "campaign", Bucket: bucket, Priority: priority,
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
}

func equalIDs(got, want []int64) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
