// Package queue exposes the worker-facing queue operations (next, keepalive,
// complete, get_buckets) over a storage.QueueStore, without adding state of
// its own: the claiming transaction lives in the store so "assigned" and
// "queued" are never simultaneously true.
package queue

import (
	"context"
	"time"

	"github.com/openjanitor/janitor/internal/janitor/domain"
	"github.com/openjanitor/janitor/internal/janitor/storage"
)

// Config tunes lease handling.
type Config struct {
	// KeepaliveTimeout is how long a claim may go without a keepalive
	// before it is considered abandoned and reclaimed.
	KeepaliveTimeout time.Duration
}

// DefaultConfig returns the queue defaults.
func DefaultConfig() Config {
	return Config{KeepaliveTimeout: 2 * time.Minute}
}

// Assignment is a QueueItem leased to a worker.
type Assignment struct {
	Item  domain.QueueItem
	Claim domain.Claim
}

// Queue implements next/keepalive/complete/get_buckets over a QueueStore.
type Queue struct {
	store storage.QueueStore
	cfg   Config
}

// New creates a Queue.
func New(store storage.QueueStore, cfg Config) *Queue {
	return &Queue{store: store, cfg: cfg}
}

// Next atomically pops the lowest-ranked unclaimed item whose
// RequiredCapability (if any) is in capabilities, and leases it to worker.
// It first reclaims any expired leases so they become available again.
// Returns ok=false when the queue has no claimable work matching worker's
// capabilities.
func (q *Queue) Next(ctx context.Context, worker string, capabilities []domain.BuildTargetClass) (Assignment, bool, error) {
	if _, err := q.store.ReclaimExpired(ctx, q.cfg.KeepaliveTimeout, time.Now()); err != nil {
		return Assignment{}, false, err
	}

	item, claim, ok, err := q.store.Claim(ctx, worker, capabilities)
	if err != nil || !ok {
		return Assignment{}, false, err
	}
	return Assignment{Item: item, Claim: claim}, true, nil
}

// Keepalive extends a worker's lease on an assignment.
func (q *Queue) Keepalive(ctx context.Context, queueItemID int64, worker string) error {
	return q.store.Keepalive(ctx, queueItemID, worker, time.Now())
}

// Complete removes the queue item once its run has been recorded by the
// caller. A completed item never reappears except via an explicit
// reschedule through the scheduler.
func (q *Queue) Complete(ctx context.Context, queueItemID int64) error {
	return q.store.Complete(ctx, queueItemID)
}

// Buckets returns the current bucket distribution for display and
// back-pressure decisions.
func (q *Queue) Buckets(ctx context.Context) (map[string]int, error) {
	return q.store.ListBuckets(ctx)
}

// Len returns the total number of queued (unclaimed or claimed) items.
func (q *Queue) Len(ctx context.Context) (int, error) {
	return q.store.Len(ctx)
}
