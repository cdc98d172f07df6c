package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/openjanitor/janitor/internal/janitor/domain"
)

// --- QueueStore -----------------------------------------------------------

func (m *Memory) Enqueue(_ context.Context, item domain.QueueItem) (domain.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item.ID = m.nextQueueIDLocked()
	item.CreatedAt = time.Now().UTC()
	m.queue[item.ID] = item
	return item, nil
}

func (m *Memory) Claim(_ context.Context, worker string, capabilities []domain.BuildTargetClass) (domain.QueueItem, domain.Claim, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var candidates []domain.QueueItem
	for id, item := range m.queue {
		if _, claimed := m.claims[id]; claimed {
			continue
		}
		if !capabilityMatch(item.RequiredCapability, capabilities) {
			continue
		}
		candidates = append(candidates, item)
	}
	if len(candidates) == 0 {
		return domain.QueueItem{}, domain.Claim{}, false, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Bucket != b.Bucket {
			return a.Bucket < b.Bucket
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.ID < b.ID
	})

	item := candidates[0]
	now := time.Now().UTC()
	claim := domain.Claim{QueueItemID: item.ID, WorkerName: worker, ClaimedAt: now, LastSeenAt: now}
	m.claims[item.ID] = claim
	return item, claim, true, nil
}

func (m *Memory) Keepalive(_ context.Context, queueItemID int64, worker string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	claim, ok := m.claims[queueItemID]
	if !ok || claim.WorkerName != worker {
		return fmt.Errorf("no claim for queue item %d held by %q", queueItemID, worker)
	}
	claim.LastSeenAt = at.UTC()
	m.claims[queueItemID] = claim
	return nil
}

func (m *Memory) Complete(_ context.Context, queueItemID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.claims, queueItemID)
	delete(m.queue, queueItemID)
	return nil
}

func (m *Memory) ReclaimExpired(_ context.Context, timeout time.Duration, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, claim := range m.claims {
		if claim.Expired(now, timeout) {
			delete(m.claims, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) ListBuckets(_ context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	buckets := make(map[string]int)
	for _, item := range m.queue {
		buckets[item.Bucket]++
	}
	return buckets, nil
}

func (m *Memory) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.queue), nil
}

// capabilityMatch reports whether a worker advertising capabilities may
// claim an item requiring required. An item with no RequiredCapability is
// claimable by any worker; otherwise the worker must list it explicitly.
func capabilityMatch(required domain.BuildTargetClass, capabilities []domain.BuildTargetClass) bool {
	if required == "" {
		return true
	}
	for _, c := range capabilities {
		if c == required {
			return true
		}
	}
	return false
}
