// Package memory implements the storage interfaces with an in-process,
// mutex-guarded store. It backs tests and daemon runs started without a
// database DSN.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/openjanitor/janitor/internal/janitor/domain"
	"github.com/openjanitor/janitor/internal/janitor/storage"
)

// Memory is a thread-safe in-memory persistence layer implementing every
// storage interface. Values are stored and returned by value; of the slices
// inside them, ChangeSet diffs are copied on write and on read and run
// result branches on write only, so other slices and pointers in stored
// values are shared with callers.
type Memory struct {
	mu sync.RWMutex

	nextQueueID int64

	codebases   map[string]domain.Codebase
	campaigns   map[string]domain.Campaign
	candidates  map[domain.CandidateKey]domain.Candidate
	runs        map[string]domain.Run
	queue       map[int64]domain.QueueItem
	claims      map[int64]domain.Claim
	proposals   map[string]domain.Proposal
	publishLog  []domain.PublishRecord
	changesets  map[changeSetKey]domain.ChangeSet
}

type changeSetKey struct {
	runID  string
	branch domain.BranchRole
}

var _ storage.Store = (*Memory)(nil)

// New creates an empty in-memory store.
func New() *Memory {
	return &Memory{
		nextQueueID: 1,
		codebases:   make(map[string]domain.Codebase),
		campaigns:   make(map[string]domain.Campaign),
		candidates:  make(map[domain.CandidateKey]domain.Candidate),
		runs:        make(map[string]domain.Run),
		queue:       make(map[int64]domain.QueueItem),
		claims:      make(map[int64]domain.Claim),
		proposals:   make(map[string]domain.Proposal),
		changesets:  make(map[changeSetKey]domain.ChangeSet),
	}
}

func (m *Memory) nextQueueIDLocked() int64 {
	id := m.nextQueueID
	m.nextQueueID++
	return id
}

// --- CodebaseStore -----------------------------------------------------------

func (m *Memory) UpsertCodebase(_ context.Context, cb domain.Codebase) (domain.Codebase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := m.codebases[cb.Name]; ok {
		cb.CreatedAt = existing.CreatedAt
	} else {
		cb.CreatedAt = now
	}
	cb.UpdatedAt = now
	m.codebases[cb.Name] = cb
	return cb, nil
}

func (m *Memory) GetCodebase(_ context.Context, name string) (domain.Codebase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cb, ok := m.codebases[name]
	if !ok {
		return domain.Codebase{}, fmt.Errorf("codebase %q not found", name)
	}
	return cb, nil
}

func (m *Memory) ListCodebases(_ context.Context) ([]domain.Codebase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]domain.Codebase, 0, len(m.codebases))
	for _, cb := range m.codebases {
		result = append(result, cb)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Memory) RemoveCodebase(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cb, ok := m.codebases[name]
	if !ok {
		return fmt.Errorf("codebase %q not found", name)
	}
	cb.Removed = true
	cb.UpdatedAt = time.Now().UTC()
	m.codebases[name] = cb
	return nil
}

// --- CampaignStore -----------------------------------------------------------

func (m *Memory) UpsertCampaign(_ context.Context, c domain.Campaign) (domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := m.campaigns[c.Name]; ok {
		c.CreatedAt = existing.CreatedAt
	} else {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	m.campaigns[c.Name] = c
	return c, nil
}

func (m *Memory) GetCampaign(_ context.Context, name string) (domain.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.campaigns[name]
	if !ok {
		return domain.Campaign{}, fmt.Errorf("campaign %q not found", name)
	}
	return c, nil
}

func (m *Memory) ListCampaigns(_ context.Context) ([]domain.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]domain.Campaign, 0, len(m.campaigns))
	for _, c := range m.campaigns {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// --- CandidateStore -----------------------------------------------------------

func (m *Memory) UpsertCandidate(_ context.Context, c domain.Candidate) (domain.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	key := c.Key()
	if existing, ok := m.candidates[key]; ok {
		c.CreatedAt = existing.CreatedAt
	} else {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	m.candidates[key] = c
	return c, nil
}

func (m *Memory) GetCandidate(_ context.Context, key domain.CandidateKey) (domain.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.candidates[key]
	if !ok {
		return domain.Candidate{}, fmt.Errorf("candidate %s/%s not found", key.Codebase, key.Campaign)
	}
	return c, nil
}

func (m *Memory) ListCandidates(_ context.Context) ([]domain.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]domain.Candidate, 0, len(m.candidates))
	for _, c := range m.candidates {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Codebase != result[j].Codebase {
			return result[i].Codebase < result[j].Codebase
		}
		return result[i].Campaign < result[j].Campaign
	})
	return result, nil
}

func (m *Memory) ListCandidatesForCampaign(_ context.Context, campaign string) ([]domain.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []domain.Candidate
	for _, c := range m.candidates {
		if c.Campaign == campaign {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Codebase < result[j].Codebase })
	return result, nil
}

func (m *Memory) DeleteCandidate(_ context.Context, key domain.CandidateKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.candidates, key)
	return nil
}
