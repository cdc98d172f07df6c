package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/openjanitor/janitor/internal/janitor/domain"
	"github.com/openjanitor/janitor/internal/janitor/jerrors"
)

// --- RunStore -----------------------------------------------------------

func (m *Memory) CreateRun(_ context.Context, r domain.Run) (domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.ResultBranches = append([]domain.ResultBranch(nil), r.ResultBranches...)
	m.runs[r.ID] = r
	return r, nil
}

func (m *Memory) GetRun(_ context.Context, id string) (domain.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[id]
	if !ok {
		return domain.Run{}, fmt.Errorf("run %q not found", id)
	}
	return r, nil
}

func (m *Memory) LastRun(_ context.Context, codebase, campaign string) (domain.Run, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		best  domain.Run
		found bool
	)
	for _, r := range m.runs {
		if r.Codebase != codebase || r.Campaign != campaign {
			continue
		}
		if !found || r.FinishTime.After(best.FinishTime) {
			best = r
			found = true
		}
	}
	return best, found, nil
}

func (m *Memory) ListRuns(_ context.Context, codebase, campaign string, limit int) ([]domain.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []domain.Run
	for _, r := range m.runs {
		if codebase != "" && r.Codebase != codebase {
			continue
		}
		if campaign != "" && r.Campaign != campaign {
			continue
		}
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].FinishTime.After(result[j].FinishTime) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *Memory) WorkerOutcomes(_ context.Context, codebase, campaign string, limit int) ([]domain.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []domain.Run
	for _, r := range m.runs {
		if r.Codebase == codebase && r.Campaign == campaign {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].FinishTime.Before(result[j].FinishTime) })
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

func (m *Memory) ListPublishReadyRuns(_ context.Context, limit int) ([]domain.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	published := make(map[string]bool, len(m.publishLog))
	for _, rec := range m.publishLog {
		published[rec.RunID] = true
	}

	var result []domain.Run
	for _, r := range m.runs {
		if r.ResultCode != jerrors.ResultSuccess || published[r.ID] {
			continue
		}
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].FinishTime.After(result[j].FinishTime) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
