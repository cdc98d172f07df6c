package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/openjanitor/janitor/internal/janitor/domain"
)

// --- PublishRecordStore -----------------------------------------------------------

func (m *Memory) AppendPublishRecord(_ context.Context, rec domain.PublishRecord) (domain.PublishRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.AttemptedAt.IsZero() {
		rec.AttemptedAt = time.Now().UTC()
	}
	m.publishLog = append(m.publishLog, rec)
	return rec, nil
}

func (m *Memory) LastPublishRecord(_ context.Context, codebase, campaign string) (domain.PublishRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		best  domain.PublishRecord
		found bool
	)
	for _, rec := range m.publishLog {
		if rec.Codebase != codebase || rec.Campaign != campaign {
			continue
		}
		if !found || rec.AttemptedAt.After(best.AttemptedAt) {
			best = rec
			found = true
		}
	}
	return best, found, nil
}

func (m *Memory) ListPublishRecords(_ context.Context, codebase, campaign string, limit int) ([]domain.PublishRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []domain.PublishRecord
	for _, rec := range m.publishLog {
		if rec.Codebase == codebase && rec.Campaign == campaign {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AttemptedAt.After(result[j].AttemptedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *Memory) LastPublishForCampaign(_ context.Context, campaign string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		best  time.Time
		found bool
	)
	for _, rec := range m.publishLog {
		if rec.Campaign != campaign {
			continue
		}
		if !found || rec.AttemptedAt.After(best) {
			best = rec.AttemptedAt
			found = true
		}
	}
	return best, found, nil
}

func (m *Memory) CountRecentPushes(_ context.Context, maintainer string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, rec := range m.publishLog {
		if rec.Mode != domain.PublishModePush && rec.Mode != domain.PublishModeAttemptPush {
			continue
		}
		if rec.AttemptedAt.Before(since) {
			continue
		}
		cb, ok := m.codebases[rec.Codebase]
		if !ok || cb.Maintainer != maintainer {
			continue
		}
		n++
	}
	return n, nil
}
