package memory

import (
	"context"

	"github.com/openjanitor/janitor/internal/janitor/domain"
)

// --- ChangeSetStore -----------------------------------------------------------

func (m *Memory) PutChangeSet(_ context.Context, cs domain.ChangeSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs.Diff = append([]byte(nil), cs.Diff...)
	m.changesets[changeSetKey{runID: cs.RunID, branch: cs.Branch}] = cs
	return nil
}

func (m *Memory) GetChangeSet(_ context.Context, runID string, branch domain.BranchRole) (domain.ChangeSet, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cs, ok := m.changesets[changeSetKey{runID: runID, branch: branch}]
	if !ok {
		return domain.ChangeSet{}, false, nil
	}
	out := cs
	out.Diff = append([]byte(nil), cs.Diff...)
	return out, true, nil
}
