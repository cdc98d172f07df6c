package memory

import (
	"context"
	"sort"
	"time"

	"github.com/openjanitor/janitor/internal/janitor/domain"
)

// --- ProposalStore -----------------------------------------------------------

func (m *Memory) UpsertProposal(_ context.Context, p domain.Proposal) (domain.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := m.proposals[p.URL]; ok {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	m.proposals[p.URL] = p
	return p, nil
}

func (m *Memory) GetOpenProposal(_ context.Context, codebase, campaign string) (domain.Proposal, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		best  domain.Proposal
		found bool
	)
	for _, p := range m.proposals {
		if p.Codebase != codebase || p.Campaign != campaign || p.Status != domain.ProposalStatusOpen {
			continue
		}
		if !found || p.CreatedAt.After(best.CreatedAt) {
			best = p
			found = true
		}
	}
	return best, found, nil
}

func (m *Memory) ListProposals(_ context.Context, codebase, campaign string) ([]domain.Proposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []domain.Proposal
	for _, p := range m.proposals {
		if p.Codebase == codebase && p.Campaign == campaign {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (m *Memory) ListOpenProposals(_ context.Context) ([]domain.Proposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []domain.Proposal
	for _, p := range m.proposals {
		if p.Status == domain.ProposalStatusOpen {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}
