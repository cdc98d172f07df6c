package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/openjanitor/janitor/internal/janitor/domain"
)

// ProposalStore implementation

func (s *Store) UpsertProposal(ctx context.Context, p domain.Proposal) (domain.Proposal, error) {
	now := time.Now().UTC()
	existing, err := s.getProposalByURL(ctx, p.URL)
	if err == nil {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO janitor_proposals
			(url, codebase, campaign, status, revision, run_id, created_at, updated_at, merged_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (url) DO UPDATE
		SET status = $4, revision = $5, run_id = $6, updated_at = $8, merged_at = $9, closed_at = $10
	`, p.URL, p.Codebase, p.Campaign, string(p.Status), p.Revision, p.RunID, p.CreatedAt, p.UpdatedAt,
		toNullTimePtr(p.MergedAt), toNullTimePtr(p.ClosedAt))
	if err != nil {
		return domain.Proposal{}, err
	}
	return p, nil
}

func (s *Store) GetOpenProposal(ctx context.Context, codebase, campaign string) (domain.Proposal, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT url, codebase, campaign, status, revision, run_id, created_at, updated_at, merged_at, closed_at
		FROM janitor_proposals
		WHERE codebase = $1 AND campaign = $2 AND status = $3
		ORDER BY created_at DESC
		LIMIT 1
	`, codebase, campaign, string(domain.ProposalStatusOpen))
	p, err := scanProposal(row)
	if err == sql.ErrNoRows {
		return domain.Proposal{}, false, nil
	}
	if err != nil {
		return domain.Proposal{}, false, err
	}
	return p, true, nil
}

func (s *Store) ListProposals(ctx context.Context, codebase, campaign string) ([]domain.Proposal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT url, codebase, campaign, status, revision, run_id, created_at, updated_at, merged_at, closed_at
		FROM janitor_proposals
		WHERE codebase = $1 AND campaign = $2
		ORDER BY created_at DESC
	`, codebase, campaign)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) ListOpenProposals(ctx context.Context) ([]domain.Proposal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT url, codebase, campaign, status, revision, run_id, created_at, updated_at, merged_at, closed_at
		FROM janitor_proposals
		WHERE status = $1
		ORDER BY created_at ASC
	`, string(domain.ProposalStatusOpen))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) getProposalByURL(ctx context.Context, url string) (domain.Proposal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT url, codebase, campaign, status, revision, run_id, created_at, updated_at, merged_at, closed_at
		FROM janitor_proposals
		WHERE url = $1
	`, url)
	return scanProposal(row)
}

func scanProposal(row rowScanner) (domain.Proposal, error) {
	var (
		p        domain.Proposal
		status   string
		mergedAt sql.NullTime
		closedAt sql.NullTime
	)
	if err := row.Scan(&p.URL, &p.Codebase, &p.Campaign, &status, &p.Revision, &p.RunID,
		&p.CreatedAt, &p.UpdatedAt, &mergedAt, &closedAt); err != nil {
		return domain.Proposal{}, err
	}
	p.Status = domain.ProposalStatus(status)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	if mergedAt.Valid {
		t := mergedAt.Time.UTC()
		p.MergedAt = &t
	}
	if closedAt.Valid {
		t := closedAt.Time.UTC()
		p.ClosedAt = &t
	}
	return p, nil
}
