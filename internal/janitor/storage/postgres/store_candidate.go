package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/openjanitor/janitor/internal/janitor/domain"
)

// CandidateStore implementation

func (s *Store) UpsertCandidate(ctx context.Context, c domain.Candidate) (domain.Candidate, error) {
	now := time.Now().UTC()
	existing, err := s.GetCandidate(ctx, c.Key())
	if err == nil {
		c.CreatedAt = existing.CreatedAt
	} else {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO janitor_candidates
			(codebase, campaign, command, context, value, success_chance, publish_policy, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (codebase, campaign) DO UPDATE
		SET command = $3, context = $4, value = $5, success_chance = $6, publish_policy = $7, updated_at = $9
	`, c.Codebase, c.Campaign, c.Command, c.Context, c.Value, toNullFloat(c.SuccessChance), c.PublishPolicy, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return domain.Candidate{}, err
	}
	return c, nil
}

func (s *Store) GetCandidate(ctx context.Context, key domain.CandidateKey) (domain.Candidate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT codebase, campaign, command, context, value, success_chance, publish_policy, created_at, updated_at
		FROM janitor_candidates
		WHERE codebase = $1 AND campaign = $2
	`, key.Codebase, key.Campaign)
	return scanCandidate(row)
}

func (s *Store) ListCandidates(ctx context.Context) ([]domain.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT codebase, campaign, command, context, value, success_chance, publish_policy, created_at, updated_at
		FROM janitor_candidates
		ORDER BY codebase, campaign
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCandidates(rows)
}

func (s *Store) ListCandidatesForCampaign(ctx context.Context, campaign string) ([]domain.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT codebase, campaign, command, context, value, success_chance, publish_policy, created_at, updated_at
		FROM janitor_candidates
		WHERE campaign = $1
		ORDER BY codebase
	`, campaign)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCandidates(rows)
}

func (s *Store) DeleteCandidate(ctx context.Context, key domain.CandidateKey) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM janitor_candidates WHERE codebase = $1 AND campaign = $2
	`, key.Codebase, key.Campaign)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCandidate(row rowScanner) (domain.Candidate, error) {
	var (
		c             domain.Candidate
		successChance sql.NullFloat64
	)
	if err := row.Scan(&c.Codebase, &c.Campaign, &c.Command, &c.Context, &c.Value, &successChance, &c.PublishPolicy, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return domain.Candidate{}, err
	}
	c.SuccessChance = fromNullFloat(successChance)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

func scanCandidates(rows *sql.Rows) ([]domain.Candidate, error) {
	var result []domain.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}
