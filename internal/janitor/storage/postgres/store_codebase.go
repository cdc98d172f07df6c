package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/openjanitor/janitor/internal/janitor/domain"
)

// CodebaseStore implementation

func (s *Store) UpsertCodebase(ctx context.Context, cb domain.Codebase) (domain.Codebase, error) {
	now := time.Now().UTC()
	existing, err := s.GetCodebase(ctx, cb.Name)
	if err == nil {
		cb.CreatedAt = existing.CreatedAt
	} else {
		cb.CreatedAt = now
	}
	cb.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO janitor_codebases (name, vcs_url, vcs_kind, value, maintainer, uploader, removed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (name) DO UPDATE
		SET vcs_url = $2, vcs_kind = $3, value = $4, maintainer = $5, uploader = $6, removed = $7, updated_at = $9
	`, cb.Name, cb.VCSURL, string(cb.VCSKind), cb.Value, cb.Maintainer, pq.Array(cb.Uploader), cb.Removed, cb.CreatedAt, cb.UpdatedAt)
	if err != nil {
		return domain.Codebase{}, err
	}
	return cb, nil
}

func (s *Store) GetCodebase(ctx context.Context, name string) (domain.Codebase, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, vcs_url, vcs_kind, value, maintainer, uploader, removed, created_at, updated_at
		FROM janitor_codebases
		WHERE name = $1
	`, name)

	var (
		cb      domain.Codebase
		vcsKind string
	)
	if err := row.Scan(&cb.Name, &cb.VCSURL, &vcsKind, &cb.Value, &cb.Maintainer, pq.Array(&cb.Uploader), &cb.Removed, &cb.CreatedAt, &cb.UpdatedAt); err != nil {
		return domain.Codebase{}, err
	}
	cb.VCSKind = domain.VCSKind(vcsKind)
	cb.CreatedAt = cb.CreatedAt.UTC()
	cb.UpdatedAt = cb.UpdatedAt.UTC()
	return cb, nil
}

func (s *Store) ListCodebases(ctx context.Context) ([]domain.Codebase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, vcs_url, vcs_kind, value, maintainer, uploader, removed, created_at, updated_at
		FROM janitor_codebases
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Codebase
	for rows.Next() {
		var (
			cb      domain.Codebase
			vcsKind string
		)
		if err := rows.Scan(&cb.Name, &cb.VCSURL, &vcsKind, &cb.Value, &cb.Maintainer, pq.Array(&cb.Uploader), &cb.Removed, &cb.CreatedAt, &cb.UpdatedAt); err != nil {
			return nil, err
		}
		cb.VCSKind = domain.VCSKind(vcsKind)
		cb.CreatedAt = cb.CreatedAt.UTC()
		cb.UpdatedAt = cb.UpdatedAt.UTC()
		result = append(result, cb)
	}
	return result, rows.Err()
}

func (s *Store) RemoveCodebase(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE janitor_codebases SET removed = true, updated_at = $2 WHERE name = $1
	`, name, time.Now().UTC())
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
