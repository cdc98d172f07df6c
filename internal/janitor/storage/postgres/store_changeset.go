package postgres

import (
	"context"
	"database/sql"

	"github.com/openjanitor/janitor/internal/janitor/domain"
)

// ChangeSetStore implementation

func (s *Store) PutChangeSet(ctx context.Context, cs domain.ChangeSet) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO janitor_changesets (run_id, branch, diff, summary)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id, branch) DO UPDATE
		SET diff = $3, summary = $4
	`, cs.RunID, string(cs.Branch), cs.Diff, cs.Summary)
	return err
}

func (s *Store) GetChangeSet(ctx context.Context, runID string, branch domain.BranchRole) (domain.ChangeSet, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, branch, diff, summary
		FROM janitor_changesets
		WHERE run_id = $1 AND branch = $2
	`, runID, string(branch))

	var (
		cs         domain.ChangeSet
		branchName string
	)
	if err := row.Scan(&cs.RunID, &branchName, &cs.Diff, &cs.Summary); err != nil {
		if err == sql.ErrNoRows {
			return domain.ChangeSet{}, false, nil
		}
		return domain.ChangeSet{}, false, err
	}
	cs.Branch = domain.BranchRole(branchName)
	return cs, true, nil
}
