package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/openjanitor/janitor/internal/janitor/domain"
	"github.com/openjanitor/janitor/internal/janitor/jerrors"
)

// RunStore implementation

func (s *Store) CreateRun(ctx context.Context, r domain.Run) (domain.Run, error) {
	var failureJSON []byte
	if r.FailureDetails != nil {
		var err error
		failureJSON, err = json.Marshal(r.FailureDetails)
		if err != nil {
			return domain.Run{}, err
		}
	}
	branchesJSON, err := json.Marshal(r.ResultBranches)
	if err != nil {
		return domain.Run{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO janitor_runs
			(id, codebase, campaign, command, context, start_time, finish_time, result_code,
			 failure_details, failure_transient, instigated_context, main_branch_revision, result_branches)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, r.ID, r.Codebase, r.Campaign, r.Command, r.Context, r.StartTime, r.FinishTime, string(r.ResultCode),
		failureJSON, r.FailureTransient, r.InstigatedContext, r.MainBranchRevision, branchesJSON)
	if err != nil {
		return domain.Run{}, err
	}
	return r, nil
}

func (s *Store) GetRun(ctx context.Context, id string) (domain.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, codebase, campaign, command, context, start_time, finish_time, result_code,
		       failure_details, failure_transient, instigated_context, main_branch_revision, result_branches
		FROM janitor_runs
		WHERE id = $1
	`, id)
	return scanRun(row)
}

func (s *Store) LastRun(ctx context.Context, codebase, campaign string) (domain.Run, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, codebase, campaign, command, context, start_time, finish_time, result_code,
		       failure_details, failure_transient, instigated_context, main_branch_revision, result_branches
		FROM janitor_runs
		WHERE codebase = $1 AND campaign = $2
		ORDER BY finish_time DESC
		LIMIT 1
	`, codebase, campaign)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return domain.Run{}, false, nil
	}
	if err != nil {
		return domain.Run{}, false, err
	}
	return r, true, nil
}

func (s *Store) ListRuns(ctx context.Context, codebase, campaign string, limit int) ([]domain.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, codebase, campaign, command, context, start_time, finish_time, result_code,
		       failure_details, failure_transient, instigated_context, main_branch_revision, result_branches
		FROM janitor_runs
		WHERE ($1 = '' OR codebase = $1) AND ($2 = '' OR campaign = $2)
		ORDER BY finish_time DESC
		LIMIT $3
	`, codebase, campaign, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuns(rows)
}

func (s *Store) WorkerOutcomes(ctx context.Context, codebase, campaign string, limit int) ([]domain.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, codebase, campaign, command, context, start_time, finish_time, result_code,
		       failure_details, failure_transient, instigated_context, main_branch_revision, result_branches
		FROM janitor_runs
		WHERE codebase = $1 AND campaign = $2
		ORDER BY finish_time DESC
		LIMIT $3
	`, codebase, campaign, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	// Reverse to oldest-first, the order the estimator's smoothing expects.
	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}
	return runs, nil
}

func (s *Store) ListPublishReadyRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.codebase, r.campaign, r.command, r.context, r.start_time, r.finish_time, r.result_code,
		       r.failure_details, r.failure_transient, r.instigated_context, r.main_branch_revision, r.result_branches
		FROM janitor_runs r
		LEFT JOIN janitor_publish_records p ON p.run_id = r.id
		WHERE r.result_code = $1 AND p.run_id IS NULL
		ORDER BY r.finish_time DESC
		LIMIT $2
	`, string(jerrors.ResultSuccess), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuns(rows)
}

func scanRun(row rowScanner) (domain.Run, error) {
	var (
		r            domain.Run
		resultCode   string
		failureJSON  []byte
		branchesJSON []byte
	)
	if err := row.Scan(&r.ID, &r.Codebase, &r.Campaign, &r.Command, &r.Context, &r.StartTime, &r.FinishTime, &resultCode,
		&failureJSON, &r.FailureTransient, &r.InstigatedContext, &r.MainBranchRevision, &branchesJSON); err != nil {
		return domain.Run{}, err
	}
	r.ResultCode = jerrors.ResultCode(resultCode)
	r.StartTime = r.StartTime.UTC()
	r.FinishTime = r.FinishTime.UTC()

	if len(failureJSON) > 0 {
		var fd domain.FailureDetails
		if err := json.Unmarshal(failureJSON, &fd); err != nil {
			return domain.Run{}, err
		}
		r.FailureDetails = &fd
	}
	if len(branchesJSON) > 0 {
		if err := json.Unmarshal(branchesJSON, &r.ResultBranches); err != nil {
			return domain.Run{}, err
		}
	}
	return r, nil
}

func scanRuns(rows *sql.Rows) ([]domain.Run, error) {
	var result []domain.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
