package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/openjanitor/janitor/internal/janitor/domain"
	"github.com/openjanitor/janitor/internal/janitor/jerrors"
)

// PublishRecordStore implementation

func (s *Store) AppendPublishRecord(ctx context.Context, rec domain.PublishRecord) (domain.PublishRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.AttemptedAt.IsZero() {
		rec.AttemptedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO janitor_publish_records
			(id, codebase, campaign, run_id, mode, state, result_code, proposal_url, revision, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rec.ID, rec.Codebase, rec.Campaign, rec.RunID, string(rec.Mode), string(rec.State), string(rec.ResultCode),
		toNullString(rec.ProposalURL), rec.Revision, rec.AttemptedAt)
	if err != nil {
		return domain.PublishRecord{}, err
	}
	return rec, nil
}

func (s *Store) LastPublishRecord(ctx context.Context, codebase, campaign string) (domain.PublishRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, codebase, campaign, run_id, mode, state, result_code, proposal_url, revision, attempted_at
		FROM janitor_publish_records
		WHERE codebase = $1 AND campaign = $2
		ORDER BY attempted_at DESC
		LIMIT 1
	`, codebase, campaign)
	rec, err := scanPublishRecord(row)
	if err == sql.ErrNoRows {
		return domain.PublishRecord{}, false, nil
	}
	if err != nil {
		return domain.PublishRecord{}, false, err
	}
	return rec, true, nil
}

func (s *Store) ListPublishRecords(ctx context.Context, codebase, campaign string, limit int) ([]domain.PublishRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, codebase, campaign, run_id, mode, state, result_code, proposal_url, revision, attempted_at
		FROM janitor_publish_records
		WHERE codebase = $1 AND campaign = $2
		ORDER BY attempted_at DESC
		LIMIT $3
	`, codebase, campaign, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.PublishRecord
	for rows.Next() {
		rec, err := scanPublishRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *Store) LastPublishForCampaign(ctx context.Context, campaign string) (time.Time, bool, error) {
	var attemptedAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT attempted_at
		FROM janitor_publish_records
		WHERE campaign = $1
		ORDER BY attempted_at DESC
		LIMIT 1
	`, campaign).Scan(&attemptedAt)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return attemptedAt.UTC(), true, nil
}

func (s *Store) CountRecentPushes(ctx context.Context, maintainer string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM janitor_publish_records r
		JOIN janitor_codebases c ON c.name = r.codebase
		WHERE c.maintainer = $1
		  AND r.mode IN ($2, $3)
		  AND r.attempted_at >= $4
	`, maintainer, string(domain.PublishModePush), string(domain.PublishModeAttemptPush), since.UTC()).Scan(&n)
	return n, err
}

func scanPublishRecord(row rowScanner) (domain.PublishRecord, error) {
	var (
		rec         domain.PublishRecord
		mode        string
		state       string
		resultCode  string
		proposalURL sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.Codebase, &rec.Campaign, &rec.RunID, &mode, &state, &resultCode,
		&proposalURL, &rec.Revision, &rec.AttemptedAt); err != nil {
		return domain.PublishRecord{}, err
	}
	rec.Mode = domain.PublishMode(mode)
	rec.State = domain.PublishState(state)
	rec.ResultCode = jerrors.ResultCode(resultCode)
	rec.ProposalURL = fromNullString(proposalURL)
	rec.AttemptedAt = rec.AttemptedAt.UTC()
	return rec, nil
}
