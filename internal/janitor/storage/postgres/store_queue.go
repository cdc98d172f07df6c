package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/openjanitor/janitor/internal/janitor/domain"
)

// QueueStore implementation. Claim uses SELECT ... FOR UPDATE SKIP LOCKED so
// concurrent workers never contend on the same row.

func (s *Store) Enqueue(ctx context.Context, item domain.QueueItem) (domain.QueueItem, error) {
	item.CreatedAt = time.Now().UTC()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO janitor_queue
			(codebase, campaign, command, context, bucket, priority, required_by, estimated_duration_ns, refresh, requestor, change_set_id, required_capability, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`, item.Codebase, item.Campaign, item.Command, item.Context, item.Bucket, item.Priority,
		toNullTimePtr(item.RequiredBy), item.EstimatedDuration.Nanoseconds(), item.Refresh, item.Requestor, item.ChangeSetID,
		string(item.RequiredCapability), item.CreatedAt).Scan(&item.ID)
	if err != nil {
		return domain.QueueItem{}, err
	}
	return item, nil
}

func (s *Store) Claim(ctx context.Context, worker string, capabilities []domain.BuildTargetClass) (domain.QueueItem, domain.Claim, bool, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return domain.QueueItem{}, domain.Claim{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	caps := make([]string, len(capabilities))
	for i, c := range capabilities {
		caps[i] = string(c)
	}

	row := tx.QueryRowContext(ctx, `
		SELECT q.id, q.codebase, q.campaign, q.command, q.context, q.bucket, q.priority,
		       q.required_by, q.estimated_duration_ns, q.refresh, q.requestor, q.change_set_id,
		       q.required_capability, q.created_at
		FROM janitor_queue q
		LEFT JOIN janitor_queue_claims c ON c.queue_item_id = q.id
		WHERE c.queue_item_id IS NULL
		  AND (q.required_capability = '' OR q.required_capability = ANY($1))
		ORDER BY q.bucket, q.priority, q.id
		LIMIT 1
		FOR UPDATE OF q SKIP LOCKED
	`, pq.Array(caps))

	var (
		item        domain.QueueItem
		requiredBy  sql.NullTime
		estimatedNs int64
		capability  string
	)
	if err := row.Scan(&item.ID, &item.Codebase, &item.Campaign, &item.Command, &item.Context,
		&item.Bucket, &item.Priority, &requiredBy, &estimatedNs, &item.Refresh, &item.Requestor,
		&item.ChangeSetID, &capability, &item.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.QueueItem{}, domain.Claim{}, false, tx.Commit()
		}
		return domain.QueueItem{}, domain.Claim{}, false, err
	}
	item.RequiredCapability = domain.BuildTargetClass(capability)
	if requiredBy.Valid {
		t := requiredBy.Time.UTC()
		item.RequiredBy = &t
	}
	item.EstimatedDuration = time.Duration(estimatedNs)
	item.CreatedAt = item.CreatedAt.UTC()

	now := time.Now().UTC()
	claim := domain.Claim{QueueItemID: item.ID, WorkerName: worker, ClaimedAt: now, LastSeenAt: now}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO janitor_queue_claims (queue_item_id, worker_name, claimed_at, last_seen_at)
		VALUES ($1, $2, $3, $4)
	`, claim.QueueItemID, claim.WorkerName, claim.ClaimedAt, claim.LastSeenAt); err != nil {
		return domain.QueueItem{}, domain.Claim{}, false, err
	}

	if err := tx.Commit(); err != nil {
		return domain.QueueItem{}, domain.Claim{}, false, err
	}
	return item, claim, true, nil
}

func (s *Store) Keepalive(ctx context.Context, queueItemID int64, worker string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE janitor_queue_claims
		SET last_seen_at = $3
		WHERE queue_item_id = $1 AND worker_name = $2
	`, queueItemID, worker, at.UTC())
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) Complete(ctx context.Context, queueItemID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM janitor_queue_claims WHERE queue_item_id = $1`, queueItemID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM janitor_queue WHERE id = $1`, queueItemID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ReclaimExpired(ctx context.Context, timeout time.Duration, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM janitor_queue_claims WHERE last_seen_at < $1
	`, now.UTC().Add(-timeout))
	if err != nil {
		return 0, err
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

func (s *Store) ListBuckets(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bucket, COUNT(*) FROM janitor_queue GROUP BY bucket
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	buckets := make(map[string]int)
	for rows.Next() {
		var (
			bucket string
			count  int
		)
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, err
		}
		buckets[bucket] = count
	}
	return buckets, rows.Err()
}

func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM janitor_queue`).Scan(&n)
	return n, err
}

func toNullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
