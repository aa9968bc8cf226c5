package outbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Pool is the subset of pgxpool.Pool cleanup needs. pgx.Rows is already an
// interface, and pgxpool.Pool's Exec/Query signatures match these exactly,
// so *pgxpool.Pool satisfies Pool with no adaptation.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// RetentionPolicy bounds how long Processed rows are retained before
// CleanupOlderThan may remove them. Pending rows are never subject to
// retention — a row only becomes eligible once the CDC/consumer path has
// confirmed delivery — and Failed rows are kept too, since the
// deployment's retry policy owns their lifecycle.
type RetentionPolicy struct {
	RetentionDays int
}

func (p RetentionPolicy) days() int {
	if p.RetentionDays <= 0 {
		return 7
	}
	return p.RetentionDays
}

const deleteProcessedSQL = `
DELETE FROM outbox_events
WHERE status = 'PROCESSED'
  AND processed_at < now() - ($1 || ' days')::interval`

// CleanupOlderThan deletes Processed rows whose processed_at falls outside
// the policy's retention window. It never touches Pending or Failed rows
// regardless of age, by construction of the SQL's status filter rather
// than an application-side check.
func CleanupOlderThan(ctx context.Context, pool Pool, policy RetentionPolicy) (int64, error) {
	tag, err := pool.Exec(ctx, deleteProcessedSQL, policy.days())
	if err != nil {
		return 0, fmt.Errorf("outbox: cleanup: %w", err)
	}
	return tag.RowsAffected(), nil
}

const retryableFailedSQL = `
SELECT id, aggregate_type, aggregate_id, event_type, retry_count
FROM outbox_events
WHERE status = 'FAILED'
ORDER BY created_at ASC
LIMIT $1`

// RetryableFailedRef is a lightweight pointer to a Failed row, enough for an
// operator or a deployment-specific retry job to decide what to do with it.
// This package stops at read access: retry policy belongs to the
// deployment, so no automatic re-publish path lives here.
type RetryableFailedRef struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	RetryCount    int
}

// ListRetryableFailed returns up to limit Failed rows, oldest first.
func ListRetryableFailed(ctx context.Context, pool Pool, limit int) ([]RetryableFailedRef, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := pool.Query(ctx, retryableFailedSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox: list retryable failed: %w", err)
	}
	defer rows.Close()

	var out []RetryableFailedRef
	for rows.Next() {
		var ref RetryableFailedRef
		if err := rows.Scan(&ref.ID, &ref.AggregateType, &ref.AggregateID, &ref.EventType, &ref.RetryCount); err != nil {
			return nil, fmt.Errorf("outbox: scan retryable failed row: %w", err)
		}
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox: iterate retryable failed rows: %w", err)
	}
	return out, nil
}
