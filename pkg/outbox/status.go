package outbox

import (
	"context"
	"fmt"
	"time"
)

const markProcessedSQL = `
UPDATE outbox_events
SET status = 'PROCESSED', processed_at = now()
WHERE id = $1 AND status = 'PENDING'`

// MarkProcessed records that the event in row id has been handed to the
// broker. Only Pending rows are eligible; marking an already Processed or
// Failed row is a no-op, so the CDC worker can safely retry after a crash
// between publish and status update.
func MarkProcessed(ctx context.Context, pool Pool, id string) error {
	if _, err := pool.Exec(ctx, markProcessedSQL, id); err != nil {
		return fmt.Errorf("outbox: mark processed %s: %w", id, err)
	}
	return nil
}

const reconcilePendingSQL = `
UPDATE outbox_events
SET status = 'PROCESSED', processed_at = now()
WHERE status = 'PENDING'
  AND created_at < now() - ($1 * interval '1 second')`

// ReconcilePending marks Pending rows older than ackLag as Processed. It
// backstops MarkProcessed: if the CDC worker dies between publishing a
// message and updating the row, the row would otherwise stay Pending
// forever and never become eligible for cleanup. ackLag must comfortably
// exceed the worst-case replication-to-publish delay, so a row this old
// has either been published or will be re-emitted when the replication
// slot is resumed.
func ReconcilePending(ctx context.Context, pool Pool, ackLag time.Duration) (int64, error) {
	tag, err := pool.Exec(ctx, reconcilePendingSQL, int64(ackLag.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("outbox: reconcile pending: %w", err)
	}
	return tag.RowsAffected(), nil
}
