package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Tx is the minimal pgx.Tx surface Append needs, so callers can pass
// either a pgx.Tx obtained from pool.Begin or a test double. pgx.Tx.Exec
// already has this exact signature, so the concrete pgx.Tx satisfies Tx
// without adaptation.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const insertSQL = `
INSERT INTO outbox_events (
	id, aggregate_type, aggregate_id, event_type, payload,
	trace_id, parent_span_id, trace_flags,
	tenant_id, user_id, request_id, service_name, transaction_type, created_by,
	status, created_at
) VALUES (
	$1, $2, $3, $4, $5,
	$6, $7, $8,
	$9, $10, $11, $12, $13, $14,
	$15, $16
)`

// Append inserts ev as a new outbox row within tx and returns the record
// as constructed, with its generated ID, CreatedAt, and Pending status. It
// must be called inside the same database transaction as the domain
// mutation it records: Append does not begin, commit, or roll back a
// transaction itself.
func Append(ctx context.Context, tx Tx, ev NewEvent) (Event, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Event{}, fmt.Errorf("outbox: generate id for %s/%s event %s: %w", ev.AggregateType, ev.AggregateID, ev.EventType, err)
	}
	row := Event{
		ID:            id,
		AggregateType: ev.AggregateType,
		AggregateID:   ev.AggregateID,
		EventType:     ev.EventType,
		Payload:       ev.Payload,
		Context:       ev.Context,
		CreatedAt:     time.Now().UTC(),
		Status:        StatusPending,
	}
	_, err = tx.Exec(ctx, insertSQL,
		row.ID, row.AggregateType, row.AggregateID, row.EventType, []byte(row.Payload),
		nullableString(row.Context.TraceID), nullableString(row.Context.ParentSpanID), nullableString(row.Context.TraceFlags),
		row.Context.TenantID, row.Context.UserID, row.Context.RequestID, row.Context.ServiceName, row.Context.TransactionType, nullableString(row.Context.CreatedBy),
		row.Status, row.CreatedAt,
	)
	if err != nil {
		return Event{}, fmt.Errorf("outbox: append %s/%s event %s: %w", ev.AggregateType, ev.AggregateID, ev.EventType, err)
	}
	return row, nil
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
