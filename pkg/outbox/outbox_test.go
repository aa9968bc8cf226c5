package outbox_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/tracecore/pkg/ctxmodel"
	"github.com/arc-self/tracecore/pkg/outbox"
)

// fakeTx records every Exec call it receives, standing in for a pgx.Tx
// inside a real database transaction. These tests only check the outbox
// half: the atomicity with the domain mutation is a property of the
// caller's transaction, not of Append.
type fakeTx struct {
	gotSQL  string
	gotArgs []any
	err     error
}

func (f *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.gotSQL = sql
	f.gotArgs = args
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestAppend_WritesRowWithContextColumns(t *testing.T) {
	tx := &fakeTx{}
	cols := ctxmodel.BuildContextColumns(
		ctxmodel.TraceContext{TraceID: "4bf92f3577b34da6a3ce929d0e0e4736", SpanID: "00f067aa0ba902b7", Flags: "01"},
		ctxmodel.StandardContext{TenantID: "tenant-a", UserID: "u-1", RequestID: "r-1"},
	)

	ev, err := outbox.Append(context.Background(), tx, outbox.NewEvent{
		AggregateType: "link",
		AggregateID:   "abc123",
		EventType:     "link.created",
		Payload:       []byte(`{"code":"abc123"}`),
		Context:       cols,
	})

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, ev.ID)
	assert.Equal(t, outbox.StatusPending, ev.Status)
	assert.False(t, ev.CreatedAt.IsZero())
	assert.Equal(t, "tenant-a", ev.Context.TenantID)
	require.Len(t, tx.gotArgs, 16)
	assert.Equal(t, "link", tx.gotArgs[1])
	assert.Equal(t, "abc123", tx.gotArgs[2])
	assert.Equal(t, "link.created", tx.gotArgs[3])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", tx.gotArgs[5])
	assert.Equal(t, outbox.StatusPending, tx.gotArgs[14])
	assert.Equal(t, ev.CreatedAt, tx.gotArgs[15])
}

func TestAppend_PropagatesExecError(t *testing.T) {
	tx := &fakeTx{err: assertOutboxErr{}}

	_, err := outbox.Append(context.Background(), tx, outbox.NewEvent{
		AggregateType: "link",
		AggregateID:   "abc123",
		EventType:     "link.created",
		Payload:       []byte(`{}`),
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, assertOutboxErr{})
}

type assertOutboxErr struct{}

func (assertOutboxErr) Error() string { return "simulated write failure" }
