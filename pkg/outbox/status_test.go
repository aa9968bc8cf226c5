package outbox_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/tracecore/pkg/outbox"
)

func TestMarkProcessed_OnlyTouchesPendingRows(t *testing.T) {
	pool := &fakePool{}

	err := outbox.MarkProcessed(context.Background(), pool, "row-1")

	require.NoError(t, err)
	assert.Contains(t, pool.execSQL, "SET status = 'PROCESSED'")
	assert.Contains(t, pool.execSQL, "status = 'PENDING'", "a row already out of PENDING must not be re-marked")
	assert.Equal(t, []any{"row-1"}, pool.execArgs)
}

func TestReconcilePending_UsesAckLagInSeconds(t *testing.T) {
	pool := &fakePool{}

	_, err := outbox.ReconcilePending(context.Background(), pool, 5*time.Minute)

	require.NoError(t, err)
	assert.Contains(t, pool.execSQL, "status = 'PENDING'")
	assert.Contains(t, pool.execSQL, "SET status = 'PROCESSED'")
	require.Len(t, pool.execArgs, 1)
	assert.Equal(t, int64(300), pool.execArgs[0])
}
