package schedule_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/tracecore/pkg/propagate"
	"github.com/arc-self/tracecore/pkg/schedule"
)

func TestSystemContext_SynthesizesSystemIdentity(t *testing.T) {
	sc := schedule.SystemContext("cdcworker", "cleanup-outbox")

	assert.Equal(t, schedule.SystemTenantID, sc.TenantID)
	assert.Equal(t, schedule.SystemUserID, sc.UserID)
	assert.Equal(t, "cleanup-outbox", sc.TransactionType)
	assert.Equal(t, "cdcworker", sc.ServiceName)
	assert.NotEmpty(t, sc.RequestID)
}

func TestSystemContext_FreshRequestIDPerCall(t *testing.T) {
	a := schedule.SystemContext("svc", "job")
	b := schedule.SystemContext("svc", "job")
	assert.NotEqual(t, a.RequestID, b.RequestID)
}

func TestScheduler_RunsJobWithBoundSystemScope(t *testing.T) {
	s := schedule.NewScheduler("notification-service", nil)

	done := make(chan propagate.Scope, 1)
	err := s.RegisterJob("@every 1s", "digest-send", func(ctx context.Context) error {
		scope, ok := propagate.FromContext(ctx)
		require.True(t, ok)
		done <- scope
		return nil
	})
	require.NoError(t, err)

	s.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(stopCtx)
	}()

	select {
	case scope := <-done:
		assert.Equal(t, schedule.SystemUserID, scope.Standard.UserID)
		assert.Equal(t, "digest-send", scope.Standard.TransactionType)
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run within expected window")
	}
}
