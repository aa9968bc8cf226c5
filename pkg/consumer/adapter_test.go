package consumer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/tracecore/pkg/consumer"
	"github.com/arc-self/tracecore/pkg/ctxmodel"
	"github.com/arc-self/tracecore/pkg/propagate"
)

type fakeMsg struct {
	subject    string
	data       []byte
	headers    map[string]string
	acked      bool
	naked      bool
	terminated bool
}

func (m *fakeMsg) Subject() string            { return m.subject }
func (m *fakeMsg) Data() []byte               { return m.data }
func (m *fakeMsg) Headers() map[string]string { return m.headers }
func (m *fakeMsg) Ack() error                 { m.acked = true; return nil }
func (m *fakeMsg) Nak() error                 { m.naked = true; return nil }
func (m *fakeMsg) Term() error                { m.terminated = true; return nil }

func TestProcess_ValidTraceparent_ContinuesAndAcks(t *testing.T) {
	msg := &fakeMsg{
		subject: "link-events.created",
		data:    []byte(`{"code":"abc123"}`),
		headers: map[string]string{
			ctxmodel.HeaderTraceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
			ctxmodel.HeaderTenantID:    "tenant-a",
		},
	}

	var gotTenant string
	adapter := consumer.NewAdapter("notification-service", func(ctx context.Context, ev consumer.Event) error {
		gotTenant = ev.Standard.TenantID
		return nil
	}, nil)

	err := adapter.Process(context.Background(), msg)

	require.NoError(t, err)
	assert.True(t, msg.acked)
	assert.Equal(t, "tenant-a", gotTenant)
}

func TestProcess_NoTraceHeaders_StillProcessesAsOrphan(t *testing.T) {
	msg := &fakeMsg{subject: "link-events.created", headers: map[string]string{}}

	called := false
	adapter := consumer.NewAdapter("notification-service", func(ctx context.Context, ev consumer.Event) error {
		called = true
		return nil
	}, nil)

	err := adapter.Process(context.Background(), msg)

	require.NoError(t, err)
	assert.True(t, called)
	assert.True(t, msg.acked)
}

func TestProcess_BindsDiagnosticScopeWithDefaults(t *testing.T) {
	msg := &fakeMsg{subject: "link-events.created", headers: map[string]string{}}

	var scope propagate.Scope
	adapter := consumer.NewAdapter("svc", func(ctx context.Context, ev consumer.Event) error {
		s, ok := propagate.FromContext(ctx)
		require.True(t, ok, "handler must observe the bound diagnostic scope")
		scope = s
		return nil
	}, nil)

	require.NoError(t, adapter.Process(context.Background(), msg))
	assert.Equal(t, ctxmodel.DefaultTenantID, scope.Standard.TenantID)
	assert.Equal(t, ctxmodel.DefaultUserID, scope.Standard.UserID)
}

func TestProcess_AcceptsHeaderNamesCaseInsensitively(t *testing.T) {
	// A broker client that MIME-canonicalizes keys mangles "trace_id" into
	// "Trace_id" and "X-Tenant-ID" into "X-Tenant-Id" in transit.
	msg := &fakeMsg{
		subject: "link-events.created",
		headers: map[string]string{
			"Trace_id":       "4bf92f3577b34da6a3ce929d0e0e4736",
			"Parent_span_id": "00f067aa0ba902b7",
			"X-Tenant-Id":    "tenant-a",
		},
	}

	var gotTenant string
	adapter := consumer.NewAdapter("svc", func(ctx context.Context, ev consumer.Event) error {
		gotTenant = ev.Standard.TenantID
		return nil
	}, nil)

	require.NoError(t, adapter.Process(context.Background(), msg))
	assert.True(t, msg.acked)
	assert.Equal(t, "tenant-a", gotTenant)
}

func TestProcess_DerivesEventFromSubjectAndMessageID(t *testing.T) {
	msg := &fakeMsg{
		subject: "link-events.link.created.abc123",
		headers: map[string]string{"Nats-Msg-Id": "abc123"},
	}

	var got consumer.Event
	adapter := consumer.NewAdapter("svc", func(ctx context.Context, ev consumer.Event) error {
		got = ev
		return nil
	}, nil)

	require.NoError(t, adapter.Process(context.Background(), msg))
	assert.Equal(t, "link.created", got.EventType)
	assert.Equal(t, "link", got.AggregateType)
	assert.Equal(t, "abc123", got.AggregateID)
}

func TestProcess_TransientHandlerError_Naks(t *testing.T) {
	msg := &fakeMsg{subject: "link-events.created", headers: map[string]string{}}
	adapter := consumer.NewAdapter("svc", func(ctx context.Context, ev consumer.Event) error {
		return errors.New("downstream db unavailable")
	}, nil)

	err := adapter.Process(context.Background(), msg)

	require.Error(t, err)
	assert.True(t, msg.naked)
	assert.False(t, msg.terminated)
}

func TestProcess_PoisonPillError_Terminates(t *testing.T) {
	msg := &fakeMsg{subject: "link-events.created", headers: map[string]string{}}
	adapter := consumer.NewAdapter("svc", func(ctx context.Context, ev consumer.Event) error {
		return consumer.PoisonPillError{Reason: "unparseable payload"}
	}, nil)

	err := adapter.Process(context.Background(), msg)

	require.Error(t, err)
	assert.True(t, msg.terminated)
	assert.False(t, msg.naked)
}
