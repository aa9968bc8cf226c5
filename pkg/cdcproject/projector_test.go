package cdcproject_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/tracecore/pkg/cdcproject"
)

func fullRow() cdcproject.CapturedRow {
	return cdcproject.CapturedRow{
		"event_type":       "link.created",
		"aggregate_type":   "link",
		"aggregate_id":     "abc123",
		"payload":          `{"code":"abc123"}`,
		"trace_id":         "4bf92f3577b34da6a3ce929d0e0e4736",
		"parent_span_id":   "00f067aa0ba902b7",
		"trace_flags":      "01",
		"tenant_id":        "tenant-a",
		"user_id":          "u-1",
		"request_id":       "r-1",
		"service_name":     "abc-service",
		"transaction_type": "create-link",
	}
}

func TestProject_FullRow_ProducesTraceparentAndBusinessHeaders(t *testing.T) {
	p, err := cdcproject.Project(fullRow(), cdcproject.DefaultTopicRules, "01")

	require.NoError(t, err)
	assert.False(t, p.Degraded)
	assert.Equal(t, "link-events", p.Topic)
	assert.Equal(t, "abc123", p.Key)
	assert.Equal(t, "link.created", p.EventType)
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", p.Headers["Traceparent"])
	assert.Equal(t, "tenant-a", p.Headers["X-Tenant-ID"])
	_, hasEventType := p.Headers["X-Event-Type"]
	assert.False(t, hasEventType, "routing metadata belongs on the envelope, not the context headers")
}

func TestProject_NoTraceColumns_NoTraceparentButStillPublishes(t *testing.T) {
	row := fullRow()
	delete(row, "trace_id")
	delete(row, "parent_span_id")
	delete(row, "trace_flags")

	p, err := cdcproject.Project(row, cdcproject.DefaultTopicRules, "01")

	require.NoError(t, err)
	assert.False(t, p.Degraded)
	_, hasTraceparent := p.Headers["Traceparent"]
	assert.False(t, hasTraceparent)
	assert.Equal(t, "tenant-a", p.Headers["X-Tenant-ID"])
}

func TestProject_PartiallyPresentTracePair_StillPublishesWithoutTraceparent(t *testing.T) {
	row := fullRow()
	delete(row, "parent_span_id")

	p, err := cdcproject.Project(row, cdcproject.DefaultTopicRules, "01")

	require.NoError(t, err)
	assert.True(t, p.Degraded)
	assert.Contains(t, p.DegradedWhy, "partially present")
	assert.Equal(t, "link-events", p.Topic)
	assert.Equal(t, "abc123", p.Key)
	assert.NotNil(t, p.Payload)
	_, hasTraceparent := p.Headers["Traceparent"]
	assert.False(t, hasTraceparent)
	assert.Equal(t, "tenant-a", p.Headers["X-Tenant-ID"])
	assert.Equal(t, "link.created", p.EventType)
}

func TestProject_UnmappedEventType_FallsBackToDefaultTopic(t *testing.T) {
	row := fullRow()
	row["event_type"] = "tenant.archived"

	p, err := cdcproject.Project(row, cdcproject.DefaultTopicRules, "01")

	require.NoError(t, err)
	assert.Equal(t, "link-events", p.Topic)
}

func TestProject_MissingAggregateID_Errors(t *testing.T) {
	row := fullRow()
	delete(row, "aggregate_id")

	_, err := cdcproject.Project(row, cdcproject.DefaultTopicRules, "01")

	assert.Error(t, err)
}
