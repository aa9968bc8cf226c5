package cdcproject

import (
	"fmt"

	"github.com/arc-self/tracecore/pkg/ctxmodel"
)

// defaultTopic is used for event types that don't match a routing rule.
const defaultTopic = "link-events"

// TopicRule maps an event_type prefix to a broker topic/subject, so new
// event types don't require a code change to the projector itself, only a
// new rule.
type TopicRule struct {
	EventTypePrefix string
	Topic           string
}

// DefaultTopicRules routes link lifecycle events to "link-events" and
// everything else to defaultTopic via RouteTopic's fallback.
var DefaultTopicRules = []TopicRule{
	{EventTypePrefix: "link.", Topic: "link-events"},
}

// RouteTopic returns the topic for eventType per rules, defaulting to
// defaultTopic when no rule's prefix matches.
func RouteTopic(rules []TopicRule, eventType string) string {
	for _, r := range rules {
		if len(eventType) >= len(r.EventTypePrefix) && eventType[:len(r.EventTypePrefix)] == r.EventTypePrefix {
			return r.Topic
		}
	}
	return defaultTopic
}

// Projected is the output of projecting one captured outbox row: a broker
// message ready to publish. Degraded is set when the row's trace_id/
// parent_span_id pair was partially present — the message is still
// published in full, only traceparent is left off, so the event is
// orphaned downstream rather than dropped.
type Projected struct {
	Topic       string
	Key         string
	EventType   string
	Headers     map[string]string
	Payload     []byte
	Degraded    bool
	DegradedWhy string
}

// Project is a pure, stateless transform: it never touches the database or
// the broker itself, just turns a decoded row into the message that should
// be published.
func Project(row CapturedRow, rules []TopicRule, defaultTraceFlags string) (Projected, error) {
	cols := ctxmodel.ContextColumns{
		TraceID:         row["trace_id"],
		ParentSpanID:    row["parent_span_id"],
		TraceFlags:      row["trace_flags"],
		TenantID:        row["tenant_id"],
		UserID:          row["user_id"],
		RequestID:       row["request_id"],
		ServiceName:     row["service_name"],
		TransactionType: row["transaction_type"],
		CreatedBy:       row["created_by"],
	}

	eventType := row["event_type"]
	aggregateID := row["aggregate_id"]
	if eventType == "" || aggregateID == "" {
		return Projected{}, fmt.Errorf("cdcproject: row missing event_type or aggregate_id")
	}

	// BuildBrokerHeaders already omits traceparent (and only traceparent)
	// when the pair is partially present, so the full message — topic, key,
	// business headers, payload — still gets built and published below.
	degraded := cols.IsPartiallyPresent()
	var degradedWhy string
	if degraded {
		degradedWhy = "trace_id/parent_span_id partially present"
	}

	// Headers carry only the context contract. Event type and aggregate id
	// travel on the message envelope itself — the publisher folds them into
	// the subject and the message id, never into extra headers.
	return Projected{
		Topic:       RouteTopic(rules, eventType),
		Key:         aggregateID,
		EventType:   eventType,
		Headers:     ctxmodel.BuildBrokerHeaders(cols, defaultTraceFlags),
		Payload:     []byte(row["payload"]),
		Degraded:    degraded,
		DegradedWhy: degradedWhy,
	}, nil
}
