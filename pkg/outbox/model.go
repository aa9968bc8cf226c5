// Package outbox writes domain events to an append-only table in the same
// database transaction as the domain mutation that produced them, carrying
// the W3C trace context and business context alongside the event payload
// so the CDC projector (see pkg/cdcproject) can reconstruct both without a
// second lookup.
package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/arc-self/tracecore/pkg/ctxmodel"
)

// Status is the outbox row lifecycle. A row starts Pending, and is moved to
// Processed once the CDC/consumer path confirms delivery, or Failed when a
// poison-pill row is identified. Retry policy for Failed rows is left to
// the deployment; this package only exposes a read path for them.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusProcessed Status = "PROCESSED"
	StatusFailed    Status = "FAILED"
)

// Event is an outbox row as persisted. AggregateType/AggregateID identify
// the domain entity the mutation applied to; EventType is the business
// event name the CDC projector routes on. The context columns are built
// via ctxmodel.BuildContextColumns, so the both-or-neither rule for the
// trace fields holds before the row is ever written.
type Event struct {
	ID              uuid.UUID
	AggregateType   string
	AggregateID     string
	EventType       string
	Payload         json.RawMessage
	Context         ctxmodel.ContextColumns
	CreatedAt       time.Time
	Status          Status
	ProcessedAt     *time.Time
	RetryCount      int
}

// NewEvent describes a row to append; CreatedAt, Status and RetryCount are
// assigned by Append, not the caller.
type NewEvent struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       json.RawMessage
	Context       ctxmodel.ContextColumns
}
