package ctxmodel

import "strings"

// ContextColumns is the context portion of an outbox row: the subset of
// columns that carry StandardContext/TraceContext. It is stored separately
// from the domain columns (aggregate_type, aggregate_id, event_type,
// payload) which belong to pkg/outbox.
//
// TraceID/ParentSpanID either both hold valid W3C values or are both
// empty — never one without the other.
type ContextColumns struct {
	TraceID         string // 32 hex chars, or empty
	ParentSpanID    string // 16 hex chars, or empty
	TraceFlags      string // 2 hex chars, or empty
	TenantID        string
	UserID          string
	RequestID       string
	ServiceName     string
	TransactionType string
	CreatedBy       string
}

// BuildContextColumns captures the producer's current TraceContext and
// StandardContext into the column shape written to the outbox row. If tc is
// not valid, both TraceID and ParentSpanID are left empty rather than
// partially populated.
func BuildContextColumns(tc TraceContext, sc StandardContext) ContextColumns {
	cols := ContextColumns{
		TenantID:        sc.TenantID,
		UserID:          sc.UserID,
		RequestID:       sc.RequestID,
		ServiceName:     sc.ServiceName,
		TransactionType: sc.TransactionType,
		CreatedBy:       sc.UserID,
	}
	if tc.IsValid() {
		cols.TraceID = strings.ToLower(tc.TraceID)
		cols.ParentSpanID = strings.ToLower(tc.SpanID)
		if tc.Flags != "" {
			cols.TraceFlags = strings.ToLower(tc.Flags)
		}
	}
	return cols
}

// HasValidTrace reports whether TraceID and ParentSpanID are both present
// and well-formed. A row failing this check must never emit a traceparent
// header.
func (c ContextColumns) HasValidTrace() bool {
	if c.TraceID == "" || c.ParentSpanID == "" {
		return false
	}
	return traceIDPattern.MatchString(c.TraceID) && spanIDPattern.MatchString(c.ParentSpanID)
}

// IsPartiallyPresent reports whether exactly one of TraceID/ParentSpanID is
// set — a malformed, mixed state real data can still contain. The CDC
// projector publishes such rows without a traceparent header rather than
// dropping them.
func (c ContextColumns) IsPartiallyPresent() bool {
	return (c.TraceID == "") != (c.ParentSpanID == "")
}
