package ctxmodel

import (
	"fmt"
	"strings"
)

// BrokerHeaderTraceID / BrokerHeaderParentSpanID / BrokerHeaderTraceFlags
// are the fallback triple for consumers that cannot read traceparent
// directly.
const (
	BrokerHeaderTraceID      = "trace_id"
	BrokerHeaderParentSpanID = "parent_span_id"
	BrokerHeaderTraceFlags   = "trace_flags"
)

// DefaultTraceFlags is used when a row has both trace and span IDs but no
// recorded flags.
const DefaultTraceFlags = "01"

// BuildBrokerHeaders projects ContextColumns into the broker message header
// map: one header per non-null context column that has a header name
// (CreatedBy has none and is not emitted), plus traceparent (built only
// from row columns, never from a span the projector happens to observe, so
// the producing trace is always the one that wrote the row) and the
// fallback triple. Headers that fail validation are omitted entirely, never
// emitted empty.
//
// defaultFlags is used when the row has a valid (trace_id, parent_span_id)
// pair but no trace_flags.
func BuildBrokerHeaders(c ContextColumns, defaultFlags string) map[string]string {
	headers := make(map[string]string)

	if c.IsPartiallyPresent() {
		// One trace column without the other: omit traceparent entirely
		// rather than inventing data.
		return appendBusinessHeaders(headers, c)
	}

	if c.HasValidTrace() {
		flags := c.TraceFlags
		if flags == "" {
			flags = defaultFlags
			if flags == "" {
				flags = DefaultTraceFlags
			}
		}
		// Hex fields are normalized to lowercase on emission; legacy rows may
		// still hold uppercase hex, which the column regex accepts.
		traceID := strings.ToLower(c.TraceID)
		spanID := strings.ToLower(c.ParentSpanID)
		flags = strings.ToLower(flags)
		headers[HeaderTraceparent] = fmt.Sprintf("00-%s-%s-%s", traceID, spanID, flags)
		headers[BrokerHeaderTraceID] = traceID
		headers[BrokerHeaderParentSpanID] = spanID
		headers[BrokerHeaderTraceFlags] = flags
	}

	return appendBusinessHeaders(headers, c)
}

// appendBusinessHeaders adds the non-trace business headers, one per
// non-empty column; CreatedBy is not emitted.
func appendBusinessHeaders(headers map[string]string, c ContextColumns) map[string]string {
	setIfPresent(headers, HeaderTenantID, c.TenantID)
	setIfPresent(headers, HeaderUserID, c.UserID)
	setIfPresent(headers, HeaderRequestID, c.RequestID)
	setIfPresent(headers, HeaderServiceName, c.ServiceName)
	setIfPresent(headers, HeaderTransactionType, c.TransactionType)
	return headers
}

func setIfPresent(headers map[string]string, key, value string) {
	if value != "" {
		headers[key] = value
	}
}
