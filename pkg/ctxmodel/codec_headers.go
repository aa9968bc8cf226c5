package ctxmodel

import (
	"net/http"
	"strings"
)

// Canonical header names for the inter-service context contract.
// http.Header keys are canonicalized by textproto.CanonicalMIMEHeaderKey on
// every Set/Get, so callers may look these up case-insensitively — Go's
// http.Header already accepts any casing while emitting one.
const (
	HeaderTraceparent     = "Traceparent"
	HeaderTracestate      = "Tracestate"
	HeaderTenantID        = "X-Tenant-ID"
	HeaderUserID          = "X-User-ID"
	HeaderUserEmail       = "X-User-Email"
	HeaderUserGroups      = "X-User-Groups"
	HeaderRequestID       = "X-Request-ID"
	HeaderCorrelationID   = "X-Correlation-ID"
	HeaderServiceName     = "X-Service-Name"
	HeaderTransactionType = "X-Transaction-Type"
	HeaderOriginService   = "X-Origin-Service"
)

// MalformedField names a field discarded during decode, surfaced as the
// context.malformed span attribute.
type MalformedField string

// DecodeResult carries the parsed contexts plus any fields that were
// discarded as malformed rather than treated as fatal.
type DecodeResult struct {
	Trace     TraceContext
	Standard  StandardContext
	Malformed []MalformedField
}

// EncodeHeaders writes the full context header set into h. Tracestate is
// forwarded verbatim if present. A StandardContext field that is empty is
// omitted rather than emitted empty.
func EncodeHeaders(h http.Header, tc TraceContext, sc StandardContext) {
	if tp := tc.Traceparent(); tp != "" {
		h.Set(HeaderTraceparent, tp)
	}
	if tc.TraceState != "" {
		h.Set(HeaderTracestate, tc.TraceState)
	}
	setIfNonEmpty(h, HeaderTenantID, sc.TenantID)
	setIfNonEmpty(h, HeaderUserID, sc.UserID)
	setIfNonEmpty(h, HeaderUserEmail, sc.UserEmail)
	if len(sc.UserGroups) > 0 {
		h.Set(HeaderUserGroups, strings.Join(sc.UserGroups, ","))
	}
	setIfNonEmpty(h, HeaderRequestID, sc.RequestID)
	setIfNonEmpty(h, HeaderCorrelationID, sc.CorrelationID)
	setIfNonEmpty(h, HeaderServiceName, sc.ServiceName)
	setIfNonEmpty(h, HeaderTransactionType, sc.TransactionType)
	setIfNonEmpty(h, HeaderOriginService, sc.OriginService)
}

func setIfNonEmpty(h http.Header, key, value string) {
	if value != "" {
		h.Set(key, value)
	}
}

// DecodeHeaders reads the context header set from h. A malformed
// traceparent, or an X-User-ID or X-User-Email exceeding the 256-byte
// bound, is discarded — the caller proceeds with defaults — and recorded in
// DecodeResult.Malformed rather than surfaced as an error. The other
// headers are taken as received, without a length check.
func DecodeHeaders(h http.Header) DecodeResult {
	var result DecodeResult

	if raw := h.Get(HeaderTraceparent); raw != "" {
		if tc, ok := ParseTraceparent(raw); ok {
			result.Trace = tc
		} else {
			result.Malformed = append(result.Malformed, MalformedField(HeaderTraceparent))
		}
	}
	result.Trace.TraceState = h.Get(HeaderTracestate)

	sc := NewStandardContext()

	if v := h.Get(HeaderTenantID); v != "" {
		sc.TenantID = v
	}
	if v := h.Get(HeaderUserID); v != "" {
		if exceedsMax(v) {
			result.Malformed = append(result.Malformed, MalformedField(HeaderUserID))
		} else {
			sc.UserID = v
		}
	}
	if v := h.Get(HeaderUserEmail); v != "" {
		if exceedsMax(v) {
			result.Malformed = append(result.Malformed, MalformedField(HeaderUserEmail))
		} else {
			sc.UserEmail = v
		}
	}
	if v := h.Get(HeaderUserGroups); v != "" {
		sc.UserGroups = splitGroups(v)
	}
	sc.RequestID = h.Get(HeaderRequestID)
	sc.CorrelationID = h.Get(HeaderCorrelationID)
	sc.ServiceName = h.Get(HeaderServiceName)
	sc.TransactionType = h.Get(HeaderTransactionType)
	sc.OriginService = h.Get(HeaderOriginService)

	result.Standard = sc
	return result
}

func splitGroups(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
