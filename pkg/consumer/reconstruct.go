// Package consumer processes broker messages that originated as outbox
// rows: it reconstructs a span from message headers, preferring
// traceparent and falling back to the trace_id/parent_span_id/trace_flags
// triple, and marks a message "orphaned" rather than failing it when
// neither is present or valid.
package consumer

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/arc-self/tracecore/pkg/ctxmodel"
)

// ReconstructTraceContext rebuilds a ctxmodel.TraceContext from broker
// message headers: it tries the traceparent header first, then falls back
// to the trace_id/parent_span_id/trace_flags triple the projector also
// writes for consumers that can't parse traceparent directly. ok is false
// if neither form yields a valid trace context.
func ReconstructTraceContext(headers map[string]string) (tc ctxmodel.TraceContext, ok bool) {
	if raw := headerValue(headers, ctxmodel.HeaderTraceparent); raw != "" {
		if parsed, valid := ctxmodel.ParseTraceparent(raw); valid {
			return parsed, true
		}
	}

	traceID := headerValue(headers, ctxmodel.BrokerHeaderTraceID)
	spanID := headerValue(headers, ctxmodel.BrokerHeaderParentSpanID)
	if traceID == "" || spanID == "" {
		return ctxmodel.TraceContext{}, false
	}
	flags := headerValue(headers, ctxmodel.BrokerHeaderTraceFlags)
	if flags == "" {
		flags = ctxmodel.DefaultTraceFlags
	}
	candidate := ctxmodel.TraceContext{TraceID: traceID, SpanID: spanID, Flags: flags}
	if !candidate.IsValid() {
		return ctxmodel.TraceContext{}, false
	}
	return candidate, true
}

// RemoteSpanContext turns a valid ctxmodel.TraceContext into an OTel
// trace.SpanContext marked Remote, for use as the parent of the span the
// adapter starts to process this message. Returns the zero SpanContext if
// tc is not valid; callers should check tc.IsValid() (or the ok from
// ReconstructTraceContext) before relying on the result.
func RemoteSpanContext(tc ctxmodel.TraceContext) (trace.SpanContext, error) {
	// TraceIDFromHex only accepts lowercase; row columns may hold legacy
	// uppercase hex, which is equivalent.
	traceID, err := trace.TraceIDFromHex(strings.ToLower(tc.TraceID))
	if err != nil {
		return trace.SpanContext{}, fmt.Errorf("consumer: invalid trace id: %w", err)
	}
	spanID, err := trace.SpanIDFromHex(strings.ToLower(tc.SpanID))
	if err != nil {
		return trace.SpanContext{}, fmt.Errorf("consumer: invalid span id: %w", err)
	}
	flags := trace.TraceFlags(0)
	if tc.Sampled() {
		flags = trace.FlagsSampled
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     true,
	}), nil
}
