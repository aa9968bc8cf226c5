// Package ctxmodel defines the canonical in-memory shape of the W3C trace
// context and the business StandardContext, plus their three wire
// serializations (synchronous HTTP headers, outbox row columns, broker
// message headers).
package ctxmodel

import (
	"fmt"
	"regexp"
	"strings"
)

// traceparentPattern matches the W3C traceparent header: version-traceId-spanId-flags.
var traceparentPattern = regexp.MustCompile(`^[0-9a-f]{2}-[0-9a-f]{32}-[0-9a-f]{16}-[0-9a-f]{2}$`)

// traceIDPattern / spanIDPattern validate the bare hex fields as stored in
// outbox columns, independent of the hyphenated header form.
var (
	traceIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)
	spanIDPattern  = regexp.MustCompile(`^[0-9a-fA-F]{16}$`)
)

const zeroTraceID = "00000000000000000000000000000000"
const zeroSpanID = "0000000000000000"

// TraceContext is exactly the W3C Trace Context: version, trace ID, parent
// (span) ID and flags. TraceID and SpanID are opaque hex strings — never
// parsed as integers, only validated by regex and compared
// case-insensitively.
type TraceContext struct {
	Version    string
	TraceID    string
	SpanID     string
	Flags      string
	TraceState string
}

// IsValid reports whether t holds syntactically valid, non-zero identifiers.
func (t TraceContext) IsValid() bool {
	if t.TraceID == "" || t.SpanID == "" {
		return false
	}
	if !traceIDPattern.MatchString(t.TraceID) || !spanIDPattern.MatchString(t.SpanID) {
		return false
	}
	if strings.EqualFold(t.TraceID, zeroTraceID) || strings.EqualFold(t.SpanID, zeroSpanID) {
		return false
	}
	return true
}

// Traceparent renders t in lowercase W3C wire form: version-traceId-spanId-flags.
// Returns "" if t is not valid.
func (t TraceContext) Traceparent() string {
	if !t.IsValid() {
		return ""
	}
	version := t.Version
	if version == "" {
		version = "00"
	}
	flags := t.Flags
	if flags == "" {
		flags = "00"
	}
	return fmt.Sprintf("%s-%s-%s-%s",
		strings.ToLower(version),
		strings.ToLower(t.TraceID),
		strings.ToLower(t.SpanID),
		strings.ToLower(flags),
	)
}

// ParseTraceparent parses a "version-traceId-spanId-flags" string.
// Malformed or all-zero trace/span IDs return ok=false rather than an
// error — a malformed traceparent is discarded, not treated as fatal.
func ParseTraceparent(raw string) (tc TraceContext, ok bool) {
	raw = strings.TrimSpace(raw)
	if !traceparentPattern.MatchString(raw) {
		return TraceContext{}, false
	}
	parts := strings.Split(raw, "-")
	if len(parts) != 4 {
		return TraceContext{}, false
	}
	tc = TraceContext{
		Version: parts[0],
		TraceID: parts[1],
		SpanID:  parts[2],
		Flags:   parts[3],
	}
	if !tc.IsValid() {
		return TraceContext{}, false
	}
	return tc, true
}

// Sampled reports whether bit 0 of Flags is set.
func (t TraceContext) Sampled() bool {
	if len(t.Flags) != 2 {
		return false
	}
	var b int
	if _, err := fmt.Sscanf(t.Flags, "%02x", &b); err != nil {
		return false
	}
	return b&0x01 == 1
}
