// Package propagate is the synchronous propagation pair: inbound HTTP
// middleware that binds a StandardContext to a per-request diagnostic
// scope, and an outbound RoundTripper that injects it onto every call.
//
// Go has no distinguished single-threaded-event-loop runtime the way
// Node.js or a reactive framework does — the diagnostic scope is carried
// as a value on context.Context, the idiomatic Go analogue of a
// task-local, and survives every goroutine hop the request makes.
package propagate

import (
	"context"

	"go.uber.org/zap"

	"github.com/arc-self/tracecore/pkg/ctxmodel"
)

type scopeKey struct{}

// Scope is the diagnostic scope: the per-request logical slot holding the
// StandardContext visible to logging and outbound calls.
type Scope struct {
	Standard ctxmodel.StandardContext
	Trace    ctxmodel.TraceContext
}

// Bind attaches scope to ctx, returning a derived context.
func Bind(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// FromContext retrieves the bound Scope, if any. Every outbound call and
// every log statement issued between Bind and the handler's return or
// panic observes this value.
func FromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(Scope)
	return s, ok
}

// Logger returns a child of base with the canonical StandardContext fields
// attached, reading whatever scope is bound to ctx. If no scope is bound,
// base is returned unchanged. Callers never thread these fields through
// individual log call sites.
func Logger(ctx context.Context, base *zap.Logger) *zap.Logger {
	scope, ok := FromContext(ctx)
	if !ok {
		return base
	}
	fields := []zap.Field{
		zap.String("tenant_id", scope.Standard.TenantID),
		zap.String("user_id", scope.Standard.UserID),
		zap.String("request_id", scope.Standard.RequestID),
		zap.String("transaction_type", scope.Standard.TransactionType),
	}
	if scope.Standard.OriginService != "" {
		fields = append(fields, zap.String("origin_service", scope.Standard.OriginService))
	}
	if scope.Trace.IsValid() {
		fields = append(fields, zap.String("trace_id", scope.Trace.TraceID))
	}
	return base.With(fields...)
}
