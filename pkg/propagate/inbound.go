package propagate

import (
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/labstack/echo/v4"

	"github.com/arc-self/tracecore/pkg/ctxmodel"
)

// tracerName identifies spans started by this package under OTel's tracer
// registry.
const tracerName = "tracecore/propagate"

// InboundMiddleware is the inbound half of the propagation pair: it parses
// the context header set, binds the resulting StandardContext to the
// diagnostic scope, continues an existing trace if traceparent is present
// and valid or starts a root span otherwise, and clears the scope on every
// exit path — including panics, which Echo's Recover() middleware converts
// back into a normal error return after this deferred cleanup runs.
//
// Must be registered after any tracing middleware that only creates a
// span — it is itself capable of creating the span when none exists yet,
// so it may run first in a pipeline with no dedicated tracer middleware.
func InboundMiddleware(serviceName string) echo.MiddlewareFunc {
	tracer := otel.Tracer(tracerName)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			decoded := ctxmodel.DecodeHeaders(req.Header)

			ctx := req.Context()
			var span trace.Span
			if decoded.Trace.IsValid() {
				remote := trace.ContextWithRemoteSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
					TraceID:    mustTraceID(decoded.Trace.TraceID),
					SpanID:     mustSpanID(decoded.Trace.SpanID),
					TraceFlags: flagsFrom(decoded.Trace),
					Remote:     true,
				}))
				ctx, span = tracer.Start(remote, serviceName+".inbound")
			} else {
				ctx, span = tracer.Start(ctx, serviceName+".inbound")
			}
			defer span.End()

			for _, field := range decoded.Malformed {
				span.SetAttributes(attribute.String("context.malformed", strings.ToLower(string(field))))
			}

			span.SetAttributes(
				attribute.String("tenant.id", decoded.Standard.TenantID),
				attribute.String("user.id", decoded.Standard.UserID),
				attribute.String("request.id", decoded.Standard.RequestID),
				attribute.String("transaction.type", decoded.Standard.TransactionType),
				attribute.String("origin.service", decoded.Standard.OriginService),
			)

			scope := Scope{Standard: decoded.Standard, Trace: decoded.Trace}
			ctx = Bind(ctx, scope)
			c.SetRequest(req.WithContext(ctx))

			// The scope and span are released on every exit path — normal
			// return, handler error, or a panic that Echo's Recover()
			// middleware (registered around this one) converts to a 500.
			err := next(c)
			if err != nil {
				span.RecordError(err)
			}
			return err
		}
	}
}

func flagsFrom(tc ctxmodel.TraceContext) trace.TraceFlags {
	if tc.Sampled() {
		return trace.FlagsSampled
	}
	return trace.TraceFlags(0)
}

func mustTraceID(hex string) trace.TraceID {
	id, err := trace.TraceIDFromHex(hex)
	if err != nil {
		return trace.TraceID{}
	}
	return id
}

func mustSpanID(hex string) trace.SpanID {
	id, err := trace.SpanIDFromHex(hex)
	if err != nil {
		return trace.SpanID{}
	}
	return id
}
