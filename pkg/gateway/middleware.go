package gateway

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/arc-self/tracecore/pkg/ctxmodel"
)

// standardContextKey is the request-scoped slot the Establisher exposes
// the resolved StandardContext through.
type standardContextKey struct{}

// WithStandardContext attaches sc to ctx.
func WithStandardContext(ctx context.Context, sc ctxmodel.StandardContext) context.Context {
	return context.WithValue(ctx, standardContextKey{}, sc)
}

// FromContext retrieves the StandardContext attached by the middleware, if any.
func FromContext(ctx context.Context) (ctxmodel.StandardContext, bool) {
	sc, ok := ctx.Value(standardContextKey{}).(ctxmodel.StandardContext)
	return sc, ok
}

// Middleware returns Echo middleware that runs the Establisher on every
// inbound request, attaches the resulting StandardContext to the request
// context, and echoes X-Correlation-ID on the response.
//
// Must be registered after tracing instrumentation (e.g. otelecho) so the
// active span is already present when Establish reads it.
func Middleware(e *Establisher) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sc, err := e.Establish(c.Request())
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}

			ctx := WithStandardContext(c.Request().Context(), sc)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set(ctxmodel.HeaderCorrelationID, sc.CorrelationID)

			return next(c)
		}
	}
}
