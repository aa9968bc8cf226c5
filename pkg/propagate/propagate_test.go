package propagate_test

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/arc-self/tracecore/pkg/ctxmodel"
	"github.com/arc-self/tracecore/pkg/propagate"
)

func newObservedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	return zap.New(core), logs
}

// TestInboundMiddleware_BindsHeadersToScope covers the basic inbound
// contract: a valid request-scoped header set becomes a readable Scope, and
// the handler's logger carries the business fields without them being
// threaded through by hand.
func TestInboundMiddleware_BindsHeadersToScope(t *testing.T) {
	e := echo.New()
	base, logs := newObservedLogger()

	e.Use(propagate.InboundMiddleware("gateway"))
	e.GET("/links/:code", func(c echo.Context) error {
		propagate.Logger(c.Request().Context(), base).Info("handled")
		scope, ok := propagate.FromContext(c.Request().Context())
		require.True(t, ok)
		assert.Equal(t, "tenant-a", scope.Standard.TenantID)
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/links/abc", nil)
	req.Header.Set(ctxmodel.HeaderTenantID, "tenant-a")
	req.Header.Set(ctxmodel.HeaderUserID, "u-1")
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "tenant-a", entries[0].ContextMap()["tenant_id"])
}

// TestScope_IsolatedAcrossConcurrentRequests: two requests bound to
// distinct scopes on the same process must never observe each other's
// StandardContext, since each runs on its own derived context.Context
// rather than any shared mutable state.
func TestScope_IsolatedAcrossConcurrentRequests(t *testing.T) {
	e := echo.New()
	e.Use(propagate.InboundMiddleware("gateway"))

	var mu sync.Mutex
	seen := make(map[string]string)

	e.GET("/links/:code", func(c echo.Context) error {
		scope, ok := propagate.FromContext(c.Request().Context())
		require.True(t, ok)
		mu.Lock()
		seen[scope.Standard.TenantID] = scope.Standard.UserID
		mu.Unlock()
		return c.NoContent(http.StatusOK)
	})

	var wg sync.WaitGroup
	tenants := []string{"tenant-a", "tenant-b", "tenant-c"}
	for i, tenant := range tenants {
		wg.Add(1)
		go func(tenant string, idx int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/links/x", nil)
			req.Header.Set(ctxmodel.HeaderTenantID, tenant)
			req.Header.Set(ctxmodel.HeaderUserID, tenant+"-user")
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
		}(tenant, i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	for _, tenant := range tenants {
		assert.Equal(t, tenant+"-user", seen[tenant])
	}
}

// TestScope_ClearedOnHandlerError: a handler returning an error still must
// not leak its scope into the next request handled on the same
// goroutine/context tree.
func TestScope_ClearedOnHandlerError(t *testing.T) {
	e := echo.New()
	e.Use(propagate.InboundMiddleware("gateway"))
	e.GET("/fail", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusInternalServerError, "boom")
	})
	e.GET("/check", func(c echo.Context) error {
		_, ok := propagate.FromContext(c.Request().Context())
		assert.True(t, ok, "each request binds its own scope regardless of a prior request's error")
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/fail", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/check", nil)
	rec2 := httptest.NewRecorder()
	e.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusOK, rec2.Code)
}

// TestScope_ClearedOnPanic: a panicking handler, recovered by the recovery
// middleware registered around InboundMiddleware, must not leave scope
// state visible to the next request.
func TestScope_ClearedOnPanic(t *testing.T) {
	e := echo.New()
	e.Use(echomiddleware())
	e.Use(propagate.InboundMiddleware("gateway"))
	e.GET("/panic", func(c echo.Context) error {
		panic("unexpected")
	})
	e.GET("/check", func(c echo.Context) error {
		scope, ok := propagate.FromContext(c.Request().Context())
		assert.True(t, ok)
		assert.Equal(t, ctxmodel.DefaultTenantID, scope.Standard.TenantID, "a fresh request with no headers gets the default scope, not a leaked one")
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/check", nil)
	rec2 := httptest.NewRecorder()
	e.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusOK, rec2.Code)
}

// TestTransport_InjectsBoundScopeHeaders: headers present in the bound
// scope are injected, absent ones are omitted rather than emitted empty,
// and X-Service-Name always names the caller.
func TestTransport_InjectsBoundScopeHeaders(t *testing.T) {
	var captured http.Header
	base := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		captured = r.Header
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})

	transport := propagate.NewTransport("gateway", base)

	scope := propagate.Scope{
		Standard: ctxmodel.StandardContext{TenantID: "tenant-a", UserID: "u-1", RequestID: "r-1"},
	}
	ctx := propagate.Bind(httptest.NewRequest(http.MethodGet, "/", nil).Context(), scope)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://downstream/x", nil)
	require.NoError(t, err)

	_, err = transport.RoundTrip(req)
	require.NoError(t, err)

	assert.Equal(t, "tenant-a", captured.Get(ctxmodel.HeaderTenantID))
	assert.Equal(t, "u-1", captured.Get(ctxmodel.HeaderUserID))
	assert.Equal(t, "gateway", captured.Get(ctxmodel.HeaderServiceName), "outbound always names the caller")
	assert.Empty(t, captured.Get(ctxmodel.HeaderUserEmail), "fields absent from scope are omitted, not emitted empty")
}

func TestTransport_NoBoundScope_PassesThroughUnmodified(t *testing.T) {
	var captured http.Header
	base := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		captured = r.Header
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})
	transport := propagate.NewTransport("gateway", base)

	req := httptest.NewRequest(http.MethodGet, "http://downstream/x", nil)
	_, err := transport.RoundTrip(req)
	require.NoError(t, err)
	assert.Empty(t, captured.Get(ctxmodel.HeaderServiceName))
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func echomiddleware() echo.MiddlewareFunc {
	return echo.MiddlewareFunc(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = echo.NewHTTPError(http.StatusInternalServerError, "panic recovered")
				}
			}()
			return next(c)
		}
	})
}
