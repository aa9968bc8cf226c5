package gateway_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"

	"github.com/arc-self/tracecore/pkg/ctxmodel"
	"github.com/arc-self/tracecore/pkg/ctxstore"
	"github.com/arc-self/tracecore/pkg/gateway"
)

func tracedRequest(method, path string) *http.Request {
	tp := trace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(httptest.NewRequest(method, path, nil).Context(), "test-span")
	defer span.End()
	req := httptest.NewRequest(method, path, nil)
	return req.WithContext(ctx)
}

func TestEstablish_Anonymous_NoAuthHeader(t *testing.T) {
	validator := gateway.NewStaticValidator(nil)
	e := gateway.NewEstablisher(ctxstore.NewMapStore(), validator, gateway.Options{
		ServiceName: "gateway", RequireAuth: false,
	}, nil)

	req := tracedRequest(http.MethodPost, "/links")
	sc, err := e.Establish(req)
	require.NoError(t, err)
	assert.Equal(t, "anonymous", sc.UserID)
	assert.Equal(t, "public", sc.TenantID)
	assert.Equal(t, "create-link", sc.TransactionType)
	assert.Equal(t, "gateway", sc.ServiceName)
	assert.NotEmpty(t, sc.RequestID)
}

func TestEstablish_RequireAuth_NoTokenFails(t *testing.T) {
	validator := gateway.NewStaticValidator(nil)
	e := gateway.NewEstablisher(ctxstore.NewMapStore(), validator, gateway.Options{
		ServiceName: "gateway", RequireAuth: true,
	}, nil)

	req := tracedRequest(http.MethodPost, "/links")
	_, err := e.Establish(req)
	assert.ErrorIs(t, err, gateway.ErrAuthenticationFailed)
}

func TestEstablish_AuthenticatedCreate(t *testing.T) {
	validator := gateway.NewStaticValidator(map[string]ctxmodel.TokenClaims{
		"abc": {Subject: "u-1", TenantID: "t-9", NotAfter: time.Now().Add(10 * time.Minute)},
	})
	store := ctxstore.NewMapStore()
	e := gateway.NewEstablisher(store, validator, gateway.Options{
		ServiceName: "gateway", RequireAuth: false,
	}, nil)

	req := tracedRequest(http.MethodPost, "/links")
	req.Header.Set("Authorization", "Bearer abc")

	sc, err := e.Establish(req)
	require.NoError(t, err)
	assert.Equal(t, "u-1", sc.UserID)
	assert.Equal(t, "t-9", sc.TenantID)
	assert.NotEmpty(t, sc.CorrelationID)

	// Second request with the same token should now hit the cache.
	req2 := tracedRequest(http.MethodPost, "/links")
	req2.Header.Set("Authorization", "Bearer abc")
	sc2, err := e.Establish(req2)
	require.NoError(t, err)
	assert.Equal(t, sc.UserID, sc2.UserID)
	assert.Equal(t, sc.TenantID, sc2.TenantID)
}

func TestEstablish_InvalidTokenDowngradesWhenAuthNotRequired(t *testing.T) {
	validator := gateway.NewStaticValidator(nil)
	e := gateway.NewEstablisher(ctxstore.NewMapStore(), validator, gateway.Options{
		ServiceName: "gateway", RequireAuth: false,
	}, nil)

	req := tracedRequest(http.MethodGet, "/links")
	req.Header.Set("Authorization", "Bearer not-a-real-token")

	sc, err := e.Establish(req)
	require.NoError(t, err)
	assert.Equal(t, "anonymous", sc.UserID)
}

func TestEstablish_StoreOutage_FallsBackToValidator(t *testing.T) {
	validator := gateway.NewStaticValidator(map[string]ctxmodel.TokenClaims{
		"abc": {Subject: "u-1", TenantID: "t-9", NotAfter: time.Now().Add(10 * time.Minute)},
	})
	store := ctxstore.NewMapStore()
	store.FailNext = assertErr{}
	e := gateway.NewEstablisher(store, validator, gateway.Options{
		ServiceName: "gateway", RequireAuth: false,
	}, nil)

	req := tracedRequest(http.MethodPost, "/links")
	req.Header.Set("Authorization", "Bearer abc")

	sc, err := e.Establish(req)
	require.NoError(t, err, "store failure must never fail the request")
	assert.Equal(t, "u-1", sc.UserID)
}

type assertErr struct{}

func (assertErr) Error() string { return "simulated store outage" }
