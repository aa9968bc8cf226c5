// Package gateway implements the trust-boundary context establisher: it
// extracts the bearer token, resolves claims (via the context store or the
// Validator), synthesizes the StandardContext, attaches it to the active
// trace span, and exposes it to request handlers.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arc-self/tracecore/pkg/ctxmodel"
	"github.com/arc-self/tracecore/pkg/ctxstore"
)

// ErrAuthenticationFailed is returned by Establish when RequireAuth is set
// and the supplied token is absent or invalid.
var ErrAuthenticationFailed = errors.New("gateway: authentication failed")

// Options configures an Establisher.
type Options struct {
	// ServiceName identifies this service in the emitted StandardContext.
	ServiceName string
	// RequireAuth: if true, an absent/invalid token fails the request; if
	// false, falls back to anonymous context.
	RequireAuth bool
	// CacheTTLCapSeconds bounds the store TTL regardless of claim expiry.
	// Default 900.
	CacheTTLCapSeconds int
	// TransactionTypes is the (method, path) → transaction_type lookup
	// table. Defaults to DefaultTransactionTypes.
	TransactionTypes []TransactionTypeRule
}

func (o Options) ttlCap() time.Duration {
	if o.CacheTTLCapSeconds <= 0 {
		return 900 * time.Second
	}
	return time.Duration(o.CacheTTLCapSeconds) * time.Second
}

// Establisher is the Gateway Context Establisher.
type Establisher struct {
	store     ctxstore.Store
	validator Validator
	opts      Options
	logger    *zap.Logger
}

// NewEstablisher constructs an Establisher. store may be nil, in which case
// every request bypasses the cache and resolves claims directly via
// validator.
func NewEstablisher(store ctxstore.Store, validator Validator, opts Options, logger *zap.Logger) *Establisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(opts.TransactionTypes) == 0 {
		opts.TransactionTypes = DefaultTransactionTypes
	}
	return &Establisher{store: store, validator: validator, opts: opts, logger: logger}
}

// Establish resolves the caller's identity and enriches it with
// request-scoped fields, against an inbound *http.Request and the span
// already active on its context (the caller is expected to have started
// tracing instrumentation, e.g. otelecho, upstream of this call). It
// returns the constructed StandardContext, or ErrAuthenticationFailed if
// RequireAuth is set and the token could not be validated.
func (e *Establisher) Establish(r *http.Request) (ctxmodel.StandardContext, error) {
	ctx := r.Context()
	span := trace.SpanFromContext(ctx)

	sc, authErr := e.resolveIdentity(ctx, r)
	if authErr != nil {
		return ctxmodel.StandardContext{}, authErr
	}

	sc = e.enrich(ctx, r, sc)

	span.SetAttributes(
		attribute.String("user.id", sc.UserID),
		attribute.String("tenant.id", sc.TenantID),
		attribute.String("transaction.type", sc.TransactionType),
		attribute.String("service.name", sc.ServiceName),
	)

	// A malformed inbound traceparent was already discarded by the tracing
	// instrumentation (the request got a fresh root span); record that the
	// field was dropped rather than failing anything.
	if raw := r.Header.Get(ctxmodel.HeaderTraceparent); raw != "" {
		if _, valid := ctxmodel.ParseTraceparent(raw); !valid {
			span.SetAttributes(attribute.String("context.malformed", "traceparent"))
		}
	}

	return sc, nil
}

// resolveIdentity extracts the token, consults the cache, and falls back
// to the Validator on a miss or store failure.
func (e *Establisher) resolveIdentity(ctx context.Context, r *http.Request) (ctxmodel.StandardContext, error) {
	token, ok := bearerToken(r)
	if !ok {
		if e.opts.RequireAuth {
			return ctxmodel.StandardContext{}, ErrAuthenticationFailed
		}
		return anonymousContext(), nil
	}

	fingerprint := ctxstore.Fingerprint(token)

	if e.store != nil {
		sc, hit, err := e.store.Get(ctx, fingerprint)
		if err != nil {
			// Log and bypass the cache — never fail the request because
			// of the store.
			e.logger.Warn("context store get failed, bypassing cache",
				zap.Error(err))
		} else if hit {
			return sc, nil
		}
	}

	claims, err := e.validator.Validate(ctx, token)
	if err != nil {
		if e.opts.RequireAuth {
			return ctxmodel.StandardContext{}, ErrAuthenticationFailed
		}
		e.logger.Warn("token validation failed, downgrading to anonymous", zap.Error(err))
		return anonymousContext(), nil
	}

	sc := ctxmodel.NewStandardContext().WithIdentity(claims.TenantID, claims.Subject, claims.Email, claims.Groups)
	if sc.TenantID == "" {
		sc.TenantID = ctxmodel.DefaultTenantID
	}

	if e.store != nil {
		ttl := claims.TTL(time.Now())
		if cap := e.opts.ttlCap(); ttl > cap {
			ttl = cap
		}
		if err := e.store.Set(ctx, fingerprint, sc, ttl); err != nil {
			e.logger.Warn("context store write-through failed", zap.Error(err))
		}
	}

	return sc, nil
}

// enrich fills in the request-scoped fields.
func (e *Establisher) enrich(ctx context.Context, r *http.Request, sc ctxmodel.StandardContext) ctxmodel.StandardContext {
	span := trace.SpanFromContext(ctx)
	spanCtx := span.SpanContext()

	requestID := r.Header.Get(ctxmodel.HeaderCorrelationID)
	if !isWellFormedID(requestID) {
		requestID = uuid.NewString()
	}

	correlationID := requestID
	if spanCtx.HasTraceID() {
		correlationID = spanCtx.TraceID().String()
	}

	transactionType := ResolveTransactionType(e.opts.TransactionTypes, r.Method, r.URL.Path)
	originService := r.Header.Get(ctxmodel.HeaderServiceName)

	return sc.WithRequestFields(requestID, correlationID, e.opts.ServiceName, transactionType, originService)
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	token := strings.TrimPrefix(auth, "Bearer ")
	if token == "" {
		return "", false
	}
	return token, true
}

// anonymousContext is the no-token fallback: public tenant, anonymous
// user, no groups/scopes.
func anonymousContext() ctxmodel.StandardContext {
	sc := ctxmodel.NewStandardContext()
	sc.TenantID = "public"
	sc.UserID = ctxmodel.DefaultUserID
	return sc
}

// isWellFormedID is a conservative check for a client-supplied correlation
// ID: non-empty and within the per-field byte bound.
func isWellFormedID(v string) bool {
	return v != "" && len(v) <= 256
}
