package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/arc-self/tracecore/pkg/ctxmodel"
)

// JWKSValidator verifies bearer tokens against a remote JWKS endpoint and
// extracts TokenClaims from the verified JWT claims. It works with any
// OIDC-style issuer that publishes a JWKS document.
type JWKSValidator struct {
	jwks keyfunc.Keyfunc
}

// NewJWKSValidator fetches and caches the JWKS document at jwksURL. The
// returned Keyfunc refreshes keys in the background for the lifetime of
// the process.
func NewJWKSValidator(ctx context.Context, jwksURL string) (*JWKSValidator, error) {
	jwks, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("jwks validator: initialize from %s: %w", jwksURL, err)
	}
	return &JWKSValidator{jwks: jwks}, nil
}

// Validate verifies the JWT signature and expiry, then maps the claims
// onto ctxmodel.TokenClaims. On an invalid or expired token the caller
// decides whether to downgrade to anonymous or surface an auth failure.
func (v *JWKSValidator) Validate(ctx context.Context, token string) (ctxmodel.TokenClaims, error) {
	parsed, err := jwt.Parse(token, v.jwks.KeyfuncCtx(ctx))
	if err != nil || !parsed.Valid {
		return ctxmodel.TokenClaims{}, fmt.Errorf("jwks validator: %w", errOrInvalid(err))
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return ctxmodel.TokenClaims{}, fmt.Errorf("jwks validator: unexpected claims type")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return ctxmodel.TokenClaims{}, fmt.Errorf("jwks validator: token missing sub claim")
	}

	tenantID, _ := claims["tenant_id"].(string)
	email, _ := claims["email"].(string)
	groups := stringSlice(claims["groups"])
	scopes := stringSlice(claims["scopes"])

	notAfter := time.Now().Add(time.Hour)
	if exp, err := parsed.Claims.GetExpirationTime(); err == nil && exp != nil {
		notAfter = exp.Time
	}

	return ctxmodel.TokenClaims{
		Subject:  sub,
		TenantID: tenantID,
		Email:    email,
		Groups:   groups,
		Scopes:   scopes,
		NotAfter: notAfter,
	}, nil
}

func errOrInvalid(err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("invalid or expired token")
}

func stringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
