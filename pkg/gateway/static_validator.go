package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/arc-self/tracecore/pkg/ctxmodel"
)

// StaticValidator is a test double implementing Validator against a fixed
// in-memory token→claims table, used in place of a live JWKS endpoint.
type StaticValidator struct {
	mu     sync.RWMutex
	tokens map[string]ctxmodel.TokenClaims
}

// NewStaticValidator returns a StaticValidator seeded with tokens.
func NewStaticValidator(tokens map[string]ctxmodel.TokenClaims) *StaticValidator {
	if tokens == nil {
		tokens = make(map[string]ctxmodel.TokenClaims)
	}
	return &StaticValidator{tokens: tokens}
}

func (v *StaticValidator) Validate(_ context.Context, token string) (ctxmodel.TokenClaims, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	claims, ok := v.tokens[token]
	if !ok {
		return ctxmodel.TokenClaims{}, fmt.Errorf("static validator: unknown or expired token")
	}
	return claims, nil
}

// Put registers or replaces the claims for a token.
func (v *StaticValidator) Put(token string, claims ctxmodel.TokenClaims) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tokens[token] = claims
}
