package gateway

import (
	"context"

	"github.com/arc-self/tracecore/pkg/ctxmodel"
)

// Validator is the pluggable token-validation collaborator. Its output is
// treated as opaque beyond the TokenClaims fields; any authorization
// policy built on Scopes/Groups belongs to a separate layer.
type Validator interface {
	Validate(ctx context.Context, token string) (ctxmodel.TokenClaims, error)
}

// ValidatorFunc adapts a plain function to the Validator interface.
type ValidatorFunc func(ctx context.Context, token string) (ctxmodel.TokenClaims, error)

func (f ValidatorFunc) Validate(ctx context.Context, token string) (ctxmodel.TokenClaims, error) {
	return f(ctx, token)
}
