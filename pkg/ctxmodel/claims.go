package ctxmodel

import "time"

// TokenClaims is the parsed principal description produced by a pluggable
// Validator. Callers treat it as opaque beyond these fields.
type TokenClaims struct {
	Subject  string
	TenantID string
	Email    string
	Groups   []string
	Scopes   []string
	NotAfter time.Time
}

// TTL returns the cache TTL for claims: max(1s, NotAfter - now).
func (c TokenClaims) TTL(now time.Time) time.Duration {
	d := c.NotAfter.Sub(now)
	if d < time.Second {
		return time.Second
	}
	return d
}
