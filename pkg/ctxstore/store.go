// Package ctxstore implements a process-external key/value cache mapping a
// token fingerprint to a serialized StandardContext, with per-entry TTL.
// The store is a soft dependency — every implementation's errors are meant
// to be treated as a cache miss by the caller, never as a request failure.
package ctxstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/arc-self/tracecore/pkg/ctxmodel"
)

// Store is the cache contract used by the gateway establisher.
// Implementations: RedisStore (production) and MapStore (tests and
// Redis-less deployments).
type Store interface {
	Get(ctx context.Context, fingerprint string) (ctxmodel.StandardContext, bool, error)
	Set(ctx context.Context, fingerprint string, sc ctxmodel.StandardContext, ttl time.Duration) error
	Delete(ctx context.Context, fingerprint string) error
}

// entry is the JSON envelope persisted for a cache value.
type entry struct {
	TenantID        string   `json:"tenant_id"`
	UserID          string   `json:"user_id"`
	UserEmail       string   `json:"user_email,omitempty"`
	UserGroups      []string `json:"user_groups,omitempty"`
	ServiceName     string   `json:"service_name,omitempty"`
	TransactionType string   `json:"transaction_type,omitempty"`
}

// encode serializes the identity-bearing subset of a StandardContext.
// Request-scoped fields (RequestID, CorrelationID, OriginService) are
// excluded — they are recomputed per request, never replayed from the
// cache.
func encode(sc ctxmodel.StandardContext) ([]byte, error) {
	return json.Marshal(entry{
		TenantID:        sc.TenantID,
		UserID:          sc.UserID,
		UserEmail:       sc.UserEmail,
		UserGroups:      sc.UserGroups,
		ServiceName:     sc.ServiceName,
		TransactionType: sc.TransactionType,
	})
}

func decode(data []byte) (ctxmodel.StandardContext, error) {
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return ctxmodel.StandardContext{}, err
	}
	sc := ctxmodel.NewStandardContext()
	sc = sc.WithIdentity(e.TenantID, e.UserID, e.UserEmail, e.UserGroups)
	sc.ServiceName = e.ServiceName
	sc.TransactionType = e.TransactionType
	return sc, nil
}
