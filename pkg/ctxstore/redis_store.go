package ctxstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arc-self/tracecore/pkg/ctxmodel"
)

// RedisStore is the production cache backend.
type RedisStore struct {
	client *redis.Client
	// timeout bounds every Redis round trip. Exceeding it is treated as a
	// cache miss, never a request failure.
	timeout time.Duration
}

// NewRedisStore wraps an existing *redis.Client. timeout is the per-
// operation ceiling, defaulting to 200ms.
func NewRedisStore(client *redis.Client, timeout time.Duration) *RedisStore {
	if timeout <= 0 {
		timeout = 200 * time.Millisecond
	}
	return &RedisStore{client: client, timeout: timeout}
}

func (s *RedisStore) Get(ctx context.Context, fingerprint string) (ctxmodel.StandardContext, bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.client.Get(opCtx, fingerprint).Bytes()
	if err == redis.Nil {
		return ctxmodel.StandardContext{}, false, nil
	}
	if err != nil {
		return ctxmodel.StandardContext{}, false, err
	}

	sc, err := decode(raw)
	if err != nil {
		return ctxmodel.StandardContext{}, false, err
	}
	return sc, true, nil
}

func (s *RedisStore) Set(ctx context.Context, fingerprint string, sc ctxmodel.StandardContext, ttl time.Duration) error {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := encode(sc)
	if err != nil {
		return err
	}
	return s.client.Set(opCtx, fingerprint, data, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, fingerprint string) error {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Del(opCtx, fingerprint).Err()
}
