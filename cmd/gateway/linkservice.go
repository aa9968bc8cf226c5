package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/arc-self/tracecore/pkg/ctxmodel"
	"github.com/arc-self/tracecore/pkg/gateway"
	"github.com/arc-self/tracecore/pkg/outbox"
)

var linksCreated = sync.OnceValue(func() metric.Int64Counter {
	c, _ := otel.Meter("tracecore/gateway").Int64Counter("links_created_total")
	return c
})

// LinkService is the domain layer behind the gateway's routes: every
// mutation begins a transaction, performs the domain write, appends an
// outbox row in the same transaction, and commits — or rolls back on any
// failure, including the outbox append itself.
type LinkService struct {
	pool *pgxpool.Pool
}

func NewLinkService(pool *pgxpool.Pool) *LinkService {
	return &LinkService{pool: pool}
}

const insertLinkSQL = `INSERT INTO links (code, target_url, tenant_id, created_by) VALUES ($1, $2, $3, $4)`

// CreateLink persists a new short link and its outbox event atomically.
func (s *LinkService) CreateLink(ctx context.Context, targetURL string) (string, error) {
	sc, _ := gateway.FromContext(ctx)
	spanCtx := trace.SpanContextFromContext(ctx)

	code := newCode()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("linkservice: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, insertLinkSQL, code, targetURL, sc.TenantID, sc.UserID); err != nil {
		return "", fmt.Errorf("linkservice: insert link: %w", err)
	}

	payload, err := json.Marshal(map[string]string{"code": code, "target_url": targetURL})
	if err != nil {
		return "", fmt.Errorf("linkservice: marshal payload: %w", err)
	}

	tc := ctxmodel.TraceContext{}
	if spanCtx.IsValid() {
		tc = ctxmodel.TraceContext{
			TraceID: spanCtx.TraceID().String(),
			SpanID:  spanCtx.SpanID().String(),
			Flags:   fmt.Sprintf("%02x", spanCtx.TraceFlags()),
		}
	}

	if _, err := outbox.Append(ctx, tx, outbox.NewEvent{
		AggregateType: "link",
		AggregateID:   code,
		EventType:     "link.created",
		Payload:       payload,
		Context:       ctxmodel.BuildContextColumns(tc, sc),
	}); err != nil {
		return "", fmt.Errorf("linkservice: append outbox event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("linkservice: commit: %w", err)
	}
	linksCreated().Add(ctx, 1)
	return code, nil
}

func newCode() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	buf := make([]byte, 7)
	_, _ = rand.Read(buf)
	out := make([]byte, len(buf))
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out)
}
