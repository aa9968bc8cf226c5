package consumer

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arc-self/tracecore/pkg/ctxmodel"
	"github.com/arc-self/tracecore/pkg/propagate"
)

const tracerName = "tracecore/consumer"

// Message is the minimal broker message surface the adapter needs. NatsMsg
// adapts a *nats.Msg to it; tests can supply a fake directly.
type Message interface {
	Subject() string
	Data() []byte
	Headers() map[string]string
	Ack() error
	Nak() error
	Term() error
}

// Event is the decoded domain event an outbox row became once it crossed
// the broker.
type Event struct {
	EventType     string
	AggregateType string
	AggregateID   string
	Subject       string
	Payload       []byte
	Standard      ctxmodel.StandardContext
}

// Handler processes one decoded Event. A PoisonPillError return causes the
// adapter to Term the message (never redelivered); any other error causes
// Nak (redelivered per the broker's retry policy); nil causes Ack.
type Handler func(ctx context.Context, ev Event) error

// PoisonPillError marks an event as permanently unprocessable — malformed
// beyond any retry recovering it — distinct from a transient failure.
type PoisonPillError struct {
	Reason string
}

func (e PoisonPillError) Error() string { return "consumer: poison pill: " + e.Reason }

func isPoisonPill(err error) bool {
	var p PoisonPillError
	return errors.As(err, &p)
}

// Adapter reconstructs a span from broker headers and dispatches the
// decoded event to a Handler.
type Adapter struct {
	ServiceName string
	Logger      *zap.Logger
	Handle      Handler
}

// NewAdapter returns an Adapter; a nil logger is replaced with zap.NewNop().
func NewAdapter(serviceName string, handle Handler, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{ServiceName: serviceName, Logger: logger, Handle: handle}
}

// Process decodes msg's headers, starts a span (continuing the producer's
// trace when present and valid, otherwise a root span tagged
// messaging.orphaned=true), binds the diagnostic scope, invokes Handle,
// and resolves the message via Ack/Nak/Term based on the outcome.
func (a *Adapter) Process(ctx context.Context, msg Message) error {
	headers := msg.Headers()
	tc, hasParent := ReconstructTraceContext(headers)

	tracer := otel.Tracer(tracerName)
	spanCtx := ctx
	var span trace.Span
	orphaned := !hasParent

	if hasParent {
		remote, err := RemoteSpanContext(tc)
		if err != nil {
			orphaned = true
		} else {
			spanCtx, span = tracer.Start(trace.ContextWithRemoteSpanContext(ctx, remote), a.ServiceName+".consume")
		}
	}
	if span == nil {
		spanCtx, span = tracer.Start(ctx, a.ServiceName+".consume")
	}
	defer span.End()

	if orphaned && headerValue(headers, ctxmodel.HeaderTraceparent) != "" {
		span.SetAttributes(attribute.String("context.malformed", "traceparent"))
	}

	sc := ctxmodel.NewStandardContext()
	if v := headerValue(headers, ctxmodel.HeaderTenantID); v != "" {
		sc.TenantID = v
	}
	if v := headerValue(headers, ctxmodel.HeaderUserID); v != "" {
		sc.UserID = v
	}
	sc.RequestID = headerValue(headers, ctxmodel.HeaderRequestID)
	sc.ServiceName = headerValue(headers, ctxmodel.HeaderServiceName)
	sc.TransactionType = headerValue(headers, ctxmodel.HeaderTransactionType)
	sc.OriginService = headerValue(headers, ctxmodel.HeaderOriginService)

	eventType, aggregateID := parseSubject(msg.Subject())
	if aggregateID == "" {
		aggregateID = headerValue(headers, "Nats-Msg-Id")
	}
	ev := Event{
		EventType:     eventType,
		AggregateType: aggregateTypeOf(eventType, msg.Subject()),
		AggregateID:   aggregateID,
		Subject:       msg.Subject(),
		Payload:       msg.Data(),
		Standard:      sc,
	}

	span.SetAttributes(
		attribute.Bool("messaging.orphaned", orphaned),
		attribute.String("messaging.system", "nats"),
		attribute.String("messaging.destination", msg.Subject()),
		attribute.String("messaging.operation", "consume"),
		attribute.String("messaging.message.id", ev.AggregateID),
	)

	spanCtx = propagate.Bind(spanCtx, propagate.Scope{Standard: sc, Trace: tc})

	err := a.Handle(spanCtx, ev)
	if err == nil {
		return msg.Ack()
	}

	span.RecordError(err)
	if isPoisonPill(err) {
		a.Logger.Warn("terminating poison pill message", zap.String("subject", msg.Subject()), zap.Error(err))
		return msg.Term()
	}
	a.Logger.Warn("nak-ing message for redelivery", zap.String("subject", msg.Subject()), zap.Error(err))
	return msg.Nak()
}

func firstSubjectSegment(subject string) string {
	if i := strings.IndexByte(subject, '.'); i >= 0 {
		return subject[:i]
	}
	return subject
}

// parseSubject splits "<topic>.<event_type>.<aggregate_id>" — the subject
// shape the CDC worker publishes — into its event type and aggregate id.
// The event type may itself contain dots ("link.created"), so the first
// and last segments bound it. Both results are empty when the subject has
// fewer than three segments.
func parseSubject(subject string) (eventType, aggregateID string) {
	first := strings.IndexByte(subject, '.')
	last := strings.LastIndexByte(subject, '.')
	if first < 0 || last <= first {
		return "", ""
	}
	return subject[first+1 : last], subject[last+1:]
}

func aggregateTypeOf(eventType, subject string) string {
	if i := strings.IndexByte(eventType, '.'); i > 0 {
		return eventType[:i]
	}
	if eventType != "" {
		return eventType
	}
	return firstSubjectSegment(subject)
}

// headerValue looks name up in headers, falling back to a case-insensitive
// scan: header names are accepted case-insensitively, and some broker
// clients MIME-canonicalize keys on the way through ("trace_id" arrives as
// "Trace_id").
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
