package schedule

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/arc-self/tracecore/pkg/propagate"
)

const tracerName = "tracecore/schedule"

// JobFunc is a scheduled unit of work. It receives a context already bound
// to a synthesized system diagnostic scope (propagate.Bind) and a root
// span, the same contract an inbound request handler gets.
type JobFunc func(ctx context.Context) error

// Scheduler wraps robfig/cron to run JobFuncs on a synthesized system
// context.
type Scheduler struct {
	cron        *cron.Cron
	logger      *zap.Logger
	serviceName string
}

// NewScheduler returns a Scheduler for serviceName. A nil logger is
// replaced with zap.NewNop().
func NewScheduler(serviceName string, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:        cron.New(cron.WithSeconds()),
		logger:      logger,
		serviceName: serviceName,
	}
}

// RegisterJob schedules fn under cron expression spec, named jobName for
// logging, tracing and transaction_type purposes. Each run gets its own
// synthesized system context, diagnostic scope, and root span; a job that
// returns an error only logs it — cron has no concept of a failed run to
// propagate to, by design of the library.
func (s *Scheduler) RegisterJob(spec, jobName string, fn JobFunc) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx := context.Background()
		sc := SystemContext(s.serviceName, jobName)

		tracer := otel.Tracer(tracerName)
		ctx, span := tracer.Start(ctx, s.serviceName+"."+jobName)
		defer span.End()
		if spanCtx := span.SpanContext(); spanCtx.HasTraceID() {
			sc.CorrelationID = spanCtx.TraceID().String()
		}
		span.SetAttributes(
			attribute.String("tenant.id", sc.TenantID),
			attribute.String("transaction.type", sc.TransactionType),
		)

		ctx = propagate.Bind(ctx, propagate.Scope{Standard: sc})
		logger := propagate.Logger(ctx, s.logger)

		if err := fn(ctx); err != nil {
			span.RecordError(err)
			logger.Error("scheduled job failed", zap.String("job", jobName), zap.Error(err))
			return
		}
		logger.Info("scheduled job completed", zap.String("job", jobName))
	})
	if err != nil {
		return fmt.Errorf("schedule: register job %q: %w", jobName, err)
	}
	return nil
}

// Start begins running registered jobs on their schedules.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for running jobs to finish and stops the scheduler from
// starting new ones.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
