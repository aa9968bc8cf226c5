// Command consumer pull-consumes projected link events from NATS
// JetStream, reconstructing the producer's trace for each one, and runs
// the scheduled outbox cleanup job on its own synthesized system context.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/arc-self/tracecore/internal/config"
	"github.com/arc-self/tracecore/internal/natsbroker"
	"github.com/arc-self/tracecore/internal/telemetry"
	"github.com/arc-self/tracecore/pkg/consumer"
	"github.com/arc-self/tracecore/pkg/outbox"
	"github.com/arc-self/tracecore/pkg/propagate"
	"github.com/arc-self/tracecore/pkg/schedule"
)

const shutdownTimeout = 10 * time.Second

var eventsConsumed = sync.OnceValue(func() metric.Int64Counter {
	c, _ := otel.Meter("tracecore/consumer").Int64Counter("events_consumed_total")
	return c
})

func newConsumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Pull-consume projected link events and run the outbox cleanup job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			run()
			return nil
		},
	}
}

func main() {
	root := &cobra.Command{
		Use:  "consumer [command]",
		Long: "Consumes projected link events, reconstructing the producer's trace for each",
	}
	root.AddCommand(newConsumeCommand())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	opts := config.Load("consumer")

	if opts.OTLPEndpoint != "" {
		providers, err := telemetry.Init(context.Background(), opts.ServiceName, opts.OTLPEndpoint)
		if err != nil {
			logger.Error("failed to init OTel providers", zap.Error(err))
		} else {
			defer providers.Shutdown(context.Background())
		}
	}

	secretManager, err := config.NewSecretManager(opts.VaultAddress, opts.VaultToken)
	if err != nil {
		logger.Fatal("vault connection failed", zap.Error(err))
	}
	secrets, err := secretManager.GetKV2("secret/data/tracecore/consumer")
	if err != nil {
		logger.Warn("vault secrets unavailable, falling back to env", zap.Error(err))
		secrets = map[string]string{}
	}

	pool, err := pgxpool.New(context.Background(), firstNonEmpty(secrets["PG_URL"], opts.DatabaseURL))
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	natsClient, err := natsbroker.NewClient(firstNonEmpty(secrets["NATS_URL"], opts.NATSURL), logger)
	if err != nil {
		logger.Fatal("NATS connection failed", zap.Error(err))
	}
	defer natsClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adapter := consumer.NewAdapter("consumer", handleEvent(logger), logger)

	go func() {
		if err := consumer.Run(ctx, natsClient.JS, adapter, consumer.PullerOptions{
			Subject: natsbroker.SubjectLinkEvents,
			Durable: "link-events-consumer",
		}); err != nil {
			logger.Error("consumer loop exited", zap.Error(err))
		}
	}()

	scheduler := schedule.NewScheduler("consumer", logger)
	cleanupSpec := fmt.Sprintf("@every %s", opts.OutboxCleanupInterval)
	if err := scheduler.RegisterJob(cleanupSpec, "cleanup-outbox", func(ctx context.Context) error {
		n, err := outbox.CleanupOlderThan(ctx, pool, outbox.RetentionPolicy{RetentionDays: opts.OutboxRetentionDays})
		if err != nil {
			return err
		}
		logger.Info("outbox cleanup completed", zap.Int64("rows_deleted", n))
		return nil
	}); err != nil {
		logger.Fatal("failed to register cleanup job", zap.Error(err))
	}

	// Backstop for the CDC worker's own status updates: a PENDING row older
	// than the ack-lag window has been published (or will be re-emitted from
	// the replication slot), so it is safe to mark processed here.
	reconcileSpec := fmt.Sprintf("@every %s", opts.OutboxAckLag)
	if err := scheduler.RegisterJob(reconcileSpec, "reconcile-outbox", func(ctx context.Context) error {
		n, err := outbox.ReconcilePending(ctx, pool, opts.OutboxAckLag)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("outbox reconciliation completed", zap.Int64("rows_marked", n))
		}
		return nil
	}); err != nil {
		logger.Fatal("failed to register reconcile job", zap.Error(err))
	}
	scheduler.Start()

	logger.Info("consumer started")
	<-ctx.Done()

	logger.Info("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Error("scheduler stop error", zap.Error(err))
	}
	logger.Info("consumer shut down cleanly")
}

func handleEvent(logger *zap.Logger) consumer.Handler {
	return func(ctx context.Context, ev consumer.Event) error {
		propagate.Logger(ctx, logger).Info("consumed link event",
			zap.String("event_type", ev.EventType),
			zap.String("aggregate_id", ev.AggregateID),
		)
		eventsConsumed().Add(ctx, 1)
		return nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
