// Command cdcworker streams Postgres logical replication changes on the
// outbox_events table and projects each inserted row into a broker message
// carrying trace and business context headers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/arc-self/tracecore/internal/config"
	"github.com/arc-self/tracecore/internal/natsbroker"
	"github.com/arc-self/tracecore/internal/telemetry"
	"github.com/arc-self/tracecore/pkg/cdcproject"
	"github.com/arc-self/tracecore/pkg/outbox"
)

const (
	slotName        = "outbox_slot"
	publicationName = "outbox_pub"
	outputPlugin    = "pgoutput"
	standbyTimeout  = 10 * time.Second
)

var eventsPublished = sync.OnceValue(func() metric.Int64Counter {
	c, _ := otel.Meter("tracecore/cdcworker").Int64Counter("events_published_total")
	return c
})

func newStreamCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stream",
		Short: "Stream logical replication changes from the outbox table into NATS",
		RunE: func(cmd *cobra.Command, _ []string) error {
			run()
			return nil
		},
	}
}

func main() {
	root := &cobra.Command{
		Use:  "cdcworker [command]",
		Long: "Projects outbox row inserts into broker messages carrying trace and business context headers",
	}
	root.AddCommand(newStreamCommand())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	opts := config.Load("cdcworker")

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
	secrets, err := secretManager.GetKV2("secret/data/tracecore/cdcworker")
	if err != nil {
		logger.Warn("vault secrets unavailable, falling back to env", zap.Error(err))
		secrets = map[string]string{}
	}

	pgURL := firstNonEmpty(secrets["PG_URL"], opts.DatabaseURL)
	pgReplicationURL := pgURL
	if v, ok := secrets["PG_REPLICATION_URL"]; ok && v != "" {
		pgReplicationURL = v
	} else if !strings.Contains(pgURL, "replication=") {
		sep := "?"
		if strings.Contains(pgURL, "?") {
			sep = "&"
		}
		pgReplicationURL = pgURL + sep + "replication=database"
	}
	pgQueryURL := pgURL

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	natsClient, err := natsbroker.NewClient(firstNonEmpty(secrets["NATS_URL"], opts.NATSURL), logger)
	if err != nil {
		logger.Fatal("NATS connection failed", zap.Error(err))
	}
	defer natsClient.Close()
	if err := natsClient.EnsureStream(natsbroker.LinkEvents); err != nil {
		logger.Fatal("NATS stream provisioning failed", zap.Error(err))
	}

	conn, err := pgconn.Connect(ctx, pgReplicationURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres for replication", zap.Error(err))
	}
	defer conn.Close(ctx)

	if _, err := pglogrepl.CreateReplicationSlot(ctx, conn, slotName, outputPlugin,
		pglogrepl.CreateReplicationSlotOptions{Temporary: false}); err != nil {
		logger.Warn("replication slot creation", zap.Error(err))
	}

	sysident, err := pglogrepl.IdentifySystem(ctx, conn)
	if err != nil {
		logger.Fatal("IdentifySystem failed", zap.Error(err))
	}

	// Separate non-replication connection for marking rows processed after
	// a successful publish; the replication connection cannot run ordinary
	// SQL while streaming.
	statusConn, err := pgx.Connect(ctx, pgQueryURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres for status updates", zap.Error(err))
	}
	defer statusConn.Close(context.Background())

	startLSN := resolveStartLSN(ctx, logger, pgQueryURL, sysident.XLogPos)

	pluginArgs := []string{"proto_version '2'", fmt.Sprintf("publication_names '%s'", publicationName)}
	if err := pglogrepl.StartReplication(ctx, conn, slotName, startLSN,
		pglogrepl.StartReplicationOptions{PluginArgs: pluginArgs}); err != nil {
		logger.Fatal("StartReplication failed", zap.Error(err))
	}
	logger.Info("logical replication started", zap.String("slot", slotName))

	decoder := cdcproject.NewDecoder()
	clientXLogPos := startLSN
	nextStandbyDeadline := time.Now().Add(standbyTimeout)

	for {
		if ctx.Err() != nil {
			logger.Info("cdc worker shutting down gracefully")
			return
		}

		if time.Now().After(nextStandbyDeadline) {
			if err := pglogrepl.SendStandbyStatusUpdate(ctx, conn,
				pglogrepl.StandbyStatusUpdate{WALWritePosition: clientXLogPos}); err != nil {
				logger.Error("StandbyStatusUpdate failed", zap.Error(err))
			}
			nextStandbyDeadline = time.Now().Add(standbyTimeout)
		}

		rawMsg, err := conn.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Error("ReceiveMessage failed", zap.Error(err))
			continue
		}

		if errResp, ok := rawMsg.(*pgproto3.ErrorResponse); ok {
			logger.Fatal("postgres WAL error", zap.String("message", errResp.Message))
		}

		copyData, ok := rawMsg.(*pgproto3.CopyData)
		if !ok {
			continue
		}

		switch copyData.Data[0] {
		case pglogrepl.XLogDataByteID:
			xld, err := pglogrepl.ParseXLogData(copyData.Data[1:])
			if err != nil {
				logger.Error("ParseXLogData failed", zap.Error(err))
				continue
			}

			logicalMsg, err := pglogrepl.ParseV2(xld.WALData, false)
			if err != nil {
				logger.Error("ParseV2 failed", zap.Error(err))
				continue
			}

			switch msg := logicalMsg.(type) {
			case *pglogrepl.RelationMessageV2:
				decoder.RegisterRelation(msg)
			case *pglogrepl.InsertMessageV2:
				handleInsert(ctx, decoder, natsClient, statusConn, logger, msg, opts.CDCDefaultTraceFlags)
			}

			clientXLogPos = xld.WALStart + pglogrepl.LSN(len(xld.WALData))

		case pglogrepl.PrimaryKeepaliveMessageByteID:
			pkm, err := pglogrepl.ParsePrimaryKeepaliveMessage(copyData.Data[1:])
			if err != nil {
				logger.Error("ParsePrimaryKeepaliveMessage failed", zap.Error(err))
				continue
			}
			if pkm.ReplyRequested {
				nextStandbyDeadline = time.Time{}
			}
		}
	}
}

func handleInsert(ctx context.Context, decoder *cdcproject.Decoder, natsClient *natsbroker.Client, statusConn outbox.Pool, logger *zap.Logger, msg *pglogrepl.InsertMessageV2, defaultTraceFlags string) {
	row, err := decoder.DecodeInsert(msg)
	if err != nil {
		logger.Error("DecodeInsert failed", zap.Error(err))
		return
	}

	projected, err := cdcproject.Project(row, cdcproject.DefaultTopicRules, defaultTraceFlags)
	if err != nil {
		logger.Error("Project failed", zap.Error(err))
		return
	}

	// The aggregate id is folded into the subject itself, not just a header:
	// NATS JetStream preserves delivery order per subject, so every event for
	// one aggregate lands on the same subject and per-aggregate ordering
	// holds without relying on consumer-side reordering.
	natsMsg := nats.NewMsg(projected.Topic + "." + projected.EventType + "." + projected.Key)
	natsMsg.Data = projected.Payload
	natsMsg.Header.Set(nats.MsgIdHdr, projected.Key)
	for k, v := range projected.Headers {
		// Direct assignment, not Header.Set: Set would MIME-canonicalize the
		// key ("X-Tenant-ID" becomes "X-Tenant-Id", "trace_id" becomes
		// "Trace_id"), and the wire contract requires the canonical casing of
		// the header set byte-for-byte.
		natsMsg.Header[k] = []string{v}
	}
	if projected.Degraded {
		logger.Warn("publishing event without traceparent", zap.String("why", projected.DegradedWhy), zap.String("aggregate_id", projected.Key))
	}

	if _, err := natsClient.Publish(natsMsg); err != nil {
		logger.Error("NATS publish failed", zap.Error(err))
		return
	}

	// The publish is acknowledged, so the row leaves PENDING and becomes
	// eligible for retention cleanup. If this update is lost (crash right
	// here), the reconciler running in the consumer binary catches the row
	// after the ack-lag window.
	if err := outbox.MarkProcessed(ctx, statusConn, row["id"]); err != nil {
		logger.Error("failed to mark outbox row processed", zap.String("id", row["id"]), zap.Error(err))
	}

	eventsPublished().Add(context.Background(), 1)
	logger.Info("event published", zap.String("subject", natsMsg.Subject), zap.String("key", projected.Key), zap.Bool("degraded", projected.Degraded))
}

func resolveStartLSN(ctx context.Context, logger *zap.Logger, pgQueryURL string, fallback pglogrepl.LSN) pglogrepl.LSN {
	pgxConn, err := pgx.Connect(ctx, pgQueryURL)
	if err != nil {
		logger.Warn("failed to open pgx connection for LSN resolution", zap.Error(err))
		return fallback
	}
	defer pgxConn.Close(ctx)

	var confirmedLSNStr *string
	err = pgxConn.QueryRow(ctx,
		"SELECT confirmed_flush_lsn::text FROM pg_replication_slots WHERE slot_name = $1", slotName,
	).Scan(&confirmedLSNStr)
	if err != nil || confirmedLSNStr == nil || *confirmedLSNStr == "" {
		return fallback
	}

	lsn, err := pglogrepl.ParseLSN(*confirmedLSNStr)
	if err != nil {
		logger.Warn("failed to parse confirmed_flush_lsn, falling back", zap.Error(err))
		return fallback
	}
	return lsn
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
