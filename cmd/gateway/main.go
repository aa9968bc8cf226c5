// Command gateway is the edge service for the link-shortener: it
// terminates external requests, establishes a StandardContext for each,
// and appends outbox events inside the same transaction as the domain
// write.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/arc-self/tracecore/internal/config"
	"github.com/arc-self/tracecore/internal/natsbroker"
	"github.com/arc-self/tracecore/internal/telemetry"
	"github.com/arc-self/tracecore/pkg/ctxstore"
	"github.com/arc-self/tracecore/pkg/gateway"
)

// newServeCommand wires the gateway's startup sequence behind a "serve"
// subcommand.
func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			serve()
			return nil
		},
	}
}

func main() {
	root := &cobra.Command{
		Use:  "gateway [command]",
		Long: "Link-shortener edge service: establishes request context and appends outbox events",
	}
	root.AddCommand(newServeCommand())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func serve() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	opts := config.Load("gateway")

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
	secrets, err := secretManager.GetKV2("secret/data/tracecore/gateway")
	if err != nil {
		logger.Warn("vault secrets unavailable, falling back to env", zap.Error(err))
		secrets = map[string]string{}
	}
	pgURL := firstNonEmpty(secrets["PG_URL"], opts.DatabaseURL)

	poolCfg, err := pgxpool.ParseConfig(pgURL)
	if err != nil {
		logger.Fatal("failed to parse PG_URL", zap.Error(err))
	}
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()
	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	natsClient, err := natsbroker.NewClient(firstNonEmpty(secrets["NATS_URL"], opts.NATSURL), logger)
	if err != nil {
		logger.Fatal("NATS initialization failed", zap.Error(err))
	}
	defer natsClient.Close()
	if err := natsClient.EnsureStream(natsbroker.LinkEvents); err != nil {
		logger.Fatal("NATS stream provisioning failed", zap.Error(err))
	}

	var store ctxstore.Store
	if redisAddr := firstNonEmpty(secrets["REDIS_ADDR"], opts.RedisAddr); redisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisAddr, Password: secrets["REDIS_PASSWORD"]})
		store = ctxstore.NewRedisStore(redisClient, time.Duration(opts.CacheTimeoutMillis)*time.Millisecond)
		logger.Info("context store backed by redis", zap.String("addr", redisAddr))
	} else {
		logger.Warn("no REDIS_ADDR configured, using in-process context store")
		store = ctxstore.NewMapStore()
	}

	var validator gateway.Validator
	if opts.JWKSURL != "" {
		jwksValidator, err := gateway.NewJWKSValidator(context.Background(), opts.JWKSURL)
		if err != nil {
			logger.Fatal("failed to initialize JWKS validator", zap.Error(err))
		}
		validator = jwksValidator
	} else {
		logger.Warn("no JWKS_URL configured, falling back to a validator with no trusted tokens")
		validator = gateway.NewStaticValidator(nil)
	}

	establisher := gateway.NewEstablisher(store, validator, gateway.Options{
		ServiceName:        opts.ServiceName,
		RequireAuth:        opts.RequireAuth,
		CacheTTLCapSeconds: opts.CacheTTLCapSeconds,
	}, logger)

	linkSvc := NewLinkService(pool)

	e := echo.New()
	e.HideBanner = true
	e.Use(otelecho.Middleware(opts.ServiceName))
	e.Use(gateway.Middleware(establisher))
	e.Use(echomw.Recover())

	registerRoutes(e, linkSvc, logger)

	go func() {
		logger.Info("gateway HTTP server listening on :8080")
		if err := e.Start(":8080"); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failure", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo shutdown error", zap.Error(err))
	}
	logger.Info("gateway shut down cleanly")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
