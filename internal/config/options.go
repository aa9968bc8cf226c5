package config

import (
	"os"
	"strconv"
	"time"
)

// Options holds the knobs every tracecore binary reads at startup,
// populated from environment variables — no config file format, just
// process environment.
type Options struct {
	ServiceName string

	DatabaseURL string
	NATSURL     string
	JWKSURL     string
	RedisAddr   string

	VaultAddress string
	VaultToken   string

	OTLPEndpoint string

	RequireAuth           bool
	CacheTTLCapSeconds    int
	CacheTimeoutMillis    int
	OutboxRetentionDays   int
	OutboxCleanupInterval time.Duration
	OutboxAckLag          time.Duration
	CDCDefaultTraceFlags  string
}

// Load reads Options from the process environment, applying defaults for
// anything unset.
func Load(serviceName string) Options {
	return Options{
		ServiceName: serviceName,

		DatabaseURL: getEnv("DATABASE_URL", ""),
		NATSURL:     getEnv("NATS_URL", "nats://localhost:4222"),
		JWKSURL:     getEnv("JWKS_URL", ""),
		RedisAddr:   getEnv("REDIS_ADDR", ""),

		VaultAddress: getEnv("VAULT_ADDR", "http://localhost:8200"),
		VaultToken:   getEnv("VAULT_TOKEN", ""),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		RequireAuth:           getBoolEnv("REQUIRE_AUTH", false),
		CacheTTLCapSeconds:    getIntEnv("CACHE_TTL_CAP_SECONDS", 900),
		CacheTimeoutMillis:    getIntEnv("CACHE_TIMEOUT_MS", 200),
		OutboxRetentionDays:   getIntEnv("OUTBOX_RETENTION_DAYS", 7),
		OutboxCleanupInterval: getDurationEnv("OUTBOX_CLEANUP_INTERVAL_SECONDS", 3600*time.Second),
		OutboxAckLag:          getDurationEnv("OUTBOX_ACK_LAG_SECONDS", 300*time.Second),
		CDCDefaultTraceFlags:  getEnv("CDC_DEFAULT_TRACE_FLAGS", "01"),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(n) * time.Second
}
