package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the runtime settings of the service. Every field can be set
// through a WMS_-prefixed environment variable.
type Config struct {
	APIAddr string
	OpsAddr string

	PostgresDSN string

	KafkaBrokers []string

	ERPBaseURL   string
	ERPCompanyDB string
	ERPUsername  string
	ERPPassword  string
	ERPPull      string
	ERPPush      string

	OutboxPollInterval time.Duration
	CleanupInterval    time.Duration
}

// DefaultConfig returns the development defaults: in-memory storage, no
// broker, no ERP.
func DefaultConfig() Config {
	return Config{
		APIAddr:            ":8080",
		OpsAddr:            ":9090",
		OutboxPollInterval: time.Second,
		CleanupInterval:    10 * time.Minute,
	}
}

// ConfigFromEnv builds the config from the environment on top of defaults.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := envStr("WMS_API_ADDR"); v != "" {
		cfg.APIAddr = v
	}
	if v := envStr("WMS_OPS_ADDR"); v != "" {
		cfg.OpsAddr = v
	}
	cfg.PostgresDSN = envStr("WMS_POSTGRES_DSN")
	if v := envStr("WMS_KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = splitAndTrim(v)
	}

	cfg.ERPBaseURL = envStr("WMS_ERP_BASE_URL")
	cfg.ERPCompanyDB = envStr("WMS_ERP_COMPANY_DB")
	cfg.ERPUsername = envStr("WMS_ERP_USERNAME")
	cfg.ERPPassword = envStr("WMS_ERP_PASSWORD")
	cfg.ERPPull = envStr("WMS_ERP_PULL_SCHEDULE")
	cfg.ERPPush = envStr("WMS_ERP_PUSH_SCHEDULE")

	if v := envDuration("WMS_OUTBOX_POLL_INTERVAL"); v > 0 {
		cfg.OutboxPollInterval = v
	}
	if v := envDuration("WMS_IDEMPOTENCY_CLEANUP_INTERVAL"); v > 0 {
		cfg.CleanupInterval = v
	}

	return cfg
}

func envStr(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envDuration(key string) time.Duration {
	raw := envStr(key)
	if raw == "" {
		return 0
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	// Bare numbers are read as seconds.
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
