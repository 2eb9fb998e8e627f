// Package config provides environment-driven configuration for the audit ledger.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Secret wraps a sensitive string to prevent accidental logging or marshalling.
type Secret string

// String implements fmt.Stringer, returning a redacted placeholder.
func (s Secret) String() string { return "[REDACTED]" }

// GoString implements fmt.GoStringer, returning a redacted placeholder.
func (s Secret) GoString() string { return "[REDACTED]" }

// MarshalText implements encoding.TextMarshaler, returning a redacted placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte("[REDACTED]"), nil }

// Value returns the underlying secret string.
func (s Secret) Value() string { return string(s) }

// Config holds all application configuration values.
type Config struct {
	DatabaseURL        Secret
	DBMaxConns         int
	DBStatementTimeout time.Duration
	Port               string
	MetricsPort        string
	ListenHost         string
	CORSOrigins        []string
	LogLevel           string

	BlockSize          int
	Difficulty         int
	MaxNonceIterations uint64
	FlushInterval      time.Duration

	SigningProvider string
	SigningKey      Secret
	VaultAddr       string
	VaultToken      Secret
	VaultMount      string
	EncryptDetails  bool

	APIKey             Secret
	ComplianceTagsFile string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	OpenSearchURL string
	SinkQueueSize int

	ArchiveBucket          string
	ArchiveEndpoint        string
	ArchiveRegion          string
	ArchiveAccessKeyID     string
	ArchiveSecretAccessKey Secret

	RedisURL       Secret
	VerifyCacheTTL time.Duration

	OTelEnabled      bool
	OTelEndpoint     string
	OTelSamplingRate float64
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:            Secret(envOrDefault("DATABASE_URL", "")),
		Port:                   envOrDefault("PORT", "3040"),
		MetricsPort:            envOrDefault("METRICS_PORT", "9092"),
		ListenHost:             envOrDefault("LISTEN_HOST", "127.0.0.1"),
		LogLevel:               envOrDefault("LOG_LEVEL", "info"),
		SigningProvider:        envOrDefault("SIGNING_PROVIDER", "static"),
		SigningKey:             Secret(envOrDefault("SIGNING_KEY", "")),
		VaultAddr:              envOrDefault("VAULT_ADDR", "http://127.0.0.1:8200"),
		VaultToken:             Secret(envOrDefault("VAULT_TOKEN", "")),
		VaultMount:             envOrDefault("VAULT_MOUNT", "auditledger/keys"),
		EncryptDetails:         envOrDefault("ENCRYPT_DETAILS", "false") == "true",
		APIKey:                 Secret(envOrDefault("API_KEY", "")),
		ComplianceTagsFile:     envOrDefault("COMPLIANCE_TAGS_FILE", ""),
		KafkaBrokers:           splitList(envOrDefault("KAFKA_BROKERS", "")),
		KafkaTopic:             envOrDefault("KAFKA_TOPIC", "audit-events"),
		KafkaGroupID:           envOrDefault("KAFKA_GROUP_ID", "auditledger"),
		OpenSearchURL:          envOrDefault("OPENSEARCH_URL", ""),
		ArchiveBucket:          envOrDefault("ARCHIVE_BUCKET", ""),
		ArchiveEndpoint:        envOrDefault("ARCHIVE_ENDPOINT", ""),
		ArchiveRegion:          envOrDefault("ARCHIVE_REGION", "us-east-1"),
		ArchiveAccessKeyID:     envOrDefault("ARCHIVE_ACCESS_KEY_ID", ""),
		ArchiveSecretAccessKey: Secret(envOrDefault("ARCHIVE_SECRET_ACCESS_KEY", "")),
		RedisURL:               Secret(envOrDefault("REDIS_URL", "")),
		OTelEnabled:            envOrDefault("OTEL_ENABLED", "false") == "true",
		OTelEndpoint:           envOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		CORSOrigins:            splitList(envOrDefault("CORS_ORIGINS", "http://localhost:3002")),
	}

	if err := cfg.loadNumbers(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadNumbers() error {
	var err error

	if c.DBMaxConns, err = envInt("DB_MAX_CONNS", 10, 2, 200); err != nil {
		return err
	}

	if c.BlockSize, err = envInt("BLOCK_SIZE", 100, 1, 10000); err != nil {
		return err
	}

	if c.Difficulty, err = envInt("DIFFICULTY", 2, 0, 6); err != nil {
		return err
	}

	if c.SinkQueueSize, err = envInt("SINK_QUEUE_SIZE", 256, 1, 100000); err != nil {
		return err
	}

	iters, err := strconv.ParseUint(envOrDefault("MAX_NONCE_ITERATIONS", "1000000"), 10, 64)
	if err != nil || iters < 1 {
		return fmt.Errorf("MAX_NONCE_ITERATIONS must be a positive integer")
	}
	c.MaxNonceIterations = iters

	if c.DBStatementTimeout, err = envDuration("DB_STATEMENT_TIMEOUT", "30s"); err != nil {
		return err
	}

	if c.FlushInterval, err = envDuration("FLUSH_INTERVAL", "30s"); err != nil {
		return err
	}

	if c.VerifyCacheTTL, err = envDuration("VERIFY_CACHE_TTL", "5m"); err != nil {
		return err
	}

	rate, err := strconv.ParseFloat(envOrDefault("OTEL_SAMPLING_RATE", "1.0"), 64)
	if err != nil {
		return fmt.Errorf("OTEL_SAMPLING_RATE must be a number between 0 and 1")
	}
	c.OTelSamplingRate = rate

	return nil
}

// Addr returns the listen address in host:port format.
func (c *Config) Addr() string {
	return c.ListenHost + ":" + c.Port
}

// MetricsAddr returns the metrics listen address in host:port format.
func (c *Config) MetricsAddr() string {
	return c.ListenHost + ":" + c.MetricsPort
}

// Persistent reports whether the ledger is backed by PostgreSQL.
func (c *Config) Persistent() bool {
	return c.DatabaseURL.Value() != ""
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func envInt(key string, fallback, lo, hi int) (int, error) {
	n, err := strconv.Atoi(envOrDefault(key, strconv.Itoa(fallback)))
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("%s must be an integer between %d and %d", key, lo, hi)
	}

	return n, nil
}

func envDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s must be a non-negative duration such as 30s", key)
	}

	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}

	return out
}
