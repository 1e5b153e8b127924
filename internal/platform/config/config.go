package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	pstrings "ledgerd/pkg/platform/strings"
)

// Server captures process-level configuration. FromEnv builds it from the
// environment so main stays lean.
type Server struct {
	Addr          string
	JWTSigningKey string

	// LedgerDir is the root directory for append-only ledger segments.
	LedgerDir string

	// PostgresURL configures the ledger index store; empty selects the
	// in-memory store.
	PostgresURL string

	Redis RedisConfig

	// KafkaBrokers enables the evidence event publisher when non-empty.
	KafkaBrokers []string
	KafkaTopic   string

	// RegistryURL points at the external policy registry; RegistryTimeout
	// bounds snapshot refresh calls.
	RegistryURL     string
	RegistryTimeout time.Duration

	// RetentionInterval is the period of the retention background pass.
	RetentionInterval time.Duration

	// RetentionMaxAgeDays archives active receipts older than this;
	// RetentionExpireDays expires them (0 = never expire).
	RetentionMaxAgeDays int
	RetentionExpireDays int

	// LegalHoldTenants lists tenants the retention pass must skip entirely.
	LegalHoldTenants []string

	// TrustAnchorKey is the base64 Ed25519 public key that authenticates
	// revocation lists.
	TrustAnchorKey string

	// TrustKeysFile optionally seeds the trust store from an anchor-signed
	// key set document at startup.
	TrustKeysFile string

	// DLQRetention is the default dead-letter retention window; tenants may
	// override it through governance configuration.
	DLQRetention time.Duration

	// VerifyRangeLimit requests per VerifyRangeWindow per tenant.
	VerifyRangeLimit  int
	VerifyRangeWindow time.Duration
}

// RedisConfig captures connection settings for the DLQ store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	return Server{
		Addr:          envString("LEDGERD_ADDR", ":8080"),
		JWTSigningKey: envString("LEDGERD_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		LedgerDir:     envString("LEDGERD_SEGMENT_DIR", "data/ledger"),
		PostgresURL:   os.Getenv("LEDGERD_POSTGRES_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("LEDGERD_REDIS_URL"),
			PoolSize:     envInt("LEDGERD_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("LEDGERD_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("LEDGERD_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("LEDGERD_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("LEDGERD_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		KafkaBrokers:        envList("LEDGERD_KAFKA_BROKERS"),
		KafkaTopic:          envString("LEDGERD_KAFKA_TOPIC", "evidence.receipts"),
		RegistryURL:         os.Getenv("LEDGERD_REGISTRY_URL"),
		RegistryTimeout:     envDuration("LEDGERD_REGISTRY_TIMEOUT", 5*time.Second),
		RetentionInterval:   envDuration("LEDGERD_RETENTION_INTERVAL", 24*time.Hour),
		RetentionMaxAgeDays: envInt("LEDGERD_RETENTION_MAX_AGE_DAYS", 365),
		RetentionExpireDays: envInt("LEDGERD_RETENTION_EXPIRE_DAYS", 0),
		LegalHoldTenants:    envList("LEDGERD_LEGAL_HOLD_TENANTS"),
		TrustAnchorKey:      os.Getenv("LEDGERD_TRUST_ANCHOR_KEY"),
		TrustKeysFile:       os.Getenv("LEDGERD_TRUST_KEYS_FILE"),
		DLQRetention:        envDuration("LEDGERD_DLQ_RETENTION", 30*24*time.Hour),
		VerifyRangeLimit:    envInt("LEDGERD_VERIFY_RANGE_LIMIT", 1000),
		VerifyRangeWindow:   envDuration("LEDGERD_VERIFY_RANGE_WINDOW", time.Minute),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	return pstrings.DedupeAndTrim(strings.Split(v, ","))
}
