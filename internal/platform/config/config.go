// Package config holds the typed process configuration.
//
// Every enumerated option is parsed through a Parse helper that rejects
// unknown values, so a misconfigured process fails at startup instead of
// defaulting silently.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// TenantResolution determines how a calling identity maps to a tenant.
type TenantResolution string

const (
	TenantFromHeader    TenantResolution = "header"
	TenantFromSubdomain TenantResolution = "subdomain"
	TenantFromAuthRealm TenantResolution = "auth-realm"
)

// ParseTenantResolution validates a tenant resolution strategy.
func ParseTenantResolution(s string) (TenantResolution, error) {
	switch TenantResolution(s) {
	case TenantFromHeader, TenantFromSubdomain, TenantFromAuthRealm:
		return TenantResolution(s), nil
	}
	return "", fmt.Errorf("unknown tenant resolution strategy %q", s)
}

// RecomputeCadence controls when risk metrics are recalculated.
type RecomputeCadence string

const (
	RecomputeOnTrigger   RecomputeCadence = "on-trigger"
	RecomputeNightlyFull RecomputeCadence = "nightly-full"
)

// ParseRecomputeCadence validates a recompute cadence.
func ParseRecomputeCadence(s string) (RecomputeCadence, error) {
	switch RecomputeCadence(s) {
	case RecomputeOnTrigger, RecomputeNightlyFull:
		return RecomputeCadence(s), nil
	}
	return "", fmt.Errorf("unknown metric recompute cadence %q", s)
}

// AuditRetention is either forever (zero Days) or a bounded number of days
// enforced by a nightly sweep.
type AuditRetention struct {
	Days int // 0 means forever
}

// ParseAuditRetention accepts "forever" or "days:N" with N > 0.
func ParseAuditRetention(s string) (AuditRetention, error) {
	if s == "forever" {
		return AuditRetention{}, nil
	}
	if after, ok := strings.CutPrefix(s, "days:"); ok {
		n, err := strconv.Atoi(after)
		if err != nil || n <= 0 {
			return AuditRetention{}, fmt.Errorf("invalid audit retention %q: days must be a positive integer", s)
		}
		return AuditRetention{Days: n}, nil
	}
	return AuditRetention{}, fmt.Errorf("unknown audit retention %q", s)
}

// Forever reports whether events are kept indefinitely.
func (r AuditRetention) Forever() bool { return r.Days == 0 }

// Config is the full process configuration.
type Config struct {
	Addr        string
	DatabaseDSN string
	RedisURL    string

	KafkaBrokers    []string
	KafkaAuditTopic string

	JWTSigningKey string

	TenantResolution   TenantResolution
	AuditRetention     AuditRetention
	ReactorConcurrency int
	RecomputeCadence   RecomputeCadence
	// FileStorageURLExpiry bounds the lifetime of signed attachment URLs
	// handed out to form renderers.
	FileStorageURLExpiry time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
// Enumerated options fail hard on unknown values.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:               getenv("WSS_ADDR", ":8080"),
		DatabaseDSN:        os.Getenv("WSS_DATABASE_DSN"),
		RedisURL:           os.Getenv("WSS_REDIS_URL"),
		KafkaAuditTopic:    getenv("WSS_KAFKA_AUDIT_TOPIC", "worksafe.audit"),
		JWTSigningKey:      getenv("WSS_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		ReactorConcurrency: 4,
	}

	if brokers := os.Getenv("WSS_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	var err error
	if cfg.TenantResolution, err = ParseTenantResolution(getenv("WSS_TENANT_RESOLUTION", string(TenantFromAuthRealm))); err != nil {
		return Config{}, err
	}
	if cfg.AuditRetention, err = ParseAuditRetention(getenv("WSS_AUDIT_RETENTION", "forever")); err != nil {
		return Config{}, err
	}
	if cfg.RecomputeCadence, err = ParseRecomputeCadence(getenv("WSS_RECOMPUTE_CADENCE", string(RecomputeOnTrigger))); err != nil {
		return Config{}, err
	}

	if raw := os.Getenv("WSS_REACTOR_CONCURRENCY"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid reactor concurrency %q", raw)
		}
		cfg.ReactorConcurrency = n
	}

	expiryDays := 7
	if raw := os.Getenv("WSS_FILE_URL_EXPIRY_DAYS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid file storage URL expiration %q", raw)
		}
		expiryDays = n
	}
	cfg.FileStorageURLExpiry = time.Duration(expiryDays) * 24 * time.Hour

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
