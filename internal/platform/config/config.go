// Package config builds runtime configuration from the environment so
// main stays lean. Defaults suit local development; production
// deployments override via environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full service configuration.
type Config struct {
	Server Server
	Rules  Rules
	Redis  RedisConfig
	Bank   Bank
	Audit  Audit
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr     string
	LogLevel string
}

// Rules locates the rule definition files.
type Rules struct {
	Dir string
}

// RedisConfig holds connection settings for the idempotency store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ClaimTTL     time.Duration
}

// Bank configures the provider API client.
type Bank struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Audit configures the audit sinks. Empty values disable a sink.
type Audit struct {
	PostgresDSN  string
	KafkaBrokers []string
	KafkaTopic   string
	BufferSize   int
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:     envOr("PAYHOOK_ADDR", ":8080"),
			LogLevel: envOr("LOG_LEVEL", "info"),
		},
		Rules: Rules{
			Dir: envOr("PAYHOOK_RULES_DIR", "rules"),
		},
		Redis: RedisConfig{
			URL:          envOr("PAYHOOK_REDIS_URL", ""),
			PoolSize:     envInt("PAYHOOK_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("PAYHOOK_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("PAYHOOK_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("PAYHOOK_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("PAYHOOK_REDIS_WRITE_TIMEOUT", 3*time.Second),
			ClaimTTL:     envDuration("PAYHOOK_CLAIM_TTL", 0),
		},
		Bank: Bank{
			BaseURL: envOr("PAYHOOK_BANK_URL", "http://localhost:9090"),
			APIKey:  envOr("PAYHOOK_BANK_API_KEY", ""),
			Timeout: envDuration("PAYHOOK_BANK_TIMEOUT", 15*time.Second),
		},
		Audit: Audit{
			PostgresDSN:  envOr("PAYHOOK_AUDIT_POSTGRES_DSN", ""),
			KafkaBrokers: envList("PAYHOOK_AUDIT_KAFKA_BROKERS"),
			KafkaTopic:   envOr("PAYHOOK_AUDIT_KAFKA_TOPIC", "payhook.audit"),
			BufferSize:   envInt("PAYHOOK_AUDIT_BUFFER", 1024),
		},
	}
}

func envOr(key, fallback string) string {
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
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
