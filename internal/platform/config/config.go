package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Flowd captures configuration for the flow session service.
type Flowd struct {
	Addr                string
	UpstreamBaseURL     string
	HandoffPollInterval time.Duration
	SessionIdleTTL      time.Duration
	Kafka               KafkaConfig
	// AuditPostgresURL enables the durable audit trail. Kafka and postgres
	// can be combined; with neither, events land in the in-memory store.
	AuditPostgresURL string
}

// Sandboxd captures configuration for the sandbox upstream identity API.
type Sandboxd struct {
	Addr            string
	JWTSigningKey   string
	ChallengeTTL    time.Duration
	TimeBeforeRetry time.Duration
	Redis           RedisConfig
	PostgresURL     string
}

// KafkaConfig configures the flow event publisher. Empty Brokers means the
// publisher is disabled and events stay in the in-memory store.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// RedisConfig configures the optional redis-backed stores. Empty URL means
// memory stores are used.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FlowdFromEnv builds flowd config from environment variables so main stays
// lean.
func FlowdFromEnv() Flowd {
	cfg := Flowd{
		Addr:                envOr("FLOWD_ADDR", ":8080"),
		UpstreamBaseURL:     envOr("FLOWD_UPSTREAM_URL", "http://localhost:8081"),
		HandoffPollInterval: envDurationOr("FLOWD_HANDOFF_POLL_INTERVAL", 1500*time.Millisecond),
		SessionIdleTTL:      envDurationOr("FLOWD_SESSION_IDLE_TTL", 30*time.Minute),
		AuditPostgresURL:    os.Getenv("FLOWD_AUDIT_POSTGRES_URL"),
	}
	if brokers := os.Getenv("FLOWD_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka = KafkaConfig{
			Brokers: splitComma(brokers),
			Topic:   envOr("FLOWD_KAFKA_TOPIC", "veriflow.flow-events"),
		}
	}
	return cfg
}

// SandboxdFromEnv builds sandboxd config from environment variables.
func SandboxdFromEnv() Sandboxd {
	return Sandboxd{
		Addr:            envOr("SANDBOXD_ADDR", ":8081"),
		JWTSigningKey:   envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		ChallengeTTL:    envDurationOr("SANDBOXD_CHALLENGE_TTL", 10*time.Minute),
		TimeBeforeRetry: envDurationOr("SANDBOXD_TIME_BEFORE_RETRY", 30*time.Second),
		Redis:           redisFromEnv(),
		PostgresURL:     os.Getenv("SANDBOXD_POSTGRES_URL"),
	}
}

func redisFromEnv() RedisConfig {
	return RedisConfig{
		URL:          os.Getenv("SANDBOXD_REDIS_URL"),
		PoolSize:     envIntOr("SANDBOXD_REDIS_POOL_SIZE", 10),
		MinIdleConns: envIntOr("SANDBOXD_REDIS_MIN_IDLE", 2),
		DialTimeout:  envDurationOr("SANDBOXD_REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  envDurationOr("SANDBOXD_REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: envDurationOr("SANDBOXD_REDIS_WRITE_TIMEOUT", 3*time.Second),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitComma(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
