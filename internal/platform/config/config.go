package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// StateBackend selects the persistent store implementation.
type StateBackend string

const (
	StateMemory   StateBackend = "memory"
	StateRedis    StateBackend = "redis"
	StatePostgres StateBackend = "postgres"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	LogLevel      string
	StateBackend  StateBackend
	PostgresDSN   string
	Redis         RedisConfig
	Kafka         KafkaConfig
	JWTSigningKey string
}

// RedisConfig holds connection settings for the Redis-backed store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds event fan-out settings. Empty brokers disables Kafka.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Buffer  int
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:         envOr("SLOTGATE_ADDR", ":8080"),
		LogLevel:     envOr("SLOTGATE_LOG_LEVEL", "info"),
		StateBackend: StateBackend(envOr("SLOTGATE_STATE_BACKEND", string(StateMemory))),
		PostgresDSN:  os.Getenv("SLOTGATE_POSTGRES_DSN"),
		Redis: RedisConfig{
			URL:          os.Getenv("SLOTGATE_REDIS_URL"),
			PoolSize:     envIntOr("SLOTGATE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("SLOTGATE_REDIS_MIN_IDLE", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Topic:  envOr("SLOTGATE_KAFKA_TOPIC", "slotgate.notifications"),
			Buffer: envIntOr("SLOTGATE_KAFKA_BUFFER", 256),
		},
		// Default for development only; override in any real deployment.
		JWTSigningKey: envOr("SLOTGATE_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
	}
	if brokers := os.Getenv("SLOTGATE_KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, b)
			}
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
