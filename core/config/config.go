package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"basegraph.app/boardroom/core/db"
)

type Config struct {
	OTel         OTelConfig
	Pipeline     PipelineConfig
	AgentLLM     LLMConfig
	Orchestrator OrchestratorConfig
	Archive      ArchiveConfig
	Env          string
	Port         string
	NodeID       int64
	DB           db.Config
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
	SampleRatio    float64
}

// PipelineConfig configures the Redis stream that hands terminal discussions
// to the archive worker, and the snapshot cache that shares discussion state
// between server replicas.
type PipelineConfig struct {
	RedisURL       string
	RedisStream    string
	RedisGroup     string
	RedisDLQStream string
	RedisConsumer  string
	SnapshotTTL    time.Duration
}

type LLMConfig struct {
	Provider    string
	APIKey      string
	BaseURL     string // Optional: for OpenAI-compatible endpoints
	Model       string
	MaxTokens   int
	Temperature float64
}

type OrchestratorConfig struct {
	// CallTimeoutFloor is the minimum per-agent call timeout.
	CallTimeoutFloor time.Duration
	// CallTimeoutOverride, when non-zero, replaces the computed per-call timeout.
	CallTimeoutOverride time.Duration
	// RoundMaxParallel caps concurrent agent calls within a round. Zero means
	// every scheduled agent runs at once.
	RoundMaxParallel int
	// Retention is how long a terminal discussion stays in memory.
	Retention time.Duration
	// SweepInterval is how often terminal discussions are evicted.
	SweepInterval time.Duration
	// BriefingPath points to an optional YAML briefing book handed to agents.
	BriefingPath string
}

// ArchiveConfig selects the embedded SQLite archive used when no Postgres
// DSN is configured.
type ArchiveConfig struct {
	SQLitePath string
}

type ServiceType string

const (
	ServiceTypeServer ServiceType = "server"
	ServiceTypeWorker ServiceType = "worker"
)

// Load loads configuration from environment variables.
// In development, it loads from service-specific .env files:
//   - .env.server for the API server
//   - .env.worker for the archive worker
//
// Falls back to .env if service-specific file doesn't exist.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("BOARDROOM_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	cfg := Config{
		Env:    getEnv("BOARDROOM_ENV", "development"),
		Port:   getEnv("PORT", "8080"),
		NodeID: int64(getEnvInt("NODE_ID", 1)),
		DB: db.Config{
			DSN:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvInt32("DB_MAX_CONNS", 10),
			MinConns: getEnvInt32("DB_MIN_CONNS", 2),
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "boardroom-"+string(serviceType)),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			SampleRatio:    getEnvFloat("OTEL_TRACES_SAMPLE_RATIO", 1.0),
		},
		Pipeline: PipelineConfig{
			RedisURL:       getEnv("REDIS_URL", ""),
			RedisStream:    getEnv("REDIS_STREAM", "boardroom_archive"),
			RedisGroup:     getEnv("REDIS_CONSUMER_GROUP", "boardroom_archivers"),
			RedisDLQStream: getEnv("REDIS_DLQ_STREAM", "boardroom_archive_dlq"),
			RedisConsumer:  getEnv("REDIS_CONSUMER_NAME", hostnameOr("archiver")),
			SnapshotTTL:    getEnvDuration("SNAPSHOT_TTL", 24*time.Hour),
		},
		AgentLLM: LLMConfig{
			Provider:    getEnv("AGENT_LLM_PROVIDER", "openai"),
			APIKey:      getEnv("AGENT_LLM_API_KEY", ""),
			BaseURL:     getEnv("AGENT_LLM_BASE_URL", ""),
			Model:       getEnv("AGENT_LLM_MODEL", "gpt-4o-mini"),
			MaxTokens:   getEnvInt("AGENT_LLM_MAX_TOKENS", 1000),
			Temperature: getEnvFloat("AGENT_LLM_TEMPERATURE", 0.7),
		},
		Orchestrator: OrchestratorConfig{
			CallTimeoutFloor:    getEnvDuration("AGENT_CALL_TIMEOUT_FLOOR", 10*time.Second),
			CallTimeoutOverride: getEnvDuration("AGENT_CALL_TIMEOUT", 0),
			RoundMaxParallel:    getEnvInt("ROUND_MAX_PARALLEL", 0),
			Retention:           getEnvDuration("DISCUSSION_RETENTION", time.Hour),
			SweepInterval:       getEnvDuration("DISCUSSION_SWEEP_INTERVAL", time.Minute),
			BriefingPath:        getEnv("BRIEFING_BOOK_PATH", ""),
		},
		Archive: ArchiveConfig{
			SQLitePath: getEnv("ARCHIVE_SQLITE_PATH", ""),
		},
	}

	if cfg.Orchestrator.CallTimeoutFloor <= 0 {
		return Config{}, fmt.Errorf("AGENT_CALL_TIMEOUT_FLOOR must be positive")
	}
	if cfg.Orchestrator.CallTimeoutOverride < 0 {
		return Config{}, fmt.Errorf("AGENT_CALL_TIMEOUT must not be negative")
	}
	if cfg.Orchestrator.RoundMaxParallel < 0 {
		return Config{}, fmt.Errorf("ROUND_MAX_PARALLEL must not be negative")
	}
	if cfg.Orchestrator.Retention <= 0 || cfg.Orchestrator.SweepInterval <= 0 {
		return Config{}, fmt.Errorf("DISCUSSION_RETENTION and DISCUSSION_SWEEP_INTERVAL must be positive")
	}
	if cfg.OTel.SampleRatio < 0 || cfg.OTel.SampleRatio > 1 {
		return Config{}, fmt.Errorf("OTEL_TRACES_SAMPLE_RATIO must be in [0, 1]")
	}

	if serviceType == ServiceTypeWorker && !cfg.Pipeline.Enabled() {
		return Config{}, fmt.Errorf("REDIS_URL is required for the worker")
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c PipelineConfig) Enabled() bool {
	return c.RedisURL != ""
}

func (c LLMConfig) Enabled() bool {
	return c.APIKey != "" && c.Provider == "openai"
}

func (c ArchiveConfig) Enabled() bool {
	return c.SQLitePath != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt32(key string, fallback int32) int32 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(i)
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func hostnameOr(fallback string) string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return fallback
}
