package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv    string
	LogLevel  string
	LogFormat string
	// User is the external id used by the terminal chat transport.
	User string

	// Database
	DatabaseURL    string
	DatabaseDriver string
	SQLitePath     string

	// Redis session store
	RedisURL   string
	SessionTTL time.Duration

	// RabbitMQ
	RabbitMQURL string

	// Outbox
	OutboxPollInterval     time.Duration
	OutboxBatchSize        int
	OutboxMaxRetries       int
	OutboxStatsInterval    time.Duration
	OutboxRetentionDays    int
	OutboxCleanupInterval  time.Duration
	OutboxProcessorEnabled bool

	// Generation
	AnthropicAPIKey             string
	AnthropicBaseURL            string
	GenerationModel             string
	GenerationMaxRetries        int
	GenerationTimeout           time.Duration
	GenerationQuestionMaxTokens int
	GenerationSolutionMaxTokens int
	GenerationAnswerMaxTokens   int
	BreakerFailureThreshold     int
	BreakerOpenTimeout          time.Duration

	// Conversation
	StartThrottle time.Duration

	// Scheduler
	SchedulerRunAt       string
	SchedulerRetryDelay  time.Duration
	SchedulerConcurrency int
	SchedulerItemTimeout time.Duration

	// Servers
	APIAddr          string
	APIAuthToken     string
	WorkerHealthAddr string
	MCPAddr          string
	MCPAuthToken     string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", ""),
		User:      getEnv("COUNSEL_USER", defaultUser()),

		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DatabaseDriver: getEnv("DATABASE_DRIVER", "auto"),
		SQLitePath:     getEnv("SQLITE_PATH", ""),

		RedisURL:   getEnv("REDIS_URL", ""),
		SessionTTL: getDurationEnv("SESSION_TTL", 24*time.Hour),

		RabbitMQURL: getEnv("RABBITMQ_URL", ""),

		OutboxPollInterval:     getDurationEnv("OUTBOX_POLL_INTERVAL", 100*time.Millisecond),
		OutboxBatchSize:        getIntEnv("OUTBOX_BATCH_SIZE", 100),
		OutboxMaxRetries:       getIntEnv("OUTBOX_MAX_RETRIES", 5),
		OutboxStatsInterval:    getDurationEnv("OUTBOX_STATS_INTERVAL", 30*time.Second),
		OutboxRetentionDays:    getIntEnv("OUTBOX_RETENTION_DAYS", 14),
		OutboxCleanupInterval:  getDurationEnv("OUTBOX_CLEANUP_INTERVAL", 24*time.Hour),
		OutboxProcessorEnabled: getBoolEnv("OUTBOX_PROCESSOR_ENABLED", true),

		AnthropicAPIKey:             getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicBaseURL:            getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com/v1/messages"),
		GenerationModel:             getEnv("GENERATION_MODEL", "claude-sonnet-4-5"),
		GenerationMaxRetries:        getIntEnv("GENERATION_MAX_RETRIES", 3),
		GenerationTimeout:           getDurationEnv("GENERATION_TIMEOUT", 60*time.Second),
		GenerationQuestionMaxTokens: getIntEnv("GENERATION_QUESTION_MAX_TOKENS", 300),
		GenerationSolutionMaxTokens: getIntEnv("GENERATION_SOLUTION_MAX_TOKENS", 2500),
		GenerationAnswerMaxTokens:   getIntEnv("GENERATION_ANSWER_MAX_TOKENS", 1000),
		BreakerFailureThreshold:     getIntEnv("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerOpenTimeout:          getDurationEnv("BREAKER_OPEN_TIMEOUT", 30*time.Second),

		StartThrottle: getDurationEnv("START_THROTTLE", 2*time.Second),

		SchedulerRunAt:       getEnv("SCHEDULER_RUN_AT", "03:00"),
		SchedulerRetryDelay:  getDurationEnv("SCHEDULER_RETRY_DELAY", time.Hour),
		SchedulerConcurrency: getIntEnv("SCHEDULER_CONCURRENCY", 4),
		SchedulerItemTimeout: getDurationEnv("SCHEDULER_ITEM_TIMEOUT", 30*time.Second),

		APIAddr:          getEnv("API_ADDR", "127.0.0.1:8080"),
		APIAuthToken:     getEnv("API_AUTH_TOKEN", ""),
		WorkerHealthAddr: getEnv("WORKER_HEALTH_ADDR", "0.0.0.0:8081"),
		MCPAddr:          getEnv("MCP_ADDR", "0.0.0.0:8082"),
		MCPAuthToken:     getEnv("MCP_AUTH_TOKEN", ""),
	}

	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
		if cfg.IsProduction() {
			cfg.LogFormat = "json"
		}
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// LocalMode reports whether the process runs without external services:
// SQLite storage, in-memory sessions and the in-process event bus.
func (c *Config) LocalMode() bool {
	return c.DatabaseURL == "" && c.RedisURL == "" && c.RabbitMQURL == ""
}

// HasGeneration reports whether an Anthropic API key is configured.
func (c *Config) HasGeneration() bool {
	return c.AnthropicAPIKey != ""
}

func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return "local:" + u
	}
	return "local:user"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
