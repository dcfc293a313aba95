package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envVars = []string{
	"APP_ENV", "LOG_LEVEL", "LOG_FORMAT", "COUNSEL_USER",
	"DATABASE_URL", "DATABASE_DRIVER", "SQLITE_PATH",
	"REDIS_URL", "SESSION_TTL", "RABBITMQ_URL",
	"OUTBOX_POLL_INTERVAL", "OUTBOX_BATCH_SIZE", "OUTBOX_MAX_RETRIES",
	"OUTBOX_STATS_INTERVAL", "OUTBOX_RETENTION_DAYS", "OUTBOX_CLEANUP_INTERVAL",
	"OUTBOX_PROCESSOR_ENABLED",
	"ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL", "GENERATION_MODEL", "GENERATION_MAX_RETRIES",
	"GENERATION_TIMEOUT", "GENERATION_QUESTION_MAX_TOKENS", "GENERATION_SOLUTION_MAX_TOKENS",
	"GENERATION_ANSWER_MAX_TOKENS", "BREAKER_FAILURE_THRESHOLD", "BREAKER_OPEN_TIMEOUT",
	"START_THROTTLE",
	"SCHEDULER_RUN_AT", "SCHEDULER_RETRY_DELAY", "SCHEDULER_CONCURRENCY", "SCHEDULER_ITEM_TIMEOUT",
	"API_ADDR", "API_AUTH_TOKEN", "WORKER_HEALTH_ADDR", "MCP_ADDR", "MCP_AUTH_TOKEN",
}

// clearEnv unsets every counsel variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range envVars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.NotEmpty(t, cfg.User)

	assert.True(t, cfg.LocalMode())
	assert.Equal(t, "auto", cfg.DatabaseDriver)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)

	assert.Equal(t, 100*time.Millisecond, cfg.OutboxPollInterval)
	assert.Equal(t, 100, cfg.OutboxBatchSize)
	assert.Equal(t, 5, cfg.OutboxMaxRetries)
	assert.Equal(t, 14, cfg.OutboxRetentionDays)
	assert.True(t, cfg.OutboxProcessorEnabled)

	assert.False(t, cfg.HasGeneration())
	assert.Equal(t, "claude-sonnet-4-5", cfg.GenerationModel)
	assert.Equal(t, 3, cfg.GenerationMaxRetries)
	assert.Equal(t, 300, cfg.GenerationQuestionMaxTokens)
	assert.Equal(t, 2500, cfg.GenerationSolutionMaxTokens)
	assert.Equal(t, 1000, cfg.GenerationAnswerMaxTokens)

	assert.Equal(t, 2*time.Second, cfg.StartThrottle)

	assert.Equal(t, "03:00", cfg.SchedulerRunAt)
	assert.Equal(t, time.Hour, cfg.SchedulerRetryDelay)
	assert.Equal(t, 4, cfg.SchedulerConcurrency)

	assert.Equal(t, "127.0.0.1:8080", cfg.APIAddr)
	assert.Empty(t, cfg.APIAuthToken)
	assert.Equal(t, "0.0.0.0:8081", cfg.WorkerHealthAddr)
	assert.Equal(t, "0.0.0.0:8082", cfg.MCPAddr)
}

func TestLoad_WithCustomEnvVars(t *testing.T) {
	clearEnv(t)

	t.Setenv("APP_ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("COUNSEL_USER", "tg-42")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("GENERATION_MAX_RETRIES", "5")
	t.Setenv("START_THROTTLE", "500ms")
	t.Setenv("SCHEDULER_RUN_AT", "04:30")
	t.Setenv("SCHEDULER_CONCURRENCY", "8")
	t.Setenv("OUTBOX_PROCESSOR_ENABLED", "false")
	t.Setenv("API_AUTH_TOKEN", "payments-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.AppEnv)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "tg-42", cfg.User)
	assert.True(t, cfg.HasGeneration())
	assert.Equal(t, 5, cfg.GenerationMaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.StartThrottle)
	assert.Equal(t, "04:30", cfg.SchedulerRunAt)
	assert.Equal(t, 8, cfg.SchedulerConcurrency)
	assert.False(t, cfg.OutboxProcessorEnabled)
	assert.Equal(t, "payments-secret", cfg.APIAuthToken)
}

func TestConfig_LocalMode(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		expected bool
	}{
		{"nothing configured", Config{}, true},
		{"postgres", Config{DatabaseURL: "postgres://u:p@localhost/counsel"}, false},
		{"redis", Config{RedisURL: "redis://localhost:6379/0"}, false},
		{"rabbitmq", Config{RabbitMQURL: "amqp://localhost:5672/"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.cfg.LocalMode())
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	tests := []struct {
		appEnv   string
		expected bool
	}{
		{"development", true},
		{"production", false},
		{"staging", false},
	}

	for _, tt := range tests {
		t.Run(tt.appEnv, func(t *testing.T) {
			cfg := &Config{AppEnv: tt.appEnv}
			assert.Equal(t, tt.expected, cfg.IsDevelopment())
			assert.Equal(t, tt.appEnv == "production", cfg.IsProduction())
		})
	}
}

func TestGetIntEnv(t *testing.T) {
	assert.Equal(t, 42, getIntEnv("COUNSEL_TEST_MISSING_INT", 42))

	t.Setenv("COUNSEL_TEST_INT", "100")
	assert.Equal(t, 100, getIntEnv("COUNSEL_TEST_INT", 42))

	t.Setenv("COUNSEL_TEST_INT", "not-a-number")
	assert.Equal(t, 42, getIntEnv("COUNSEL_TEST_INT", 42))
}

func TestGetDurationEnv(t *testing.T) {
	assert.Equal(t, 5*time.Second, getDurationEnv("COUNSEL_TEST_MISSING_DUR", 5*time.Second))

	t.Setenv("COUNSEL_TEST_DUR", "10m")
	assert.Equal(t, 10*time.Minute, getDurationEnv("COUNSEL_TEST_DUR", 5*time.Second))

	t.Setenv("COUNSEL_TEST_DUR", "soon")
	assert.Equal(t, 5*time.Second, getDurationEnv("COUNSEL_TEST_DUR", 5*time.Second))
}

func TestGetBoolEnv(t *testing.T) {
	assert.True(t, getBoolEnv("COUNSEL_TEST_MISSING_BOOL", true))

	for _, v := range []string{"true", "1", "TRUE"} {
		t.Setenv("COUNSEL_TEST_BOOL", v)
		assert.True(t, getBoolEnv("COUNSEL_TEST_BOOL", false), v)
	}
	for _, v := range []string{"false", "0", "FALSE"} {
		t.Setenv("COUNSEL_TEST_BOOL", v)
		assert.False(t, getBoolEnv("COUNSEL_TEST_BOOL", true), v)
	}

	t.Setenv("COUNSEL_TEST_BOOL", "maybe")
	assert.True(t, getBoolEnv("COUNSEL_TEST_BOOL", true))
}
