package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 3, cfg.Webhooks.MaxRetries)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("HEARTH_PORT", "8181")
	t.Setenv("HEARTH_POSTGRES_MAX_CONNS", "50")
	t.Setenv("HEARTH_REDIS_ENABLED", "true")
	t.Setenv("HEARTH_REDIS_ADDR", "redis:6379")
	t.Setenv("HEARTH_WEBHOOK_TIMEOUT", "5s")
	t.Setenv("HEARTH_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8181", cfg.Server.Port)
	assert.Equal(t, 50, cfg.Database.MaxOpenConns)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 5*time.Second, cfg.Webhooks.Timeout)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidateRejectsEqualPorts(t *testing.T) {
	t.Setenv("HEARTH_PORT", "9090")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be different")
}

func TestValidateRejectsRedisWithoutAddr(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Port: "8080", HealthPort: "9090"},
		Database: DatabaseConfig{URL: "postgres://localhost/hearth"},
		Redis:    RedisConfig{Enabled: true},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis address")
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("HEARTH_TEST_BOOL", "1")
	t.Setenv("HEARTH_TEST_INT", "not-a-number")
	t.Setenv("HEARTH_TEST_DUR", "90s")

	assert.True(t, getEnvBool("HEARTH_TEST_BOOL", false))
	assert.Equal(t, 7, getEnvInt("HEARTH_TEST_INT", 7))
	assert.Equal(t, 90*time.Second, getEnvDuration("HEARTH_TEST_DUR", time.Minute))
	assert.Equal(t, "fallback", getEnv("HEARTH_TEST_MISSING", "fallback"))
}
