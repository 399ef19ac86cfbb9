// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Webhooks  WebhookConfig
	Reporting ReportingConfig
	LogLevel  string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds the optional sharing access cache configuration
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// WebhookConfig holds webhook delivery configuration
type WebhookConfig struct {
	Timeout       time.Duration
	MaxRetries    int
	RetryInterval time.Duration
	SweepSchedule string
}

// ReportingConfig holds report definition configuration
type ReportingConfig struct {
	DefinitionsDir string
	HotReload      bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("HEARTH_HOST", "0.0.0.0"),
			Port:            getEnv("HEARTH_PORT", "8080"),
			ReadTimeout:     getEnvDuration("HEARTH_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("HEARTH_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("HEARTH_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("HEARTH_SHUTDOWN_TIMEOUT", 30*time.Second),
			MaxBodyBytes:    getEnvInt64("HEARTH_MAX_BODY_BYTES", 1<<20),
			HealthPort:      getEnv("HEARTH_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:             getEnv("HEARTH_POSTGRES_URL", "postgres://localhost:5432/hearth?sslmode=disable"),
			MaxOpenConns:    getEnvInt("HEARTH_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns:    getEnvInt("HEARTH_POSTGRES_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("HEARTH_POSTGRES_CONN_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("HEARTH_REDIS_ENABLED", false),
			Addr:     getEnv("HEARTH_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("HEARTH_REDIS_PASSWORD", ""),
			DB:       getEnvInt("HEARTH_REDIS_DB", 0),
			CacheTTL: getEnvDuration("HEARTH_REDIS_CACHE_TTL", 60*time.Second),
		},
		Webhooks: WebhookConfig{
			Timeout:       getEnvDuration("HEARTH_WEBHOOK_TIMEOUT", 10*time.Second),
			MaxRetries:    getEnvInt("HEARTH_WEBHOOK_MAX_RETRIES", 3),
			RetryInterval: getEnvDuration("HEARTH_WEBHOOK_RETRY_INTERVAL", 30*time.Second),
			SweepSchedule: getEnv("HEARTH_WEBHOOK_SWEEP_SCHEDULE", "*/1 * * * *"),
		},
		Reporting: ReportingConfig{
			DefinitionsDir: getEnv("HEARTH_REPORT_DEFINITIONS_DIR", ""),
			HotReload:      getEnvBool("HEARTH_REPORT_HOT_RELOAD", true),
		},
		LogLevel: getEnv("HEARTH_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required when redis is enabled")
	}
	if c.Webhooks.MaxRetries < 0 {
		return fmt.Errorf("webhook max retries must not be negative")
	}
	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
