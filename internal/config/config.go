// Package config loads scheduler configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/muaviaUsmani/restock/internal/logger"
	"github.com/muaviaUsmani/restock/internal/order"
)

// Config holds all configuration for the restock scheduler
type Config struct {
	// RedisURL is the connection URL for the Redis projection store
	RedisURL string
	// StoreEnabled mirrors execution records into Redis when true
	StoreEnabled bool
	// DrainInterval is how often the dispatcher checks for due executions
	DrainInterval time.Duration
	// MaxRetries is the retry budget per execution (fixed at 3 in practice)
	MaxRetries int
	// CapacityOverrides replaces the per-warehouse default concurrency
	// ceilings, e.g. "US:12,JP:8"
	CapacityOverrides map[order.Warehouse]int
	// LeaderLockTTL is the TTL of the daemon's leader-election lock
	LeaderLockTTL time.Duration
	// Logging configuration
	Logging *logger.Config
}

// LoadConfig loads configuration from environment variables with sensible defaults
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379"),
		StoreEnabled:      getEnvAsBool("STORE_ENABLED", true),
		DrainInterval:     getEnvAsDuration("DRAIN_INTERVAL", 1*time.Second),
		MaxRetries:        getEnvAsInt("MAX_RETRIES", order.DefaultMaxRetries),
		CapacityOverrides: parseCapacityOverrides(getEnv("WAREHOUSE_CAPACITY", "")),
		LeaderLockTTL:     getEnvAsDuration("LEADER_LOCK_TTL", 60*time.Second),
		Logging:           loadLoggingConfig(),
	}

	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL cannot be empty")
	}
	if cfg.DrainInterval <= 0 {
		return nil, fmt.Errorf("DRAIN_INTERVAL must be positive")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("MAX_RETRIES cannot be negative")
	}
	for w, ceiling := range cfg.CapacityOverrides {
		if ceiling < 1 {
			return nil, fmt.Errorf("WAREHOUSE_CAPACITY for %s must be at least 1", w)
		}
	}

	if err := cfg.Logging.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}

	return cfg, nil
}

// parseCapacityOverrides parses "US:12,JP:8" style capacity overrides.
// Malformed entries are skipped.
func parseCapacityOverrides(raw string) map[order.Warehouse]int {
	overrides := make(map[order.Warehouse]int)
	if raw == "" {
		return overrides
	}

	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			continue
		}
		ceiling, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		overrides[order.Warehouse(strings.ToUpper(parts[0]))] = ceiling
	}
	return overrides
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration retrieves an environment variable as a duration or returns a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// loadLoggingConfig loads logging configuration from environment variables
func loadLoggingConfig() *logger.Config {
	cfg := logger.DefaultConfig()

	if level := getEnv("LOG_LEVEL", ""); level != "" {
		cfg.Level = logger.LogLevel(level)
	}
	if format := getEnv("LOG_FORMAT", ""); format != "" {
		cfg.Format = logger.LogFormat(format)
	}

	// Tier 1: Console
	cfg.Console.Enabled = getEnvAsBool("LOG_CONSOLE_ENABLED", true)
	cfg.Console.Color = getEnvAsBool("LOG_COLOR", true)
	cfg.Console.BufferSize = getEnvAsInt("LOG_CONSOLE_BUFFER_SIZE", 65536)
	cfg.Console.FlushInterval = getEnvAsDuration("LOG_CONSOLE_FLUSH_INTERVAL", 100*time.Millisecond)

	// Tier 2: File
	cfg.File.Enabled = getEnvAsBool("LOG_FILE_ENABLED", false)
	cfg.File.Path = getEnv("LOG_FILE_PATH", "/var/log/restock/restock.log")
	cfg.File.MaxSizeMB = getEnvAsInt("LOG_FILE_MAX_SIZE_MB", 100)
	cfg.File.MaxBackups = getEnvAsInt("LOG_FILE_MAX_BACKUPS", 5)
	cfg.File.MaxAgeDays = getEnvAsInt("LOG_FILE_MAX_AGE_DAYS", 30)
	cfg.File.Compress = getEnvAsBool("LOG_FILE_COMPRESS", true)
	cfg.File.BufferSize = getEnvAsInt("LOG_FILE_BUFFER_SIZE", 10000)
	cfg.File.BatchSize = getEnvAsInt("LOG_FILE_BATCH_SIZE", 100)
	cfg.File.BatchInterval = getEnvAsDuration("LOG_FILE_BATCH_INTERVAL", 100*time.Millisecond)

	return cfg
}
