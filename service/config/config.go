package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment
// variables. All required fields are validated at startup so the service
// fails fast on misconfiguration.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Horizon configuration
	HorizonURL        string
	NetworkPassphrase string

	// Optional cursor persistence; empty keeps cursors in memory.
	DatabaseURL string

	// Optional outbound event bridge; empty disables it.
	NATSURL string

	// Sync tuning
	HistoryFetchLimit      int
	OperationConcurrency   int
	StreamMaxReconnectWait time.Duration
}

// Load reads configuration from environment variables and validates all
// required fields. Returns an error listing every problem found.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.HorizonURL = os.Getenv("HORIZON_URL")
	if cfg.HorizonURL == "" {
		errs = append(errs, fmt.Errorf("HORIZON_URL is required"))
	}
	cfg.NetworkPassphrase = os.Getenv("NETWORK_PASSPHRASE")
	if cfg.NetworkPassphrase == "" {
		errs = append(errs, fmt.Errorf("NETWORK_PASSPHRASE is required"))
	}

	// Optional integrations
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")

	limit, err := parseInt("HISTORY_FETCH_LIMIT", 20)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.HistoryFetchLimit = limit
	}

	concurrency, err := parseInt("OPERATION_FETCH_CONCURRENCY", 4)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.OperationConcurrency = concurrency
	}

	maxWait, err := parseDuration("STREAM_RECONNECT_MAX_WAIT", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.StreamMaxReconnectWait = maxWait
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid. Useful for
// server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks the configuration without touching the environment.
func (c *Config) Validate() error {
	var errs []error

	if c.HorizonURL == "" {
		errs = append(errs, fmt.Errorf("HorizonURL is required"))
	}
	if c.NetworkPassphrase == "" {
		errs = append(errs, fmt.Errorf("NetworkPassphrase is required"))
	}
	if c.HistoryFetchLimit < 1 || c.HistoryFetchLimit > 200 {
		errs = append(errs, fmt.Errorf("HistoryFetchLimit must be between 1 and 200, got %d", c.HistoryFetchLimit))
	}
	if c.OperationConcurrency < 1 {
		errs = append(errs, fmt.Errorf("OperationConcurrency must be at least 1, got %d", c.OperationConcurrency))
	}
	if c.StreamMaxReconnectWait < time.Second {
		errs = append(errs, fmt.Errorf("StreamMaxReconnectWait must be at least 1 second, got %v", c.StreamMaxReconnectWait))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}
	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
