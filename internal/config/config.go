package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mmmstudio/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	StatsAPI  StatsAPIConfig  `yaml:"stats_api"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Sweep     SweepConfig     `yaml:"sweep"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// StatsAPIConfig points at the remote statistics service
type StatsAPIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	// LongTimeout applies to calls that declare an extended deadline (decomposition).
	LongTimeout time.Duration `yaml:"long_timeout"`
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string `yaml:"port"`
	GinMode string `yaml:"gin_mode"`
}

// DatabaseConfig holds the transaction journal connection. An empty URL disables the journal.
type DatabaseConfig struct {
	URL    string `yaml:"url"`
	Driver string `yaml:"driver"`
}

// Enabled reports whether a journal database is configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// LoggingConfig holds log settings
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SweepConfig holds adstock sweep defaults
type SweepConfig struct {
	// Rates are whole percentages tried when a request names none.
	Rates []int `yaml:"rates"`
	// MaxConcurrency bounds in-flight significance tests; 0 means unbounded.
	MaxConcurrency int `yaml:"max_concurrency"`
}

// SchedulerConfig holds background job settings
type SchedulerConfig struct {
	CatalogRefresh string `yaml:"catalog_refresh"`
}

// Driver names accepted by DATABASE_DRIVER
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		StatsAPI: StatsAPIConfig{
			BaseURL:     "http://localhost:5000",
			Timeout:     30 * time.Second,
			LongTimeout: 60 * time.Second,
		},
		Server: ServerConfig{
			Port:    "8080",
			GinMode: "debug",
		},
		Database: DatabaseConfig{
			Driver: DriverPostgres,
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
		Sweep: SweepConfig{
			Rates: []int{0, 10, 20, 30, 40, 50, 60, 70, 80, 90},
		},
		Scheduler: SchedulerConfig{
			CatalogRefresh: "@every 5m",
		},
	}
}

// Load builds the configuration from defaults, the optional CONFIG_FILE
// YAML overlay and then environment variables, in that order.
func Load() (*Config, error) {
	config := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, config); err != nil {
			return nil, errors.Wrap(err, "failed to load configuration file")
		}
	}

	if err := applyEnv(config); err != nil {
		return nil, errors.Wrap(err, "failed to read environment")
	}

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadFile(path string, config *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.ConfigInvalid(fmt.Sprintf("cannot read %s: %v", path, err))
	}
	if err := yaml.Unmarshal(raw, config); err != nil {
		return errors.ConfigInvalid(fmt.Sprintf("cannot parse %s: %v", path, err))
	}
	return nil
}

func applyEnv(config *Config) error {
	config.StatsAPI.BaseURL = getEnvOrDefault("STATS_API_URL", config.StatsAPI.BaseURL)
	config.StatsAPI.Timeout = getEnvDurationOrDefault("STATS_API_TIMEOUT", config.StatsAPI.Timeout)
	config.StatsAPI.LongTimeout = getEnvDurationOrDefault("STATS_API_LONG_TIMEOUT", config.StatsAPI.LongTimeout)

	config.Server.Port = getEnvOrDefault("PORT", config.Server.Port)
	config.Server.GinMode = getEnvOrDefault("GIN_MODE", config.Server.GinMode)

	config.Database.URL = getEnvOrDefault("DATABASE_URL", config.Database.URL)
	config.Database.Driver = getEnvOrDefault("DATABASE_DRIVER", config.Database.Driver)

	config.Logging.Level = getEnvOrDefault("LOG_LEVEL", config.Logging.Level)

	if value := os.Getenv("SWEEP_RATES"); value != "" {
		rates, err := ParseRates(value)
		if err != nil {
			return err
		}
		config.Sweep.Rates = rates
	}
	config.Sweep.MaxConcurrency = getEnvIntOrDefault("SWEEP_MAX_CONCURRENCY", config.Sweep.MaxConcurrency)

	config.Scheduler.CatalogRefresh = getEnvOrDefault("CATALOG_REFRESH_CRON", config.Scheduler.CatalogRefresh)
	return nil
}

// ParseRates parses a comma-separated list of whole percentages
func ParseRates(value string) ([]int, error) {
	parts := strings.Split(value, ",")
	rates := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pct, err := strconv.Atoi(part)
		if err != nil {
			return nil, errors.ConfigInvalid(fmt.Sprintf("SWEEP_RATES: %q is not an integer", part))
		}
		rates = append(rates, pct)
	}
	return rates, nil
}

// Validate checks required fields and ranges
func (c *Config) Validate() error {
	u, err := url.Parse(c.StatsAPI.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.ConfigInvalid(fmt.Sprintf("STATS_API_URL %q is not an absolute URL", c.StatsAPI.BaseURL))
	}
	if c.StatsAPI.Timeout <= 0 || c.StatsAPI.LongTimeout <= 0 {
		return errors.ConfigInvalid("statistics service timeouts must be positive")
	}
	if c.Server.Port == "" {
		return errors.ConfigInvalid("PORT is required")
	}
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return errors.ConfigInvalid(fmt.Sprintf("unsupported DATABASE_DRIVER %q", c.Database.Driver))
	}
	if len(c.Sweep.Rates) == 0 {
		return errors.ConfigInvalid("at least one sweep rate is required")
	}
	for _, pct := range c.Sweep.Rates {
		if pct < 0 || pct > 100 {
			return errors.ConfigInvalid(fmt.Sprintf("sweep rate %d%% is outside 0-100", pct))
		}
	}
	if c.Sweep.MaxConcurrency < 0 {
		return errors.ConfigInvalid("SWEEP_MAX_CONCURRENCY must not be negative")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
