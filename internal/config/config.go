// Package config provides configuration management for the ducomon dashboard.
// Values come from environment variables, optionally seeded from a .env file,
// with defaults that reproduce the behaviour of a bare `ducomon` invocation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the global configuration for the dashboard
type Config struct {
	// Service identification
	ServiceName string
	Version     string

	// Pool API
	APIURL      string
	Username    string
	HTTPTimeout time.Duration

	// Loop timing
	PollInterval  time.Duration
	RetryInterval time.Duration

	// Presentation
	CurrencyGlyph string

	// Optional snapshot exporters; an empty address disables the sink
	KafkaBrokers  []string
	KafkaTopic    string
	RedisURL      string
	SnapshotTTL   time.Duration
	InfluxURL     string
	InfluxToken   string
	InfluxOrg     string
	InfluxBucket  string
	ExportTimeout time.Duration

	// Logging. An empty LogLevel means warn when LogFile is set and no
	// logging at all otherwise.
	LogLevel  string
	LogFormat string
	LogFile   string
}

// Load loads configuration from environment variables with sensible defaults.
// A .env file in the working directory is applied first when present; it
// never overrides variables that are already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "ducomon"),
		Version:     getEnv("VERSION", "dev"),

		APIURL:      getEnv("DUCO_API_URL", "https://server.duinocoin.com"),
		Username:    strings.TrimSpace(os.Getenv("DUCO_USERNAME")),
		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 0),

		PollInterval:  getEnvDuration("POLL_INTERVAL", 15*time.Second),
		RetryInterval: getEnvDuration("RETRY_INTERVAL", 10*time.Second),

		CurrencyGlyph: getEnv("CURRENCY_GLYPH", "ᕲ"),

		KafkaBrokers:  getEnvSlice("KAFKA_BROKERS", nil),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "duco.account_snapshots"),
		RedisURL:      getEnv("REDIS_URL", ""),
		SnapshotTTL:   getEnvDuration("SNAPSHOT_TTL", 5*time.Minute),
		InfluxURL:     getEnv("INFLUX_URL", ""),
		InfluxToken:   getEnv("INFLUX_TOKEN", ""),
		InfluxOrg:     getEnv("INFLUX_ORG", "ducomon"),
		InfluxBucket:  getEnv("INFLUX_BUCKET", "duco"),
		ExportTimeout: getEnvDuration("EXPORT_TIMEOUT", 5*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", ""),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		LogFile:   getEnv("LOG_FILE", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// KafkaEnabled reports whether snapshots are published to Kafka
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// RedisEnabled reports whether snapshots are cached in Redis
func (c *Config) RedisEnabled() bool {
	return c.RedisURL != ""
}

// InfluxEnabled reports whether metrics are written to InfluxDB
func (c *Config) InfluxEnabled() bool {
	return c.InfluxURL != ""
}

// validate performs basic validation of configuration values
func (c *Config) validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("SERVICE_NAME cannot be empty")
	}

	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("DUCO_API_URL must be an absolute http(s) URL")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}

	if c.RetryInterval <= 0 {
		return fmt.Errorf("RETRY_INTERVAL must be positive")
	}

	if c.HTTPTimeout < 0 {
		return fmt.Errorf("HTTP_TIMEOUT cannot be negative")
	}

	if c.CurrencyGlyph == "" {
		return fmt.Errorf("CURRENCY_GLYPH cannot be empty")
	}

	if c.KafkaEnabled() && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC cannot be empty when KAFKA_BROKERS is set")
	}

	if c.InfluxEnabled() && (c.InfluxOrg == "" || c.InfluxBucket == "") {
		return fmt.Errorf("INFLUX_ORG and INFLUX_BUCKET are required when INFLUX_URL is set")
	}

	if c.ExportTimeout <= 0 {
		return fmt.Errorf("EXPORT_TIMEOUT must be positive")
	}

	return nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
