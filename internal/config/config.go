// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInvalidPort is returned when PORT is outside 1..65535.
	ErrInvalidPort = errors.New("config: PORT must be between 1 and 65535")
	// ErrFFmpegPathRequired is returned when FFMPEG_PATH or FFPROBE_PATH is empty.
	ErrFFmpegPathRequired = errors.New("config: FFMPEG_PATH and FFPROBE_PATH must not be empty")
	// ErrInvalidSessionPolling is returned when session polling is not positive.
	ErrInvalidSessionPolling = errors.New("config: SESSION_POLL_INTERVAL_MS and SESSION_POLL_MAX_ATTEMPTS must be positive")
	// ErrInvalidConcurrency is returned when MAX_CONCURRENT_JOBS is not positive.
	ErrInvalidConcurrency = errors.New("config: MAX_CONCURRENT_JOBS must be positive")
	// ErrS3RegionRequired is returned when S3_BUCKET is set without S3_REGION.
	ErrS3RegionRequired = errors.New("config: S3_REGION is required when S3_BUCKET is set")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port            int   `env:"PORT, default=8080" json:"port"`
	MaxRequestBytes int64 `env:"MAX_REQUEST_BYTES, default=536870912" json:"max_request_bytes"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/mediaops" json:"temp_dir"`

	// ffmpeg settings
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`

	// Session settings
	SessionPollIntervalMs  int `env:"SESSION_POLL_INTERVAL_MS, default=100" json:"session_poll_interval_ms"`
	SessionPollMaxAttempts int `env:"SESSION_POLL_MAX_ATTEMPTS, default=30" json:"session_poll_max_attempts"`
	SessionMaxAgeMin       int `env:"SESSION_MAX_AGE_MIN, default=60" json:"session_max_age_min"`

	// Processing settings
	MaxConcurrentJobs   int `env:"MAX_CONCURRENT_JOBS, default=2" json:"max_concurrent_jobs"`
	OperationTimeoutSec int `env:"OPERATION_TIMEOUT_SEC, default=300" json:"operation_timeout_sec"`

	// Cleanup settings
	JanitorSchedule string `env:"JANITOR_SCHEDULE, default=@every 10m" json:"janitor_schedule"`
	JobRetentionMin int    `env:"JOB_RETENTION_MIN, default=60" json:"job_retention_min"`

	// Comma separated; "*" allows any origin
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS, default=*" json:"cors_allowed_origins"`

	// Optional Redis job store; jobs are kept in memory when unset
	RedisURL       string `env:"REDIS_URL" json:"-"` // May embed a password
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX, default=mediaops" json:"redis_key_prefix"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3KeyPrefix        string `env:"S3_KEY_PREFIX" json:"s3_key_prefix,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// SessionPollInterval returns the session polling interval.
func (c *Config) SessionPollInterval() time.Duration {
	return time.Duration(c.SessionPollIntervalMs) * time.Millisecond
}

// SessionMaxAge returns how old a session file may get before the startup
// sweep removes it.
func (c *Config) SessionMaxAge() time.Duration {
	return time.Duration(c.SessionMaxAgeMin) * time.Minute
}

// JobRetention returns how long finished jobs stay queryable.
func (c *Config) JobRetention() time.Duration {
	return time.Duration(c.JobRetentionMin) * time.Minute
}

// RedisEnabled returns true if a Redis job store is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisURL != ""
}

// OperationTimeout returns the time budget of one operation.
func (c *Config) OperationTimeout() time.Duration {
	return time.Duration(c.OperationTimeoutSec) * time.Second
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if strings.TrimSpace(c.FFmpegPath) == "" || strings.TrimSpace(c.FFprobePath) == "" {
		return ErrFFmpegPathRequired
	}
	if c.SessionPollIntervalMs <= 0 || c.SessionPollMaxAttempts <= 0 {
		return ErrInvalidSessionPolling
	}
	if c.MaxConcurrentJobs <= 0 {
		return ErrInvalidConcurrency
	}
	if c.S3Bucket != "" && c.S3Region == "" {
		return ErrS3RegionRequired
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, FFmpegPath: %s, FFprobePath: %s, MaxConcurrentJobs: %d, OperationTimeoutSec: %d, JanitorSchedule: %s, JobRetentionMin: %d, RedisURL: %s, S3Bucket: %s, S3Region: %s, S3Endpoint: %s, AWSAccessKeyID: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.FFmpegPath,
		c.FFprobePath,
		c.MaxConcurrentJobs,
		c.OperationTimeoutSec,
		c.JanitorSchedule,
		c.JobRetentionMin,
		mask(c.RedisURL),
		c.S3Bucket,
		c.S3Region,
		c.S3Endpoint,
		mask(c.AWSAccessKeyID),
		c.LogFormat,
		c.LogLevel,
	)
}

// mask hides a secret, keeping only whether it is set.
func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
