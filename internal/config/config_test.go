package config

import (
	"bytes"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envVars = []string{
	"PORT", "MAX_REQUEST_BYTES", "TEMP_DIR", "FFMPEG_PATH", "FFPROBE_PATH",
	"SESSION_POLL_INTERVAL_MS", "SESSION_POLL_MAX_ATTEMPTS", "SESSION_MAX_AGE_MIN",
	"MAX_CONCURRENT_JOBS", "OPERATION_TIMEOUT_SEC", "JANITOR_SCHEDULE", "JOB_RETENTION_MIN",
	"CORS_ALLOWED_ORIGINS",
	"REDIS_URL", "REDIS_KEY_PREFIX",
	"S3_BUCKET", "S3_REGION", "S3_ENDPOINT", "S3_KEY_PREFIX", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY",
	"LOG_FORMAT", "LOG_LEVEL",
}

// clearEnv unsets every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range envVars {
		if v, ok := os.LookupEnv(name); ok {
			t.Setenv(name, v)
			os.Unsetenv(name)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, int64(512<<20), cfg.MaxRequestBytes)
	assert.Equal(t, "/tmp/mediaops", cfg.TempDir)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "ffprobe", cfg.FFprobePath)
	assert.Equal(t, 100*time.Millisecond, cfg.SessionPollInterval())
	assert.Equal(t, 30, cfg.SessionPollMaxAttempts)
	assert.Equal(t, time.Hour, cfg.SessionMaxAge())
	assert.Equal(t, 2, cfg.MaxConcurrentJobs)
	assert.Equal(t, 5*time.Minute, cfg.OperationTimeout())
	assert.Equal(t, "@every 10m", cfg.JanitorSchedule)
	assert.Equal(t, time.Hour, cfg.JobRetention())
	assert.False(t, cfg.RedisEnabled())
	assert.Equal(t, "mediaops", cfg.RedisKeyPrefix)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.S3Enabled())
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "3000")
	t.Setenv("TEMP_DIR", "/custom/temp")
	t.Setenv("FFMPEG_PATH", "/opt/ffmpeg/bin/ffmpeg")
	t.Setenv("FFPROBE_PATH", "/opt/ffmpeg/bin/ffprobe")
	t.Setenv("SESSION_POLL_INTERVAL_MS", "250")
	t.Setenv("SESSION_POLL_MAX_ATTEMPTS", "8")
	t.Setenv("MAX_CONCURRENT_JOBS", "4")
	t.Setenv("OPERATION_TIMEOUT_SEC", "60")
	t.Setenv("JANITOR_SCHEDULE", "*/5 * * * *")
	t.Setenv("JOB_RETENTION_MIN", "15")
	t.Setenv("REDIS_URL", "redis://:pw@localhost:6379/2")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("S3_BUCKET", "my-bucket")
	t.Setenv("S3_REGION", "us-east-1")
	t.Setenv("S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("S3_KEY_PREFIX", "staging")
	t.Setenv("AWS_ACCESS_KEY_ID", "access-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret-key")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "/custom/temp", cfg.TempDir)
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "/opt/ffmpeg/bin/ffprobe", cfg.FFprobePath)
	assert.Equal(t, 250*time.Millisecond, cfg.SessionPollInterval())
	assert.Equal(t, 8, cfg.SessionPollMaxAttempts)
	assert.Equal(t, 4, cfg.MaxConcurrentJobs)
	assert.Equal(t, time.Minute, cfg.OperationTimeout())
	assert.Equal(t, "*/5 * * * *", cfg.JanitorSchedule)
	assert.Equal(t, 15*time.Minute, cfg.JobRetention())
	assert.True(t, cfg.RedisEnabled())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "my-bucket", cfg.S3Bucket)
	assert.Equal(t, "us-east-1", cfg.S3Region)
	assert.Equal(t, "http://localhost:9000", cfg.S3Endpoint)
	assert.Equal(t, "staging", cfg.S3KeyPrefix)
	assert.Equal(t, "access-key", cfg.AWSAccessKeyID)
	assert.Equal(t, "secret-key", cfg.AWSSecretAccessKey)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.S3Enabled())
}

func TestLoad_InvalidInteger(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "not-a-number")

	// go-envconfig returns an error when parsing fails
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_ValidationFailure(t *testing.T) {
	clearEnv(t)
	t.Setenv("S3_BUCKET", "bucket")

	_, err := Load()
	assert.ErrorIs(t, err, ErrS3RegionRequired)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port:                   8080,
			FFmpegPath:             "ffmpeg",
			FFprobePath:            "ffprobe",
			SessionPollIntervalMs:  100,
			SessionPollMaxAttempts: 50,
			MaxConcurrentJobs:      2,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"valid config", func(*Config) {}, nil},
		{"port zero", func(c *Config) { c.Port = 0 }, ErrInvalidPort},
		{"port too large", func(c *Config) { c.Port = 70000 }, ErrInvalidPort},
		{"empty ffmpeg", func(c *Config) { c.FFmpegPath = " " }, ErrFFmpegPathRequired},
		{"empty ffprobe", func(c *Config) { c.FFprobePath = "" }, ErrFFmpegPathRequired},
		{"zero poll interval", func(c *Config) { c.SessionPollIntervalMs = 0 }, ErrInvalidSessionPolling},
		{"zero attempts", func(c *Config) { c.SessionPollMaxAttempts = 0 }, ErrInvalidSessionPolling},
		{"zero concurrency", func(c *Config) { c.MaxConcurrentJobs = 0 }, ErrInvalidConcurrency},
		{"bucket without region", func(c *Config) { c.S3Bucket = "bucket" }, ErrS3RegionRequired},
		{"region without bucket", func(c *Config) { c.S3Region = "eu-west-1" }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConfig_S3Enabled(t *testing.T) {
	tests := []struct {
		name     string
		bucket   string
		region   string
		expected bool
	}{
		{"both set", "bucket", "region", true},
		{"only bucket", "bucket", "", false},
		{"only region", "", "region", false},
		{"neither set", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				S3Bucket: tt.bucket,
				S3Region: tt.region,
			}
			assert.Equal(t, tt.expected, cfg.S3Enabled())
		})
	}
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{
		Port:               8080,
		TempDir:            "/tmp/test",
		FFmpegPath:         "/usr/bin/ffmpeg",
		S3Bucket:           "bucket",
		S3Region:           "region",
		AWSAccessKeyID:     "AKIAEXAMPLE",
		AWSSecretAccessKey: "secret-key",
		RedisURL:           "redis://:hunter2@cache:6379/0",
		LogFormat:          "json",
		LogLevel:           "info",
	}

	str := cfg.String()

	// Should contain non-sensitive values
	assert.Contains(t, str, "8080")
	assert.Contains(t, str, "/tmp/test")
	assert.Contains(t, str, "/usr/bin/ffmpeg")
	assert.Contains(t, str, "bucket")

	// Should NOT contain sensitive values
	assert.NotContains(t, str, "secret-key")
	assert.NotContains(t, str, "AKIAEXAMPLE")
	assert.NotContains(t, str, "hunter2")
	assert.Contains(t, str, "AWSAccessKeyID: ****")
}

func TestConfig_NewLogger_JSON(t *testing.T) {
	cfg := &Config{
		LogFormat: "json",
		LogLevel:  "info",
	}

	logger := cfg.NewLogger()
	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(t.Context(), slog.LevelInfo))
	assert.False(t, logger.Enabled(t.Context(), slog.LevelDebug))

	_, isJSON := logger.Handler().(*slog.JSONHandler)
	assert.True(t, isJSON)
}

func TestConfig_NewLogger_Text(t *testing.T) {
	cfg := &Config{
		LogFormat: "text",
		LogLevel:  "debug",
	}

	logger := cfg.NewLogger()
	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(t.Context(), slog.LevelDebug))

	_, isText := logger.Handler().(*slog.TextHandler)
	assert.True(t, isText)

	// A text handler writes key=value pairs
	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("test message", slog.String("job_id", "job-1"))
	assert.Contains(t, buf.String(), "job_id=job-1")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}
