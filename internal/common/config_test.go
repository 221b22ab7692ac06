package common

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(NewViper())
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Workers.Count)
	assert.Equal(t, 5*time.Second, cfg.Workers.SubmissionTimeout)
	assert.Zero(t, cfg.Workers.ProcessTimeout)
	assert.Equal(t, BackendMemory, cfg.Queue.Backend)
	assert.Equal(t, 10*time.Second, cfg.Queue.PollInterval)
	assert.Equal(t, "paystubs", cfg.RabbitMQ.Queue)
	assert.Equal(t, int32(10), cfg.Database.MaxConns)
	assert.Equal(t, 24*time.Hour, cfg.Redis.TTL)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, int64(20<<20), cfg.Server.MaxPayloadBytes)
	assert.Equal(t, 300, cfg.OCR.DPI)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PAYSTUB_WORKERS_COUNT", "12")
	t.Setenv("PAYSTUB_WORKERS_SUBMISSION_TIMEOUT", "250ms")
	t.Setenv("PAYSTUB_QUEUE_BACKEND", "SPOOL")
	t.Setenv("PAYSTUB_SPOOL_DIR", "/var/spool/paystubs")
	t.Setenv("PAYSTUB_DATABASE_DRIVER", "sqlite")
	t.Setenv("PAYSTUB_DATABASE_DSN", "file:paystubs.db")

	cfg, err := LoadConfig(NewViper())
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Workers.Count)
	assert.Equal(t, 250*time.Millisecond, cfg.Workers.SubmissionTimeout)
	assert.Equal(t, BackendSpool, cfg.Queue.Backend)
	assert.Equal(t, "/var/spool/paystubs", cfg.Spool.Dir)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero workers", func(c *Config) { c.Workers.Count = 0 }, "workers.count"},
		{"no submission timeout", func(c *Config) { c.Workers.SubmissionTimeout = 0 }, "workers.submission_timeout"},
		{"unknown backend", func(c *Config) { c.Queue.Backend = "sqs" }, "queue.backend"},
		{"spool without dir", func(c *Config) { c.Queue.Backend = BackendSpool }, "spool.dir"},
		{"rabbit without url", func(c *Config) { c.Queue.Backend = BackendRabbitMQ; c.RabbitMQ.URL = "" }, "rabbitmq.url"},
		{"bad batch size", func(c *Config) { c.Queue.Backend = BackendRabbitMQ; c.Queue.BatchSize = 0 }, "queue.batch_size"},
		{"database without dsn", func(c *Config) { c.Database.Driver = "postgres" }, "database.dsn"},
		{"unknown database", func(c *Config) { c.Database.Driver = "mysql"; c.Database.DSN = "x" }, "database.driver"},
		{"no payload limit", func(c *Config) { c.Server.MaxPayloadBytes = 0 }, "max_payload_bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(NewViper())
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.True(t, errors.Is(err, ErrInvalidInput))
			var appErr *AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, CodeConfig, appErr.Code)
		})
	}
}

func TestValidateSubmission(t *testing.T) {
	assert.NoError(t, ValidateSubmission([]byte("x"), "application/pdf", map[string]any{"a": 1}))
	assert.NoError(t, ValidateSubmission([]byte("x"), "text/plain; charset=utf-8", nil))

	err := ValidateSubmission(nil, "application/zip", map[string]any{" ": 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.Contains(t, err.Error(), "field 'payload': is required")
	assert.Contains(t, err.Error(), "unsupported content type")
	assert.Contains(t, err.Error(), "keys must be non-empty")
}

func TestNewLogger(t *testing.T) {
	logger, sync, err := NewLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	defer sync()
	assert.NotNil(t, logger)

	_, _, err = NewLogger(LogConfig{Level: "loud"})
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, _, err = NewLogger(LogConfig{Level: "info", Format: "xml"})
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestAppErrorUnwrap(t *testing.T) {
	err := NewExtractionError(CodeNoFields, "no pay amounts found", nil)
	assert.True(t, IsExtractionError(err))
	assert.True(t, errors.Is(errors.Wrap(err, "run"), ErrExtraction))
	assert.False(t, IsExtractionError(errors.New("plain")))
}
