package config_test

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/intake/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.ListenAddr)
	assert.Equal(t, "redis", cfg.QueueBackend)
	assert.Equal(t, 5, cfg.WorkerConcurrency)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.BackoffBase)
	assert.Equal(t, "sandbox.smtp.mailtrap.io", cfg.SMTPHost)
	assert.Equal(t, 2525, cfg.SMTPPort)
	assert.EqualValues(t, 5<<20, cfg.MaxUploadBytes)

	q := cfg.Queue()
	assert.Equal(t, 5, q.Concurrency)
	assert.Equal(t, 30*time.Second, q.LeaseDuration)
	assert.Equal(t, 10*time.Second, q.Heartbeat())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("QUEUE_BACKEND", "postgres")
	t.Setenv("WORKER_CONCURRENCY", "12")
	t.Setenv("JOB_BACKOFF_MAX", "1m")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.SharedPostgres())
	assert.Equal(t, 12, cfg.Queue().Concurrency)
	assert.Equal(t, time.Minute, cfg.Queue().BackoffMax)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"unknown queue backend", "QUEUE_BACKEND", "kafka"},
		{"unknown patient backend", "PATIENT_BACKEND", "sqlite"},
		{"zero concurrency", "WORKER_CONCURRENCY", "0"},
		{"zero attempts", "JOB_MAX_ATTEMPTS", "0"},
		{"bad duration", "JOB_BACKOFF_BASE", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_MemoryQueueNeedsMemoryPatients(t *testing.T) {
	t.Setenv("QUEUE_BACKEND", "memory")
	_, err := config.Load()
	require.Error(t, err)

	t.Setenv("PATIENT_BACKEND", "memory")
	_, err = config.Load()
	assert.NoError(t, err)
}

func TestString_MasksSecrets(t *testing.T) {
	t.Setenv("SMTP_PASSWORD", "hunter2")
	t.Setenv("DATABASE_URL", "postgres://app:s3cret@db:5432/patients")
	cfg, err := config.Load()
	require.NoError(t, err)

	s := cfg.String()
	assert.False(t, strings.Contains(s, "hunter2"))
	assert.False(t, strings.Contains(s, "s3cret"))
	assert.True(t, strings.Contains(s, "postgres://***@db:5432/patients"))
}
