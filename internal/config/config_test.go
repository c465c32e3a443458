package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/printpress")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 20, cfg.BatchSize)
	assert.Equal(t, 4, cfg.MaxAttempts)
	assert.Equal(t, "mailgun", cfg.MailProvider)
	assert.Equal(t, "PrintPress", cfg.DefaultFromName)
	assert.Equal(t, "outbound", cfg.PostmarkMessageStream)
	assert.Equal(t, "http://localhost:3000", cfg.AppBaseURL)
	assert.Equal(t, 9090, cfg.OpsPort)
	assert.Empty(t, cfg.RedisAddr)

	assert.Equal(t, 5*time.Second, cfg.PollInterval())
	assert.Equal(t, 60*time.Second, cfg.RetryDelay())
	assert.Equal(t, 10*time.Minute, cfg.ReclaimAfter())
	assert.Equal(t, time.Minute, cfg.CacheTTL())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/printpress")
	t.Setenv("WORKER_POLL_INTERVAL_MS", "1000")
	t.Setenv("WORKER_BATCH_SIZE", "50")
	t.Setenv("NOTIFICATION_RETRY_DELAY_SECONDS", "300")
	t.Setenv("MAIL_PROVIDER", "postmark")
	t.Setenv("POSTMARK_SERVER_TOKEN", "pm-token")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.PollInterval())
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 5*time.Minute, cfg.RetryDelay())
	assert.Equal(t, "postmark", cfg.MailProvider)
	assert.Equal(t, "pm-token", cfg.PostmarkServerToken)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("unset", func(t *testing.T) {
		// t.Setenv registers the restore; Unsetenv makes the variable
		// genuinely absent for the duration of the test.
		t.Setenv("DATABASE_URL", "placeholder")
		os.Unsetenv("DATABASE_URL")

		_, err := Load()
		assert.Error(t, err)
	})
}
