package config

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the worker's environment configuration.
type Config struct {
	Env      string `envconfig:"ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// ----------------------------
	// Database
	// ----------------------------
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// ----------------------------
	// Dispatch loop
	// ----------------------------
	PollIntervalMs      int `envconfig:"WORKER_POLL_INTERVAL_MS" default:"5000"`
	BatchSize           int `envconfig:"WORKER_BATCH_SIZE" default:"20"`
	MaxAttempts         int `envconfig:"NOTIFICATION_MAX_RETRIES" default:"4"`
	RetryDelaySeconds   int `envconfig:"NOTIFICATION_RETRY_DELAY_SECONDS" default:"60"`
	ReclaimAfterMinutes int `envconfig:"WORKER_RECLAIM_AFTER_MINUTES" default:"10"`
	SendRatePerSecond   int `envconfig:"WORKER_SEND_RATE" default:"5"`

	// ----------------------------
	// Email defaults (system-wide; tenants may override)
	// ----------------------------
	MailProvider          string `envconfig:"MAIL_PROVIDER" default:"mailgun"`
	DefaultFromName       string `envconfig:"EMAIL_DEFAULT_FROM_NAME" default:"PrintPress"`
	DefaultFromAddress    string `envconfig:"EMAIL_DEFAULT_FROM_ADDRESS" default:"no-reply@printpress.local"`
	DefaultReplyTo        string `envconfig:"EMAIL_DEFAULT_REPLY_TO" default:""`
	PostmarkServerToken   string `envconfig:"POSTMARK_SERVER_TOKEN" default:""`
	PostmarkMessageStream string `envconfig:"POSTMARK_MESSAGE_STREAM" default:"outbound"`
	MailgunDomain         string `envconfig:"MAILGUN_DOMAIN" default:""`
	MailgunAPIKey         string `envconfig:"MAILGUN_API_KEY" default:""`

	// AppBaseURL feeds the {{appUrl}} template variable.
	AppBaseURL string `envconfig:"APP_BASE_URL" default:"http://localhost:3000"`

	// ----------------------------
	// Redis cache (optional; empty addr disables caching)
	// ----------------------------
	RedisAddr       string `envconfig:"REDIS_ADDR" default:""`
	RedisPassword   string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB         int    `envconfig:"REDIS_DB" default:"0"`
	CacheTTLSeconds int    `envconfig:"CACHE_TTL_SECONDS" default:"60"`

	// ----------------------------
	// Ops HTTP server (health + metrics)
	// ----------------------------
	OpsPort int `envconfig:"OPS_PORT" default:"9090"`
}

// Load reads configuration from environment variables. DATABASE_URL set
// to the empty string is rejected the same as unset: envconfig considers
// a present-but-empty variable satisfied, and a blank connection string
// would only fail later at dial time.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	return &cfg, nil
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

func (c *Config) ReclaimAfter() time.Duration {
	return time.Duration(c.ReclaimAfterMinutes) * time.Minute
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}
