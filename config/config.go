package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env         string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port        string `env:"PORT" envDefault:"8080" validate:"required"`
	MetricsPort string `env:"METRICS_PORT" envDefault:"9091"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"false"`

	RedisURL     string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	UseFastQueue bool   `env:"USE_FAST_QUEUE" envDefault:"true"`

	MaxWorkers          int     `env:"MAX_WORKERS" envDefault:"10" validate:"min=1,max=100"`
	MaxRetries          int     `env:"MAX_RETRIES" envDefault:"5" validate:"min=0,max=50"`
	RetryBackoffBase    float64 `env:"RETRY_BACKOFF_BASE" envDefault:"2.0" validate:"gt=1"`
	JobTimeoutSec       int     `env:"JOB_TIMEOUT_SECONDS" envDefault:"300" validate:"min=1"`
	PollIntervalSec     float64 `env:"POLL_INTERVAL_SECONDS" envDefault:"1.0" validate:"gt=0,max=60"`
	BulkSubmitCap       int     `env:"BULK_SUBMIT_CAP" envDefault:"100" validate:"min=1,max=1000"`
	ReclaimIntervalSec  int     `env:"RECLAIM_INTERVAL_SECONDS" envDefault:"30" validate:"min=1"`
	DispatchIntervalSec int     `env:"DISPATCH_INTERVAL_SECONDS" envDefault:"5" validate:"min=1"`
	ReaperIntervalSec   int     `env:"REAPER_INTERVAL_SECONDS" envDefault:"60" validate:"min=1"`
	ShutdownGraceSec    int     `env:"SHUTDOWN_GRACE_SECONDS" envDefault:"30" validate:"min=0"`

	// JWTSecret is only needed by the API binary; the worker runs without it.
	JWTSecret   string `env:"JWT_SECRET" validate:"omitempty,min=32"`
	TokenTTLMin int    `env:"TOKEN_TTL_MINUTES" envDefault:"60" validate:"min=1"`

	ResendAPIKey string `env:"RESEND_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	EmailFrom    string `env:"EMAIL_FROM" envDefault:"jobs@example.com"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// PollInterval converts the fractional-second setting into a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec * float64(time.Second))
}

func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSec) * time.Second
}
