// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/go-multierror"
)

// Remote analyzer modes.
const (
	RemoteNone   = ""
	RemoteHTTP   = "http"
	RemoteOpenAI = "openai"
)

// Config holds all application configuration.
type Config struct {
	Port               string        `env:"PORT" envDefault:"8080"`
	AllowedOrigins     []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	DBPath             string        `env:"DB_PATH" envDefault:"./data/symptom-checker.db"`
	StoreEnabled       bool          `env:"STORE_ENABLED" envDefault:"true"`
	RulesPath          string        `env:"RULES_PATH"`
	SessionTTL         time.Duration `env:"SESSION_TTL" envDefault:"30m"`
	SweepInterval      time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	Retention          time.Duration `env:"RETENTION" envDefault:"720h"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
	MaxRequestBodySize int64         `env:"MAX_REQUEST_BODY_SIZE" envDefault:"65536"`
	HealthCheckTimeout time.Duration `env:"HEALTH_CHECK_TIMEOUT" envDefault:"5s"`

	Remote    RemoteConfig    `envPrefix:"REMOTE_"`
	OpenAI    OpenAIConfig    `envPrefix:"OPENAI_"`
	Webhook   WebhookConfig   `envPrefix:"WEBHOOK_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
}

// RemoteConfig selects and tunes the remote analyzer.
type RemoteConfig struct {
	Mode     string        `env:"MODE"`
	URL      string        `env:"URL"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"8s"`
	Attempts uint          `env:"ATTEMPTS" envDefault:"1"`
	Backoff  time.Duration `env:"BACKOFF" envDefault:"200ms"`
}

// OpenAIConfig configures the OpenAI-backed remote analyzer.
type OpenAIConfig struct {
	APIKey  string `env:"API_KEY"`
	Model   string `env:"MODEL" envDefault:"gpt-4o-mini"`
	BaseURL string `env:"BASE_URL"`
}

// WebhookConfig controls assessment forwarding.
type WebhookConfig struct {
	URL     string        `env:"URL"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

// RateLimitConfig controls the per-client chat rate limiter.
type RateLimitConfig struct {
	Requests int           `env:"REQUESTS" envDefault:"30"`
	Window   time.Duration `env:"WINDOW" envDefault:"1m"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) normalize() {
	c.Remote.Mode = strings.ToLower(strings.TrimSpace(c.Remote.Mode))
	origins := c.AllowedOrigins[:0]
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.AllowedOrigins = origins
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs *multierror.Error

	if c.Port == "" {
		errs = multierror.Append(errs, fmt.Errorf("PORT cannot be empty"))
	}
	if c.StoreEnabled && c.DBPath == "" {
		errs = multierror.Append(errs, fmt.Errorf("DB_PATH cannot be empty when STORE_ENABLED is set"))
	}
	if c.SessionTTL <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("SESSION_TTL must be > 0"))
	}
	if c.SweepInterval <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("SWEEP_INTERVAL must be > 0"))
	}
	if c.Retention < 0 {
		errs = multierror.Append(errs, fmt.Errorf("RETENTION cannot be negative"))
	}
	if c.MaxRequestBodySize <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0"))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = multierror.Append(errs, err)
	}

	switch c.Remote.Mode {
	case RemoteNone:
	case RemoteHTTP:
		if err := validateURL("REMOTE_URL", c.Remote.URL); err != nil {
			errs = multierror.Append(errs, err)
		}
	case RemoteOpenAI:
		if c.OpenAI.APIKey == "" {
			errs = multierror.Append(errs, fmt.Errorf("OPENAI_API_KEY is required when REMOTE_MODE=openai"))
		}
	default:
		errs = multierror.Append(errs, fmt.Errorf("REMOTE_MODE %q is not one of \"\", http, openai", c.Remote.Mode))
	}
	if c.Remote.Timeout <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("REMOTE_TIMEOUT must be > 0"))
	}
	if c.Remote.Attempts == 0 {
		errs = multierror.Append(errs, fmt.Errorf("REMOTE_ATTEMPTS must be > 0"))
	}

	if c.Webhook.URL != "" {
		if err := validateURL("WEBHOOK_URL", c.Webhook.URL); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if c.RateLimit.Requests <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0"))
	}
	if c.RateLimit.Window <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("RATE_LIMIT_WINDOW must be > 0"))
	}

	return errs.ErrorOrNil()
}

// SlogLevel returns the configured log level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// ParseLogLevel maps debug, info, warn and error to slog levels.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q is invalid: %w", s, err)
	}
	return level, nil
}

func validateURL(key, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", key)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL", key)
	}
	return nil
}
