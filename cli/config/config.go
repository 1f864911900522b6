// Package config handles CLI configuration loading and management.
//
// Settings are resolved in order: built-in defaults, the YAML config file,
// then ANTHROPIC_* environment variables. The result is validated before use.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/petal-labs/anthropic-go/core"
	"github.com/petal-labs/anthropic-go/providers/anthropic"
)

// Config represents the CLI configuration.
type Config struct {
	APIKey       core.Secret   `yaml:"api_key" env:"ANTHROPIC_API_KEY"`
	BaseURL      string        `yaml:"base_url,omitempty" env:"ANTHROPIC_BASE_URL" validate:"omitempty,url"`
	Version      string        `yaml:"version,omitempty" env:"ANTHROPIC_VERSION"`
	DefaultModel string        `yaml:"default_model" env:"ANTHROPIC_MODEL" validate:"required"`
	MaxTokens    int           `yaml:"max_tokens" env:"ANTHROPIC_MAX_TOKENS" validate:"gt=0"`
	Timeout      time.Duration `yaml:"timeout" env:"ANTHROPIC_TIMEOUT" validate:"gte=0"`
	LogLevel     string        `yaml:"log_level" env:"ANTHROPIC_LOG_LEVEL" validate:"oneof=debug info warn error"`
	Betas        []string      `yaml:"betas,omitempty" env:"ANTHROPIC_BETAS" envSeparator:","`

	Retry     RetryConfig     `yaml:"retry" envPrefix:"ANTHROPIC_RETRY_"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envPrefix:"ANTHROPIC_RATE_LIMIT_"`
}

// RetryConfig mirrors core.RetryConfig with file and env bindings.
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries" env:"MAX_RETRIES" validate:"gte=0,lte=10"`
	BaseDelay  time.Duration `yaml:"base_delay" env:"BASE_DELAY" validate:"gte=0"`
	MaxDelay   time.Duration `yaml:"max_delay" env:"MAX_DELAY" validate:"gte=0"`
	Multiplier float64       `yaml:"multiplier" env:"MULTIPLIER" validate:"eq=0|gte=1"`
	Jitter     float64       `yaml:"jitter" env:"JITTER" validate:"gte=0,lte=1"`
	MaxElapsed time.Duration `yaml:"max_elapsed" env:"MAX_ELAPSED"`
}

// RateLimitConfig configures the client-side limiter. Disabled unless
// Enabled is set.
type RateLimitConfig struct {
	Enabled  bool                  `yaml:"enabled" env:"ENABLED"`
	Capacity int                   `yaml:"capacity" env:"CAPACITY" validate:"required_if=Enabled true,gte=0"`
	Rate     float64               `yaml:"rate" env:"RATE" validate:"required_if=Enabled true,gte=0"`
	MaxWait  time.Duration         `yaml:"max_wait" env:"MAX_WAIT" validate:"gte=0"`
	Classes  map[string]ClassLimit `yaml:"classes,omitempty" validate:"dive"`
}

// ClassLimit bounds a single endpoint class such as "messages".
type ClassLimit struct {
	Capacity int     `yaml:"capacity" validate:"gt=0"`
	Rate     float64 `yaml:"rate" validate:"gt=0"`
}

// Default returns the built-in configuration.
func Default() *Config {
	retry := core.DefaultRetryConfig()
	return &Config{
		BaseURL:      anthropic.DefaultBaseURL,
		Version:      anthropic.DefaultVersion,
		DefaultModel: anthropic.DefaultModel,
		MaxTokens:    1024,
		Timeout:      2 * time.Minute,
		LogLevel:     "warn",
		Retry: RetryConfig{
			MaxRetries: retry.MaxRetries,
			BaseDelay:  retry.BaseDelay,
			MaxDelay:   retry.MaxDelay,
			Multiplier: retry.Multiplier,
			Jitter:     retry.Jitter,
			MaxElapsed: retry.MaxElapsed,
		},
	}
}

// DefaultConfigPath returns the default configuration file path for the current platform.
// - macOS/Linux: ~/.anthropic-go/config.yaml
// - Windows: %USERPROFILE%\.anthropic-go\config.yaml
func DefaultConfigPath() string {
	var homeDir string

	if runtime.GOOS == "windows" {
		homeDir = os.Getenv("USERPROFILE")
	} else {
		homeDir = os.Getenv("HOME")
	}

	if homeDir == "" {
		// Fallback to current directory
		return "config.yaml"
	}

	return filepath.Join(homeDir, ".anthropic-go", "config.yaml")
}

// LoadConfig loads configuration from path and the process environment.
// A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	return Load(path, nil)
}

// Load is LoadConfig with an explicit environment. A nil environ reads
// the process environment.
func Load(path string, environ map[string]string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RetryPolicy builds the retry policy. Zero delays fall back to the
// core defaults.
func (c *Config) RetryPolicy() core.RetryPolicy {
	return core.NewRetryPolicy(core.RetryConfig{
		MaxRetries: c.Retry.MaxRetries,
		BaseDelay:  c.Retry.BaseDelay,
		MaxDelay:   c.Retry.MaxDelay,
		Multiplier: c.Retry.Multiplier,
		Jitter:     c.Retry.Jitter,
		MaxElapsed: c.Retry.MaxElapsed,
	})
}

// RateLimiter builds the configured limiter, or nil when disabled.
func (c *Config) RateLimiter(logger *zap.Logger) (*core.RateLimiter, error) {
	if !c.RateLimit.Enabled {
		return nil, nil
	}
	cfg := core.RateLimitConfig{
		Capacity: c.RateLimit.Capacity,
		Rate:     c.RateLimit.Rate,
		MaxWait:  c.RateLimit.MaxWait,
	}
	if len(c.RateLimit.Classes) > 0 {
		cfg.Classes = make(map[string]core.ClassLimit, len(c.RateLimit.Classes))
		for name, cl := range c.RateLimit.Classes {
			cfg.Classes[name] = core.ClassLimit{Capacity: cl.Capacity, Rate: cl.Rate}
		}
	}
	return core.NewRateLimiter(cfg, logger)
}

// Level returns the zap level for LogLevel.
func (c *Config) Level() zapcore.Level {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.WarnLevel
	}
	return lvl
}

// ClientOptions returns the anthropic client options for this config.
// The rate limiter and logger are passed in since they are shared.
func (c *Config) ClientOptions(logger *zap.Logger, limiter *core.RateLimiter) []anthropic.Option {
	opts := []anthropic.Option{
		anthropic.WithRetryPolicy(c.RetryPolicy()),
		anthropic.WithTimeout(c.Timeout),
		anthropic.WithLogger(logger),
	}
	if c.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(c.BaseURL))
	}
	if c.Version != "" {
		opts = append(opts, anthropic.WithVersion(c.Version))
	}
	for _, b := range c.Betas {
		opts = append(opts, anthropic.WithBeta(b))
	}
	if limiter != nil {
		opts = append(opts, anthropic.WithRateLimiter(limiter))
	}
	return opts
}
