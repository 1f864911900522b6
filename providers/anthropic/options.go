package anthropic

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/petal-labs/anthropic-go/core"
)

// Config holds configuration for the Anthropic client.
type Config struct {
	// APIKey is the Anthropic API key (required).
	APIKey core.Secret

	// BaseURL is the API base URL. Defaults to https://api.anthropic.com
	BaseURL string

	// HTTPClient is the HTTP client to use. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Version is the Anthropic API version. Defaults to 2023-06-01.
	Version string

	// Headers contains optional extra headers to include in requests.
	Headers http.Header

	// Betas are sent in the anthropic-beta header.
	Betas []string

	// Timeout bounds each attempt until response headers arrive, and for
	// non-streaming calls until the body has been read. Zero means no limit
	// beyond the caller's context.
	Timeout time.Duration

	// RetryPolicy decides whether and when failed attempts are retried.
	// Defaults to core.DefaultRetryPolicy().
	RetryPolicy core.RetryPolicy

	// RateLimiter enables client-side admission control. Nil disables it.
	RateLimiter *core.RateLimiter

	// StatusTable overrides HTTP status classification for bodies that do
	// not carry a recognised error type.
	StatusTable core.StatusTable

	// Logger receives retry and stream diagnostics. Defaults to zap.NewNop().
	Logger *zap.Logger

	// Telemetry observes every logical call.
	Telemetry core.TelemetryHook
}

// DefaultBaseURL is the default Anthropic API base URL.
const DefaultBaseURL = "https://api.anthropic.com"

// DefaultVersion is the default Anthropic API version.
const DefaultVersion = "2023-06-01"

// Option configures the Anthropic client.
type Option func(*Config)

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// WithVersion sets the Anthropic API version.
func WithVersion(version string) Option {
	return func(c *Config) {
		c.Version = version
	}
}

// WithHeader adds an extra header to include in requests.
func WithHeader(key, value string) Option {
	return func(c *Config) {
		if c.Headers == nil {
			c.Headers = make(http.Header)
		}
		c.Headers.Set(key, value)
	}
}

// WithBeta enables a beta feature via the anthropic-beta header.
func WithBeta(name string) Option {
	return func(c *Config) {
		c.Betas = append(c.Betas, name)
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithRetryPolicy sets the retry policy. Use core.NoRetry() to disable retries.
func WithRetryPolicy(p core.RetryPolicy) Option {
	return func(c *Config) {
		c.RetryPolicy = p
	}
}

// WithRateLimiter shares a client-side rate limiter with this client.
func WithRateLimiter(l *core.RateLimiter) Option {
	return func(c *Config) {
		c.RateLimiter = l
	}
}

// WithStatusTable overrides HTTP status classification.
func WithStatusTable(t core.StatusTable) Option {
	return func(c *Config) {
		c.StatusTable = t
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithTelemetry sets the telemetry hook.
func WithTelemetry(h core.TelemetryHook) Option {
	return func(c *Config) {
		c.Telemetry = h
	}
}
