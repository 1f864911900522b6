package anthropic

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/petal-labs/anthropic-go/core"
)

// DefaultAPIKeyEnvVar is the environment variable name for the Anthropic API key.
const DefaultAPIKeyEnvVar = "ANTHROPIC_API_KEY"

// ProviderName identifies this client in errors, logs and telemetry.
const ProviderName = "anthropic"

const userAgent = "anthropic-go/1"

// Endpoint classes used for rate limiting and telemetry.
const (
	ClassMessages = "messages"
	ClassModels   = "models"
)

// ErrAPIKeyNotFound is returned when the API key environment variable is not set.
var ErrAPIKeyNotFound = errors.New("anthropic: ANTHROPIC_API_KEY environment variable not set")

// NewFromEnv creates a new client using the ANTHROPIC_API_KEY environment variable.
//
//	client, err := anthropic.NewFromEnv(anthropic.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
func NewFromEnv(opts ...Option) (*Client, error) {
	apiKey := os.Getenv(DefaultAPIKeyEnvVar)
	if apiKey == "" {
		return nil, ErrAPIKeyNotFound
	}
	return New(apiKey, opts...), nil
}

// Client is a client for the Anthropic Messages API. Every call goes through
// a core.Executor, so it is rate limited, retried and classified the same way.
// Client is safe for concurrent use.
type Client struct {
	config Config
	exec   *core.Executor
}

// New creates a new client with the given API key and options.
func New(apiKey string, opts ...Option) *Client {
	cfg := Config{
		APIKey:     core.NewSecret(apiKey),
		BaseURL:    DefaultBaseURL,
		HTTPClient: http.DefaultClient,
		Version:    DefaultVersion,
	}

	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	execOpts := []core.ExecutorOption{
		core.WithProviderName(ProviderName),
		core.WithClassifier(classifier(cfg.StatusTable)),
		core.WithRetryPolicy(cfg.RetryPolicy),
		core.WithLogger(cfg.Logger),
		core.WithTelemetry(cfg.Telemetry),
	}
	if cfg.RateLimiter != nil {
		execOpts = append(execOpts, core.WithRateLimiter(cfg.RateLimiter))
	}

	return &Client{config: cfg, exec: core.NewExecutor(execOpts...)}
}

// ID returns the provider identifier.
func (c *Client) ID() string {
	return ProviderName
}

// RateLimiter returns the configured limiter, or nil.
func (c *Client) RateLimiter() *core.RateLimiter {
	return c.config.RateLimiter
}

// buildHeaders constructs the HTTP headers for an API request.
func (c *Client) buildHeaders(requestID string, hasBody bool) http.Header {
	headers := make(http.Header)

	headers.Set("x-api-key", c.config.APIKey.Expose())
	headers.Set("anthropic-version", c.config.Version)
	headers.Set("User-Agent", userAgent)
	if hasBody {
		headers.Set("Content-Type", "application/json")
	}
	if requestID != "" {
		headers.Set("x-client-request-id", requestID)
	}
	if len(c.config.Betas) > 0 {
		headers.Set("anthropic-beta", strings.Join(c.config.Betas, ","))
	}

	// Copy any extra headers
	for key, values := range c.config.Headers {
		for _, v := range values {
			headers.Add(key, v)
		}
	}

	return headers
}

// checkCredentials fails fast before any attempt is made.
func (c *Client) checkCredentials() error {
	if c.config.APIKey.IsEmpty() {
		return &core.ProviderError{
			Provider: ProviderName,
			Code:     "missing_api_key",
			Message:  "no API key configured",
			Err:      core.ErrMissingCredentials,
		}
	}
	return nil
}

// dispatcher returns a core.DispatchFunc issuing one HTTP request per attempt.
// The attempt timeout stops once headers arrive for streams; otherwise it
// also covers reading the body.
func (c *Client) dispatcher(method, path string, body []byte, streaming bool) core.DispatchFunc {
	url := c.config.BaseURL + path
	return func(ctx context.Context, attempt int) (*http.Response, error) {
		actx, cancel := context.WithCancel(ctx)
		var timer *time.Timer
		if c.config.Timeout > 0 {
			timer = time.AfterFunc(c.config.Timeout, cancel)
		}

		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		release := func() {
			if timer != nil {
				timer.Stop()
			}
			cancel()
		}
		req, err := http.NewRequestWithContext(actx, method, url, rdr)
		if err != nil {
			release()
			return nil, err
		}
		req.Header = c.buildHeaders(core.RequestIDFromContext(ctx), body != nil)
		if streaming {
			req.Header.Set("Accept", "text/event-stream")
		}

		resp, err := c.config.HTTPClient.Do(req)
		if err != nil {
			release()
			return nil, err
		}
		if streaming && timer != nil {
			timer.Stop()
		}
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel, timer: timer}
		return resp, nil
	}
}

// cancelOnClose releases the attempt context and its timeout when the body
// is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
	timer  *time.Timer
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	if b.timer != nil {
		b.timer.Stop()
	}
	b.cancel()
	return err
}
