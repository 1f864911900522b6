package anthropic

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	client := New("sk-ant-test-key-1234")

	if client.ID() != "anthropic" {
		t.Errorf("ID() = %q, want 'anthropic'", client.ID())
	}
	if client.config.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", client.config.BaseURL, DefaultBaseURL)
	}
	if client.config.Version != DefaultVersion {
		t.Errorf("Version = %q, want %q", client.config.Version, DefaultVersion)
	}
	if client.config.HTTPClient != http.DefaultClient {
		t.Error("HTTPClient should default to http.DefaultClient")
	}
	if client.config.Logger == nil {
		t.Error("Logger should default to a no-op logger")
	}
	if client.RateLimiter() != nil {
		t.Error("RateLimiter() should be nil without WithRateLimiter")
	}
}

func TestNewTrimsBaseURL(t *testing.T) {
	client := New("key", WithBaseURL("https://proxy.internal/anthropic/"), WithHTTPClient(nil))

	if client.config.BaseURL != "https://proxy.internal/anthropic" {
		t.Errorf("BaseURL = %q", client.config.BaseURL)
	}
	if client.config.HTTPClient == nil {
		t.Error("nil HTTPClient should fall back to the default")
	}
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv(DefaultAPIKeyEnvVar, "env-key")

	client, err := NewFromEnv()
	if err != nil {
		t.Fatalf("NewFromEnv() error = %v", err)
	}
	if client.config.APIKey.Expose() != "env-key" {
		t.Error("API key not loaded from environment")
	}
}

func TestNewFromEnvMissing(t *testing.T) {
	t.Setenv(DefaultAPIKeyEnvVar, "")

	_, err := NewFromEnv()
	if !errors.Is(err, ErrAPIKeyNotFound) {
		t.Errorf("NewFromEnv() error = %v, want ErrAPIKeyNotFound", err)
	}
}

func TestBuildHeaders(t *testing.T) {
	client := New("test-key",
		WithVersion("2024-01-01"),
		WithBeta("a-2025"),
		WithBeta("b-2025"),
		WithHeader("X-Team", "core"),
	)

	h := client.buildHeaders("req-7", true)

	checks := map[string]string{
		"x-api-key":           "test-key",
		"anthropic-version":   "2024-01-01",
		"anthropic-beta":      "a-2025,b-2025",
		"Content-Type":        "application/json",
		"x-client-request-id": "req-7",
		"X-Team":              "core",
		"User-Agent":          userAgent,
	}
	for key, want := range checks {
		if got := h.Get(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}

	h = client.buildHeaders("", false)
	if h.Get("Content-Type") != "" {
		t.Error("Content-Type should be omitted without a body")
	}
	if h.Get("x-client-request-id") != "" {
		t.Error("request id header should be omitted when empty")
	}
}

func TestAPIKeyNotLogged(t *testing.T) {
	client := New("sk-ant-super-secret-value")

	if strings.Contains(client.config.APIKey.String(), "super-secret") {
		t.Error("Secret.String() leaked the key")
	}
}

func TestDispatcherClosesAttemptContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	defer server.Close()

	client := New("test-key", WithBaseURL(server.URL))
	dispatch := client.dispatcher(http.MethodGet, "/v1/models", nil, false)

	resp, err := dispatch(context.Background(), 1)
	if err != nil {
		t.Fatalf("dispatch() error = %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil || string(body) != "ok" {
		t.Fatalf("body = %q, err = %v", body, err)
	}
	if err := resp.Body.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := resp.Request.Context().Err(); !errors.Is(err, context.Canceled) {
		t.Errorf("attempt context err = %v, want Canceled after Close", err)
	}
}

func TestDispatcherStopsAttemptTimerOnClose(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	defer server.Close()

	client := New("test-key", WithBaseURL(server.URL), WithTimeout(time.Hour))
	dispatch := client.dispatcher(http.MethodGet, "/v1/models", nil, false)

	resp, err := dispatch(context.Background(), 1)
	if err != nil {
		t.Fatalf("dispatch() error = %v", err)
	}
	body, ok := resp.Body.(*cancelOnClose)
	if !ok || body.timer == nil {
		t.Fatalf("body = %T, want *cancelOnClose with a timer", resp.Body)
	}
	_, _ = io.ReadAll(resp.Body)
	if err := resp.Body.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if body.timer.Stop() {
		t.Error("attempt timer still pending after Close")
	}
}
