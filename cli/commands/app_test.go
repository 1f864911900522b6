package commands

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petal-labs/anthropic-go/cli/config"
	"github.com/petal-labs/anthropic-go/cli/keystore"
	"github.com/petal-labs/anthropic-go/core"
)

type harness struct {
	app    *App
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	ks     *keystore.FileKeystore
}

// newHarness builds an App pointed at baseURL with a temp keystore.
// mutate adjusts the loaded config.
func newHarness(t *testing.T, baseURL string, stdin string, mutate func(*config.Config)) *harness {
	t.Helper()

	ks, err := keystore.NewFileKeystore(filepath.Join(t.TempDir(), "keys.enc"),
		keystore.MasterKeyFunc(func() ([]byte, error) { return []byte("test"), nil }))
	require.NoError(t, err)

	h := &harness{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}, ks: ks}
	h.app = NewApp(
		WithIO(strings.NewReader(stdin), h.stdout, h.stderr),
		WithKeystoreFactory(func() (keystore.Keystore, error) { return ks, nil }),
		WithConfigLoader(func(string) (*config.Config, error) {
			cfg := config.Default()
			cfg.APIKey = core.NewSecret("sk-ant-test-0000")
			cfg.BaseURL = baseURL
			cfg.Retry = config.RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
			if mutate != nil {
				mutate(cfg)
			}
			return cfg, cfg.Validate()
		}),
	)
	return h
}

func (h *harness) run(args ...string) error {
	h.app.SetArgs(args)
	return h.app.Execute()
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var ee *exitError
	require.True(t, errors.As(err, &ee), "expected *exitError, got %T: %v", err, err)
	return ee.ExitCode()
}

const okMessage = `{"id":"msg_1","type":"message","role":"assistant","model":"claude-haiku-4-5",
"content":[{"type":"text","text":"Hello from the API"}],"stop_reason":"end_turn",
"usage":{"input_tokens":5,"output_tokens":4}}`

func TestExitError(t *testing.T) {
	err := exitWithCode(ExitValidation, errors.New("test error"))

	assert.Equal(t, "test error", err.Error())
	assert.Equal(t, ExitValidation, exitCode(t, err))
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, 0, ExitSuccess)
	assert.Equal(t, 1, ExitValidation)
	assert.Equal(t, 2, ExitProvider)
	assert.Equal(t, 3, ExitNetwork)
}

func TestChat(t *testing.T) {
	var gotKey, gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), `"model":"claude-opus-4-5"`) {
			gotModel = "claude-opus-4-5"
		}
		_, _ = io.WriteString(w, okMessage)
	}))
	defer srv.Close()

	h := newHarness(t, srv.URL, "", nil)
	require.NoError(t, h.run("chat", "--prompt", "hi", "--model", "claude-opus-4-5", "--verbose"))

	assert.Equal(t, "Hello from the API\n", h.stdout.String())
	assert.Equal(t, "sk-ant-test-0000", gotKey)
	assert.Equal(t, "claude-opus-4-5", gotModel)
	assert.Contains(t, h.stderr.String(), "Usage: 5 input + 4 output tokens")
}

func TestChatJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, okMessage)
	}))
	defer srv.Close()

	h := newHarness(t, srv.URL, "", nil)
	require.NoError(t, h.run("chat", "--prompt", "hi", "--json"))

	assert.Contains(t, h.stdout.String(), `"id": "msg_1"`)
	assert.Contains(t, h.stdout.String(), `"stop_reason": "end_turn"`)
}

const chatStream = "event: message_start\n" +
	"data: {\"type\":\"message_start\",\"message\":{\"id\":\"msg_2\",\"role\":\"assistant\",\"content\":[],\"usage\":{\"input_tokens\":3,\"output_tokens\":0}}}\n\n" +
	"event: content_block_start\n" +
	"data: {\"type\":\"content_block_start\",\"index\":0,\"content_block\":{\"type\":\"text\",\"text\":\"\"}}\n\n" +
	"event: content_block_delta\n" +
	"data: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"Hel\"}}\n\n" +
	"event: content_block_delta\n" +
	"data: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"lo\"}}\n\n" +
	"event: content_block_stop\n" +
	"data: {\"type\":\"content_block_stop\",\"index\":0}\n\n" +
	"event: message_delta\n" +
	"data: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"end_turn\"},\"usage\":{\"output_tokens\":2}}\n\n" +
	"event: message_stop\n" +
	"data: {\"type\":\"message_stop\"}\n\n"

func TestChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, chatStream)
	}))
	defer srv.Close()

	h := newHarness(t, srv.URL, "", nil)
	require.NoError(t, h.run("chat", "--prompt", "hi", "--stream", "--verbose"))

	assert.Equal(t, "Hello\n", h.stdout.String())
	assert.Contains(t, h.stderr.String(), "Usage: 3 input + 2 output tokens")
}

func TestChatStreamJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, chatStream)
	}))
	defer srv.Close()

	h := newHarness(t, srv.URL, "", nil)
	require.NoError(t, h.run("chat", "--prompt", "hi", "--stream", "--json"))

	assert.Contains(t, h.stdout.String(), `"text": "Hello"`)
}

func TestChatStreamAbrupt(t *testing.T) {
	cut := chatStream[:strings.Index(chatStream, "event: content_block_stop")]
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, cut)
	}))
	defer srv.Close()

	h := newHarness(t, srv.URL, "", nil)
	err := h.run("chat", "--prompt", "hi", "--stream")

	assert.Equal(t, ExitNetwork, exitCode(t, err))
	assert.Equal(t, "Hello\n", h.stdout.String())
	assert.Contains(t, h.stderr.String(), "Error:")
}

func TestChatRetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("request-id", "req_srv_1")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
	}))
	defer srv.Close()

	h := newHarness(t, srv.URL, "", nil)
	err := h.run("chat", "--prompt", "hi")

	assert.Equal(t, ExitProvider, exitCode(t, err))
	assert.EqualValues(t, 3, calls.Load())
	assert.Contains(t, h.stderr.String(), "Request ID: req_srv_1")
	assert.Contains(t, h.stderr.String(), "after 3 attempt(s)")
	assert.Equal(t, 1, strings.Count(h.stderr.String(), "Error:"), "error reported once")
}

func TestChatErrorJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer srv.Close()

	h := newHarness(t, srv.URL, "", nil)
	err := h.run("chat", "--prompt", "hi", "--json")

	assert.Equal(t, ExitProvider, exitCode(t, err))
	assert.Contains(t, h.stderr.String(), `"kind": "auth"`)
	assert.Contains(t, h.stderr.String(), `"type": "authentication_error"`)
	assert.Contains(t, h.stderr.String(), `"attempts": 1`)
}

func TestChatValidationError(t *testing.T) {
	h := newHarness(t, "http://127.0.0.1:0", "", nil)
	err := h.run("chat", "--prompt", "hi", "--temperature", "3")

	assert.Equal(t, ExitValidation, exitCode(t, err))
}

func TestChatNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	h := newHarness(t, url, "", nil)
	err := h.run("chat", "--prompt", "hi")

	assert.Equal(t, ExitNetwork, exitCode(t, err))
}

func TestAPIKeyFromKeystore(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		_, _ = io.WriteString(w, okMessage)
	}))
	defer srv.Close()

	h := newHarness(t, srv.URL, "", func(c *config.Config) { c.APIKey = core.Secret{} })
	require.NoError(t, h.ks.Set(keyName, core.NewSecret("sk-ant-from-keystore")))

	require.NoError(t, h.run("chat", "--prompt", "hi"))
	assert.Equal(t, "sk-ant-from-keystore", gotKey)
}

func TestAPIKeyMissing(t *testing.T) {
	h := newHarness(t, "http://127.0.0.1:0", "", func(c *config.Config) { c.APIKey = core.Secret{} })
	err := h.run("chat", "--prompt", "hi")

	assert.Equal(t, ExitValidation, exitCode(t, err))
	assert.Contains(t, h.stderr.String(), "ANTHROPIC_API_KEY")
}

func TestConfigError(t *testing.T) {
	h := newHarness(t, "", "", func(c *config.Config) { c.LogLevel = "loud" })
	err := h.run("chat", "--prompt", "hi")

	assert.Equal(t, ExitValidation, exitCode(t, err))
	assert.Contains(t, h.stderr.String(), "invalid config")
}

func TestKeysCommands(t *testing.T) {
	h := newHarness(t, "", "sk-ant-typed-key-4242\n", nil)

	require.NoError(t, h.run("keys", "set"))
	assert.Contains(t, h.stdout.String(), "API key for anthropic stored (...4242)")
	assert.NotContains(t, h.stdout.String()+h.stderr.String(), "typed-key")

	h.stdout.Reset()
	require.NoError(t, h.run("keys", "list"))
	assert.Contains(t, h.stdout.String(), "  - anthropic")

	h.stdout.Reset()
	require.NoError(t, h.run("keys", "delete", "anthropic"))
	assert.Contains(t, h.stdout.String(), "deleted")

	err := h.run("keys", "delete", "anthropic")
	assert.Equal(t, ExitValidation, exitCode(t, err))
}

func TestKeysSetEmpty(t *testing.T) {
	h := newHarness(t, "", "\n", nil)

	err := h.run("keys", "set")
	assert.Equal(t, ExitValidation, exitCode(t, err))
}

func TestModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/models":
			assert.Equal(t, "5", r.URL.Query().Get("limit"))
			_, _ = io.WriteString(w, `{"data":[{"id":"claude-sonnet-4-5","type":"model","display_name":"Claude Sonnet 4.5","created_at":"2025-09-29T00:00:00Z"}],"has_more":false}`)
		case "/v1/models/claude-sonnet-4-5":
			_, _ = io.WriteString(w, `{"id":"claude-sonnet-4-5","type":"model","display_name":"Claude Sonnet 4.5"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	h := newHarness(t, srv.URL, "", nil)
	require.NoError(t, h.run("models", "--limit", "5"))
	assert.Contains(t, h.stdout.String(), "claude-sonnet-4-5")
	assert.Contains(t, h.stdout.String(), "2025-09-29")

	h.stdout.Reset()
	require.NoError(t, h.run("models", "claude-sonnet-4-5"))
	assert.Equal(t, "claude-sonnet-4-5\tClaude Sonnet 4.5\n", h.stdout.String())
}

func TestVersion(t *testing.T) {
	h := newHarness(t, "", "", func(c *config.Config) { c.LogLevel = "loud" })

	require.NoError(t, h.run("version"), "version must not need a valid config")
	assert.Contains(t, h.stdout.String(), "anthropic-go "+Version)

	h.stdout.Reset()
	require.NoError(t, h.run("version", "--json"))
	assert.Contains(t, h.stdout.String(), `"version": "dev"`)
}

func TestVersionVariables(t *testing.T) {
	assert.NotEmpty(t, Version)
	assert.NotEmpty(t, Commit)
	assert.NotEmpty(t, BuildDate)
}
