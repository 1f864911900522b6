package anthropic

import (
	"net/http"

	"github.com/petal-labs/anthropic-go/core"
	"github.com/petal-labs/anthropic-go/providers/internal/normalize"
)

// classifier builds the core.Classifier for Anthropic responses. Error
// bodies carry a typed error that takes precedence over the status code.
func classifier(table core.StatusTable) core.Classifier {
	return func(status int, header http.Header, body []byte, err error) error {
		if err != nil {
			return newNetworkError(err)
		}
		if status >= 200 && status < 300 {
			return nil
		}
		return normalizeError(status, body, header.Get("request-id"), table)
	}
}

// normalizeError converts an HTTP error response to a ProviderError with the appropriate sentinel.
func normalizeError(status int, body []byte, requestID string, table core.StatusTable) error {
	env := normalize.ParseEnvelope(body)

	code := env.Type
	if code == "" {
		code = "unknown_error"
	}

	sentinel := core.SentinelForErrorType(env.Type)
	if sentinel == nil {
		sentinel = normalize.SentinelForStatusWithOverrides(status, table, map[int]error{
			http.StatusNotFound: core.ErrNotFound,
		})
	}

	return normalize.ProviderError(ProviderName, status, requestID, code, env.Message, sentinel)
}

// newNetworkError creates a ProviderError for network-related failures.
func newNetworkError(err error) error {
	return normalize.NetworkError(ProviderName, err)
}

// newDecodeError creates a ProviderError for JSON decode failures.
func newDecodeError(err error) error {
	return normalize.DecodeError(ProviderName, err)
}
