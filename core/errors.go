package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ProviderError represents a classified failure of a single attempt or stream.
type ProviderError struct {
	Provider  string
	Status    int
	RequestID string
	Code      string
	Message   string

	// RetryAfter is the server-provided wait hint, zero when absent.
	RetryAfter time.Duration

	// Err is one of the sentinel errors below and determines the Kind.
	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("%s: %s (status=%d, code=%s, request_id=%s)",
			e.Provider, e.Message, e.Status, e.Code, e.RequestID)
	}
	return fmt.Sprintf("%s: %s (status=%d, code=%s)",
		e.Provider, e.Message, e.Status, e.Code)
}

// Unwrap returns the underlying error for error chaining.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Kind returns the classification of the error.
func (e *ProviderError) Kind() ErrorKind {
	return kindOfSentinel(e.Err)
}

// Sentinel errors for classification.
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrRateLimited        = errors.New("rate limited")
	ErrBadRequest         = errors.New("bad request")
	ErrNotFound           = errors.New("not found")
	ErrServer             = errors.New("server error")
	ErrNetwork            = errors.New("network error")
	ErrDecode             = errors.New("decode error")
	ErrAbruptTermination  = errors.New("stream terminated without a terminal event")
	ErrInvalidRateLimit   = errors.New("invalid rate limit configuration")
	ErrStreamClosed       = errors.New("stream closed")
	ErrMissingCredentials = errors.New("missing API key")
)

// ErrorKind is the error taxonomy used by the retry machinery.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindTransport
	KindRateLimited
	KindServer
	KindClient
	KindAuth
	KindDecode
	KindAbruptTermination
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server"
	case KindClient:
		return "client"
	case KindAuth:
		return "auth"
	case KindDecode:
		return "decode"
	case KindAbruptTermination:
		return "abrupt_termination"
	default:
		return "unknown"
	}
}

// Retryable reports whether failures of this kind may be retried.
// Unknown fails closed.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTransport, KindRateLimited, KindServer:
		return true
	default:
		return false
	}
}

// Sentinel returns the sentinel error carried by ProviderErrors of this kind.
func (k ErrorKind) Sentinel() error {
	switch k {
	case KindTransport:
		return ErrNetwork
	case KindRateLimited:
		return ErrRateLimited
	case KindServer:
		return ErrServer
	case KindClient:
		return ErrBadRequest
	case KindAuth:
		return ErrUnauthorized
	case KindDecode:
		return ErrDecode
	case KindAbruptTermination:
		return ErrAbruptTermination
	default:
		return nil
	}
}

func kindOfSentinel(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrNetwork):
		return KindTransport
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrServer):
		return KindServer
	case errors.Is(err, ErrUnauthorized):
		return KindAuth
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrNotFound):
		return KindClient
	case errors.Is(err, ErrDecode):
		return KindDecode
	case errors.Is(err, ErrAbruptTermination):
		return KindAbruptTermination
	default:
		return KindUnknown
	}
}

// KindOf classifies any error returned by this module.
// Context cancellation and unrecognised errors are KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindUnknown
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		if k := pe.Kind(); k != KindUnknown {
			return k
		}
		if pe.Status != 0 {
			return KindForStatus(pe.Status)
		}
		return KindUnknown
	}
	return kindOfSentinel(err)
}

// IsRetryable reports whether err may be retried.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}

// RetryAfterOf extracts the server retry hint from err, if any.
func RetryAfterOf(err error) time.Duration {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}

// Attempt records one physical network round-trip within a logical call.
type Attempt struct {
	Number     int           // 1-based, strictly increasing within a call
	StatusCode int           // 0 when no response was received
	Err        error         // nil on success
	Elapsed    time.Duration // time spent in dispatch and body read
	Delay      time.Duration // backoff slept after this attempt, zero if none
}

// CallError is the final failure of a logical call.
// It carries the attempt history for diagnosis.
type CallError struct {
	Attempts []Attempt
	Elapsed  time.Duration
	Err      error
}

// Error implements the error interface.
func (e *CallError) Error() string {
	return fmt.Sprintf("%v (after %d attempt(s) in %s)", e.Err, len(e.Attempts), e.Elapsed.Round(time.Millisecond))
}

// Unwrap returns the last classified error.
func (e *CallError) Unwrap() error {
	return e.Err
}

// AttemptsOf returns the attempt history attached to err, if any.
func AttemptsOf(err error) []Attempt {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Attempts
	}
	return nil
}

// KindForStatus maps an HTTP status code to an error kind using DefaultStatusTable.
func KindForStatus(status int) ErrorKind {
	return DefaultStatusTable.Kind(status)
}

// SentinelForErrorType maps an API error type, as sent in error bodies and
// stream error events, to a sentinel. It returns nil for unrecognised types.
func SentinelForErrorType(errType string) error {
	switch errType {
	case "invalid_request_error", "request_too_large":
		return ErrBadRequest
	case "authentication_error", "permission_error":
		return ErrUnauthorized
	case "not_found_error":
		return ErrNotFound
	case "rate_limit_error":
		return ErrRateLimited
	case "api_error", "overloaded_error", "timeout_error":
		return ErrServer
	default:
		return nil
	}
}

// StatusTable maps HTTP status codes to error kinds. Codes not listed fall
// back to their class: 5xx is server, other 4xx is client, anything else unknown.
type StatusTable map[int]ErrorKind

// DefaultStatusTable is the classification used when none is configured.
var DefaultStatusTable = StatusTable{
	http.StatusBadRequest:          KindClient,
	http.StatusUnauthorized:        KindAuth,
	http.StatusForbidden:           KindAuth,
	http.StatusNotFound:            KindClient,
	http.StatusRequestTimeout:      KindTransport,
	http.StatusTooManyRequests:     KindRateLimited,
	http.StatusInternalServerError: KindServer,
	http.StatusBadGateway:          KindServer,
	http.StatusServiceUnavailable:  KindServer,
	http.StatusGatewayTimeout:      KindServer,
	529:                            KindServer, // overloaded
}

// Kind returns the kind for status.
func (t StatusTable) Kind(status int) ErrorKind {
	if k, ok := t[status]; ok {
		return k
	}
	switch {
	case status >= 500 && status < 600:
		return KindServer
	case status >= 400 && status < 500:
		return KindClient
	default:
		return KindUnknown
	}
}

// Validation errors with actionable guidance.
var (
	ErrModelRequired = errors.New("model required: set MessageRequest.Model, e.g. \"claude-3-5-haiku-20241022\"")
	ErrNoMessages    = errors.New("no messages: add at least one user message to the request")
)
