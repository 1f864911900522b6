package core

import "time"

// TelemetryHook receives notifications about the lifecycle of logical calls.
// Implementations can use this for logging, metrics, tracing, etc.
//
// # Security Considerations
//
// Event types never include sensitive data: no API keys, no request or
// response bodies, no headers. Only operational metadata is exposed.
// Keep it that way when adding fields.
//
// Hooks are called synchronously from the calling goroutine and must be safe
// for concurrent use.
type TelemetryHook interface {
	// OnRequestStart is called once when a logical call begins.
	OnRequestStart(e RequestStartEvent)

	// OnAttempt is called after each physical attempt has been classified.
	OnAttempt(e AttemptEvent)

	// OnRequestEnd is called once when a logical call reaches its outcome.
	// For streaming calls this is when the stream was established or given up.
	OnRequestEnd(e RequestEndEvent)
}

// RequestStartEvent contains metadata about a starting logical call.
type RequestStartEvent struct {
	Provider  string    // Provider identifier (e.g., "anthropic")
	Class     string    // Endpoint class (e.g., "messages")
	RequestID string    // Client-generated id shared by all attempts
	Streaming bool      // Whether the call opens an event stream
	Start     time.Time // When the call started
}

// AttemptEvent describes one classified attempt.
type AttemptEvent struct {
	Provider  string
	Class     string
	RequestID string
	Attempt   Attempt
	Retrying  bool // Whether another attempt follows after Attempt.Delay
}

// RequestEndEvent contains metadata about a finished logical call.
//
// The Err field contains classified errors, never raw response bodies.
type RequestEndEvent struct {
	Provider  string
	Class     string
	RequestID string
	Streaming bool
	Start     time.Time // When the call started
	End       time.Time // When the outcome was reached
	Attempts  int       // Number of physical attempts
	Err       error     // Error if the call failed, nil on success
}

// Duration returns the elapsed time for the call.
func (e RequestEndEvent) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// NoopTelemetryHook is a no-op implementation of TelemetryHook.
// Use this as a default when no telemetry is configured.
type NoopTelemetryHook struct{}

// OnRequestStart does nothing.
func (NoopTelemetryHook) OnRequestStart(RequestStartEvent) {}

// OnAttempt does nothing.
func (NoopTelemetryHook) OnAttempt(AttemptEvent) {}

// OnRequestEnd does nothing.
func (NoopTelemetryHook) OnRequestEnd(RequestEndEvent) {}

// Compile-time check that NoopTelemetryHook implements TelemetryHook.
var _ TelemetryHook = NoopTelemetryHook{}
