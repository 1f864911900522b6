// Package core provides the resilience layer shared by every API call:
// admission control, retry with backoff, error classification and
// telemetry hooks.
//
// # Logical calls and attempts
//
// A logical call is one request made by a caller. It may take several
// physical attempts. [Executor] drives a logical call:
//
//	exec := core.NewExecutor(
//	    core.WithRateLimiter(limiter),
//	    core.WithRetryPolicy(core.DefaultRetryPolicy()),
//	    core.WithLogger(logger),
//	)
//	resp, err := exec.Do(ctx, "messages", dispatch)
//
// Each attempt takes one token from the [RateLimiter], is dispatched,
// classified, and either returned, retried after a cancellable backoff, or
// given up on. Tokens are never refunded.
//
// Streaming calls use [Executor.Open]. Retries cover only establishing the
// stream; once a 2xx response arrives its body is handed to the caller and
// a later failure is reported, never replayed.
//
// # Errors
//
// Every failure is a [*ProviderError] wrapping one of the sentinel errors,
// so callers can use errors.Is:
//
//	if errors.Is(err, core.ErrRateLimited) {
//	    // back off
//	}
//
// [KindOf] maps any error to an [ErrorKind]. Only transport, rate-limited
// and server errors are retried. A call that fails returns a [*CallError]
// carrying the attempt history; use [AttemptsOf] to inspect it.
//
// # Telemetry
//
// A [TelemetryHook] observes call start, every attempt, and call end. The
// telemetry package provides logging, Prometheus and OpenTelemetry hooks.
package core
