package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/petal-labs/anthropic-go/core"
)

var serverErr = &core.ProviderError{Provider: "anthropic", Status: 503, Err: core.ErrServer}

// replay sends one call with a failed attempt followed by the final attempt.
func replay(h core.TelemetryHook, id string, final error) {
	start := time.Now()
	h.OnRequestStart(core.RequestStartEvent{Provider: "anthropic", Class: "messages", RequestID: id, Start: start})
	h.OnAttempt(core.AttemptEvent{
		Provider: "anthropic", Class: "messages", RequestID: id, Retrying: true,
		Attempt: core.Attempt{Number: 1, StatusCode: 503, Err: serverErr, Delay: 10 * time.Millisecond},
	})
	status := 200
	if final != nil {
		status = 0
	}
	h.OnAttempt(core.AttemptEvent{
		Provider: "anthropic", Class: "messages", RequestID: id,
		Attempt: core.Attempt{Number: 2, StatusCode: status, Err: final},
	})
	h.OnRequestEnd(core.RequestEndEvent{
		Provider: "anthropic", Class: "messages", RequestID: id,
		Start: start, End: start.Add(40 * time.Millisecond), Attempts: 2, Err: final,
	})
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", outcome(nil))
	assert.Equal(t, "canceled", outcome(context.Canceled))
	assert.Equal(t, "server", outcome(serverErr))
	assert.Equal(t, "unknown", outcome(errors.New("boom")))
}

func TestLogHook(t *testing.T) {
	obsCore, logs := observer.New(zapcore.DebugLevel)
	hook := NewLogHook(zap.New(obsCore))

	replay(hook, "req-ok", nil)
	replay(hook, "req-fail", core.ErrNetwork)

	assert.Equal(t, 2, logs.FilterMessage("call started").Len())
	assert.Equal(t, 4, logs.FilterMessage("attempt finished").Len())

	done := logs.FilterMessage("call completed").All()
	require.Len(t, done, 1)
	assert.Equal(t, zapcore.InfoLevel, done[0].Level)
	assert.Equal(t, "req-ok", done[0].ContextMap()["request_id"])

	failed := logs.FilterMessage("call failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.WarnLevel, failed[0].Level)
	assert.Equal(t, "transport", failed[0].ContextMap()["outcome"])

	retried := logs.FilterMessage("attempt finished").FilterField(zap.Duration("delay", 10*time.Millisecond))
	assert.Equal(t, 2, retried.Len())
}

func TestNewLogHookNil(t *testing.T) {
	hook := NewLogHook(nil)
	assert.NotPanics(t, func() { replay(hook, "req", nil) })
}

func TestMetricsHook(t *testing.T) {
	reg := prometheus.NewRegistry()
	hook, err := NewMetricsHook(reg)
	require.NoError(t, err)

	replay(hook, "a", nil)
	replay(hook, "b", nil)
	replay(hook, "c", core.ErrRateLimited)

	assert.Equal(t, 2.0, testutil.ToFloat64(hook.calls.WithLabelValues("anthropic", "messages", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(hook.calls.WithLabelValues("anthropic", "messages", "rate_limited")))
	assert.Equal(t, 3.0, testutil.ToFloat64(hook.attempts.WithLabelValues("anthropic", "messages", "503")))
	assert.Equal(t, 2.0, testutil.ToFloat64(hook.attempts.WithLabelValues("anthropic", "messages", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(hook.attempts.WithLabelValues("anthropic", "messages", "none")))
	assert.Equal(t, 3.0, testutil.ToFloat64(hook.retries.WithLabelValues("anthropic", "messages", "server")))
	assert.Equal(t, 0.0, testutil.ToFloat64(hook.inflight.WithLabelValues("anthropic", "messages")))
	assert.Equal(t, 1, testutil.CollectAndCount(hook.duration))
}

func TestMetricsHookDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetricsHook(reg)
	require.NoError(t, err)

	_, err = NewMetricsHook(reg)
	assert.Error(t, err)
}

func newRecorder() (*tracetest.SpanRecorder, *TraceHook) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	return rec, NewTraceHook(tp.Tracer("test"))
}

func TestTraceHook(t *testing.T) {
	rec, hook := newRecorder()

	replay(hook, "req-ok", nil)
	replay(hook, "req-fail", serverErr)

	spans := rec.Ended()
	require.Len(t, spans, 2)

	ok := spans[0]
	assert.Equal(t, "anthropic.messages", ok.Name())
	assert.Equal(t, codes.Ok, ok.Status().Code)
	require.Len(t, ok.Events(), 2)
	assert.Equal(t, "attempt", ok.Events()[0].Name)
	assert.Equal(t, 40*time.Millisecond, ok.EndTime().Sub(ok.StartTime()))

	failed := spans[1]
	assert.Equal(t, codes.Error, failed.Status().Code)
	assert.Equal(t, "server", failed.Status().Description)

	assert.Empty(t, hook.spans, "ended spans must be released")
}

func TestTraceHookIgnoresUnknownCall(t *testing.T) {
	rec, hook := newRecorder()

	hook.OnAttempt(core.AttemptEvent{RequestID: "missing"})
	hook.OnRequestEnd(core.RequestEndEvent{RequestID: "missing"})

	assert.Empty(t, rec.Ended())
}

type countingHook struct {
	core.NoopTelemetryHook
	ends int
}

func (c *countingHook) OnRequestEnd(core.RequestEndEvent) { c.ends++ }

func TestMulti(t *testing.T) {
	a, b := &countingHook{}, &countingHook{}

	hook := Multi(a, nil, b)
	replay(hook, "x", nil)

	assert.Equal(t, 1, a.ends)
	assert.Equal(t, 1, b.ends)
	assert.Same(t, a, Multi(nil, a))
}

func TestHooksWithExecutor(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	obsCore, logs := observer.New(zapcore.DebugLevel)
	reg := prometheus.NewRegistry()
	metrics, err := NewMetricsHook(reg)
	require.NoError(t, err)
	rec, traces := newRecorder()

	exec := core.NewExecutor(
		core.WithProviderName("anthropic"),
		core.WithRetryPolicy(core.NewRetryPolicy(core.RetryConfig{
			MaxRetries: 2,
			BaseDelay:  time.Millisecond,
			MaxDelay:   2 * time.Millisecond,
		})),
		core.WithTelemetry(Multi(NewLogHook(zap.New(obsCore)), metrics, traces)),
	)

	_, err = exec.Do(context.Background(), "messages", func(ctx context.Context, attempt int) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		if err != nil {
			return nil, err
		}
		return http.DefaultClient.Do(req)
	})
	require.NoError(t, err)

	assert.Equal(t, 1, logs.FilterMessage("call completed").Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.calls.WithLabelValues("anthropic", "messages", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.retries.WithLabelValues("anthropic", "messages", "server")))
	require.Len(t, rec.Ended(), 1)
	assert.Len(t, rec.Ended()[0].Events(), 2)
}
