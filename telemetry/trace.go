package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/anthropic-go/core"
)

// TraceHook records one span per logical call. Attempts are added as span
// events. Spans are keyed by request id since hooks receive no context.
type TraceHook struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]trace.Span
}

// NewTraceHook returns a TraceHook that starts spans with tracer.
func NewTraceHook(tracer trace.Tracer) *TraceHook {
	return &TraceHook{
		tracer: tracer,
		spans:  make(map[string]trace.Span),
	}
}

// OnRequestStart implements core.TelemetryHook.
func (h *TraceHook) OnRequestStart(e core.RequestStartEvent) {
	_, span := h.tracer.Start(context.Background(), e.Provider+"."+e.Class,
		trace.WithTimestamp(e.Start),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.provider", e.Provider),
			attribute.String("llm.class", e.Class),
			attribute.String("llm.request_id", e.RequestID),
			attribute.Bool("llm.streaming", e.Streaming),
		),
	)

	h.mu.Lock()
	h.spans[e.RequestID] = span
	h.mu.Unlock()
}

// OnAttempt implements core.TelemetryHook.
func (h *TraceHook) OnAttempt(e core.AttemptEvent) {
	h.mu.Lock()
	span, ok := h.spans[e.RequestID]
	h.mu.Unlock()
	if !ok {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.Int("attempt", e.Attempt.Number),
		attribute.Int("http.status_code", e.Attempt.StatusCode),
		attribute.String("outcome", outcome(e.Attempt.Err)),
		attribute.Bool("retrying", e.Retrying),
	}
	if e.Retrying {
		attrs = append(attrs, attribute.Int64("delay_ms", e.Attempt.Delay.Milliseconds()))
	}
	span.AddEvent("attempt", trace.WithAttributes(attrs...))
}

// OnRequestEnd implements core.TelemetryHook.
func (h *TraceHook) OnRequestEnd(e core.RequestEndEvent) {
	h.mu.Lock()
	span, ok := h.spans[e.RequestID]
	delete(h.spans, e.RequestID)
	h.mu.Unlock()
	if !ok {
		return
	}

	span.SetAttributes(attribute.Int("llm.attempts", e.Attempts))
	if e.Err != nil {
		span.RecordError(e.Err)
		span.SetStatus(codes.Error, outcome(e.Err))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(e.End))
}

var _ core.TelemetryHook = (*TraceHook)(nil)
