// Package telemetry provides core.TelemetryHook implementations.
//
// LogHook writes call lifecycle events to a zap logger, MetricsHook records
// Prometheus counters and histograms, and TraceHook opens one OpenTelemetry
// span per logical call with an event per attempt. Combine them with Multi:
//
//	hook := telemetry.Multi(
//	    telemetry.NewLogHook(logger),
//	    metrics,
//	    telemetry.NewTraceHook(otel.Tracer("anthropic-go")),
//	)
//	client := anthropic.New(key, anthropic.WithTelemetry(hook))
package telemetry
