package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/petal-labs/anthropic-go/core"
)

// MetricsHook records Prometheus metrics for logical calls and attempts.
type MetricsHook struct {
	calls    *prometheus.CounterVec
	attempts *prometheus.CounterVec
	retries  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight *prometheus.GaugeVec
}

// NewMetricsHook creates the metrics and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetricsHook(reg prometheus.Registerer) (*MetricsHook, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	h := &MetricsHook{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "anthropic_client",
				Name:      "calls_total",
				Help:      "Logical calls by provider, class and outcome.",
			},
			[]string{"provider", "class", "outcome"},
		),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "anthropic_client",
				Name:      "attempts_total",
				Help:      "Physical attempts by provider, class and HTTP status.",
			},
			[]string{"provider", "class", "status"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "anthropic_client",
				Name:      "retries_total",
				Help:      "Attempts followed by a retry, by error kind.",
			},
			[]string{"provider", "class", "kind"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "anthropic_client",
				Name:      "call_duration_seconds",
				Help:      "Time from call start to outcome, including backoff.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"provider", "class", "streaming"},
		),
		inflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "anthropic_client",
				Name:      "inflight_calls",
				Help:      "Logical calls that have not reached an outcome.",
			},
			[]string{"provider", "class"},
		),
	}

	for _, c := range []prometheus.Collector{h.calls, h.attempts, h.retries, h.duration, h.inflight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// OnRequestStart implements core.TelemetryHook.
func (h *MetricsHook) OnRequestStart(e core.RequestStartEvent) {
	h.inflight.WithLabelValues(e.Provider, e.Class).Inc()
}

// OnAttempt implements core.TelemetryHook.
func (h *MetricsHook) OnAttempt(e core.AttemptEvent) {
	status := "none"
	if e.Attempt.StatusCode != 0 {
		status = strconv.Itoa(e.Attempt.StatusCode)
	}
	h.attempts.WithLabelValues(e.Provider, e.Class, status).Inc()
	if e.Retrying {
		h.retries.WithLabelValues(e.Provider, e.Class, outcome(e.Attempt.Err)).Inc()
	}
}

// OnRequestEnd implements core.TelemetryHook.
func (h *MetricsHook) OnRequestEnd(e core.RequestEndEvent) {
	h.inflight.WithLabelValues(e.Provider, e.Class).Dec()
	h.calls.WithLabelValues(e.Provider, e.Class, outcome(e.Err)).Inc()
	h.duration.WithLabelValues(e.Provider, e.Class, strconv.FormatBool(e.Streaming)).
		Observe(e.Duration().Seconds())
}

var _ core.TelemetryHook = (*MetricsHook)(nil)
