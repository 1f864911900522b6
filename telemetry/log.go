package telemetry

import (
	"go.uber.org/zap"

	"github.com/petal-labs/anthropic-go/core"
)

// LogHook logs call lifecycle events. Starts and attempts are logged at
// Debug; failed calls at Warn and successful calls at Info.
type LogHook struct {
	logger *zap.Logger
}

// NewLogHook returns a LogHook writing to logger. A nil logger discards.
func NewLogHook(logger *zap.Logger) *LogHook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogHook{logger: logger}
}

// OnRequestStart implements core.TelemetryHook.
func (h *LogHook) OnRequestStart(e core.RequestStartEvent) {
	h.logger.Debug("call started",
		zap.String("provider", e.Provider),
		zap.String("class", e.Class),
		zap.String("request_id", e.RequestID),
		zap.Bool("streaming", e.Streaming),
	)
}

// OnAttempt implements core.TelemetryHook.
func (h *LogHook) OnAttempt(e core.AttemptEvent) {
	fields := []zap.Field{
		zap.String("provider", e.Provider),
		zap.String("class", e.Class),
		zap.String("request_id", e.RequestID),
		zap.Int("attempt", e.Attempt.Number),
		zap.Int("status", e.Attempt.StatusCode),
		zap.Duration("elapsed", e.Attempt.Elapsed),
		zap.String("outcome", outcome(e.Attempt.Err)),
	}
	if e.Retrying {
		fields = append(fields, zap.Duration("delay", e.Attempt.Delay))
	}
	if e.Attempt.Err != nil {
		fields = append(fields, zap.Error(e.Attempt.Err))
	}
	h.logger.Debug("attempt finished", fields...)
}

// OnRequestEnd implements core.TelemetryHook.
func (h *LogHook) OnRequestEnd(e core.RequestEndEvent) {
	fields := []zap.Field{
		zap.String("provider", e.Provider),
		zap.String("class", e.Class),
		zap.String("request_id", e.RequestID),
		zap.Bool("streaming", e.Streaming),
		zap.Int("attempts", e.Attempts),
		zap.Duration("duration", e.Duration()),
	}
	if e.Err != nil {
		h.logger.Warn("call failed", append(fields,
			zap.String("outcome", outcome(e.Err)),
			zap.Error(e.Err),
		)...)
		return
	}
	h.logger.Info("call completed", fields...)
}

var _ core.TelemetryHook = (*LogHook)(nil)
