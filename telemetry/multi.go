package telemetry

import "github.com/petal-labs/anthropic-go/core"

type multiHook []core.TelemetryHook

// Multi fans events out to hooks in order. Nil hooks are skipped.
func Multi(hooks ...core.TelemetryHook) core.TelemetryHook {
	var m multiHook
	for _, h := range hooks {
		if h != nil {
			m = append(m, h)
		}
	}
	if len(m) == 1 {
		return m[0]
	}
	return m
}

func (m multiHook) OnRequestStart(e core.RequestStartEvent) {
	for _, h := range m {
		h.OnRequestStart(e)
	}
}

func (m multiHook) OnAttempt(e core.AttemptEvent) {
	for _, h := range m {
		h.OnAttempt(e)
	}
}

func (m multiHook) OnRequestEnd(e core.RequestEndEvent) {
	for _, h := range m {
		h.OnRequestEnd(e)
	}
}
