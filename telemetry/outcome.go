package telemetry

import (
	"context"
	"errors"

	"github.com/petal-labs/anthropic-go/core"
)

// outcome labels a call or attempt result. Successful calls are "ok",
// caller cancellations "canceled", and failures their error kind.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return core.KindOf(err).String()
	}
}
