package core

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy determines retry behavior for failed attempts.
type RetryPolicy interface {
	// NextDelay returns the delay before the next attempt and whether to retry.
	// attempt is the 1-based number of the attempt that just failed with err.
	// If ok is false, no more attempts should be made.
	NextDelay(attempt int, err error) (delay time.Duration, ok bool)
}

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxRetries int           // Maximum number of retries after the first attempt (default: 3)
	BaseDelay  time.Duration // Delay before the first retry (default: 1s)
	MaxDelay   time.Duration // Maximum computed delay (default: 60s)
	Multiplier float64       // Growth factor per attempt (default: 2)
	Jitter     float64       // Jitter fraction 0.0-1.0 (default: 0.2)
	MaxElapsed time.Duration // Total time budget for one call including waits (default: 5m, negative: none)
}

// ElapsedBudget is implemented by policies that bound the total time one
// logical call may spend across attempts and backoff waits.
type ElapsedBudget interface {
	MaxElapsed() time.Duration
}

// DefaultRetryConfig returns the configuration used by DefaultRetryPolicy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   60 * time.Second,
		Multiplier: 2,
		Jitter:     0.2,
		MaxElapsed: 5 * time.Minute,
	}
}

// DefaultRetryPolicy returns a retry policy with sensible defaults.
// Uses exponential backoff with jitter, max 3 retries, 60s max delay.
func DefaultRetryPolicy() RetryPolicy {
	return NewRetryPolicy(DefaultRetryConfig())
}

// NewRetryPolicy creates a retry policy with the given configuration.
// A negative MaxRetries disables retries; a negative Jitter is treated as zero.
// A zero MaxElapsed takes the default and a negative one removes the budget.
func NewRetryPolicy(cfg RetryConfig) RetryPolicy {
	def := DefaultRetryConfig()
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	if cfg.Jitter > 1 {
		cfg.Jitter = def.Jitter
	}
	if cfg.MaxElapsed == 0 {
		cfg.MaxElapsed = def.MaxElapsed
	}
	if cfg.MaxElapsed < 0 {
		cfg.MaxElapsed = 0
	}
	return &exponentialBackoff{cfg: cfg, rand: rand.Float64}
}

// NoRetry returns a policy that never retries.
func NoRetry() RetryPolicy {
	return noRetry{}
}

type noRetry struct{}

func (noRetry) NextDelay(int, error) (time.Duration, bool) { return 0, false }

type exponentialBackoff struct {
	cfg  RetryConfig
	rand func() float64
}

// MaxElapsed returns the call budget, or 0 when unbounded.
func (e *exponentialBackoff) MaxElapsed() time.Duration {
	return e.cfg.MaxElapsed
}

func (e *exponentialBackoff) NextDelay(attempt int, err error) (time.Duration, bool) {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > e.cfg.MaxRetries {
		return 0, false
	}
	if !isRetryable(err) {
		return 0, false
	}

	delay := e.backoff(attempt)

	// A server that asked for more time gets at least that much.
	if KindOf(err) == KindRateLimited {
		if hint := RetryAfterOf(err); hint > delay {
			delay = hint
		}
	}
	return delay, true
}

// backoff computes min(MaxDelay, Base*Multiplier^(attempt-1)) with jitter.
func (e *exponentialBackoff) backoff(attempt int) time.Duration {
	delay := float64(e.cfg.BaseDelay) * math.Pow(e.cfg.Multiplier, float64(attempt-1))
	maxDelay := float64(e.cfg.MaxDelay)
	if delay > maxDelay || math.IsInf(delay, 1) || math.IsNaN(delay) {
		delay = maxDelay
	}

	// Apply jitter: delay * (1 + random(-jitter, +jitter))
	if e.cfg.Jitter > 0 {
		jitterRange := delay * e.cfg.Jitter
		delay += (e.rand()*2 - 1) * jitterRange
	}

	if delay > maxDelay {
		delay = maxDelay
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// isRetryable determines if an error should trigger a retry.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Context cancellation is not retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	return IsRetryable(err)
}

// RetryStats summarises how logical calls fared across retries.
type RetryStats struct {
	TotalRequests      uint64
	SuccessfulFirstTry uint64
	RetriedRequests    uint64
	FailedRequests     uint64
	TotalRetryAttempts uint64
	TotalRetryDelay    time.Duration
}

// SuccessRate returns the percentage of calls that eventually succeeded.
func (s RetryStats) SuccessRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.TotalRequests-s.FailedRequests) / float64(s.TotalRequests) * 100
}

// RetryRate returns the percentage of calls that needed at least one retry.
func (s RetryStats) RetryRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.RetriedRequests) / float64(s.TotalRequests) * 100
}

// AverageRetries returns the mean number of retries per retried call.
func (s RetryStats) AverageRetries() float64 {
	if s.RetriedRequests == 0 {
		return 0
	}
	return float64(s.TotalRetryAttempts) / float64(s.RetriedRequests)
}
