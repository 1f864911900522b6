package core

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitConfig configures client-side admission control.
type RateLimitConfig struct {
	// Capacity is the bucket size: how many calls may start back to back.
	Capacity int

	// Rate is the continuous refill rate in tokens per second.
	Rate float64

	// MaxWait bounds how long Acquire blocks. Zero waits until ctx is done.
	MaxWait time.Duration

	// Classes adds an optional second bucket per logical endpoint class.
	Classes map[string]ClassLimit
}

// ClassLimit is the bucket for one endpoint class.
type ClassLimit struct {
	Capacity int
	Rate     float64
}

// PerSecond returns a config allowing n calls per second with a burst of n.
func PerSecond(n int) RateLimitConfig {
	return RateLimitConfig{Capacity: n, Rate: float64(n)}
}

// PerMinute returns a config allowing n calls per minute with a burst of n.
func PerMinute(n int) RateLimitConfig {
	return RateLimitConfig{Capacity: n, Rate: float64(n) / 60}
}

// PerHour returns a config allowing n calls per hour with a burst of n.
func PerHour(n int) RateLimitConfig {
	return RateLimitConfig{Capacity: n, Rate: float64(n) / 3600}
}

// RateLimitStats summarises admission activity.
type RateLimitStats struct {
	TotalRequests  uint64
	WaitedRequests uint64
	Rejected       uint64
	TotalWait      time.Duration
	MaxWait        time.Duration
}

// WaitedPercentage returns the share of admitted requests that had to wait.
func (s RateLimitStats) WaitedPercentage() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.WaitedRequests) / float64(s.TotalRequests) * 100
}

// AverageWait returns the mean wait of requests that waited.
func (s RateLimitStats) AverageWait() time.Duration {
	if s.WaitedRequests == 0 {
		return 0
	}
	return s.TotalWait / time.Duration(s.WaitedRequests)
}

// RateLimiter is a continuous-refill token bucket shared by every call of one
// client. It is safe for concurrent use.
//
// Tokens are only ever taken when one is available, so the bucket never goes
// negative and waiting callers hold no reservation. Admission among waiters is
// best-effort, not FIFO.
type RateLimiter struct {
	cfg     RateLimitConfig
	global  *rate.Limiter
	classes map[string]*rate.Limiter
	logger  *zap.Logger

	mu    sync.Mutex
	stats RateLimitStats
}

// NewRateLimiter validates cfg and builds a limiter. The bucket starts full.
func NewRateLimiter(cfg RateLimitConfig, logger *zap.Logger) (*RateLimiter, error) {
	if err := validateBucket("", cfg.Capacity, cfg.Rate); err != nil {
		return nil, err
	}
	if cfg.MaxWait < 0 {
		return nil, fmt.Errorf("%w: max wait must not be negative", ErrInvalidRateLimit)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &RateLimiter{
		cfg:     cfg,
		global:  rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Capacity),
		classes: make(map[string]*rate.Limiter, len(cfg.Classes)),
		logger:  logger,
	}
	for name, c := range cfg.Classes {
		if err := validateBucket(name, c.Capacity, c.Rate); err != nil {
			return nil, err
		}
		l.classes[name] = rate.NewLimiter(rate.Limit(c.Rate), c.Capacity)
	}
	return l, nil
}

func validateBucket(class string, capacity int, r float64) error {
	where := "rate limit"
	if class != "" {
		where = fmt.Sprintf("rate limit class %q", class)
	}
	if capacity <= 0 {
		return fmt.Errorf("%w: %s capacity must be positive, got %d", ErrInvalidRateLimit, where, capacity)
	}
	if r <= 0 || math.IsNaN(r) || math.IsInf(r, 0) {
		return fmt.Errorf("%w: %s refill rate must be positive, got %v", ErrInvalidRateLimit, where, r)
	}
	return nil
}

// Config returns the limiter configuration.
func (l *RateLimiter) Config() RateLimitConfig {
	return l.cfg
}

// Acquire blocks until the global bucket admits one call.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	return l.AcquireClass(ctx, "")
}

// AcquireClass blocks until the global bucket and, if configured, the bucket
// for class admit one call. It returns ctx.Err() when ctx ends first and a
// rate-limited ProviderError when MaxWait elapses. A token taken from the
// global bucket is not returned if the class bucket then times out.
func (l *RateLimiter) AcquireClass(ctx context.Context, class string) error {
	start := time.Now()
	waitCtx := ctx
	if l.cfg.MaxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.cfg.MaxWait)
		defer cancel()
	}

	err := l.take(ctx, waitCtx, l.global)
	if err == nil {
		if cl, ok := l.classes[class]; ok {
			err = l.take(ctx, waitCtx, cl)
		}
	}

	waited := time.Since(start)
	l.record(waited, err)
	if err != nil {
		l.logger.Debug("rate limiter admission failed",
			zap.String("class", class), zap.Duration("waited", waited), zap.Error(err))
		return err
	}
	if waited > time.Millisecond {
		l.logger.Debug("rate limiter delayed call",
			zap.String("class", class), zap.Duration("waited", waited))
	}
	return nil
}

// take polls lim until a token is available. parent is the caller context;
// waitCtx additionally carries MaxWait.
func (l *RateLimiter) take(parent, waitCtx context.Context, lim *rate.Limiter) error {
	for {
		now := time.Now()
		if lim.AllowN(now, 1) {
			return nil
		}

		// Time until one whole token has accrued.
		missing := 1 - lim.TokensAt(now)
		d := time.Duration(missing / float64(lim.Limit()) * float64(time.Second))
		if d < time.Millisecond {
			d = time.Millisecond
		}

		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-waitCtx.Done():
			timer.Stop()
			if err := parent.Err(); err != nil {
				return err
			}
			return &ProviderError{
				Provider: "client",
				Code:     "admission_timeout",
				Message:  fmt.Sprintf("no rate limit token within %s", l.cfg.MaxWait),
				Err:      ErrRateLimited,
			}
		}
	}
}

// TryAcquire takes a global token if one is available right now.
func (l *RateLimiter) TryAcquire() bool {
	return l.TryAcquireClass("")
}

// TryAcquireClass takes a token from the global bucket and the class bucket
// only if both have one available right now.
func (l *RateLimiter) TryAcquireClass(class string) bool {
	now := time.Now()
	cl, hasClass := l.classes[class]
	if hasClass && cl.TokensAt(now) < 1 {
		l.record(0, errTryFailed)
		return false
	}
	if !l.global.AllowN(now, 1) {
		l.record(0, errTryFailed)
		return false
	}
	if hasClass && !cl.AllowN(now, 1) {
		// Lost a race for the class token; the global token stays spent.
		l.record(0, errTryFailed)
		return false
	}
	l.record(0, nil)
	return true
}

var errTryFailed = fmt.Errorf("%w: no token available", ErrRateLimited)

// Tokens returns the tokens currently available in the global bucket,
// clamped to [0, Capacity].
func (l *RateLimiter) Tokens() float64 {
	t := l.global.Tokens()
	return math.Max(0, math.Min(t, float64(l.cfg.Capacity)))
}

// Observe inspects server rate-limit headers. It never blocks; it only warns
// when the server reports the window is nearly used up.
func (l *RateLimiter) Observe(info RateLimitInfo) {
	if !info.IsApproachingLimit(0.8) {
		return
	}
	l.logger.Warn("approaching server rate limit",
		zap.Int("remaining", info.Remaining),
		zap.Int("limit", info.Limit),
		zap.Float64("used_ratio", info.UsageRatio()),
		zap.Time("reset", info.Reset))
}

// Stats returns a snapshot of admission statistics.
func (l *RateLimiter) Stats() RateLimitStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// ResetStats clears the statistics.
func (l *RateLimiter) ResetStats() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats = RateLimitStats{}
}

func (l *RateLimiter) record(waited time.Duration, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.stats.Rejected++
		return
	}
	l.stats.TotalRequests++
	if waited > time.Millisecond {
		l.stats.WaitedRequests++
		l.stats.TotalWait += waited
		if waited > l.stats.MaxWait {
			l.stats.MaxWait = waited
		}
	}
}
