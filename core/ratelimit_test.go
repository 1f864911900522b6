package core

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// slow refills far slower than any test runs.
const slow = 0.001

func TestNewRateLimiterValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  RateLimitConfig
	}{
		{"zero capacity", RateLimitConfig{Capacity: 0, Rate: 1}},
		{"negative capacity", RateLimitConfig{Capacity: -1, Rate: 1}},
		{"zero rate", RateLimitConfig{Capacity: 1, Rate: 0}},
		{"negative rate", RateLimitConfig{Capacity: 1, Rate: -2}},
		{"negative max wait", RateLimitConfig{Capacity: 1, Rate: 1, MaxWait: -time.Second}},
		{"bad class", RateLimitConfig{Capacity: 1, Rate: 1, Classes: map[string]ClassLimit{"messages": {Capacity: 0, Rate: 1}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewRateLimiter(tt.cfg, nil)
			assert.Nil(t, l)
			assert.ErrorIs(t, err, ErrInvalidRateLimit)
		})
	}
}

func TestRateLimitConfigHelpers(t *testing.T) {
	assert.Equal(t, RateLimitConfig{Capacity: 5, Rate: 5}, PerSecond(5))
	assert.InDelta(t, 1.0, PerMinute(60).Rate, 1e-9)
	assert.InDelta(t, 1.0, PerHour(3600).Rate, 1e-9)
	assert.Equal(t, 60, PerMinute(60).Capacity)
}

func TestRateLimiterBurstThenEmpty(t *testing.T) {
	l, err := NewRateLimiter(RateLimitConfig{Capacity: 3, Rate: slow}, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.True(t, l.TryAcquire(), "token %d", i+1)
	}
	assert.False(t, l.TryAcquire())
	assert.GreaterOrEqual(t, l.Tokens(), 0.0)
	assert.Less(t, l.Tokens(), 1.0)
}

func TestRateLimiterConcurrentAdmission(t *testing.T) {
	const capacity = 5
	l, err := NewRateLimiter(RateLimitConfig{Capacity: capacity, Rate: slow, MaxWait: 50 * time.Millisecond}, nil)
	require.NoError(t, err)

	var admitted, rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < capacity+3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background()); err != nil {
				rejected.Add(1)
				return
			}
			admitted.Add(1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(capacity), admitted.Load())
	assert.Equal(t, int32(3), rejected.Load())
}

func TestRateLimiterBlocksUntilRefill(t *testing.T) {
	// One token every 50ms.
	l, err := NewRateLimiter(RateLimitConfig{Capacity: 2, Rate: 20}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))

	start := time.Now()
	require.NoError(t, l.Acquire(ctx))
	waited := time.Since(start)

	assert.GreaterOrEqual(t, waited, 30*time.Millisecond)
	assert.Less(t, waited, time.Second)

	stats := l.Stats()
	assert.Equal(t, uint64(3), stats.TotalRequests)
	assert.Equal(t, uint64(1), stats.WaitedRequests)
	assert.Greater(t, stats.AverageWait(), time.Duration(0))
	assert.InDelta(t, 100.0/3, stats.WaitedPercentage(), 0.01)
}

func TestRateLimiterMaxWait(t *testing.T) {
	l, err := NewRateLimiter(RateLimitConfig{Capacity: 1, Rate: slow, MaxWait: 20 * time.Millisecond}, nil)
	require.NoError(t, err)
	require.NoError(t, l.Acquire(context.Background()))

	start := time.Now()
	err = l.Acquire(context.Background())
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, KindRateLimited, KindOf(err))
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "admission_timeout", pe.Code)
	assert.Equal(t, uint64(1), l.Stats().Rejected)
}

func TestRateLimiterCancellation(t *testing.T) {
	l, err := NewRateLimiter(RateLimitConfig{Capacity: 1, Rate: slow}, nil)
	require.NoError(t, err)
	require.True(t, l.TryAcquire())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Acquire(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrRateLimited)
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire did not return after cancellation")
	}
}

func TestRateLimiterDeadlineIsNotAdmissionTimeout(t *testing.T) {
	l, err := NewRateLimiter(RateLimitConfig{Capacity: 1, Rate: slow, MaxWait: time.Minute}, nil)
	require.NoError(t, err)
	require.True(t, l.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimiterClasses(t *testing.T) {
	l, err := NewRateLimiter(RateLimitConfig{
		Capacity: 10,
		Rate:     slow,
		Classes:  map[string]ClassLimit{"messages": {Capacity: 1, Rate: slow}},
	}, nil)
	require.NoError(t, err)

	assert.True(t, l.TryAcquireClass("messages"))
	assert.False(t, l.TryAcquireClass("messages"))

	// Other classes only see the global bucket.
	assert.True(t, l.TryAcquireClass("models"))
	assert.True(t, l.TryAcquire())
}

func TestRateLimiterTokensStayInBounds(t *testing.T) {
	const capacity = 4
	l, err := NewRateLimiter(RateLimitConfig{Capacity: capacity, Rate: 200, MaxWait: 200 * time.Millisecond}, nil)
	require.NoError(t, err)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_ = l.Acquire(context.Background())
				}
			}
		}()
	}

	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		tok := l.Tokens()
		if tok < 0 || tok > capacity {
			t.Fatalf("tokens out of bounds: %v", tok)
		}
		if tok := l.global.Tokens(); tok < -1e-9 {
			t.Fatalf("bucket went negative: %v", tok)
		}
	}
	close(stop)
	wg.Wait()
}

func TestRateLimiterObserveWarnsNearLimit(t *testing.T) {
	obsCore, logs := observer.New(zapcore.WarnLevel)
	l, err := NewRateLimiter(PerSecond(1), zap.New(obsCore))
	require.NoError(t, err)

	l.Observe(ParseRateLimitHeaders(http.Header{
		"X-Ratelimit-Limit":     {"100"},
		"X-Ratelimit-Remaining": {"50"},
	}))
	assert.Equal(t, 0, logs.Len())

	l.Observe(ParseRateLimitHeaders(http.Header{
		"X-Ratelimit-Limit":     {"100"},
		"X-Ratelimit-Remaining": {"5"},
	}))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "approaching server rate limit", entry.Message)
	assert.EqualValues(t, 5, entry.ContextMap()["remaining"])
}

func TestRateLimiterResetStats(t *testing.T) {
	l, err := NewRateLimiter(PerSecond(2), nil)
	require.NoError(t, err)
	require.True(t, l.TryAcquire())
	assert.Equal(t, uint64(1), l.Stats().TotalRequests)

	l.ResetStats()
	assert.Equal(t, RateLimitStats{}, l.Stats())
}
