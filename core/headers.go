package core

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimitInfo holds the rate-limit hints a server attached to a response.
// Every field is optional; a zero value means the header was absent or unparseable.
type RateLimitInfo struct {
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter time.Duration

	hasLimit     bool
	hasRemaining bool
}

// HasUsage reports whether both limit and remaining counts were present.
func (i RateLimitInfo) HasUsage() bool {
	return i.hasLimit && i.hasRemaining
}

// maxRecommendedDelay caps the delay derived from a reset timestamp.
const maxRecommendedDelay = time.Minute

// ParseRateLimitHeaders reads rate-limit headers from h. Both the generic
// x-ratelimit-* family and the anthropic-ratelimit-requests-* family are
// understood. Missing headers are not an error.
func ParseRateLimitHeaders(h http.Header) RateLimitInfo {
	return parseRateLimitHeaders(h, time.Now())
}

func parseRateLimitHeaders(h http.Header, now time.Time) RateLimitInfo {
	var info RateLimitInfo
	if h == nil {
		return info
	}

	if v, ok := firstInt(h, "x-ratelimit-limit", "anthropic-ratelimit-requests-limit"); ok {
		info.Limit, info.hasLimit = v, true
	}
	if v, ok := firstInt(h, "x-ratelimit-remaining", "anthropic-ratelimit-requests-remaining"); ok {
		info.Remaining, info.hasRemaining = v, true
	}

	if raw := h.Get("x-ratelimit-reset"); raw != "" {
		if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
			info.Reset = time.Unix(secs, 0)
		}
	}
	if info.Reset.IsZero() {
		if raw := h.Get("anthropic-ratelimit-requests-reset"); raw != "" {
			if t, err := time.Parse(time.RFC3339, raw); err == nil {
				info.Reset = t
			}
		}
	}

	info.RetryAfter = parseRetryAfter(h.Get("retry-after"), now)
	return info
}

// parseRetryAfter accepts delta-seconds or an HTTP-date. Hints too large for
// a Duration are clamped.
func parseRetryAfter(raw string, now time.Time) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		if secs <= 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
			return 0
		}
		d := secs * float64(time.Second)
		if d >= float64(math.MaxInt64) {
			return time.Duration(math.MaxInt64)
		}
		return time.Duration(d)
	}
	if t, err := http.ParseTime(raw); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func firstInt(h http.Header, keys ...string) (int, bool) {
	for _, k := range keys {
		raw := h.Get(k)
		if raw == "" {
			continue
		}
		if v, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && v >= 0 {
			return v, true
		}
	}
	return 0, false
}

// UsageRatio returns the consumed fraction of the server-side window, or 0
// when usage is unknown.
func (i RateLimitInfo) UsageRatio() float64 {
	if !i.HasUsage() || i.Limit == 0 {
		return 0
	}
	return 1 - float64(i.Remaining)/float64(i.Limit)
}

// IsApproachingLimit reports whether usage is at or above threshold (0..1).
func (i RateLimitInfo) IsApproachingLimit(threshold float64) bool {
	return i.HasUsage() && i.UsageRatio() >= threshold
}

// RecommendedDelay returns how long to wait before the next request: the
// retry-after hint if present, otherwise the time until reset (capped at one
// minute) when at least 80% of the window is used.
func (i RateLimitInfo) RecommendedDelay() time.Duration {
	return i.recommendedDelay(time.Now())
}

func (i RateLimitInfo) recommendedDelay(now time.Time) time.Duration {
	if i.RetryAfter > 0 {
		return i.RetryAfter
	}
	if i.IsApproachingLimit(0.8) && i.Reset.After(now) {
		return min(i.Reset.Sub(now), maxRecommendedDelay)
	}
	return 0
}
