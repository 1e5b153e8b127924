// Package ratelimit bounds expensive read paths, chiefly bulk verification.
// Sliding window rather than fixed buckets so a burst straddling a window
// boundary cannot double the effective limit.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Result reports the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// SlidingWindowLimiter tracks request timestamps per key in memory. Not
// distributed; each instance enforces its own window.
type SlidingWindowLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	buckets map[string]*slidingWindow
}

type slidingWindow struct {
	timestamps []time.Time
}

// NewSlidingWindow constructs a limiter allowing limit requests per window
// for each key.
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*slidingWindow),
	}
}

// Allow checks whether one request for key fits in the window, counting it
// when it does.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (Result, error) {
	return l.AllowN(ctx, key, 1)
}

// AllowN checks a request with custom cost, for callers whose single request
// covers many receipts.
func (l *SlidingWindowLimiter) AllowN(_ context.Context, key string, cost int) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	sw := l.buckets[key]
	if sw == nil {
		sw = &slidingWindow{}
		l.buckets[key] = sw
	}
	sw.cleanup(now, l.window)

	if len(sw.timestamps)+cost > l.limit {
		return Result{
			Allowed: false,
			Limit:   l.limit,
			ResetAt: now.Add(l.window),
		}, nil
	}

	for range cost {
		sw.timestamps = append(sw.timestamps, now)
	}
	resetAt := sw.timestamps[0].Add(l.window)
	return Result{
		Allowed:   true,
		Remaining: l.limit - len(sw.timestamps),
		Limit:     l.limit,
		ResetAt:   resetAt,
	}, nil
}

// Reset clears the window for a key.
func (l *SlidingWindowLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

func (sw *slidingWindow) cleanup(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for ; i < len(sw.timestamps); i++ {
		if sw.timestamps[i].After(cutoff) {
			break
		}
	}
	sw.timestamps = sw.timestamps[i:]
}
