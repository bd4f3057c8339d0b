// Package ratelimit provides fixed-window rate limiting, either for a single
// entity or keyed per caller.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a simple fixed-window rate limiter for a single entity.
type Limiter struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
	rate        int
	window      time.Duration
	now         func() time.Time
}

func newLimiter(rate int, window time.Duration, now func() time.Time) *Limiter {
	return &Limiter{
		rate:        rate,
		window:      window,
		now:         now,
		windowStart: now(),
	}
}

// Allow returns true if the request is within the rate limit.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.windowStart) > l.window {
		l.count = 0
		l.windowStart = now
	}
	l.count++
	return l.count <= l.rate
}

// idle reports whether the limiter's window closed before now.
func (l *Limiter) idle(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return now.Sub(l.windowStart) > l.window
}

// Keyed hands out one Limiter per key. A rate of zero or less disables
// limiting and Allow always succeeds.
type Keyed struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
	rate     int
	window   time.Duration
	now      func() time.Time
}

// NewKeyed creates a Keyed limiter allowing rate requests per window per key.
// A nil now uses time.Now.
func NewKeyed(rate int, window time.Duration, now func() time.Time) *Keyed {
	if now == nil {
		now = time.Now
	}
	return &Keyed{
		limiters: make(map[string]*Limiter),
		rate:     rate,
		window:   window,
		now:      now,
	}
}

// Enabled reports whether the limiter enforces anything.
func (k *Keyed) Enabled() bool {
	return k != nil && k.rate > 0
}

// Allow returns true if key has not exceeded its rate limit.
func (k *Keyed) Allow(key string) bool {
	if !k.Enabled() {
		return true
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.limiters[key]
	if !ok {
		l = newLimiter(k.rate, k.window, k.now)
		k.limiters[key] = l
	}
	// Counted under k.mu so Cleanup cannot drop l in between.
	return l.Allow()
}

// Cleanup drops limiters whose window has closed and returns how many it
// removed.
func (k *Keyed) Cleanup() int {
	if !k.Enabled() {
		return 0
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	now := k.now()
	n := 0
	for key, l := range k.limiters {
		if l.idle(now) {
			delete(k.limiters, key)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	if k == nil {
		return 0
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.limiters)
}
