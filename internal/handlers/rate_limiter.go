package handlers

import (
	"strings"
	"sync"
	"time"
)

type rateLimiter interface {
	Allow(key string) bool
}

// windowLimiter admits at most limit calls per key in each fixed window.
type windowLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]bucket
}

type bucket struct {
	used    int
	resetAt time.Time
}

func newWindowLimiter(limit int, window time.Duration, now func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	return &windowLimiter{limit: limit, window: window, now: now, buckets: make(map[string]bucket)}
}

func (l *windowLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	if key = strings.TrimSpace(key); key == "" {
		key = "anonymous"
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		l.evictLocked(now)
		l.buckets[key] = bucket{used: 1, resetAt: now.Add(l.window)}
		return true
	}
	if b.used >= l.limit {
		return false
	}
	b.used++
	l.buckets[key] = b
	return true
}

func (l *windowLimiter) evictLocked(now time.Time) {
	for key, b := range l.buckets {
		if !now.Before(b.resetAt) {
			delete(l.buckets, key)
		}
	}
}

func allow(l rateLimiter, key string) bool {
	return l == nil || l.Allow(key)
}
