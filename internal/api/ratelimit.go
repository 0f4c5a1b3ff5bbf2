package api

import (
	"sync"
	"time"
)

// rateLimiter is a fixed-window counter per caller key. Windows reset on
// the first request after expiry; counts are in-memory only, so limits
// reset on restart.
type rateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	seen   map[string]*windowCount

	now func() time.Time
}

type windowCount struct {
	start time.Time
	count int
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:  limit,
		window: window,
		seen:   make(map[string]*windowCount),
		now:    time.Now,
	}
}

// Allow reports whether the caller may proceed, counting the request.
func (l *rateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	wc := l.seen[key]
	if wc == nil || now.Sub(wc.start) >= l.window {
		l.seen[key] = &windowCount{start: now, count: 1}
		l.evictExpired(now)
		return true
	}

	if wc.count >= l.limit {
		return false
	}
	wc.count++
	return true
}

// evictExpired drops stale windows so the map does not grow with caller
// churn. Called under the lock on window rollover, which bounds the scan.
func (l *rateLimiter) evictExpired(now time.Time) {
	for key, wc := range l.seen {
		if now.Sub(wc.start) >= l.window {
			delete(l.seen, key)
		}
	}
}
