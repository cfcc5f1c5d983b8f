package handlers

import (
	"strings"
	"sync"
	"time"
)

type rateLimiter interface {
	Allow(key string) bool
}

// fixedWindowLimiter counts requests per caller inside a fixed window.
// Counters live in memory only, which is the right scope for shielding the
// checkout endpoints of a single instance from rapid-fire clients.
type fixedWindowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]callerWindow
}

type callerWindow struct {
	hits    int
	resetAt time.Time
}

func newFixedWindowLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &fixedWindowLimiter{
		limit:   limit,
		window:  window,
		clock:   clock,
		windows: make(map[string]callerWindow),
	}
}

func (l *fixedWindowLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}

	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	current, tracked := l.windows[key]
	if !tracked || now.After(current.resetAt) {
		// Opening a fresh window doubles as the cleanup point for callers
		// whose windows have lapsed.
		l.dropLapsedLocked(now)
		l.windows[key] = callerWindow{hits: 1, resetAt: now.Add(l.window)}
		return true
	}

	if current.hits >= l.limit {
		return false
	}
	current.hits++
	l.windows[key] = current
	return true
}

func (l *fixedWindowLimiter) dropLapsedLocked(now time.Time) {
	for key, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, key)
		}
	}
}
