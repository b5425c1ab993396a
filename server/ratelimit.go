package server

import (
	"sync"
	"time"
)

// IPRateLimiter enforces a rolling-window request limit per client IP.
//
// Windows reset lazily on the first request past expiry; there is no
// background timer. Idle client entries are swept opportunistically so the
// map stays bounded.
type IPRateLimiter struct {
	limit  int
	window time.Duration

	mu        sync.Mutex
	clients   map[string]*ipWindow
	lastSweep time.Time

	now func() time.Time // test hook
}

type ipWindow struct {
	count int
	start time.Time
}

// IPRateLimitConfig configures the per-IP limiter.
type IPRateLimitConfig struct {
	Limit  int           // Requests allowed per window (default 100)
	Window time.Duration // Window length (default 1 minute)
}

// NewIPRateLimiter creates a per-IP rolling-window rate limiter.
func NewIPRateLimiter(cfg IPRateLimitConfig) *IPRateLimiter {
	limit := cfg.Limit
	if limit <= 0 {
		limit = 100
	}
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	return &IPRateLimiter{
		limit:   limit,
		window:  window,
		clients: make(map[string]*ipWindow),
		now:     time.Now,
	}
}

// Allow records a request from ip and reports whether it is within the
// limit. When it is not, retryAfter is how long until the window resets.
func (l *IPRateLimiter) Allow(ip string) (ok bool, retryAfter time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(now)

	w, exists := l.clients[ip]
	if !exists || now.Sub(w.start) >= l.window {
		l.clients[ip] = &ipWindow{count: 1, start: now}
		return true, 0
	}

	if w.count < l.limit {
		w.count++
		return true, 0
	}

	return false, w.start.Add(l.window).Sub(now)
}

// sweepLocked drops windows that expired more than one window ago. Runs at
// most once per window length.
func (l *IPRateLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	for ip, w := range l.clients {
		if now.Sub(w.start) >= 2*l.window {
			delete(l.clients, ip)
		}
	}
}
