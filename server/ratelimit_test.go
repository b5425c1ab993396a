package server

import (
	"testing"
	"time"
)

func TestIPRateLimiter_AllowsUpToLimit(t *testing.T) {
	l := NewIPRateLimiter(IPRateLimitConfig{Limit: 3, Window: time.Minute})

	for i := 0; i < 3; i++ {
		if ok, _ := l.Allow("1.2.3.4"); !ok {
			t.Fatalf("Request %d should be allowed", i+1)
		}
	}

	ok, retryAfter := l.Allow("1.2.3.4")
	if ok {
		t.Fatal("Request past the limit should be rejected")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Errorf("Unexpected retryAfter: %v", retryAfter)
	}
}

func TestIPRateLimiter_PerIP(t *testing.T) {
	l := NewIPRateLimiter(IPRateLimitConfig{Limit: 1, Window: time.Minute})

	l.Allow("1.1.1.1")

	if ok, _ := l.Allow("2.2.2.2"); !ok {
		t.Error("A different IP has its own window")
	}
	if ok, _ := l.Allow("1.1.1.1"); ok {
		t.Error("The first IP should be over its limit")
	}
}

func TestIPRateLimiter_WindowResets(t *testing.T) {
	now := time.Now()
	l := NewIPRateLimiter(IPRateLimitConfig{Limit: 1, Window: time.Minute})
	l.now = func() time.Time { return now }

	l.Allow("1.2.3.4")
	if ok, _ := l.Allow("1.2.3.4"); ok {
		t.Fatal("Second request should be rejected")
	}

	// Advance past the window: the next request starts a fresh one.
	now = now.Add(time.Minute + time.Second)
	if ok, _ := l.Allow("1.2.3.4"); !ok {
		t.Error("Request after window expiry should be allowed")
	}
}

func TestIPRateLimiter_RetryAfterShrinks(t *testing.T) {
	now := time.Now()
	l := NewIPRateLimiter(IPRateLimitConfig{Limit: 1, Window: time.Minute})
	l.now = func() time.Time { return now }

	l.Allow("1.2.3.4")
	_, first := l.Allow("1.2.3.4")

	now = now.Add(40 * time.Second)
	_, second := l.Allow("1.2.3.4")

	if second >= first {
		t.Errorf("retryAfter should shrink as the window ages: %v then %v", first, second)
	}
	if second != 20*time.Second {
		t.Errorf("Expected 20s remaining, got %v", second)
	}
}

func TestIPRateLimiter_SweepsIdleClients(t *testing.T) {
	now := time.Now()
	l := NewIPRateLimiter(IPRateLimitConfig{Limit: 5, Window: time.Minute})
	l.now = func() time.Time { return now }

	l.Allow("1.1.1.1")
	l.Allow("2.2.2.2")

	// Two windows later a request from another IP triggers the sweep.
	now = now.Add(3 * time.Minute)
	l.Allow("3.3.3.3")

	l.mu.Lock()
	n := len(l.clients)
	l.mu.Unlock()
	if n != 1 {
		t.Errorf("Expected idle clients swept, got %d entries", n)
	}
}

func TestIPRateLimiter_Defaults(t *testing.T) {
	l := NewIPRateLimiter(IPRateLimitConfig{})

	if l.limit != 100 {
		t.Errorf("Expected default limit 100, got %d", l.limit)
	}
	if l.window != time.Minute {
		t.Errorf("Expected default window 1m, got %v", l.window)
	}
}
