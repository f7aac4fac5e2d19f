package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	t.Parallel()
	l := newLimiter(3)
	cfg := Config{PerMinute: 3, BanThreshold: 100, ViolationWindow: time.Minute, BanDuration: time.Minute}

	for i := range 3 {
		r := l.Allow(cfg)
		if !r.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	r := l.Allow(cfg)
	if r.Allowed {
		t.Error("4th request should be denied")
	}
	if r.RetryAfterSeconds <= 0 {
		t.Error("RetryAfterSeconds should be positive")
	}
}

func TestLimiter_RefillAfterTime(t *testing.T) {
	t.Parallel()
	l := newLimiter(1)
	cfg := Config{PerMinute: 1, BanThreshold: 100, ViolationWindow: time.Minute, BanDuration: time.Minute}

	r := l.Allow(cfg)
	if !r.Allowed {
		t.Fatal("first request should be allowed")
	}
	r = l.Allow(cfg)
	if r.Allowed {
		t.Fatal("second request should be denied")
	}

	l.mu.Lock()
	l.bucket.lastFill = time.Now().Add(-61 * time.Second)
	l.mu.Unlock()

	r = l.Allow(cfg)
	if !r.Allowed {
		t.Error("request should be allowed after refill")
	}
}

func TestLimiter_TempBanAfterRepeatedViolations(t *testing.T) {
	t.Parallel()
	l := newLimiter(1)
	cfg := Config{PerMinute: 1, BanThreshold: 3, ViolationWindow: 5 * time.Minute, BanDuration: 10 * time.Minute}

	// Exhaust initial budget.
	l.Allow(cfg)

	// Three further denials should trip the ban.
	var last Result
	for i := 0; i < 3; i++ {
		last = l.Allow(cfg)
	}
	if !last.Banned {
		t.Fatal("expected ban after reaching violation threshold")
	}
	if last.RetryAfterSeconds <= 0 {
		t.Error("ban should report a positive retry-after")
	}

	// While banned, even a fresh bucket's worth shouldn't matter.
	r := l.Allow(cfg)
	if !r.Banned {
		t.Error("should remain banned")
	}
}

func TestLimiter_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	l := newLimiter(1000)
	cfg := Config{PerMinute: 1000, BanThreshold: 1000000, ViolationWindow: time.Minute, BanDuration: time.Minute}

	var wg sync.WaitGroup
	for range 100 {
		wg.Go(func() {
			l.Allow(cfg)
		})
	}
	wg.Wait()
}

func TestRegistry_Allow(t *testing.T) {
	t.Parallel()
	r := NewRegistry(Config{PerMinute: 2, BanThreshold: 100, ViolationWindow: time.Minute, BanDuration: time.Minute})

	if !r.Allow("1.2.3.4").Allowed {
		t.Fatal("first request from IP should be allowed")
	}
	if !r.Allow("1.2.3.4").Allowed {
		t.Fatal("second request from IP should be allowed")
	}
	if r.Allow("1.2.3.4").Allowed {
		t.Fatal("third request from IP should be denied")
	}
	// A different IP has its own independent budget.
	if !r.Allow("5.6.7.8").Allowed {
		t.Error("different IP should have independent budget")
	}
}

func TestRegistry_EvictStale(t *testing.T) {
	t.Parallel()
	r := NewRegistry(DefaultConfig())

	r.Allow("fresh")
	r.Allow("stale")

	r.mu.Lock()
	r.limiters["stale"].mu.Lock()
	r.limiters["stale"].lastUsed = time.Now().Add(-2 * time.Hour)
	r.limiters["stale"].mu.Unlock()
	r.mu.Unlock()

	evicted := r.EvictStale(time.Now().Add(-1 * time.Hour))
	if evicted != 1 {
		t.Errorf("evicted = %d, want 1", evicted)
	}

	r.mu.RLock()
	_, hasFresh := r.limiters["fresh"]
	_, hasStale := r.limiters["stale"]
	r.mu.RUnlock()

	if !hasFresh {
		t.Error("fresh limiter should not be evicted")
	}
	if hasStale {
		t.Error("stale limiter should be evicted")
	}
}

func TestBucket_RefillNegativeElapsed(t *testing.T) {
	t.Parallel()
	l := newLimiter(10)
	cfg := Config{PerMinute: 10, BanThreshold: 100, ViolationWindow: time.Minute, BanDuration: time.Minute}
	l.mu.Lock()
	l.bucket.tokens = 5
	old := l.bucket.lastFill
	l.bucket.lastFill = time.Now().Add(time.Hour) // future
	l.mu.Unlock()

	r := l.Allow(cfg)
	if !r.Allowed {
		t.Error("should be allowed (refill skipped for negative elapsed)")
	}

	l.mu.Lock()
	l.bucket.lastFill = old
	l.mu.Unlock()
}

func BenchmarkAllow(b *testing.B) {
	l := newLimiter(1_000_000) // high limit so it never denies
	cfg := Config{PerMinute: 1_000_000, BanThreshold: 1 << 30, ViolationWindow: time.Minute, BanDuration: time.Minute}
	for b.Loop() {
		l.Allow(cfg)
	}
}
