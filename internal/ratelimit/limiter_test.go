package ratelimit

import (
	"testing"
	"time"
)

func newTestLimiter(now *time.Time) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
		now:     func() time.Time { return *now },
	}
	return l
}

func TestCheckEleventhRequestDenied(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(&now)
	cfg := Config{MaxRequests: 10, Window: time.Minute, Prefix: "generate"}

	for i := 1; i <= 10; i++ {
		res := l.Check("user-1", cfg)
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if want := 10 - i; res.Remaining != want {
			t.Fatalf("request %d remaining = %d, want %d", i, res.Remaining, want)
		}
	}

	res := l.Check("user-1", cfg)
	if res.Allowed {
		t.Fatal("11th request should be denied")
	}
	if res.Remaining != 0 {
		t.Fatalf("remaining = %d, want 0", res.Remaining)
	}
	if got := res.RetryAfter(now); got != time.Minute {
		t.Fatalf("RetryAfter = %v, want %v", got, time.Minute)
	}
}

func TestCheckWindowResets(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(&now)
	cfg := Config{MaxRequests: 2, Window: time.Minute, Prefix: "api"}

	l.Check("user-1", cfg)
	l.Check("user-1", cfg)
	if res := l.Check("user-1", cfg); res.Allowed {
		t.Fatal("third request in window should be denied")
	}

	now = now.Add(time.Minute)
	res := l.Check("user-1", cfg)
	if !res.Allowed {
		t.Fatal("request after window reset should be allowed")
	}
	if res.Remaining != 1 {
		t.Fatalf("remaining after reset = %d, want 1", res.Remaining)
	}
	if want := now.Add(time.Minute); !res.ResetAt.Equal(want) {
		t.Fatalf("ResetAt = %v, want %v", res.ResetAt, want)
	}
}

func TestCheckIdentitiesAndPrefixesIsolated(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(&now)
	cfg := Config{MaxRequests: 1, Window: time.Minute, Prefix: "generate"}

	if res := l.Check("user-1", cfg); !res.Allowed {
		t.Fatal("first request for user-1 should be allowed")
	}
	if res := l.Check("user-1", cfg); res.Allowed {
		t.Fatal("second request for user-1 should be denied")
	}
	if res := l.Check("user-2", cfg); !res.Allowed {
		t.Fatal("user-2 should have its own window")
	}
	other := Config{MaxRequests: 1, Window: time.Minute, Prefix: "subscription"}
	if res := l.Check("user-1", other); !res.Allowed {
		t.Fatal("a different prefix should have its own window")
	}
}

func TestSweepDropsExpiredBuckets(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(&now)
	cfg := Config{MaxRequests: 5, Window: time.Minute, Prefix: "api"}

	l.Check("user-1", cfg)
	l.Check("user-2", cfg)

	now = now.Add(30 * time.Second)
	l.sweep()
	if len(l.buckets) != 2 {
		t.Fatalf("live buckets swept: %d remain, want 2", len(l.buckets))
	}

	now = now.Add(time.Minute)
	l.sweep()
	if len(l.buckets) != 0 {
		t.Fatalf("expired buckets kept: %d remain, want 0", len(l.buckets))
	}
}
