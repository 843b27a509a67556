// Package ratelimit implements fixed-window request counting keyed by caller
// identity. State is process-local: under horizontal scaling each instance
// enforces its own approximation of the configured limit.
package ratelimit

import (
	"sync"
	"time"
)

// Config controls one limited surface.
type Config struct {
	MaxRequests int
	Window      time.Duration
	Prefix      string
}

// Result is the outcome of a limit check. Remaining is never negative.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long the caller should wait before retrying.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if d := r.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

type bucket struct {
	count int
	until time.Time
}

// Limiter counts requests per (prefix, identity) key in fixed windows.
// Expired buckets are swept periodically to bound memory.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	done    chan struct{}
	closed  sync.Once
	now     func() time.Time
}

const sweepInterval = 5 * time.Minute

// NewLimiter creates a limiter and starts its background sweep.
func NewLimiter() *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go l.sweepLoop()
	return l
}

// Check counts one request against the identity's window and reports whether
// it is allowed. It never fails.
func (l *Limiter) Check(identity string, cfg Config) Result {
	key := cfg.Prefix + ":" + identity
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || !now.Before(b.until) {
		b = &bucket{count: 0, until: now.Add(cfg.Window)}
		l.buckets[key] = b
	}
	b.count++

	remaining := cfg.MaxRequests - b.count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   b.count <= cfg.MaxRequests,
		Remaining: remaining,
		ResetAt:   b.until,
	}
}

// Close stops the background sweep.
func (l *Limiter) Close() {
	l.closed.Do(func() { close(l.done) })
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.done:
			return
		}
	}
}

func (l *Limiter) sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if !now.Before(b.until) {
			delete(l.buckets, key)
		}
	}
}
