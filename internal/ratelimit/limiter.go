package ratelimit

import (
	"strings"
	"sync"
	"time"
)

// Request describes one rate-limit check against a (scope, identifier) pair.
// A zero Limit or Window disables the check.
type Request struct {
	Scope      string
	Identifier string
	Limit      int
	Window     time.Duration
}

// Result is the outcome of one check. Remaining and Reset feed the standard
// rate-limit response headers whether or not the request was allowed.
type Result struct {
	Allowed   bool
	Scope     string
	Limit     int
	Remaining int
	Reset     time.Time
	// RetryAfter is the time left until the window resets, measured with
	// the limiter's own clock. Set only on denial.
	RetryAfter time.Duration
}

type bucket struct {
	count       int
	windowStart time.Time
	lastSeen    time.Time
}

// Limiter counts requests in fixed windows per (scope, identifier) pair.
// Buckets are process-local; limits are a defense-in-depth throttle, not a
// security boundary, so no cross-instance consistency is attempted.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time

	idleTTL time.Duration
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.now = fn
		}
	}
}

// WithIdleTTL overrides how long an untouched bucket survives before Sweep
// reclaims it.
func WithIdleTTL(ttl time.Duration) Option {
	return func(l *Limiter) {
		if ttl > 0 {
			l.idleTTL = ttl
		}
	}
}

// New constructs an empty Limiter.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
		idleTTL: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check records one hit against the request's bucket and reports whether it
// fits the limit. The bucket resets when its window has elapsed. Checks for
// distinct identifiers never interfere.
func (l *Limiter) Check(req Request) Result {
	if req.Limit <= 0 || req.Window <= 0 {
		return Result{Allowed: true, Scope: req.Scope, Limit: req.Limit}
	}

	key := req.Scope + "\x00" + strings.TrimSpace(strings.ToLower(req.Identifier))
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || now.Sub(b.windowStart) >= req.Window {
		b = &bucket{windowStart: now}
		l.buckets[key] = b
	}
	b.lastSeen = now

	reset := b.windowStart.Add(req.Window)
	if b.count >= req.Limit {
		return Result{
			Allowed:    false,
			Scope:      req.Scope,
			Limit:      req.Limit,
			Remaining:  0,
			Reset:      reset,
			RetryAfter: reset.Sub(now),
		}
	}
	b.count++
	return Result{
		Allowed:   true,
		Scope:     req.Scope,
		Limit:     req.Limit,
		Remaining: req.Limit - b.count,
		Reset:     reset,
	}
}

// Sweep drops buckets idle for longer than the idle TTL. Call it from a
// janitor goroutine; it is not required for correctness, only memory.
func (l *Limiter) Sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.buckets, key)
		}
	}
}

// StartJanitor sweeps idle buckets at the given interval until the returned
// stop function is called.
func (l *Limiter) StartJanitor(interval time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				ticker.Stop()
				return
			case <-ticker.C:
				l.Sweep()
			}
		}
	}()
	return func() { close(done) }
}
