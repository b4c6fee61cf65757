package resilience

import (
	"context"
	"sync"
	"time"
)

const rpsWindow = time.Second

// LimiterConfig bounds concurrent in-flight calls and calls per second to
// one dependency.
type LimiterConfig struct {
	MaxConcurrent int
	MaxRPS        int
}

// DefaultLimiterConfig returns the ERP call limits.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{MaxConcurrent: 4, MaxRPS: 10}
}

// Limiter is a counted semaphore with a FIFO wait queue plus a sliding
// one-second window of call timestamps. Safe for concurrent Acquire and
// release from any number of call sites.
type Limiter struct {
	cfg LimiterConfig
	now func() time.Time

	mu       sync.Mutex
	inFlight int
	waiters  []chan struct{}
	window   []time.Time
}

// NewLimiter builds a limiter; non-positive bounds fall back to defaults.
func NewLimiter(cfg LimiterConfig) *Limiter {
	def := DefaultLimiterConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.MaxRPS <= 0 {
		cfg.MaxRPS = def.MaxRPS
	}
	return &Limiter{cfg: cfg, now: time.Now}
}

// Acquire blocks until a concurrency slot is free and the sliding window
// admits another call, then records the call timestamp and returns a
// release callback. The callback is idempotent. Waiters are served in FIFO
// order; ctx cancellation abandons the wait without leaking the slot.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if err := l.acquireSlot(ctx); err != nil {
		return nil, err
	}
	if err := l.waitWindow(ctx); err != nil {
		l.releaseSlot()
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(l.releaseSlot)
	}, nil
}

func (l *Limiter) acquireSlot(ctx context.Context) error {
	l.mu.Lock()
	// Fast path only when nobody is queued, preserving FIFO order.
	if l.inFlight < l.cfg.MaxConcurrent && len(l.waiters) == 0 {
		l.inFlight++
		l.mu.Unlock()
		return nil
	}

	ready := make(chan struct{})
	l.waiters = append(l.waiters, ready)
	l.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		for i, w := range l.waiters {
			if w == ready {
				l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
				l.mu.Unlock()
				return ctx.Err()
			}
		}
		// The slot was granted while we were cancelling; hand it on.
		l.mu.Unlock()
		l.releaseSlot()
		return ctx.Err()
	}
}

func (l *Limiter) releaseSlot() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.inFlight--
	if len(l.waiters) > 0 && l.inFlight < l.cfg.MaxConcurrent {
		next := l.waiters[0]
		l.waiters = l.waiters[1:]
		l.inFlight++
		close(next)
	}
}

func (l *Limiter) waitWindow(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.pruneWindow(now)
		if len(l.window) < l.cfg.MaxRPS {
			l.window = append(l.window, now)
			l.mu.Unlock()
			return nil
		}
		// Wait until enough entries age past the window edge for the
		// count to drop below MaxRPS.
		wait := l.window[len(l.window)-l.cfg.MaxRPS].Add(rpsWindow).Sub(now)
		l.mu.Unlock()

		if wait <= 0 {
			wait = time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// pruneWindow drops timestamps older than one second. Caller holds l.mu.
func (l *Limiter) pruneWindow(now time.Time) {
	cutoff := now.Add(-rpsWindow)
	keep := 0
	for keep < len(l.window) && !l.window[keep].After(cutoff) {
		keep++
	}
	if keep > 0 {
		l.window = append(l.window[:0], l.window[keep:]...)
	}
}

// InFlight returns the number of outstanding acquisitions, for metrics.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}
