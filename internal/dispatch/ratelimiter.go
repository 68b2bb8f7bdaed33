package dispatch

import (
	"context"
	"sync"
	"time"
)

const (
	defaultRateLimitMax    = 100
	defaultRateLimitWindow = 60 * time.Second
)

// RateLimiter is a process-wide fixed-window quota (C3). It blocks callers
// cooperatively until either a permit is available or ctx is cancelled.
// Permits are not returned — they expire with the window. This is
// intentionally coarse: it guards against accidental self-DoS, not
// adversarial throttling; upstream 429 is the authoritative signal
// handled by the Retry Controller.
type RateLimiter struct {
	maxPerWindow int
	window       time.Duration

	mu          sync.Mutex
	windowStart time.Time
	count       int
}

// NewRateLimiter constructs a limiter admitting maxPerWindow permits per
// window. A zero maxPerWindow or window falls back to the documented
// defaults (100 per 60s).
func NewRateLimiter(maxPerWindow int, window time.Duration) *RateLimiter {
	if maxPerWindow <= 0 {
		maxPerWindow = defaultRateLimitMax
	}
	if window <= 0 {
		window = defaultRateLimitWindow
	}
	return &RateLimiter{
		maxPerWindow: maxPerWindow,
		window:       window,
		windowStart:  time.Now(),
	}
}

// Acquire blocks until a permit is available in the current window or ctx
// is cancelled. It does not guarantee FIFO fairness across waiters but
// guarantees eventual progress under bounded offered load: every waiter is
// woken on each window roll and re-attempts admission.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	for {
		wait, ok := r.tryAcquire()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return newError(KindCancelled, 0, 1, "rate limiter wait cancelled", ctx.Err())
		case <-timer.C:
		}
	}
}

// tryAcquire attempts to admit the caller immediately. On success it
// returns (0, true). On failure it returns the duration until the current
// window rolls, so the caller can sleep rather than busy-poll.
func (r *RateLimiter) tryAcquire() (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.windowStart) >= r.window {
		windowsPassed := int(now.Sub(r.windowStart) / r.window)
		r.windowStart = r.windowStart.Add(r.window * time.Duration(windowsPassed))
		r.count = 0
	}

	if r.count < r.maxPerWindow {
		r.count++
		return 0, true
	}

	remaining := r.window - now.Sub(r.windowStart)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, false
}
