package admission

import (
	"sync"
	"time"
)

type rateWindow struct {
	start time.Time
	count int
}

// RateLimiter enforces a fixed-window request limit per device. The window
// resets fully once it elapses; entries for idle devices age out of the
// underlying store after two windows.
type RateLimiter struct {
	mu     sync.Mutex
	store  *Store[rateWindow]
	limit  int
	window time.Duration
	now    func() time.Time // injectable for tests
}

// NewRateLimiter allows limit requests per window per device.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		store:  NewStore(2*window, func() *rateWindow { return &rateWindow{} }),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records a request for the device. When the limit is exceeded it
// returns false and how long the client should wait before retrying.
func (r *RateLimiter) Allow(deviceID string) (ok bool, retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	w := r.store.Get(deviceID)

	if w.start.IsZero() || now.Sub(w.start) >= r.window {
		w.start = now
		w.count = 0
	}

	if w.count >= r.limit {
		return false, r.window - now.Sub(w.start)
	}

	w.count++
	return true, 0
}
