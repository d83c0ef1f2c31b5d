package guard

import (
	"sync"
	"time"
)

// RateLimiter is a per-user sliding-window admission counter. Each user may
// make at most max requests within the trailing window; stale timestamps are
// purged on every check.
type RateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]time.Time
	now    func() time.Time // overridable for tests
}

func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	if max <= 0 {
		max = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records an attempt for userID and reports whether it is admitted.
// When denied, retryAfter is the time until the oldest in-window attempt
// expires, rounded up to whole seconds with a 1s floor.
func (rl *RateLimiter) Allow(userID string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)

	kept := rl.hits[userID][:0]
	for _, ts := range rl.hits[userID] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) < rl.max {
		rl.hits[userID] = append(kept, now)
		return true, 0
	}
	rl.hits[userID] = kept

	retryAfter := kept[0].Add(rl.window).Sub(now)
	if rem := retryAfter % time.Second; rem > 0 {
		retryAfter += time.Second - rem // round up to whole seconds
	}
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return false, retryAfter
}

// Reset drops all recorded attempts for userID.
func (rl *RateLimiter) Reset(userID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.hits, userID)
}
