package guard

import (
	"sync"
	"testing"
	"time"
)

func TestRateLimiter_AllowsUpToMax(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		ok, _ := rl.Allow("u1")
		if !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	ok, retryAfter := rl.Allow("u1")
	if ok {
		t.Fatal("4th request within window should be denied")
	}
	if retryAfter < time.Second {
		t.Fatalf("retryAfter = %v, want >= 1s", retryAfter)
	}
}

func TestRateLimiter_WindowExpiry(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)

	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	rl.Allow("u1")
	rl.Allow("u1")
	if ok, _ := rl.Allow("u1"); ok {
		t.Fatal("3rd request should be denied")
	}

	// Advance past the window; the stale entries must be purged.
	now = now.Add(61 * time.Second)
	if ok, _ := rl.Allow("u1"); !ok {
		t.Fatal("request after window expiry should be allowed")
	}
}

func TestRateLimiter_RetryAfterMatchesOldest(t *testing.T) {
	rl := NewRateLimiter(1, 10*time.Second)

	now := time.Unix(2000, 0)
	rl.now = func() time.Time { return now }

	rl.Allow("u1")
	now = now.Add(4 * time.Second)

	ok, retryAfter := rl.Allow("u1")
	if ok {
		t.Fatal("should be denied")
	}
	// Oldest at t=0, window 10s, now t=4 → 6s remaining.
	if retryAfter != 6*time.Second {
		t.Fatalf("retryAfter = %v, want 6s", retryAfter)
	}
}

func TestRateLimiter_RetryAfterRoundsUp(t *testing.T) {
	rl := NewRateLimiter(1, 10*time.Second)

	now := time.Unix(3000, 0)
	rl.now = func() time.Time { return now }

	rl.Allow("u1")
	now = now.Add(4*time.Second + 500*time.Millisecond)

	_, retryAfter := rl.Allow("u1")
	if retryAfter != 6*time.Second {
		t.Fatalf("retryAfter = %v, want 6s (5.5s rounded up)", retryAfter)
	}
}

func TestRateLimiter_PerUserIsolation(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	rl.Allow("u1")
	if ok, _ := rl.Allow("u2"); !ok {
		t.Fatal("u2 should not be affected by u1's window")
	}
}

func TestRateLimiter_ConcurrentSameUser(t *testing.T) {
	rl := NewRateLimiter(10, time.Minute)

	var wg sync.WaitGroup
	admitted := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := rl.Allow("u1")
			admitted <- ok
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for ok := range admitted {
		if ok {
			count++
		}
	}
	if count != 10 {
		t.Fatalf("admitted %d concurrent requests, want exactly 10", count)
	}
}
