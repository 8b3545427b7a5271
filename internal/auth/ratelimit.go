package auth

import (
	"sync"
	"time"
)

const (
	rateLimitWindow  = 5 * time.Minute
	rateLimitMaxFail = 10

	// rateLimitPruneThreshold is the number of tracked keys above which
	// expired entries are pruned.
	rateLimitPruneThreshold = 1000
)

// LoginLimiter tracks failed sign-in attempts per key (remote IP) with a
// sliding window. After rateLimitMaxFail failures within the window,
// further attempts are rejected until the window expires.
type LoginLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	now      func() time.Time
}

// NewLoginLimiter creates an empty limiter.
func NewLoginLimiter() *LoginLimiter {
	return &LoginLimiter{
		failures: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// Blocked reports whether key is currently rate limited.
func (rl *LoginLimiter) Blocked(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rateLimitWindow)

	if len(rl.failures) > rateLimitPruneThreshold {
		for k, times := range rl.failures {
			if len(times) == 0 || times[len(times)-1].Before(cutoff) {
				delete(rl.failures, k)
			}
		}
	}

	recent := rl.failures[key][:0]
	for _, t := range rl.failures[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) == 0 {
		delete(rl.failures, key)
	} else {
		rl.failures[key] = recent
	}

	return len(recent) >= rateLimitMaxFail
}

// Fail records a failed attempt for key.
func (rl *LoginLimiter) Fail(key string) {
	rl.mu.Lock()
	rl.failures[key] = append(rl.failures[key], rl.now())
	rl.mu.Unlock()
}

// Reset forgets the failures for key after a successful sign-in.
func (rl *LoginLimiter) Reset(key string) {
	rl.mu.Lock()
	delete(rl.failures, key)
	rl.mu.Unlock()
}
