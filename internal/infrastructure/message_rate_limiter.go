package infrastructure

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MessageRateLimiter keeps one token bucket per Telegram user.
type MessageRateLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*limiterEntry
	rate     rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	warned   bool
}

// NewMessageRateLimiter allows perSecond messages with the given burst.
func NewMessageRateLimiter(perSecond float64, burst int) *MessageRateLimiter {
	return &MessageRateLimiter{
		limiters: make(map[int64]*limiterEntry),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		idleTTL:  10 * time.Minute,
		now:      time.Now,
	}
}

// Allow consumes a token for the user. The second result is true only for the
// first rejection after a run of allowed messages, so callers warn once.
func (rl *MessageRateLimiter) Allow(userID int64) (allowed, warn bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	e, ok := rl.limiters[userID]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[userID] = e
	}
	e.lastSeen = now

	if e.limiter.AllowN(now, 1) {
		e.warned = false
		return true, false
	}
	if e.warned {
		return false, false
	}
	e.warned = true
	return false, true
}

// Reset forgets the user's bucket.
func (rl *MessageRateLimiter) Reset(userID int64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.limiters, userID)
}

// Sweep drops buckets idle for longer than the TTL and returns how many
// were removed.
func (rl *MessageRateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for id, e := range rl.limiters {
		if now.Sub(e.lastSeen) > rl.idleTTL {
			delete(rl.limiters, id)
			removed++
		}
	}
	return removed
}

// Len is the number of tracked users.
func (rl *MessageRateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
