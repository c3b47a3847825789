package infrastructure

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterBurstAndWarnOnce(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	rl := NewMessageRateLimiter(1, 2)
	rl.now = func() time.Time { return now }

	ok, warn := rl.Allow(1)
	assert.True(t, ok)
	assert.False(t, warn)
	ok, _ = rl.Allow(1)
	assert.True(t, ok)

	ok, warn = rl.Allow(1)
	assert.False(t, ok)
	assert.True(t, warn)

	ok, warn = rl.Allow(1)
	assert.False(t, ok)
	assert.False(t, warn, "second rejection must not warn again")

	// other users are independent
	ok, _ = rl.Allow(2)
	assert.True(t, ok)

	now = now.Add(time.Second)
	ok, _ = rl.Allow(1)
	assert.True(t, ok)
}

func TestRateLimiterSweep(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	rl := NewMessageRateLimiter(1, 1)
	rl.now = func() time.Time { return now }

	rl.Allow(1)
	now = now.Add(5 * time.Minute)
	rl.Allow(2)
	now = now.Add(6 * time.Minute)

	assert.Equal(t, 1, rl.Sweep())
	assert.Equal(t, 1, rl.Len())

	rl.Reset(2)
	assert.Equal(t, 0, rl.Len())
}
