package infrastructure

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDeduper(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	d := NewMemoryDeduper()
	d.now = func() time.Time { return now }

	first, err := d.FirstSeen(ctx, 100)
	require.NoError(t, err)
	assert.True(t, first)

	first, _ = d.FirstSeen(ctx, 100)
	assert.False(t, first)

	first, _ = d.FirstSeen(ctx, 101)
	assert.True(t, first)

	now = now.Add(25 * time.Hour)
	first, _ = d.FirstSeen(ctx, 100)
	assert.True(t, first, "expired ids are accepted again")
}

func TestMemoryDeduperSweepsByAge(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	now := start
	d := NewMemoryDeduper()
	d.now = func() time.Time { return now }
	at := func(offset time.Duration, id int) {
		now = start.Add(offset)
		_, err := d.FirstSeen(ctx, id)
		require.NoError(t, err)
	}

	at(0, 1)
	at(0, 2)
	at(0, 3)
	assert.Equal(t, 3, d.Len())

	at(23*time.Hour, 4)
	assert.Equal(t, 4, d.Len(), "nothing has expired yet")

	at(25*time.Hour, 5)
	assert.Equal(t, 2, d.Len(), "ids older than a day are swept")

	at(46*time.Hour+55*time.Minute, 6)
	assert.Equal(t, 3, d.Len())

	// id 4 is now expired but the last sweep was five minutes ago
	at(47*time.Hour, 7)
	assert.Equal(t, 4, d.Len())

	first, _ := d.FirstSeen(ctx, 4)
	assert.True(t, first, "expired ids are accepted before they are swept")
}

func TestRedisDeduper(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	d, err := NewRedisDeduper(ctx, url)
	require.NoError(t, err)
	defer d.Close()

	id := int(time.Now().UnixNano() % 1_000_000_000)
	first, err := d.FirstSeen(ctx, id)
	require.NoError(t, err)
	assert.True(t, first)

	first, err = d.FirstSeen(ctx, id)
	require.NoError(t, err)
	assert.False(t, first)
}
