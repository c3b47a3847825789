package infrastructure

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// UpdateDeduper reports whether a Telegram update id was already handled.
// Telegram retries webhook deliveries, so each update is processed once.
type UpdateDeduper interface {
	FirstSeen(ctx context.Context, updateID int) (bool, error)
}

const (
	dedupTTL           = 24 * time.Hour
	dedupSweepInterval = 10 * time.Minute
)

// RedisDeduper shares seen update ids between replicas.
type RedisDeduper struct {
	client *redis.Client
	prefix string
}

func NewRedisDeduper(ctx context.Context, url string) (*RedisDeduper, error) {
	opt, err := redis.ParseURL(strings.TrimSpace(url))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisDeduper{client: client, prefix: "tg_update:"}, nil
}

func (d *RedisDeduper) FirstSeen(ctx context.Context, updateID int) (bool, error) {
	return d.client.SetNX(ctx, d.prefix+strconv.Itoa(updateID), 1, dedupTTL).Result()
}

func (d *RedisDeduper) Close() error {
	return d.client.Close()
}

// MemoryDeduper is the single-process fallback when REDIS_URL is unset.
type MemoryDeduper struct {
	mu        sync.Mutex
	seen      map[int]time.Time
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[int]time.Time), ttl: dedupTTL, now: time.Now}
}

func (d *MemoryDeduper) FirstSeen(_ context.Context, updateID int) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if at, ok := d.seen[updateID]; ok && now.Sub(at) < d.ttl {
		return false, nil
	}
	d.seen[updateID] = now

	if now.Sub(d.lastSweep) >= dedupSweepInterval {
		d.sweep(now)
	}
	return true, nil
}

// sweep drops expired ids. Callers hold mu.
func (d *MemoryDeduper) sweep(now time.Time) {
	for id, at := range d.seen {
		if now.Sub(at) >= d.ttl {
			delete(d.seen, id)
		}
	}
	d.lastSweep = now
}

// Len is the number of remembered update ids.
func (d *MemoryDeduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
