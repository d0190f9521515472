package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// localEntry is a value in the in-process tier.
type localEntry struct {
	data      []byte
	expiresAt time.Time
}

// TieredResultCache implements ports.ResultCache with an in-process tier in
// front of Redis. Terminal results are immutable, so the local tier can
// never serve a stale value; it only shortcuts the network hop for hot
// replays. Misses fall through to Redis and backfill the local tier.
type TieredResultCache struct {
	client   *goredis.Client
	prefix   string
	localTTL time.Duration
	local    sync.Map // key -> localEntry
}

// NewTieredResultCache creates the cache. localTTL bounds in-process memory;
// the Redis TTL is supplied per Set call.
func NewTieredResultCache(client *goredis.Client, localTTL time.Duration) *TieredResultCache {
	return &TieredResultCache{
		client:   client,
		prefix:   "result:",
		localTTL: localTTL,
	}
}

// Get returns the cached value, nil on miss. Local tier first, then Redis.
func (c *TieredResultCache) Get(ctx context.Context, key string) ([]byte, error) {
	if v, ok := c.local.Load(key); ok {
		entry := v.(localEntry)
		if time.Now().Before(entry.expiresAt) {
			return entry.data, nil
		}
		c.local.Delete(key)
	}

	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis result get: %w", err)
	}
	c.storeLocal(key, data)
	return data, nil
}

// Set writes both tiers. A Redis failure is returned after the local write
// so the caller still benefits within this process.
func (c *TieredResultCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.storeLocal(key, value)
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis result set: %w", err)
	}
	return nil
}

func (c *TieredResultCache) storeLocal(key string, data []byte) {
	c.local.Store(key, localEntry{data: data, expiresAt: time.Now().Add(c.localTTL)})
}
