package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// HeartbeatStore implements ports.WorkerLiveness. Workers refresh a shared
// key with a short TTL; the API layer checks its existence to decide
// between the async queue and the inline fallback. Any live worker keeps
// the key alive, so the signal is pool-wide, not per-instance.
type HeartbeatStore struct {
	client *goredis.Client
	key    string
	ttl    time.Duration
}

// NewHeartbeatStore creates a heartbeat store. ttl should be a small
// multiple of the workers' refresh interval so a single missed beat does
// not flap the liveness signal.
func NewHeartbeatStore(client *goredis.Client, ttl time.Duration) *HeartbeatStore {
	return &HeartbeatStore{
		client: client,
		key:    "workers:heartbeat",
		ttl:    ttl,
	}
}

// Heartbeat refreshes the liveness key.
func (s *HeartbeatStore) Heartbeat(ctx context.Context) error {
	if err := s.client.Set(ctx, s.key, time.Now().UTC().Format(time.RFC3339), s.ttl).Err(); err != nil {
		return fmt.Errorf("redis heartbeat: %w", err)
	}
	return nil
}

// IsAlive reports whether any worker refreshed the key within the TTL.
func (s *HeartbeatStore) IsAlive(ctx context.Context) (bool, error) {
	n, err := s.client.Exists(ctx, s.key).Result()
	if err != nil {
		return false, fmt.Errorf("redis heartbeat check: %w", err)
	}
	return n == 1, nil
}
