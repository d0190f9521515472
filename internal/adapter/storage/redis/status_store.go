package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"reward-engine/internal/core/domain"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// putIfHigherRank stores the record only when the incoming status rank is
// strictly greater than the stored one. Running it as a script keeps the
// compare-and-set atomic across concurrent worker and dispatcher writes.
var putIfHigherRank = goredis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'rank')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'rank', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// StatusStore implements ports.StatusStore on Redis hashes. Each record
// lives under status:<user>:<action>:<key> with a rank field used for the
// monotonic transition check and a data field holding the serialized
// record. The scoped key keeps one user's submissions from shadowing
// another user's records under the same literal key.
type StatusStore struct {
	client *goredis.Client
	prefix string
}

// NewStatusStore creates a new Redis-backed status store.
func NewStatusStore(client *goredis.Client) *StatusStore {
	return &StatusStore{
		client: client,
		prefix: "status:",
	}
}

// Put stores the record unless an equal-or-higher-ranked record exists.
// Returns false when the write was rejected, which callers treat as a
// no-op rather than an error.
func (s *StatusStore) Put(ctx context.Context, rec *domain.StatusRecord, ttl time.Duration) (bool, error) {
	rank := rec.Status.Rank()
	if rank < 0 {
		return false, fmt.Errorf("invalid status %q", rec.Status)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("marshal status record: %w", err)
	}

	res, err := putIfHigherRank.Run(ctx, s.client,
		[]string{s.prefix + domain.ScopeKey(rec.UserID, rec.Action, rec.Key)},
		strconv.Itoa(rank), data, strconv.FormatInt(ttl.Milliseconds(), 10),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis status put: %w", err)
	}
	return res == 1, nil
}

// Get fetches a status record, nil when absent or expired.
func (s *StatusStore) Get(ctx context.Context, userID uuid.UUID, action domain.ActionType, key string) (*domain.StatusRecord, error) {
	data, err := s.client.HGet(ctx, s.prefix+domain.ScopeKey(userID, action, key), "data").Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis status get: %w", err)
	}
	rec := &domain.StatusRecord{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("unmarshal status record: %w", err)
	}
	return rec, nil
}
