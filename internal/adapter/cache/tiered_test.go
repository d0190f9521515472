package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T) (*miniredis.Miniredis, *TieredResultCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewTieredResultCache(client, time.Minute)
}

func TestTieredResultCache_SetGet(t *testing.T) {
	_, c := newCache(t)
	ctx := context.Background()

	got, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, got, "miss returns nil, nil")

	require.NoError(t, c.Set(ctx, "k1", []byte(`{"amount_cents":25}`), time.Hour))

	got, err = c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"amount_cents":25}`), got)
}

func TestTieredResultCache_LocalTierServesAfterRedisLoss(t *testing.T) {
	mr, c := newCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k2", []byte("v"), time.Hour))
	mr.FlushAll()

	// The in-process tier still holds the immutable result.
	got, err := c.Get(ctx, "k2")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestTieredResultCache_RedisBackfillsLocal(t *testing.T) {
	mr, c := newCache(t)
	ctx := context.Background()

	mr.Set("result:k3", "remote")

	got, err := c.Get(ctx, "k3")
	require.NoError(t, err)
	assert.Equal(t, []byte("remote"), got)

	// Now served locally even if Redis loses the key.
	mr.FlushAll()
	got, err = c.Get(ctx, "k3")
	require.NoError(t, err)
	assert.Equal(t, []byte("remote"), got)
}
