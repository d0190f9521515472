package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeartbeatStore_Lifecycle(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewHeartbeatStore(client, 10*time.Second)
	ctx := context.Background()

	alive, err := store.IsAlive(ctx)
	require.NoError(t, err)
	assert.False(t, alive, "no worker has beaten yet")

	require.NoError(t, store.Heartbeat(ctx))

	alive, err = store.IsAlive(ctx)
	require.NoError(t, err)
	assert.True(t, alive)

	// The signal decays once workers stop refreshing.
	mr.FastForward(11 * time.Second)

	alive, err = store.IsAlive(ctx)
	require.NoError(t, err)
	assert.False(t, alive)
}
