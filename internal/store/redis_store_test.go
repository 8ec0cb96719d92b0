package store

import (
	"context"
	"os"
	"testing"

	"github.com/afikyefet/sudoku-live/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "puzzle:room:p1:counts", roomCountsKey("p1"))
	assert.Equal(t, "puzzle:instance:node-1:rooms", instanceRoomsKey("node-1"))
	assert.Equal(t, "puzzle:room:p1:live_status", roomLiveStatusKey("p1"))
}

// newTestStores connects two instances to the Redis named by TEST_REDIS_ADDR.
func newTestStores(t *testing.T) (PresenceStore, PresenceStore, string) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() { client.Close() })

	room := "test-" + uuid.NewString()
	a := NewRedisStoreFromClient(client, "node-a-"+room)
	b := NewRedisStoreFromClient(client, "node-b-"+room)
	t.Cleanup(func() {
		ctx := context.Background()
		a.ClearInstance(ctx)
		b.ClearInstance(ctx)
		a.SetRoomOffline(ctx, room)
	})
	return a, b, room
}

func TestRedisStore_ClusterCount(t *testing.T) {
	a, b, room := newTestStores(t)
	ctx := context.Background()

	require.NoError(t, a.SetRoomCount(ctx, room, 3))
	require.NoError(t, b.SetRoomCount(ctx, room, 2))

	total, err := a.GetClusterCount(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, 5, total)

	require.NoError(t, b.SetRoomCount(ctx, room, 0))
	total, err = b.GetClusterCount(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	require.NoError(t, a.ClearInstance(ctx))
	total, err = b.GetClusterCount(ctx, room)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestRedisStore_LiveStatus(t *testing.T) {
	a, b, room := newTestStores(t)
	ctx := context.Background()

	status, err := a.GetRoomLiveStatus(ctx, room)
	require.NoError(t, err)
	assert.False(t, status.IsLive)

	require.NoError(t, a.SetRoomLive(ctx, domain.LiveStatus{
		PuzzleID:      room,
		BroadcasterID: "c1",
		Broadcaster:   "alice",
		StartedAt:     1700000000,
	}))

	status, err = a.GetRoomLiveStatus(ctx, room)
	require.NoError(t, err)
	assert.True(t, status.IsLive)
	assert.Equal(t, "c1", status.BroadcasterID)
	assert.Equal(t, "alice", status.Broadcaster)
	assert.Equal(t, int64(1700000000), status.StartedAt)
	assert.False(t, status.Remote)

	status, err = b.GetRoomLiveStatus(ctx, room)
	require.NoError(t, err)
	assert.True(t, status.Remote)

	rooms, err := b.GetAllLiveRooms(ctx)
	require.NoError(t, err)
	assert.Contains(t, rooms, room)

	require.NoError(t, a.SetRoomOffline(ctx, room))
	rooms, err = b.GetAllLiveRooms(ctx)
	require.NoError(t, err)
	assert.NotContains(t, rooms, room)
}
