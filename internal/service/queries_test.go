package service

import (
	"context"
	"testing"
	"time"

	"github.com/afikyefet/sudoku-live/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRoomInfo(t *testing.T) {
	st := newFakeStore("node-1")
	env := newTestEnv(t, func(o *Options) { o.Store = st })
	ctx := context.Background()

	// another instance holds three more spectators
	st.counts["p1"] = map[string]int{"node-2": 3}

	a := env.connect("A", "alice")
	env.join(t, a, "p1")

	info, err := env.svc.GetRoomInfo(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, info.Count)
	assert.Equal(t, 3, info.ClusterCount)
	assert.False(t, info.Live.IsLive)

	require.NoError(t, env.svc.HandleBoardUpdate(ctx, a, &domain.BoardUpdateMessage{PuzzleID: "p1", Board: board(1)}))
	info, err = env.svc.GetRoomInfo(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, info.Live.IsLive)
	assert.Equal(t, "alice", info.Live.Broadcaster)

	_, err = env.svc.GetRoomInfo(ctx, "")
	assert.ErrorIs(t, err, ErrMissingPuzzleID)
}

func TestGetRoomInfo_WithoutStore(t *testing.T) {
	env := newTestEnv(t, nil)
	a := env.connect("A", "")
	env.join(t, a, "p1")

	info, err := env.svc.GetRoomInfo(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, info.Count)
	assert.Equal(t, 1, info.ClusterCount)

	info, err = env.svc.GetRoomInfo(context.Background(), "nobody-here")
	require.NoError(t, err)
	assert.Zero(t, info.Count)
}

func TestGetLiveRooms_MergesSharedStatus(t *testing.T) {
	st := newFakeStore("node-1")
	env := newTestEnv(t, func(o *Options) { o.Store = st })
	ctx := context.Background()

	require.NoError(t, st.SetRoomLive(ctx, domain.LiveStatus{PuzzleID: "p9", BroadcasterID: "R", Broadcaster: "remy"}))
	require.NoError(t, st.SetRoomLive(ctx, domain.LiveStatus{PuzzleID: "p1", BroadcasterID: "stale"}))

	a := env.connect("A", "alice")
	env.join(t, a, "p1")
	require.NoError(t, env.svc.HandleBoardUpdate(ctx, a, &domain.BoardUpdateMessage{PuzzleID: "p1", Board: board(1)}))

	resp, err := env.svc.GetLiveRooms(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, resp.Total)
	assert.Equal(t, "p1", resp.Rooms[0].PuzzleID)
	assert.Equal(t, "A", resp.Rooms[0].BroadcasterID, "local state wins over the shared copy")
	assert.Equal(t, "p9", resp.Rooms[1].PuzzleID)
	assert.Equal(t, "remy", resp.Rooms[1].Broadcaster)

	status, err := env.svc.GetLiveStatus(ctx, "p9")
	require.NoError(t, err)
	assert.True(t, status.IsLive)
}

func TestGetLiveRooms_Empty(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, err := env.svc.GetLiveRooms(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, resp.Rooms)
	assert.Zero(t, resp.Total)
}

func TestPresenceMirror_WritesThroughToStore(t *testing.T) {
	st := newFakeStore("node-1")
	mirror := NewPresenceMirror(st)
	env := newTestEnv(t, func(o *Options) {
		o.Store = st
		o.Mirror = mirror
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, env.svc.Start(ctx))

	a := env.connect("A", "alice")
	b := env.connect("B", "")
	env.join(t, a, "p1")
	env.join(t, b, "p1")
	require.NoError(t, env.svc.HandleBoardUpdate(ctx, a, &domain.BoardUpdateMessage{PuzzleID: "p1", Board: board(1)}))

	require.Eventually(t, func() bool {
		return st.localCount("p1") == 2 && st.isLive("p1")
	}, time.Second, 5*time.Millisecond)

	env.disconnect(a)
	require.Eventually(t, func() bool {
		return st.localCount("p1") == 1 && !st.isLive("p1")
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, env.svc.Stop())
	select {
	case <-mirror.Done():
	case <-time.After(time.Second):
		t.Fatal("mirror did not stop")
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	assert.True(t, st.cleared)
	assert.Empty(t, st.counts["p1"])
}

func TestPresenceMirror_NilIsNoop(t *testing.T) {
	var m *PresenceMirror
	assert.Nil(t, NewPresenceMirror(nil))
	assert.NotPanics(t, func() {
		m.ObserveCount("p1", 3)
		m.SetLive(domain.LiveStatus{PuzzleID: "p1"})
		m.SetOffline("p1")
	})
}
