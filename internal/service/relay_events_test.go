package service

import (
	"context"
	"testing"

	"github.com/afikyefet/sudoku-live/internal/domain"
	"github.com/afikyefet/sudoku-live/pkg/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func remoteEvent(t *testing.T, eventType, puzzleID string, payload interface{}) *pubsub.Event {
	t.Helper()
	event, err := pubsub.NewEvent(eventType, puzzleID, payload)
	require.NoError(t, err)
	return event.WithOrigin("node-2")
}

func TestRelay_RemoteBroadcasterBlocksLocalClaims(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	v := env.connect("V", "")
	env.join(t, v, "p1")
	drain(t, v)

	env.svc.HandleRelayEvent(ctx, remoteEvent(t, domain.MsgTypeLiveStarted, "p1",
		&domain.LiveStartedMessage{Type: domain.MsgTypeLiveStarted, PuzzleID: "p1", UserID: "R", User: "remy"}))
	env.svc.HandleRelayEvent(ctx, remoteEvent(t, domain.MsgTypeBoardUpdate, "p1",
		&domain.BoardUpdateMessage{Type: domain.MsgTypeBoardUpdate, PuzzleID: "p1", Board: board(4), UserID: "R"}))

	got := drain(t, v)
	require.Equal(t, []string{domain.MsgTypeLiveStarted, domain.MsgTypeBoardUpdate}, types(got))
	assert.Equal(t, "remy", got[0]["user"])
	assert.Equal(t, "R", got[1]["userId"])

	status, err := env.svc.GetLiveStatus(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, status.Remote)
	assert.Equal(t, "remy", status.Broadcaster)

	require.NoError(t, env.svc.HandleBoardUpdate(ctx, v, &domain.BoardUpdateMessage{PuzzleID: "p1", Board: board(1)}))
	assert.Equal(t, domain.ErrCodeAlreadyLive, drain(t, v)[0]["code"])

	env.svc.HandleRelayEvent(ctx, remoteEvent(t, domain.MsgTypeLiveEnded, "p1",
		&domain.LiveEndedMessage{Type: domain.MsgTypeLiveEnded, PuzzleID: "p1", UserID: "R", Reason: domain.ReasonStopped}))
	ended := drain(t, v)
	require.Len(t, ended, 1)
	assert.Equal(t, domain.ReasonStopped, ended[0]["reason"])
	assert.Empty(t, env.svc.arbiter.Live())

	// remote endings are not counted or republished here
	assert.Empty(t, env.producer.snapshot())
	assert.Empty(t, env.relay.types())
}

func TestRelay_BoardWithoutLiveStartedAnnouncesBroadcaster(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	v := env.connect("V", "")
	env.join(t, v, "p1")
	drain(t, v)

	env.svc.HandleRelayEvent(ctx, remoteEvent(t, domain.MsgTypeBoardUpdate, "p1",
		&domain.BoardUpdateMessage{Type: domain.MsgTypeBoardUpdate, PuzzleID: "p1", Board: board(2), UserID: "R"}))
	env.svc.HandleRelayEvent(ctx, remoteEvent(t, domain.MsgTypeBoardUpdate, "p1",
		&domain.BoardUpdateMessage{Type: domain.MsgTypeBoardUpdate, PuzzleID: "p1", Board: board(3), UserID: "R"}))

	got := drain(t, v)
	assert.Equal(t, []string{domain.MsgTypeLiveStarted, domain.MsgTypeBoardUpdate, domain.MsgTypeBoardUpdate}, types(got))

	late := env.connect("L", "")
	env.join(t, late, "p1")
	lateFrames := drain(t, late)
	require.Len(t, lateFrames, 3)
	assert.Equal(t, []interface{}{float64(3), float64(0), float64(0)}, lateFrames[2]["board"].([]interface{})[0])
}

func TestRelay_LocalBroadcasterWins(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	a := env.connect("A", "alice")
	v := env.connect("V", "")
	env.join(t, a, "p1")
	env.join(t, v, "p1")
	require.NoError(t, env.svc.HandleBoardUpdate(ctx, a, &domain.BoardUpdateMessage{PuzzleID: "p1", Board: board(1)}))
	drain(t, a)
	drain(t, v)

	env.svc.HandleRelayEvent(ctx, remoteEvent(t, domain.MsgTypeBoardUpdate, "p1",
		&domain.BoardUpdateMessage{Type: domain.MsgTypeBoardUpdate, PuzzleID: "p1", Board: board(9), UserID: "R"}))
	env.svc.HandleRelayEvent(ctx, remoteEvent(t, domain.MsgTypeLiveStarted, "p1",
		&domain.LiveStartedMessage{Type: domain.MsgTypeLiveStarted, PuzzleID: "p1", UserID: "R"}))
	env.svc.HandleRelayEvent(ctx, remoteEvent(t, domain.MsgTypeLiveEnded, "p1",
		&domain.LiveEndedMessage{Type: domain.MsgTypeLiveEnded, PuzzleID: "p1", UserID: "A", Reason: domain.ReasonStopped}))

	assert.Empty(t, drain(t, v))
	b, ok := env.svc.arbiter.Current("p1")
	require.True(t, ok)
	assert.Equal(t, "A", b.ClientID)
	assert.False(t, b.Remote)
}

func TestRelay_HeartbeatKeepsRemoteSession(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	v := env.connect("V", "")
	env.join(t, v, "p1")
	drain(t, v)

	hb := &domain.LiveHeartbeatMessage{Type: domain.MsgTypeLiveHeartbeat, PuzzleID: "p1", UserID: "R"}
	env.svc.HandleRelayEvent(ctx, remoteEvent(t, domain.MsgTypeLiveHeartbeat, "p1", hb))
	env.svc.HandleRelayEvent(ctx, remoteEvent(t, domain.MsgTypeLiveHeartbeat, "p1", hb))

	assert.Equal(t, []string{domain.MsgTypeLiveStarted}, types(drain(t, v)))
	_, ok := env.svc.arbiter.Current("p1")
	assert.True(t, ok)
}

func TestRelay_PassThroughEvents(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	a := env.connect("A", "")
	other := env.connect("X", "")
	env.join(t, a, "p1")
	env.join(t, other, "p2")
	drain(t, a)
	drain(t, other)

	chat := domain.NewChatOut("p1", "remy", "hey", fixedTime)
	env.svc.HandleRelayEvent(ctx, remoteEvent(t, domain.MsgTypeChat, "p1", chat))
	env.svc.HandleRelayEvent(ctx, remoteEvent(t, domain.MsgTypeLike, "p1",
		&domain.LikeMessage{Type: domain.MsgTypeLike, PuzzleID: "p1", UserID: "u1"}))
	env.svc.HandleRelayEvent(ctx, remoteEvent(t, domain.MsgTypeSpectatorCount, "p1", domain.NewSpectatorCount("p1", 7)))
	env.svc.HandleRelayEvent(ctx, remoteEvent(t, domain.MsgTypeBoardUpdate, "p1", "not an object"))

	got := drain(t, a)
	require.Equal(t, []string{domain.MsgTypeChat, domain.MsgTypeLike}, types(got))
	assert.Equal(t, "remy", got[0]["user"])
	assert.Empty(t, drain(t, other))
	assert.Empty(t, env.relay.types(), "relayed events are never republished")
}
