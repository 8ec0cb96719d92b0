package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/afikyefet/sudoku-live/internal/domain"
	"github.com/afikyefet/sudoku-live/pkg/sessionclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getJSON(t *testing.T, url string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestHTTP_Health(t *testing.T) {
	stack := newTestStack(t, nil)

	var body map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, stack.srv.URL+"/health", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHTTP_PresenceAndLive(t *testing.T) {
	stack := newTestStack(t, nil)
	host := stack.dial(t, "host", sessionclient.Handlers{})
	viewer := stack.dial(t, "", sessionclient.Handlers{})
	require.NoError(t, host.Join("p1"))
	require.NoError(t, viewer.Join("p1"))
	require.Eventually(t, func() bool { return viewer.Spectators() == 2 }, 2*time.Second, 5*time.Millisecond)

	var info domain.RoomInfo
	require.Equal(t, http.StatusOK, getJSON(t, stack.srv.URL+"/api/v1/puzzles/p1/presence", &info))
	assert.Equal(t, 2, info.Count)
	assert.Equal(t, 2, info.ClusterCount)
	assert.False(t, info.Live.IsLive)

	require.NoError(t, host.GoLive([][]int{{1}}))
	require.Eventually(t, func() bool { return viewer.State() == sessionclient.Viewing }, 2*time.Second, 5*time.Millisecond)

	var status domain.LiveStatus
	require.Equal(t, http.StatusOK, getJSON(t, stack.srv.URL+"/api/v1/puzzles/p1/live", &status))
	assert.True(t, status.IsLive)
	assert.Equal(t, "host", status.Broadcaster)

	var rooms domain.LiveRoomsResponse
	require.Equal(t, http.StatusOK, getJSON(t, stack.srv.URL+"/api/v1/live-puzzles", &rooms))
	require.Equal(t, 1, rooms.Total)
	assert.Equal(t, "p1", rooms.Rooms[0].PuzzleID)

	var empty domain.RoomInfo
	require.Equal(t, http.StatusOK, getJSON(t, stack.srv.URL+"/api/v1/puzzles/nobody/presence", &empty))
	assert.Zero(t, empty.Count)
}

func TestHTTP_HistoryDisabled(t *testing.T) {
	stack := newTestStack(t, nil)

	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, stack.srv.URL+"/api/v1/puzzles/p1/live/history", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, stack.srv.URL+"/api/v1/puzzles/p1/live/history?limit=abc", nil))
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, stack.srv.URL+"/api/v1/puzzles/p1/boards", nil))
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, stack.srv.URL+"/api/v1/puzzles/p1/boards/x.json", nil))
}

func TestHTTP_Metrics(t *testing.T) {
	stack := newTestStack(t, nil)
	c := stack.dial(t, "", sessionclient.Handlers{})
	require.NoError(t, c.Join("p1"))
	require.Eventually(t, func() bool { return c.Spectators() == 1 }, 2*time.Second, 5*time.Millisecond)

	resp, err := http.Get(stack.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "puzzle_live_connections 1")
	assert.Contains(t, string(body), "puzzle_live_rooms 1")
	assert.Contains(t, string(body), `puzzle_live_events_total{type="joinPuzzle"} 1`)
}
