package history

import (
	"context"
	"testing"
	"time"

	"github.com/afikyefet/sudoku-live/internal/live"
	"github.com/afikyefet/sudoku-live/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	st, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	return NewArchive(st)
}

func TestRecorder_ArchivesFinalBoard(t *testing.T) {
	archive := newTestArchive(t)
	rec := NewRecorder(newTestRepo(t), "node-1").WithArchive(archive)
	go rec.Run(context.Background())

	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	first := live.Broadcast{PuzzleID: "daily/42", ClientID: "c1", Name: "alice", StartedAt: started, Updates: 3, Board: [][]int{{1, 2}, {3, 4}}}
	second := live.Broadcast{PuzzleID: "daily/42", ClientID: "c2", Name: "bob", StartedAt: started.Add(time.Hour), Board: [][]int{{9}}}
	rec.Started(first)
	rec.Ended(first, "stopped", started.Add(time.Minute))
	rec.Started(second)
	rec.Ended(second, "left", started.Add(2*time.Hour))
	rec.Ended(live.Broadcast{PuzzleID: "daily/42", ClientID: "c3", StartedAt: started}, "left", started)
	rec.Close()

	infos, err := rec.Snapshots(context.Background(), "daily/42")
	require.NoError(t, err)
	require.Len(t, infos, 2, "sessions without a board are not archived")
	assert.Equal(t, "20240501T130000.000Z-c2.json", infos[0].Name)
	assert.Equal(t, "20240501T120000.000Z-c1.json", infos[1].Name)

	snap, err := rec.Snapshot(context.Background(), "daily/42", infos[1].Name)
	require.NoError(t, err)
	assert.Equal(t, "alice", snap.Broadcaster)
	assert.Equal(t, "stopped", snap.Reason)
	assert.Equal(t, 3, snap.Updates)
	assert.Equal(t, [][]int{{1, 2}, {3, 4}}, snap.Board)
	assert.True(t, snap.EndedAt.Equal(started.Add(time.Minute)))

	other, err := rec.Snapshots(context.Background(), "daily")
	require.NoError(t, err)
	assert.Empty(t, other, "rooms do not see each other's snapshots")
}

func TestArchive_LoadRejectsBadNames(t *testing.T) {
	archive := newTestArchive(t)

	for _, name := range []string{"", "../x.json", "a/b.json", ".hidden.json", "board.txt", "missing.json"} {
		_, err := archive.Load(context.Background(), "p1", name)
		assert.ErrorIs(t, err, ErrSnapshotNotFound, name)
	}
}

func TestRecorder_ArchiveDisabled(t *testing.T) {
	rec := NewRecorder(newTestRepo(t), "node-1")
	_, err := rec.Snapshots(context.Background(), "p1")
	assert.ErrorIs(t, err, ErrArchiveDisabled)

	var nilRec *Recorder
	_, err = nilRec.Snapshot(context.Background(), "p1", "x.json")
	assert.ErrorIs(t, err, ErrArchiveDisabled)
}
