package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/afikyefet/sudoku-live/internal/live"
	"github.com/afikyefet/sudoku-live/pkg/storage"
)

const (
	boardPrefix    = "boards"
	snapshotSuffix = ".json"
	nameTimeLayout = "20060102T150405.000Z"
)

var (
	// ErrArchiveDisabled is returned when no snapshot storage is configured.
	ErrArchiveDisabled = errors.New("board archive disabled")

	// ErrSnapshotNotFound is returned for unknown or malformed snapshot names.
	ErrSnapshotNotFound = errors.New("board snapshot not found")
)

// BoardSnapshot is the last board of a finished live session.
type BoardSnapshot struct {
	PuzzleID    string    `json:"puzzleId"`
	Broadcaster string    `json:"broadcaster"`
	UserID      string    `json:"userId,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	EndedAt     time.Time `json:"endedAt"`
	Reason      string    `json:"reason"`
	Updates     int       `json:"updates"`
	Board       [][]int   `json:"board"`
}

// SnapshotInfo lists a stored snapshot without its board.
type SnapshotInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	SavedAt time.Time `json:"savedAt"`
}

// Archive keeps final boards in object storage under
// boards/<escaped puzzle id>/<start time>-<broadcaster>.json.
type Archive struct {
	store storage.Storage
}

// NewArchive wraps a storage backend.
func NewArchive(store storage.Storage) *Archive {
	return &Archive{store: store}
}

func roomPrefix(puzzleID string) string {
	return path.Join(boardPrefix, url.PathEscape(puzzleID)) + "/"
}

func snapshotName(b live.Broadcast) string {
	return b.StartedAt.UTC().Format(nameTimeLayout) + "-" + url.PathEscape(b.ClientID) + snapshotSuffix
}

// encode renders the snapshot of an ended session. It returns nil when the
// session never pushed a board.
func encode(b live.Broadcast, reason string, at time.Time) (string, []byte, error) {
	if b.Board == nil {
		return "", nil, nil
	}
	data, err := json.Marshal(BoardSnapshot{
		PuzzleID:    b.PuzzleID,
		Broadcaster: b.Name,
		UserID:      b.UserID,
		StartedAt:   b.StartedAt.UTC(),
		EndedAt:     at.UTC(),
		Reason:      reason,
		Updates:     b.Updates,
		Board:       b.Board,
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode board snapshot: %w", err)
	}
	return roomPrefix(b.PuzzleID) + snapshotName(b), data, nil
}

func (a *Archive) put(ctx context.Context, key string, data []byte) error {
	return a.store.Write(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json")
}

// List returns the snapshots of a room, newest first.
func (a *Archive) List(ctx context.Context, puzzleID string) ([]SnapshotInfo, error) {
	prefix := roomPrefix(puzzleID)
	objects, err := a.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	infos := make([]SnapshotInfo, 0, len(objects))
	for _, obj := range objects {
		name := strings.TrimPrefix(obj.Key, prefix)
		if name == obj.Key || strings.Contains(name, "/") || !strings.HasSuffix(name, snapshotSuffix) {
			continue
		}
		infos = append(infos, SnapshotInfo{Name: name, Size: obj.Size, SavedAt: obj.LastModified})
	}
	// Names start with the session start time, so they sort chronologically.
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name > infos[j].Name })
	return infos, nil
}

// Load reads one snapshot by the name List returned.
func (a *Archive) Load(ctx context.Context, puzzleID, name string) (*BoardSnapshot, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, snapshotSuffix) {
		return nil, ErrSnapshotNotFound
	}

	rc, err := a.store.Read(ctx, roomPrefix(puzzleID)+name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}
	defer rc.Close()

	var snap BoardSnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode board snapshot: %w", err)
	}
	return &snap, nil
}
