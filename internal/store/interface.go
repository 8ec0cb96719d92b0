package store

import (
	"context"

	"github.com/afikyefet/sudoku-live/internal/domain"
)

// PresenceStore mirrors room counts and live status to storage shared by all
// instances. The realtime path never reads it.
type PresenceStore interface {
	// SetRoomCount records this instance's member count for a room. A zero
	// count removes the instance's entry.
	SetRoomCount(ctx context.Context, puzzleID string, count int) error

	// GetClusterCount sums the member counts of every instance.
	GetClusterCount(ctx context.Context, puzzleID string) (int, error)

	// SetRoomLive marks a room as live.
	SetRoomLive(ctx context.Context, status domain.LiveStatus) error

	// SetRoomOffline marks a room as offline.
	SetRoomOffline(ctx context.Context, puzzleID string) error

	// GetRoomLiveStatus returns the live status of a room.
	GetRoomLiveStatus(ctx context.Context, puzzleID string) (*domain.LiveStatus, error)

	// GetAllLiveRooms returns all puzzle ids that are currently live.
	GetAllLiveRooms(ctx context.Context) ([]string, error)

	// ClearInstance removes every count this instance recorded.
	ClearInstance(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
