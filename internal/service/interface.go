package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/afikyefet/sudoku-live/internal/domain"
	"github.com/afikyefet/sudoku-live/internal/history"
	"github.com/afikyefet/sudoku-live/internal/hub"
	"github.com/afikyefet/sudoku-live/internal/kafka"
	"github.com/afikyefet/sudoku-live/pkg/pubsub"
)

var (
	ErrMissingPuzzleID = errors.New("missing puzzle id")
	ErrInvalidComment  = errors.New("comment must be a JSON value")
)

// PuzzleService runs the realtime puzzle rooms.
type PuzzleService interface {
	// HandleJoin moves the client into a room, leaving its previous one.
	HandleJoin(ctx context.Context, client *hub.Client, puzzleID string) error

	// HandleLeave removes the client from a room it is in.
	HandleLeave(ctx context.Context, client *hub.Client, puzzleID string) error

	// HandleBoardUpdate claims live authority and forwards the board to the
	// rest of the room.
	HandleBoardUpdate(ctx context.Context, client *hub.Client, msg *domain.BoardUpdateMessage) error

	// HandleChat stamps and broadcasts a chat line.
	HandleChat(ctx context.Context, client *hub.Client, puzzleID, message string) error

	// HandleStopLive ends the client's live session.
	HandleStopLive(ctx context.Context, client *hub.Client, puzzleID string) error

	// HandleLiveHeartbeat keeps the client's live session alive.
	HandleLiveHeartbeat(ctx context.Context, client *hub.Client, puzzleID string) error

	// HandleDisconnect releases everything the client holds. The hub removes
	// the client afterwards.
	HandleDisconnect(ctx context.Context, client *hub.Client) error

	// EmitComment pushes a comment written elsewhere to the room.
	EmitComment(ctx context.Context, puzzleID string, comment json.RawMessage) error

	// EmitLike pushes a like written elsewhere to the room.
	EmitLike(ctx context.Context, puzzleID, userID string) error

	// HandleRelayEvent delivers a room event published by another instance.
	HandleRelayEvent(ctx context.Context, event *pubsub.Event)

	// HandleInteractionEvent delivers a comment or like read from Kafka.
	HandleInteractionEvent(ctx context.Context, event *kafka.InteractionEvent) error

	GetRoomInfo(ctx context.Context, puzzleID string) (*domain.RoomInfo, error)
	GetLiveStatus(ctx context.Context, puzzleID string) (*domain.LiveStatus, error)
	GetLiveRooms(ctx context.Context) (*domain.LiveRoomsResponse, error)
	GetLiveHistory(ctx context.Context, puzzleID string, limit int) ([]history.LiveSession, error)
	GetBoardSnapshots(ctx context.Context, puzzleID string) ([]history.SnapshotInfo, error)
	GetBoardSnapshot(ctx context.Context, puzzleID, name string) (*history.BoardSnapshot, error)
	Rooms() map[string]int

	// Start starts background workers.
	Start(ctx context.Context) error

	// Stop ends local live sessions and stops background workers.
	Stop() error
}

// RelayPublisher shares room events with other instances.
type RelayPublisher interface {
	Publish(puzzleID, eventType string, payload interface{})
}
