package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// LiveEvent is a live session state change, keyed by puzzle id.
type LiveEvent struct {
	Type          string `json:"type"` // "live_started" | "live_ended"
	PuzzleID      string `json:"puzzle_id"`
	BroadcasterID string `json:"broadcaster_id"`
	Broadcaster   string `json:"broadcaster,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	Reason        string `json:"reason,omitempty"` // "stopped" | "left" | "disconnect" | "timeout"
	InstanceID    string `json:"instance_id,omitempty"`
	Timestamp     int64  `json:"timestamp"`
}

// Live event types
const (
	EventLiveStarted = "live_started"
	EventLiveEnded   = "live_ended"
)

// LiveEventProducer defines the interface for producing live events.
type LiveEventProducer interface {
	ProduceLiveStarted(ctx context.Context, event *LiveEvent) error
	ProduceLiveEnded(ctx context.Context, event *LiveEvent) error
	Close() error
}

// InteractionEvent is a comment or like written by the REST API and pushed
// to the room's viewers.
type InteractionEvent struct {
	Type     string          `json:"type"` // "comment" | "like"
	PuzzleID string          `json:"puzzleId"`
	Comment  json.RawMessage `json:"comment,omitempty"`
	UserID   string          `json:"userId,omitempty"`
}

// Interaction event types
const (
	InteractionComment = "comment"
	InteractionLike    = "like"
)

// ErrInvalidInteraction is returned for interaction records that cannot be
// delivered.
var ErrInvalidInteraction = errors.New("invalid interaction event")

// DecodeInteraction parses and validates an interaction record.
func DecodeInteraction(value []byte) (*InteractionEvent, error) {
	var event InteractionEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInteraction, err)
	}
	if event.PuzzleID == "" {
		return nil, fmt.Errorf("%w: missing puzzleId", ErrInvalidInteraction)
	}
	switch event.Type {
	case InteractionComment:
		if len(event.Comment) == 0 {
			return nil, fmt.Errorf("%w: missing comment", ErrInvalidInteraction)
		}
	case InteractionLike:
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidInteraction, event.Type)
	}
	return &event, nil
}

// InteractionHandler handles incoming interaction events.
type InteractionHandler interface {
	HandleInteractionEvent(ctx context.Context, event *InteractionEvent) error
}

// InteractionConsumer defines the interface for consuming interaction events.
type InteractionConsumer interface {
	Start(ctx context.Context) error
	Close() error
}
