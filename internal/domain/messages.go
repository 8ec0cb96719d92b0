package domain

import (
	"encoding/json"
	"time"
)

// WebSocket message types from client.
const (
	MsgTypeJoinPuzzle    = "joinPuzzle"
	MsgTypeLeavePuzzle   = "leavePuzzle"
	MsgTypeBoardUpdate   = "boardUpdate" // both directions
	MsgTypeChat          = "chat"        // both directions
	MsgTypeStopLive      = "stopLive"
	MsgTypeLiveHeartbeat = "liveHeartbeat"
	MsgTypePing          = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeComment        = "comment"
	MsgTypeLike           = "like"
	MsgTypeSpectatorCount = "spectatorCount"
	MsgTypeLiveStarted    = "liveStarted"
	MsgTypeLiveEnded      = "liveEnded"
	MsgTypeError          = "error"
	MsgTypePong           = "pong"
)

// Error codes
const (
	ErrCodeAlreadyLive    = "ALREADY_LIVE"
	ErrCodeNotBroadcaster = "NOT_BROADCASTER"
	ErrCodeNotInRoom      = "NOT_IN_ROOM"
	ErrCodeMessageTooLong = "MESSAGE_TOO_LONG"
	ErrCodeUnknownEvent   = "UNKNOWN_EVENT"
	ErrCodeRateLimited    = "RATE_LIMITED"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// Live end reasons.
const (
	ReasonStopped    = "stopped"
	ReasonLeft       = "left"
	ReasonDisconnect = "disconnect"
	ReasonTimeout    = "timeout"
)

// DefaultDisplayName is shown for connections that claimed no name.
const DefaultDisplayName = "Spectator"

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

// RoomMessage covers joinPuzzle, leavePuzzle, stopLive and liveHeartbeat.
type RoomMessage struct {
	Type     string `json:"type"`
	PuzzleID string `json:"puzzleId"`
}

// BoardUpdateMessage carries the broadcaster's board. UserID is stamped by
// the server with the sender's connection id.
type BoardUpdateMessage struct {
	Type     string  `json:"type"`
	PuzzleID string  `json:"puzzleId"`
	Board    [][]int `json:"board"`
	UserID   string  `json:"userId,omitempty"`
}

// ChatInMessage is a chat line sent by a client.
type ChatInMessage struct {
	Type     string `json:"type"`
	PuzzleID string `json:"puzzleId"`
	Message  string `json:"message"`
}

// Server -> Client messages

// ChatOutMessage is a chat line stamped with sender name and time.
type ChatOutMessage struct {
	Type      string `json:"type"`
	PuzzleID  string `json:"puzzleId"`
	User      string `json:"user"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// CommentMessage relays a comment written through the REST API.
type CommentMessage struct {
	Type     string          `json:"type"`
	PuzzleID string          `json:"puzzleId"`
	Comment  json.RawMessage `json:"comment"`
}

// LikeMessage relays a like written through the REST API.
type LikeMessage struct {
	Type     string `json:"type"`
	PuzzleID string `json:"puzzleId"`
	UserID   string `json:"userId"`
}

// SpectatorCountMessage is sent on every membership change.
type SpectatorCountMessage struct {
	Type     string `json:"type"`
	PuzzleID string `json:"puzzleId"`
	Count    int    `json:"count"`
}

// LiveStartedMessage announces the room's broadcaster.
type LiveStartedMessage struct {
	Type     string `json:"type"`
	PuzzleID string `json:"puzzleId"`
	UserID   string `json:"userId"`
	User     string `json:"user"`
}

// LiveEndedMessage tells viewers the broadcaster is gone.
type LiveEndedMessage struct {
	Type     string `json:"type"`
	PuzzleID string `json:"puzzleId"`
	UserID   string `json:"userId"`
	Reason   string `json:"reason"`
}

// LiveHeartbeatMessage keeps a broadcaster's authority alive. UserID is set
// when the heartbeat is relayed to other instances.
type LiveHeartbeatMessage struct {
	Type     string `json:"type"`
	PuzzleID string `json:"puzzleId"`
	UserID   string `json:"userId,omitempty"`
}

// ErrorMessage is sent when a client request is refused.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorMessage creates a new error message.
func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}

// NewSpectatorCount builds the presence message for a room.
func NewSpectatorCount(puzzleID string, count int) *SpectatorCountMessage {
	return &SpectatorCountMessage{Type: MsgTypeSpectatorCount, PuzzleID: puzzleID, Count: count}
}

// NewChatOut stamps a chat line. Timestamps are UTC ISO-8601 with milliseconds.
func NewChatOut(puzzleID, user, message string, at time.Time) *ChatOutMessage {
	return &ChatOutMessage{
		Type:      MsgTypeChat,
		PuzzleID:  puzzleID,
		User:      user,
		Message:   message,
		Timestamp: at.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

// HTTP API types

// LiveStatus describes the broadcaster of a room, if any.
type LiveStatus struct {
	PuzzleID      string `json:"puzzleId"`
	IsLive        bool   `json:"isLive"`
	BroadcasterID string `json:"broadcasterId,omitempty"`
	Broadcaster   string `json:"broadcaster,omitempty"`
	StartedAt     int64  `json:"startedAt,omitempty"`
	Updates       int    `json:"updates,omitempty"`
	Remote        bool   `json:"remote,omitempty"`
}

// RoomInfo combines presence counts and live status for a room.
type RoomInfo struct {
	PuzzleID     string     `json:"puzzleId"`
	Count        int        `json:"count"`
	ClusterCount int        `json:"clusterCount"`
	Live         LiveStatus `json:"live"`
}

// LiveRoomsResponse lists rooms that currently have a broadcaster.
type LiveRoomsResponse struct {
	Rooms []LiveStatus `json:"rooms"`
	Total int          `json:"total"`
}
