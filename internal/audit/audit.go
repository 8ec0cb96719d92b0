package audit

import (
	"context"

	"github.com/afikyefet/sudoku-live/pkg/log"
)

// Audit actions for the puzzle room service.
const (
	ActionConnect    = "puzzle.connect"
	ActionAuthFailed = "puzzle.auth_failed"
	ActionJoinRoom   = "puzzle.join_room"
	ActionLeaveRoom  = "puzzle.leave_room"
	ActionLiveStart  = "puzzle.live_start"
	ActionLiveEnd    = "puzzle.live_end"
	ActionChat       = "puzzle.chat"
	ActionDisconnect = "puzzle.disconnect"
)

// Field constants for audit entries.
const (
	FieldAction   = "action"
	FieldTargetID = "target_id"
	FieldDetail   = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action string, userID string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Msg(msg)
}

// LogRoom emits an audit entry about a puzzle room.
func LogRoom(ctx context.Context, action, userID, puzzleID, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldTargetID, puzzleID).
		Msg(msg)
}

// LogWithDetail emits an audit log with extra detail field.
func LogWithDetail(ctx context.Context, action, userID, puzzleID, detail, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldTargetID, puzzleID).
		Str(FieldDetail, detail).
		Msg(msg)
}
