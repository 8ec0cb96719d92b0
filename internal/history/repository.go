package history

import (
	"context"
	"errors"
	"time"

	"github.com/afikyefet/sudoku-live/pkg/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrDisabled is returned when live session history is not configured.
var ErrDisabled = errors.New("live history disabled")

// ErrSessionNotFound is returned when no open session matches an end event.
var ErrSessionNotFound = errors.New("live session not found")

// Repository stores live sessions.
type Repository interface {
	Migrate(ctx context.Context) error
	Start(ctx context.Context, session *LiveSession) error
	End(ctx context.Context, puzzleID, broadcasterID string, endedAt time.Time, reason string, updates int) error
	ListByPuzzle(ctx context.Context, puzzleID string, limit int) ([]LiveSession, error)
}

// GormRepository implements Repository using GORM.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a new GORM-based live session repository.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Migrate creates or updates the live_sessions table.
func (r *GormRepository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&LiveSession{})
}

// Start inserts an open session.
func (r *GormRepository) Start(ctx context.Context, session *LiveSession) error {
	l := log.Ctx(ctx)

	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		l.Error().Err(err).Str(log.FieldPuzzleID, session.PuzzleID).Msg("failed to record live session start")
		return err
	}
	return nil
}

// End closes the open session of a broadcaster.
func (r *GormRepository) End(ctx context.Context, puzzleID, broadcasterID string, endedAt time.Time, reason string, updates int) error {
	l := log.Ctx(ctx)

	result := r.db.WithContext(ctx).
		Model(&LiveSession{}).
		Where("puzzle_id = ? AND broadcaster_id = ? AND ended_at IS NULL", puzzleID, broadcasterID).
		Updates(map[string]interface{}{
			"ended_at": endedAt,
			"reason":   reason,
			"updates":  updates,
		})
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldPuzzleID, puzzleID).Msg("failed to record live session end")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ListByPuzzle returns the latest sessions of a room, newest first.
func (r *GormRepository) ListByPuzzle(ctx context.Context, puzzleID string, limit int) ([]LiveSession, error) {
	if limit < 1 {
		limit = 20
	}

	var sessions []LiveSession
	err := r.db.WithContext(ctx).
		Where("puzzle_id = ?", puzzleID).
		Order("started_at DESC").
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldPuzzleID, puzzleID).Msg("failed to list live sessions")
		return nil, err
	}
	return sessions, nil
}
