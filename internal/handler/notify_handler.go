package handler

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/afikyefet/sudoku-live/internal/service"
	"github.com/afikyefet/sudoku-live/pkg/log"
	"github.com/afikyefet/sudoku-live/pkg/response"
	"github.com/gin-gonic/gin"
)

// NotifyHandler is the internal API other services use to push comments and
// likes into live rooms.
type NotifyHandler struct {
	service service.PuzzleService
}

// NewNotifyHandler creates a new internal API handler.
func NewNotifyHandler(svc service.PuzzleService) *NotifyHandler {
	return &NotifyHandler{service: svc}
}

type commentRequest struct {
	Comment json.RawMessage `json:"comment"`
}

type likeRequest struct {
	UserID string `json:"userId"`
}

type roomEntry struct {
	PuzzleID string `json:"puzzleId"`
	Count    int    `json:"count"`
}

// RegisterRoutes registers all routes. Middlewares (auth) apply to the whole
// group.
func (h *NotifyHandler) RegisterRoutes(r gin.IRouter, middlewares ...gin.HandlerFunc) {
	internal := r.Group("/internal/v1", middlewares...)
	{
		puzzles := internal.Group("/puzzles/:puzzle_id")
		{
			puzzles.POST("/comments", h.EmitComment)
			puzzles.POST("/likes", h.EmitLike)
		}
		internal.GET("/rooms", h.ListRooms)
	}
}

// EmitComment pushes a comment to every member of the room.
func (h *NotifyHandler) EmitComment(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	puzzleID := c.Param("puzzle_id")

	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind comment request")
		response.BadRequest(c, err.Error())
		return
	}
	if len(req.Comment) == 0 {
		response.BadRequest(c, "comment is required")
		return
	}

	if err := h.service.EmitComment(ctx, puzzleID, req.Comment); err != nil {
		h.fail(c, err, "failed to emit comment")
		return
	}
	response.Accepted(c, gin.H{"puzzleId": puzzleID})
}

// EmitLike pushes a like to every member of the room.
func (h *NotifyHandler) EmitLike(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	puzzleID := c.Param("puzzle_id")

	var req likeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind like request")
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.service.EmitLike(ctx, puzzleID, req.UserID); err != nil {
		h.fail(c, err, "failed to emit like")
		return
	}
	response.Accepted(c, gin.H{"puzzleId": puzzleID})
}

// ListRooms returns the rooms with members on this instance.
func (h *NotifyHandler) ListRooms(c *gin.Context) {
	counts := h.service.Rooms()
	rooms := make([]roomEntry, 0, len(counts))
	for id, n := range counts {
		rooms = append(rooms, roomEntry{PuzzleID: id, Count: n})
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].PuzzleID < rooms[j].PuzzleID })

	response.Success(c, gin.H{"rooms": rooms, "total": len(rooms)})
}

func (h *NotifyHandler) fail(c *gin.Context, err error, msg string) {
	if errors.Is(err, service.ErrMissingPuzzleID) || errors.Is(err, service.ErrInvalidComment) {
		response.BadRequest(c, err.Error())
		return
	}
	l := log.Ctx(c.Request.Context())
	l.Error().Err(err).Msg(msg)
	response.InternalError(c, msg)
}
