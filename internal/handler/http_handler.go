package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/afikyefet/sudoku-live/internal/history"
	"github.com/afikyefet/sudoku-live/internal/service"
	pkglog "github.com/afikyefet/sudoku-live/pkg/log"
	"github.com/gorilla/mux"
)

const maxHistoryLimit = 100

// HTTPHandler handles the public HTTP API.
type HTTPHandler struct {
	service service.PuzzleService
	metrics http.Handler
}

// NewHTTPHandler creates a new HTTP handler. A nil metrics handler leaves
// /metrics unregistered.
func NewHTTPHandler(svc service.PuzzleService, metrics http.Handler) *HTTPHandler {
	return &HTTPHandler{
		service: svc,
		metrics: metrics,
	}
}

// RegisterRoutes registers all routes.
func (h *HTTPHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/puzzles/{puzzle_id}/presence", h.GetPresence).Methods(http.MethodGet)
	api.HandleFunc("/puzzles/{puzzle_id}/live", h.GetLiveStatus).Methods(http.MethodGet)
	api.HandleFunc("/puzzles/{puzzle_id}/live/history", h.GetLiveHistory).Methods(http.MethodGet)
	api.HandleFunc("/puzzles/{puzzle_id}/boards", h.GetBoardSnapshots).Methods(http.MethodGet)
	api.HandleFunc("/puzzles/{puzzle_id}/boards/{name}", h.GetBoardSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/live-puzzles", h.GetLivePuzzles).Methods(http.MethodGet)
}

// GetPresence handles GET /api/v1/puzzles/{puzzle_id}/presence
// Returns the local and cluster-wide spectator counts and live status.
func (h *HTTPHandler) GetPresence(w http.ResponseWriter, r *http.Request) {
	puzzleID := mux.Vars(r)["puzzle_id"]

	info, err := h.service.GetRoomInfo(r.Context(), puzzleID)
	if err != nil {
		h.fail(w, r, err, "failed to get presence")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// GetLiveStatus handles GET /api/v1/puzzles/{puzzle_id}/live
func (h *HTTPHandler) GetLiveStatus(w http.ResponseWriter, r *http.Request) {
	puzzleID := mux.Vars(r)["puzzle_id"]

	status, err := h.service.GetLiveStatus(r.Context(), puzzleID)
	if err != nil {
		h.fail(w, r, err, "failed to get live status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// GetLiveHistory handles GET /api/v1/puzzles/{puzzle_id}/live/history?limit=N
func (h *HTTPHandler) GetLiveHistory(w http.ResponseWriter, r *http.Request) {
	puzzleID := mux.Vars(r)["puzzle_id"]

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	sessions, err := h.service.GetLiveHistory(r.Context(), puzzleID, limit)
	if err != nil {
		h.fail(w, r, err, "failed to get live history")
		return
	}
	if sessions == nil {
		sessions = []history.LiveSession{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"puzzleId": puzzleID,
		"sessions": sessions,
		"total":    len(sessions),
	})
}

// GetBoardSnapshots handles GET /api/v1/puzzles/{puzzle_id}/boards
// Lists the final boards of past live sessions, newest first.
func (h *HTTPHandler) GetBoardSnapshots(w http.ResponseWriter, r *http.Request) {
	puzzleID := mux.Vars(r)["puzzle_id"]

	snapshots, err := h.service.GetBoardSnapshots(r.Context(), puzzleID)
	if err != nil {
		h.fail(w, r, err, "failed to list board snapshots")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"puzzleId":  puzzleID,
		"snapshots": snapshots,
		"total":     len(snapshots),
	})
}

// GetBoardSnapshot handles GET /api/v1/puzzles/{puzzle_id}/boards/{name}
func (h *HTTPHandler) GetBoardSnapshot(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	snapshot, err := h.service.GetBoardSnapshot(r.Context(), vars["puzzle_id"], vars["name"])
	if err != nil {
		h.fail(w, r, err, "failed to load board snapshot")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// GetLivePuzzles handles GET /api/v1/live-puzzles
func (h *HTTPHandler) GetLivePuzzles(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.service.GetLiveRooms(r.Context())
	if err != nil {
		h.fail(w, r, err, "failed to get live puzzles")
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

// HealthCheck handles GET /health
func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrMissingPuzzleID):
		http.Error(w, "puzzle_id is required", http.StatusBadRequest)
	case errors.Is(err, history.ErrDisabled):
		http.Error(w, "live history is disabled", http.StatusServiceUnavailable)
	case errors.Is(err, history.ErrArchiveDisabled):
		http.Error(w, "board archive is disabled", http.StatusServiceUnavailable)
	case errors.Is(err, history.ErrSnapshotNotFound):
		http.Error(w, "board snapshot not found", http.StatusNotFound)
	default:
		l := pkglog.Ctx(r.Context())
		l.Error().Err(err).Msg(msg)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
