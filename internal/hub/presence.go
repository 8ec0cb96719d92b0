package hub

import (
	"encoding/json"

	"github.com/afikyefet/sudoku-live/internal/domain"
	pkglog "github.com/afikyefet/sudoku-live/pkg/log"
)

// PresenceFunc observes every member count change. It runs while the hub lock
// is held and must not block or call back into the hub.
type PresenceFunc func(puzzleID string, count int)

// announceLocked queues spectatorCount to every member of the room and
// notifies the observer. Caller holds h.mu.
func (h *Hub) announceLocked(puzzleID string, count int) {
	if count > 0 {
		if data, ok := encodeCount(puzzleID, count); ok {
			h.fanOutLocked(puzzleID, data, "")
		}
	}
	if h.onPresence != nil {
		h.onPresence(puzzleID, count)
	}
}

// replyCountLocked tells a single client the room count. Used for a client
// that just left, or re-joined the room it was already in.
func (h *Hub) replyCountLocked(client *Client, puzzleID string, count int) {
	if data, ok := encodeCount(puzzleID, count); ok {
		h.enqueueLocked(client, data)
	}
}

func encodeCount(puzzleID string, count int) ([]byte, bool) {
	data, err := json.Marshal(domain.NewSpectatorCount(puzzleID, count))
	if err != nil {
		l := pkglog.L()
		l.Error().Err(err).Str(pkglog.FieldPuzzleID, puzzleID).Msg("failed to encode spectator count")
		return nil, false
	}
	return data, true
}
