package hub

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/afikyefet/sudoku-live/internal/metrics"
	pkglog "github.com/afikyefet/sudoku-live/pkg/log"
)

// Config holds the websocket timing and buffer settings.
type Config struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

// Hub owns every connection and the puzzle rooms they are in. A client is a
// member of at most one room.
type Hub struct {
	clients    map[string]*Client
	rooms      map[string]map[string]*Client // puzzleID -> clientID -> client
	roomOf     map[string]string             // clientID -> puzzleID
	mu         sync.RWMutex
	config     Config
	metrics    *metrics.Metrics
	onPresence PresenceFunc
}

// NewHub creates a new Hub. onPresence may be nil.
func NewHub(cfg Config, m *metrics.Metrics, onPresence PresenceFunc) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if m == nil {
		m = metrics.New()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		roomOf:     make(map[string]string),
		config:     cfg,
		metrics:    m,
		onPresence: onPresence,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.Connections.Set(float64(n))
	l := pkglog.L()
	l.Debug().Str(pkglog.FieldClientID, client.ID).Msg("client registered")
}

// Unregister removes a client from its room and the hub, then closes its send
// channel. Remaining room members get the new count. Safe to call twice.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; !ok {
		h.mu.Unlock()
		return
	}
	room := h.roomOf[client.ID]
	if room != "" {
		h.removeLocked(client, room)
	}
	delete(h.clients, client.ID)
	close(client.Send)
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.Connections.Set(float64(n))
	l := pkglog.L()
	l.Debug().Str(pkglog.FieldClientID, client.ID).Str(pkglog.FieldPuzzleID, room).Msg("client unregistered")
}

// JoinRoom adds client to the room, leaving its previous room first. It
// returns the new member count and whether membership changed. Joining the
// current room again only re-sends the count to the client.
func (h *Hub) JoinRoom(client *Client, puzzleID string) (int, bool) {
	if puzzleID == "" {
		return 0, false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return 0, false
	}

	prev := h.roomOf[client.ID]
	if prev == puzzleID {
		count := len(h.rooms[puzzleID])
		h.replyCountLocked(client, puzzleID, count)
		return count, false
	}
	if prev != "" {
		h.removeLocked(client, prev)
	}

	members, ok := h.rooms[puzzleID]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[puzzleID] = members
	}
	members[client.ID] = client
	h.roomOf[client.ID] = puzzleID

	count := len(members)
	h.announceLocked(puzzleID, count)
	h.metrics.Joins.Inc()
	h.metrics.Rooms.Set(float64(len(h.rooms)))

	l := pkglog.L()
	l.Info().
		Str(pkglog.FieldClientID, client.ID).
		Str(pkglog.FieldPuzzleID, puzzleID).
		Int(pkglog.FieldCount, count).
		Msg("client joined room")
	return count, true
}

// LeaveRoom removes client from the room. Leaving a room the client is not in
// is a no-op. The leaver is told the new count directly.
func (h *Hub) LeaveRoom(client *Client, puzzleID string) (int, bool) {
	if puzzleID == "" {
		return 0, false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.roomOf[client.ID] != puzzleID {
		return 0, false
	}
	count := h.removeLocked(client, puzzleID)
	h.replyCountLocked(client, puzzleID, count)

	l := pkglog.L()
	l.Info().
		Str(pkglog.FieldClientID, client.ID).
		Str(pkglog.FieldPuzzleID, puzzleID).
		Int(pkglog.FieldCount, count).
		Msg("client left room")
	return count, true
}

// removeLocked drops client from room, deletes the room when it empties and
// announces the new count. Caller holds h.mu.
func (h *Hub) removeLocked(client *Client, puzzleID string) int {
	members := h.rooms[puzzleID]
	delete(members, client.ID)
	delete(h.roomOf, client.ID)

	count := len(members)
	if count == 0 {
		delete(h.rooms, puzzleID)
	}
	h.announceLocked(puzzleID, count)
	h.metrics.Rooms.Set(float64(len(h.rooms)))
	return count
}

// BroadcastToRoom sends a message to every member of a room except exclude.
// It returns the number of members the frame was queued for.
func (h *Hub) BroadcastToRoom(puzzleID string, message interface{}, exclude string) (int, error) {
	data, err := json.Marshal(message)
	if err != nil {
		return 0, err
	}
	return h.BroadcastRaw(puzzleID, data, exclude), nil
}

// BroadcastRaw is BroadcastToRoom for an already encoded frame.
func (h *Hub) BroadcastRaw(puzzleID string, data []byte, exclude string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fanOutLocked(puzzleID, data, exclude)
}

func (h *Hub) fanOutLocked(puzzleID string, data []byte, exclude string) int {
	delivered := 0
	for clientID, client := range h.rooms[puzzleID] {
		if clientID == exclude {
			continue
		}
		if h.enqueueLocked(client, data) {
			delivered++
		}
	}
	return delivered
}

// enqueueLocked never blocks. A full buffer drops the frame.
func (h *Hub) enqueueLocked(client *Client, data []byte) bool {
	select {
	case client.Send <- data:
		return true
	default:
		h.metrics.DroppedFrames.Inc()
		l := pkglog.L()
		l.Warn().Str(pkglog.FieldClientID, client.ID).Msg("send buffer full, frame dropped")
		return false
	}
}

// SendToClient sends a message to a specific client. Unknown clients are
// ignored.
func (h *Hub) SendToClient(clientID string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if client, ok := h.clients[clientID]; ok {
		h.enqueueLocked(client, data)
	}
	return nil
}

// Members returns the sorted client ids of a room.
func (h *Hub) Members(puzzleID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.rooms[puzzleID]))
	for id := range h.rooms[puzzleID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RoomCount returns the number of members of a room.
func (h *Hub) RoomCount(puzzleID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[puzzleID])
}

// RoomOf returns the room a client is in, or "".
func (h *Hub) RoomOf(clientID string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.roomOf[clientID]
}

// IsMember reports whether the client is currently in the room.
func (h *Hub) IsMember(clientID, puzzleID string) bool {
	if puzzleID == "" {
		return false
	}
	return h.RoomOf(clientID) == puzzleID
}

// Rooms returns the member count of every non-empty room.
func (h *Hub) Rooms() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]int, len(h.rooms))
	for id, members := range h.rooms {
		out[id] = len(members)
	}
	return out
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client looks up a registered client.
func (h *Hub) Client(clientID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[clientID]
	return c, ok
}

// Shutdown closes every client's send channel so the write pumps send a close
// frame. Presence is not announced.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		close(client.Send)
		delete(h.clients, id)
	}
	h.rooms = make(map[string]map[string]*Client)
	h.roomOf = make(map[string]string)
	h.metrics.Connections.Set(0)
	h.metrics.Rooms.Set(0)
}
