// Package sessionclient is a Go client for the puzzle room websocket API.
// It tracks the client's side of a room: whether it is broadcasting its
// board, viewing someone else's or playing alone.
package sessionclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/afikyefet/sudoku-live/internal/domain"
	pkglog "github.com/afikyefet/sudoku-live/pkg/log"
	"github.com/gorilla/websocket"
)

var (
	ErrNotJoined = errors.New("sessionclient: not in a room")
	ErrReadOnly  = errors.New("sessionclient: viewing another player's board")
	ErrClosed    = errors.New("sessionclient: connection closed")
)

const (
	defaultHeartbeatInterval = 5 * time.Second
	writeWait                = 10 * time.Second
)

// Handlers receive server events for the current room. They run on the
// client's read goroutine and must not block.
type Handlers struct {
	OnStateChange func(from, to State)
	OnBoard       func(puzzleID string, board [][]int, userID string)
	OnChat        func(msg ChatMessage)
	OnComment     func(puzzleID string, comment json.RawMessage)
	OnLike        func(puzzleID, userID string)
	OnSpectators  func(puzzleID string, count int)
	OnLiveStarted func(puzzleID, userID, user string)
	OnLiveEnded   func(puzzleID, userID, reason string)
	OnError       func(code, message string)
}

// ChatMessage is a chat line as stamped by the server.
type ChatMessage struct {
	PuzzleID  string
	User      string
	Message   string
	Timestamp string
}

// Options configures Dial.
type Options struct {
	// URL of the websocket endpoint, e.g. ws://localhost:5000/ws.
	URL string
	// Name is the display name claimed at connect time.
	Name string
	// Token is sent as a bearer token when set.
	Token string
	// HeartbeatInterval between liveHeartbeat frames while broadcasting.
	HeartbeatInterval time.Duration
	Dialer            *websocket.Dialer
	Handlers          Handlers
}

// Client is one websocket connection. Its methods are safe for concurrent
// use.
type Client struct {
	conn     *websocket.Conn
	handlers Handlers
	interval time.Duration

	writeMu sync.Mutex

	mu         sync.Mutex
	state      State
	room       string
	board      [][]int
	spectators int
	hbStop     chan struct{}
	closed     bool

	done chan struct{}
}

// Dial connects to the server and starts reading events.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if opts.Name != "" {
		q := u.Query()
		q.Set("user", opts.Name)
		u.RawQuery = q.Encode()
	}

	header := http.Header{}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", u.Redacted(), err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}

	c := &Client{
		conn:     conn,
		handlers: opts.Handlers,
		interval: opts.HeartbeatInterval,
		done:     make(chan struct{}),
	}
	if c.interval <= 0 {
		c.interval = defaultHeartbeatInterval
	}
	go c.readLoop()
	return c, nil
}

// Join enters a room, leaving the current one.
func (c *Client) Join(puzzleID string) error {
	if puzzleID == "" {
		return errors.New("sessionclient: empty puzzle id")
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	pending := c.resetLocked(puzzleID, Joined, nil)
	c.mu.Unlock()
	c.notify(pending)

	return c.send(&domain.RoomMessage{Type: domain.MsgTypeJoinPuzzle, PuzzleID: puzzleID})
}

// Leave exits the current room.
func (c *Client) Leave() error {
	c.mu.Lock()
	room := c.room
	if room == "" {
		c.mu.Unlock()
		return ErrNotJoined
	}
	pending := c.resetLocked("", Idle, nil)
	c.mu.Unlock()
	c.notify(pending)

	return c.send(&domain.RoomMessage{Type: domain.MsgTypeLeavePuzzle, PuzzleID: room})
}

// GoLive starts broadcasting. The server grants authority on the first
// board; when board is nil the last local board is sent, if any.
func (c *Client) GoLive(board [][]int) error {
	c.mu.Lock()
	room := c.room
	if room == "" {
		c.mu.Unlock()
		return ErrNotJoined
	}
	if board != nil {
		c.board = board
	}
	board = c.board
	pending := c.setStateLocked(Broadcasting, nil)
	c.mu.Unlock()
	c.notify(pending)

	if board == nil {
		return nil
	}
	return c.send(&domain.BoardUpdateMessage{Type: domain.MsgTypeBoardUpdate, PuzzleID: room, Board: board})
}

// StopLive ends the broadcast. It is a no-op when not broadcasting.
func (c *Client) StopLive() error {
	c.mu.Lock()
	room := c.room
	if c.state != Broadcasting {
		c.mu.Unlock()
		return nil
	}
	pending := c.setStateLocked(Joined, nil)
	c.mu.Unlock()
	c.notify(pending)

	return c.send(&domain.RoomMessage{Type: domain.MsgTypeStopLive, PuzzleID: room})
}

// PushBoard records a local board change and sends it while broadcasting.
func (c *Client) PushBoard(board [][]int) error {
	c.mu.Lock()
	room, state := c.room, c.state
	switch {
	case room == "":
		c.mu.Unlock()
		return ErrNotJoined
	case state == Viewing:
		c.mu.Unlock()
		return ErrReadOnly
	}
	c.board = board
	c.mu.Unlock()

	if state != Broadcasting {
		return nil
	}
	return c.send(&domain.BoardUpdateMessage{Type: domain.MsgTypeBoardUpdate, PuzzleID: room, Board: board})
}

// Chat sends a chat line to the current room.
func (c *Client) Chat(message string) error {
	room := c.Room()
	if room == "" {
		return ErrNotJoined
	}
	return c.send(&domain.ChatInMessage{Type: domain.MsgTypeChat, PuzzleID: room, Message: message})
}

// State returns the current state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Board returns the board shown locally: the broadcaster's while viewing,
// the client's own otherwise.
func (c *Client) Board() [][]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.board
}

// Spectators returns the last member count received for the room.
func (c *Client) Spectators() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spectators
}

// Room returns the current room, or "".
func (c *Client) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close closes the connection and waits for the read goroutine.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return nil
	}
	c.closed = true
	pending := c.resetLocked("", Idle, nil)
	c.mu.Unlock()
	c.notify(pending)

	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) resetLocked(room string, to State, pending []transition) []transition {
	c.room = room
	c.board = nil
	c.spectators = 0
	return c.setStateLocked(to, pending)
}

func (c *Client) send(v interface{}) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *Client) startHeartbeatLocked() {
	if c.hbStop != nil {
		return
	}
	stop := make(chan struct{})
	c.hbStop = stop
	room := c.room

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := c.send(&domain.RoomMessage{Type: domain.MsgTypeLiveHeartbeat, PuzzleID: room}); err != nil {
					return
				}
			}
		}
	}()
}

func (c *Client) stopHeartbeatLocked() {
	if c.hbStop != nil {
		close(c.hbStop)
		c.hbStop = nil
	}
}

// frame is the union of every server event.
type frame struct {
	Type      string          `json:"type"`
	PuzzleID  string          `json:"puzzleId"`
	Board     [][]int         `json:"board"`
	UserID    string          `json:"userId"`
	User      string          `json:"user"`
	Message   string          `json:"message"`
	Timestamp string          `json:"timestamp"`
	Comment   json.RawMessage `json:"comment"`
	Count     int             `json:"count"`
	Reason    string          `json:"reason"`
	Code      string          `json:"code"`
}

func (c *Client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.closed = true
		pending := c.resetLocked("", Idle, nil)
		c.mu.Unlock()
		c.notify(pending)
		c.conn.Close()
		close(c.done)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l := pkglog.L()
				l.Debug().Err(err).Msg("sessionclient: read failed")
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		c.dispatch(&f)
	}
}

func (c *Client) dispatch(f *frame) {
	h := c.handlers

	if f.Type == domain.MsgTypeError {
		c.mu.Lock()
		var pending []transition
		if f.Code == domain.ErrCodeAlreadyLive && c.state == Broadcasting {
			pending = c.setStateLocked(Joined, nil)
		}
		c.mu.Unlock()
		c.notify(pending)
		if h.OnError != nil {
			h.OnError(f.Code, f.Message)
		}
		return
	}

	c.mu.Lock()
	if f.PuzzleID == "" || f.PuzzleID != c.room {
		// stale event for a room we already left
		c.mu.Unlock()
		return
	}
	var pending []transition
	switch f.Type {
	case domain.MsgTypeSpectatorCount:
		c.spectators = f.Count
	case domain.MsgTypeBoardUpdate:
		if c.state != Broadcasting {
			c.board = f.Board
			if c.state == Joined || c.state == Solo {
				pending = c.setStateLocked(Viewing, pending)
			}
		}
	case domain.MsgTypeLiveEnded:
		switch c.state {
		case Viewing:
			pending = c.setStateLocked(Solo, pending)
		case Broadcasting:
			pending = c.setStateLocked(Joined, pending)
		}
	}
	c.mu.Unlock()
	c.notify(pending)

	switch f.Type {
	case domain.MsgTypeSpectatorCount:
		if h.OnSpectators != nil {
			h.OnSpectators(f.PuzzleID, f.Count)
		}
	case domain.MsgTypeBoardUpdate:
		if h.OnBoard != nil {
			h.OnBoard(f.PuzzleID, f.Board, f.UserID)
		}
	case domain.MsgTypeChat:
		if h.OnChat != nil {
			h.OnChat(ChatMessage{PuzzleID: f.PuzzleID, User: f.User, Message: f.Message, Timestamp: f.Timestamp})
		}
	case domain.MsgTypeComment:
		if h.OnComment != nil {
			h.OnComment(f.PuzzleID, f.Comment)
		}
	case domain.MsgTypeLike:
		if h.OnLike != nil {
			h.OnLike(f.PuzzleID, f.UserID)
		}
	case domain.MsgTypeLiveStarted:
		if h.OnLiveStarted != nil {
			h.OnLiveStarted(f.PuzzleID, f.UserID, f.User)
		}
	case domain.MsgTypeLiveEnded:
		if h.OnLiveEnded != nil {
			h.OnLiveEnded(f.PuzzleID, f.UserID, f.Reason)
		}
	}
}
