package hub

import (
	"time"

	"github.com/afikyefet/sudoku-live/internal/domain"
	pkglog "github.com/afikyefet/sudoku-live/pkg/log"
	"github.com/gorilla/websocket"
)

// DisconnectHandler is called when a client disconnects.
type DisconnectHandler func(*Client)

// MessageHandler receives every frame read from a client.
type MessageHandler func(*Client, []byte)

// Client represents a connected WebSocket client.
type Client struct {
	ID                string
	Hub               *Hub
	Conn              *websocket.Conn
	Send              chan []byte
	Session           *domain.Session
	disconnectHandler DisconnectHandler
}

// NewClient creates a client bound to hub. The send buffer size comes from
// the hub config.
func NewClient(id string, h *Hub, conn *websocket.Conn, session *domain.Session) *Client {
	return &Client{
		ID:      id,
		Hub:     h,
		Conn:    conn,
		Send:    make(chan []byte, h.config.SendBuffer),
		Session: session,
	}
}

// SetDisconnectHandler sets the handler to be called on disconnect.
func (c *Client) SetDisconnectHandler(handler DisconnectHandler) {
	c.disconnectHandler = handler
}

// DisplayName returns the name other members see for this client.
func (c *Client) DisplayName(fallback string) string {
	if c.Session == nil {
		return fallback
	}
	return c.Session.DisplayName(fallback)
}

// SendMessage queues a message for this client only. It is a no-op once the
// client is unregistered.
func (c *Client) SendMessage(message interface{}) error {
	return c.Hub.SendToClient(c.ID, message)
}

// ReadPump pumps messages from the WebSocket connection to the handler.
func (c *Client) ReadPump(handler MessageHandler) {
	defer func() {
		// Release room state before the client disappears from the hub.
		if c.disconnectHandler != nil {
			c.disconnectHandler(c)
		}
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l := pkglog.L()
				l.Warn().Err(err).Str(pkglog.FieldClientID, c.ID).Msg("websocket read error")
			}
			break
		}

		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.PongWait))
		if c.Session != nil {
			c.Session.UpdateActivity()
		}

		handler(c, message)
	}
}

// WritePump pumps messages from the hub to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.Hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
