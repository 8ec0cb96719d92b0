package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/afikyefet/sudoku-live/internal/audit"
	"github.com/afikyefet/sudoku-live/internal/domain"
	"github.com/afikyefet/sudoku-live/internal/hub"
	"github.com/afikyefet/sudoku-live/internal/service"
	pkglog "github.com/afikyefet/sudoku-live/pkg/log"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// WSHandler handles WebSocket connections for puzzle rooms.
type WSHandler struct {
	hub      *hub.Hub
	service  service.PuzzleService
	auth     *Authenticator
	upgrader websocket.Upgrader

	frameRate  rate.Limit
	frameBurst int
}

// NewWSHandler creates a new WebSocket handler. allowedOrigins may contain
// "*" to accept any origin.
func NewWSHandler(h *hub.Hub, svc service.PuzzleService, auth *Authenticator, allowedOrigins []string) *WSHandler {
	if auth == nil {
		auth = NewAuthenticator("", nil)
	}
	return &WSHandler{
		hub:     h,
		service: svc,
		auth:    auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// WithRateLimit caps inbound frames per connection. A non-positive rate
// disables the limit.
func (h *WSHandler) WithRateLimit(perSecond float64, burst int) *WSHandler {
	if perSecond <= 0 {
		h.frameRate = 0
		return h
	}
	h.frameRate = rate.Limit(perSecond)
	h.frameBurst = max(burst, 1)
	return h
}

// RegisterRoutes registers the upgrade endpoint.
func (h *WSHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws", h.HandleWebSocket).Methods(http.MethodGet)
}

// HandleWebSocket handles WebSocket upgrade and connection.
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := pkglog.Ctx(ctx)

	ident, err := h.auth.Identify(r)
	if err != nil {
		if h.auth.Required() {
			audit.Log(ctx, audit.ActionAuthFailed, "", err.Error())
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !errors.Is(err, ErrMissingToken) {
			audit.Log(ctx, audit.ActionAuthFailed, "", err.Error())
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	clientID := uuid.New().String()
	client := hub.NewClient(clientID, h.hub, conn, ident.Session(clientID))
	client.SetDisconnectHandler(h.OnDisconnect)

	h.hub.Register(client)
	audit.LogWithDetail(ctx, audit.ActionConnect, ident.UserID, "", clientID, "client connected")

	// The request context ends with the upgrade; keep only its logger.
	connLogger := l.With().Str(pkglog.FieldClientID, clientID).Logger()
	connCtx := pkglog.WithLogger(context.Background(), connLogger)

	var limiter *rate.Limiter
	if h.frameRate > 0 {
		limiter = rate.NewLimiter(h.frameRate, h.frameBurst)
	}

	go client.WritePump()
	go client.ReadPump(func(c *hub.Client, message []byte) {
		if limiter != nil && !limiter.Allow() {
			c.SendMessage(domain.NewErrorMessage(domain.ErrCodeRateLimited, "Too many messages"))
			return
		}
		h.handleMessage(connCtx, c, message)
	})
}

func (h *WSHandler) handleMessage(ctx context.Context, c *hub.Client, message []byte) {
	l := pkglog.Ctx(ctx)

	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		l.Debug().Err(err).Msg("dropping malformed frame")
		return
	}

	var err error
	switch base.Type {
	case domain.MsgTypeJoinPuzzle:
		var msg domain.RoomMessage
		if decode(ctx, message, &msg) {
			err = h.service.HandleJoin(ctx, c, msg.PuzzleID)
		}

	case domain.MsgTypeLeavePuzzle:
		var msg domain.RoomMessage
		if decode(ctx, message, &msg) {
			err = h.service.HandleLeave(ctx, c, msg.PuzzleID)
		}

	case domain.MsgTypeBoardUpdate:
		var msg domain.BoardUpdateMessage
		if decode(ctx, message, &msg) {
			err = h.service.HandleBoardUpdate(ctx, c, &msg)
		}

	case domain.MsgTypeChat:
		var msg domain.ChatInMessage
		if decode(ctx, message, &msg) {
			err = h.service.HandleChat(ctx, c, msg.PuzzleID, msg.Message)
		}

	case domain.MsgTypeStopLive:
		var msg domain.RoomMessage
		if decode(ctx, message, &msg) {
			err = h.service.HandleStopLive(ctx, c, msg.PuzzleID)
		}

	case domain.MsgTypeLiveHeartbeat:
		var msg domain.RoomMessage
		if decode(ctx, message, &msg) {
			err = h.service.HandleLiveHeartbeat(ctx, c, msg.PuzzleID)
		}

	case domain.MsgTypePing:
		err = c.SendMessage(domain.BaseMessage{Type: domain.MsgTypePong})

	default:
		err = c.SendMessage(domain.NewErrorMessage(domain.ErrCodeUnknownEvent, "Unknown event: "+base.Type))
	}

	if err != nil {
		l.Error().Err(err).Str(pkglog.FieldEventType, base.Type).Msg("failed to handle frame")
	}
}

// OnDisconnect is called when a client disconnects.
func (h *WSHandler) OnDisconnect(c *hub.Client) {
	ctx := context.Background()
	if err := h.service.HandleDisconnect(ctx, c); err != nil {
		l := pkglog.L()
		l.Error().Err(err).Str(pkglog.FieldClientID, c.ID).Msg("HandleDisconnect failed")
	}
}

func decode(ctx context.Context, message []byte, v interface{}) bool {
	if err := json.Unmarshal(message, v); err != nil {
		l := pkglog.Ctx(ctx)
		l.Debug().Err(err).Msg("dropping malformed frame")
		return false
	}
	return true
}

// originChecker accepts requests without an Origin header (non-browser
// clients), any origin when "*" is listed, and otherwise exact matches.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	wildcard := false
	for _, o := range allowed {
		o = normalizeOrigin(o)
		if o == "*" {
			wildcard = true
		}
		set[o] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || wildcard {
			return true
		}
		_, ok := set[normalizeOrigin(origin)]
		return ok
	}
}

func normalizeOrigin(o string) string {
	o = strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
	if u, err := url.Parse(o); err == nil && u.Scheme != "" && u.Host != "" {
		return u.Scheme + "://" + u.Host
	}
	return o
}
