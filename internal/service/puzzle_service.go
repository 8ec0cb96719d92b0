package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/afikyefet/sudoku-live/internal/audit"
	"github.com/afikyefet/sudoku-live/internal/domain"
	"github.com/afikyefet/sudoku-live/internal/history"
	"github.com/afikyefet/sudoku-live/internal/hub"
	"github.com/afikyefet/sudoku-live/internal/kafka"
	"github.com/afikyefet/sudoku-live/internal/live"
	"github.com/afikyefet/sudoku-live/internal/metrics"
	"github.com/afikyefet/sudoku-live/internal/store"
	pkglog "github.com/afikyefet/sudoku-live/pkg/log"
)

// Options wires a PuzzleService. Only Hub is required.
type Options struct {
	Hub              *hub.Hub
	Store            store.PresenceStore
	Mirror           *PresenceMirror
	Relay            RelayPublisher
	LiveProducer     kafka.LiveEventProducer
	History          *history.Recorder
	Metrics          *metrics.Metrics
	InstanceID       string
	DefaultName      string
	ChatMaxLength    int
	HeartbeatTimeout time.Duration
}

type puzzleService struct {
	hub          *hub.Hub
	arbiter      *live.Arbiter
	store        store.PresenceStore
	mirror       *PresenceMirror
	relay        RelayPublisher
	liveProducer kafka.LiveEventProducer
	history      *history.Recorder
	metrics      *metrics.Metrics

	instanceID    string
	defaultName   string
	chatMaxLength int
	now           func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPuzzleService creates a new PuzzleService instance.
func NewPuzzleService(opts Options) PuzzleService {
	return newPuzzleService(opts)
}

func newPuzzleService(opts Options) *puzzleService {
	s := &puzzleService{
		hub:           opts.Hub,
		store:         opts.Store,
		mirror:        opts.Mirror,
		relay:         opts.Relay,
		liveProducer:  opts.LiveProducer,
		history:       opts.History,
		metrics:       opts.Metrics,
		instanceID:    opts.InstanceID,
		defaultName:   opts.DefaultName,
		chatMaxLength: opts.ChatMaxLength,
		now:           time.Now,
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.defaultName == "" {
		s.defaultName = domain.DefaultDisplayName
	}
	if s.chatMaxLength <= 0 {
		s.chatMaxLength = 500
	}
	s.arbiter = live.NewArbiter(opts.HeartbeatTimeout, s.onLiveExpired)
	return s
}

func (s *puzzleService) HandleJoin(ctx context.Context, c *hub.Client, puzzleID string) error {
	if puzzleID == "" {
		return nil
	}
	s.metrics.Events.WithLabelValues(domain.MsgTypeJoinPuzzle).Inc()

	if prev := s.hub.RoomOf(c.ID); prev != "" && prev != puzzleID {
		s.releaseLive(ctx, prev, c, domain.ReasonLeft)
	}

	count, changed := s.hub.JoinRoom(c, puzzleID)
	if !changed {
		return nil
	}
	audit.LogRoom(ctx, audit.ActionJoinRoom, c.ID, puzzleID, fmt.Sprintf("joined room, %d members", count))

	// Late joiners see the current broadcaster and board straight away.
	if b, ok := s.arbiter.Current(puzzleID); ok && b.ClientID != c.ID {
		if err := c.SendMessage(liveStartedMessage(b)); err != nil {
			return err
		}
		if b.Board != nil {
			return c.SendMessage(&domain.BoardUpdateMessage{
				Type:     domain.MsgTypeBoardUpdate,
				PuzzleID: puzzleID,
				Board:    b.Board,
				UserID:   b.ClientID,
			})
		}
	}
	return nil
}

func (s *puzzleService) HandleLeave(ctx context.Context, c *hub.Client, puzzleID string) error {
	if puzzleID == "" || s.hub.RoomOf(c.ID) != puzzleID {
		return nil
	}
	s.metrics.Events.WithLabelValues(domain.MsgTypeLeavePuzzle).Inc()

	s.releaseLive(ctx, puzzleID, c, domain.ReasonLeft)
	if count, changed := s.hub.LeaveRoom(c, puzzleID); changed {
		audit.LogRoom(ctx, audit.ActionLeaveRoom, c.ID, puzzleID, fmt.Sprintf("left room, %d members", count))
	}
	return nil
}

func (s *puzzleService) HandleBoardUpdate(ctx context.Context, c *hub.Client, msg *domain.BoardUpdateMessage) error {
	if msg.PuzzleID == "" || msg.Board == nil {
		return nil
	}
	s.metrics.Events.WithLabelValues(domain.MsgTypeBoardUpdate).Inc()

	if !s.hub.IsMember(c.ID, msg.PuzzleID) {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeNotInRoom, "Join the puzzle before sending updates"))
	}

	d := s.arbiter.Claim(msg.PuzzleID, s.candidate(c), msg.Board)
	if !d.Granted {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeAlreadyLive,
			fmt.Sprintf("%s is already live on this puzzle", broadcasterName(d.Current))))
	}
	if d.Started {
		s.startLive(ctx, d.Current)
	}

	out := &domain.BoardUpdateMessage{
		Type:     domain.MsgTypeBoardUpdate,
		PuzzleID: msg.PuzzleID,
		Board:    msg.Board,
		UserID:   c.ID,
	}
	if _, err := s.hub.BroadcastToRoom(msg.PuzzleID, out, c.ID); err != nil {
		return err
	}
	s.publish(msg.PuzzleID, domain.MsgTypeBoardUpdate, out)
	return nil
}

func (s *puzzleService) HandleChat(ctx context.Context, c *hub.Client, puzzleID, message string) error {
	if puzzleID == "" || strings.TrimSpace(message) == "" {
		return nil
	}
	s.metrics.Events.WithLabelValues(domain.MsgTypeChat).Inc()

	if !s.hub.IsMember(c.ID, puzzleID) {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeNotInRoom, "Join the puzzle before chatting"))
	}
	if utf8.RuneCountInString(message) > s.chatMaxLength {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeMessageTooLong,
			fmt.Sprintf("Messages are limited to %d characters", s.chatMaxLength)))
	}

	out := domain.NewChatOut(puzzleID, c.DisplayName(s.defaultName), message, s.now())
	if _, err := s.hub.BroadcastToRoom(puzzleID, out, ""); err != nil {
		return err
	}
	s.publish(puzzleID, domain.MsgTypeChat, out)
	audit.LogWithDetail(ctx, audit.ActionChat, c.ID, puzzleID, out.User, "chat message sent")
	return nil
}

func (s *puzzleService) HandleStopLive(ctx context.Context, c *hub.Client, puzzleID string) error {
	if puzzleID == "" {
		return nil
	}
	s.metrics.Events.WithLabelValues(domain.MsgTypeStopLive).Inc()

	if !s.hub.IsMember(c.ID, puzzleID) {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeNotInRoom, "Not in this puzzle"))
	}
	if !s.releaseLive(ctx, puzzleID, c, domain.ReasonStopped) {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeNotBroadcaster, "You are not live on this puzzle"))
	}
	return nil
}

func (s *puzzleService) HandleLiveHeartbeat(ctx context.Context, c *hub.Client, puzzleID string) error {
	if puzzleID == "" {
		return nil
	}
	s.metrics.Events.WithLabelValues(domain.MsgTypeLiveHeartbeat).Inc()

	if !s.arbiter.Heartbeat(puzzleID, c.ID) {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeNotBroadcaster, "You are not live on this puzzle"))
	}
	s.publish(puzzleID, domain.MsgTypeLiveHeartbeat, &domain.LiveHeartbeatMessage{
		Type:     domain.MsgTypeLiveHeartbeat,
		PuzzleID: puzzleID,
		UserID:   c.ID,
	})
	return nil
}

func (s *puzzleService) HandleDisconnect(ctx context.Context, c *hub.Client) error {
	if puzzleID := s.hub.RoomOf(c.ID); puzzleID != "" {
		s.releaseLive(ctx, puzzleID, c, domain.ReasonDisconnect)
	}
	audit.Log(ctx, audit.ActionDisconnect, c.ID, "client disconnected")
	return nil
}

func (s *puzzleService) EmitComment(ctx context.Context, puzzleID string, comment json.RawMessage) error {
	if puzzleID == "" {
		return ErrMissingPuzzleID
	}
	if len(comment) == 0 || !json.Valid(comment) {
		return ErrInvalidComment
	}
	s.metrics.Events.WithLabelValues(domain.MsgTypeComment).Inc()

	msg := &domain.CommentMessage{Type: domain.MsgTypeComment, PuzzleID: puzzleID, Comment: comment}
	delivered, err := s.hub.BroadcastToRoom(puzzleID, msg, "")
	if err != nil {
		return err
	}
	s.publish(puzzleID, domain.MsgTypeComment, msg)

	l := pkglog.Ctx(ctx)
	l.Debug().Str(pkglog.FieldPuzzleID, puzzleID).Int(pkglog.FieldCount, delivered).Msg("comment emitted")
	return nil
}

func (s *puzzleService) EmitLike(ctx context.Context, puzzleID, userID string) error {
	if puzzleID == "" {
		return ErrMissingPuzzleID
	}
	s.metrics.Events.WithLabelValues(domain.MsgTypeLike).Inc()

	msg := &domain.LikeMessage{Type: domain.MsgTypeLike, PuzzleID: puzzleID, UserID: userID}
	delivered, err := s.hub.BroadcastToRoom(puzzleID, msg, "")
	if err != nil {
		return err
	}
	s.publish(puzzleID, domain.MsgTypeLike, msg)

	l := pkglog.Ctx(ctx)
	l.Debug().Str(pkglog.FieldPuzzleID, puzzleID).Int(pkglog.FieldCount, delivered).Msg("like emitted")
	return nil
}

func (s *puzzleService) HandleInteractionEvent(ctx context.Context, event *kafka.InteractionEvent) error {
	switch event.Type {
	case kafka.InteractionComment:
		return s.EmitComment(ctx, event.PuzzleID, event.Comment)
	case kafka.InteractionLike:
		return s.EmitLike(ctx, event.PuzzleID, event.UserID)
	default:
		return fmt.Errorf("%w: unknown type %q", kafka.ErrInvalidInteraction, event.Type)
	}
}

func (s *puzzleService) Rooms() map[string]int {
	return s.hub.Rooms()
}

func (s *puzzleService) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.mirror != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.mirror.Run(ctx)
		}()
	}

	l := pkglog.L()
	l.Info().Str(pkglog.FieldInstanceID, s.instanceID).Msg("puzzle service started")
	return nil
}

func (s *puzzleService) Stop() error {
	ctx := context.Background()
	for _, b := range s.arbiter.Live() {
		if b.Remote {
			continue
		}
		if released, ok := s.arbiter.Release(b.PuzzleID, b.ClientID); ok {
			s.endLive(ctx, released, domain.ReasonDisconnect)
		}
	}
	s.arbiter.Stop()

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return nil
}

func (s *puzzleService) candidate(c *hub.Client) live.Candidate {
	cand := live.Candidate{ClientID: c.ID, Name: c.DisplayName(s.defaultName)}
	if c.Session != nil {
		cand.UserID = c.Session.GetUserID()
	}
	return cand
}

// releaseLive ends the client's live session in the room, if it holds one.
func (s *puzzleService) releaseLive(ctx context.Context, puzzleID string, c *hub.Client, reason string) bool {
	b, ok := s.arbiter.Release(puzzleID, c.ID)
	if ok {
		s.endLive(ctx, b, reason)
	}
	return ok
}

func (s *puzzleService) onLiveExpired(b live.Broadcast) {
	s.endLive(context.Background(), b, domain.ReasonTimeout)
}

func (s *puzzleService) startLive(ctx context.Context, b live.Broadcast) {
	msg := liveStartedMessage(b)
	if _, err := s.hub.BroadcastToRoom(b.PuzzleID, msg, ""); err != nil {
		l := pkglog.Ctx(ctx)
		l.Error().Err(err).Str(pkglog.FieldPuzzleID, b.PuzzleID).Msg("failed to broadcast liveStarted")
	}
	s.publish(b.PuzzleID, domain.MsgTypeLiveStarted, msg)

	s.metrics.LiveSessions.Inc()
	s.mirror.SetLive(liveStatus(b))
	s.history.Started(b)
	if s.liveProducer != nil {
		if err := s.liveProducer.ProduceLiveStarted(ctx, s.liveEvent(b, "")); err != nil {
			l := pkglog.Ctx(ctx)
			l.Warn().Err(err).Str(pkglog.FieldPuzzleID, b.PuzzleID).Msg("failed to produce live_started")
		}
	}
	audit.LogRoom(ctx, audit.ActionLiveStart, b.ClientID, b.PuzzleID, "live session started")
}

// endLive tells the room its broadcaster is gone. Sessions owned by another
// instance are only announced locally; their owner does the bookkeeping.
func (s *puzzleService) endLive(ctx context.Context, b live.Broadcast, reason string) {
	msg := &domain.LiveEndedMessage{
		Type:     domain.MsgTypeLiveEnded,
		PuzzleID: b.PuzzleID,
		UserID:   b.ClientID,
		Reason:   reason,
	}
	if _, err := s.hub.BroadcastToRoom(b.PuzzleID, msg, ""); err != nil {
		l := pkglog.Ctx(ctx)
		l.Error().Err(err).Str(pkglog.FieldPuzzleID, b.PuzzleID).Msg("failed to broadcast liveEnded")
	}
	if b.Remote {
		return
	}
	s.publish(b.PuzzleID, domain.MsgTypeLiveEnded, msg)

	s.metrics.LiveSessions.Dec()
	s.metrics.LiveEnded.WithLabelValues(reason).Inc()
	s.mirror.SetOffline(b.PuzzleID)
	s.history.Ended(b, reason, s.now())
	if s.liveProducer != nil {
		if err := s.liveProducer.ProduceLiveEnded(ctx, s.liveEvent(b, reason)); err != nil {
			l := pkglog.Ctx(ctx)
			l.Warn().Err(err).Str(pkglog.FieldPuzzleID, b.PuzzleID).Msg("failed to produce live_ended")
		}
	}
	audit.LogWithDetail(ctx, audit.ActionLiveEnd, b.ClientID, b.PuzzleID, reason, "live session ended")
}

func (s *puzzleService) publish(puzzleID, eventType string, payload interface{}) {
	if s.relay != nil {
		s.relay.Publish(puzzleID, eventType, payload)
	}
}

func (s *puzzleService) liveEvent(b live.Broadcast, reason string) *kafka.LiveEvent {
	return &kafka.LiveEvent{
		PuzzleID:      b.PuzzleID,
		BroadcasterID: b.ClientID,
		Broadcaster:   b.Name,
		UserID:        b.UserID,
		Reason:        reason,
		InstanceID:    s.instanceID,
		Timestamp:     s.now().Unix(),
	}
}

func liveStartedMessage(b live.Broadcast) *domain.LiveStartedMessage {
	return &domain.LiveStartedMessage{
		Type:     domain.MsgTypeLiveStarted,
		PuzzleID: b.PuzzleID,
		UserID:   b.ClientID,
		User:     b.Name,
	}
}

func liveStatus(b live.Broadcast) domain.LiveStatus {
	return domain.LiveStatus{
		PuzzleID:      b.PuzzleID,
		IsLive:        true,
		BroadcasterID: b.ClientID,
		Broadcaster:   b.Name,
		StartedAt:     b.StartedAt.Unix(),
		Updates:       b.Updates,
		Remote:        b.Remote,
	}
}

func broadcasterName(b live.Broadcast) string {
	if b.Name != "" {
		return b.Name
	}
	return "Another player"
}
