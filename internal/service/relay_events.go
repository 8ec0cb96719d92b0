package service

import (
	"context"

	"github.com/afikyefet/sudoku-live/internal/domain"
	"github.com/afikyefet/sudoku-live/internal/live"
	pkglog "github.com/afikyefet/sudoku-live/pkg/log"
	"github.com/afikyefet/sudoku-live/pkg/pubsub"
)

// HandleRelayEvent delivers an event from another instance to the local
// members of its room. Live events also keep the arbiter in step, so a
// broadcaster on another instance blocks local claims.
func (s *puzzleService) HandleRelayEvent(ctx context.Context, event *pubsub.Event) {
	l := pkglog.Ctx(ctx)
	puzzleID := event.RoomID

	switch event.Type {
	case domain.MsgTypeBoardUpdate:
		var msg domain.BoardUpdateMessage
		if err := event.UnmarshalPayload(&msg); err != nil {
			l.Warn().Err(err).Str(pkglog.FieldEventType, event.Type).Msg("relay: invalid payload")
			return
		}
		if cur, ok := s.arbiter.Current(puzzleID); ok && !cur.Remote {
			// a local broadcaster owns the room here
			return
		}
		if s.arbiter.ObserveRemote(puzzleID, event.Origin, live.Candidate{ClientID: msg.UserID}, msg.Board) {
			// joined the relay mid-session: announce before the first board
			if b, ok := s.arbiter.Current(puzzleID); ok {
				s.hub.BroadcastToRoom(puzzleID, liveStartedMessage(b), "")
			}
		}
		s.hub.BroadcastRaw(puzzleID, event.Payload, "")

	case domain.MsgTypeLiveStarted:
		var msg domain.LiveStartedMessage
		if err := event.UnmarshalPayload(&msg); err != nil {
			l.Warn().Err(err).Str(pkglog.FieldEventType, event.Type).Msg("relay: invalid payload")
			return
		}
		cand := live.Candidate{ClientID: msg.UserID, Name: msg.User}
		if s.arbiter.ObserveRemote(puzzleID, event.Origin, cand, nil) {
			s.hub.BroadcastRaw(puzzleID, event.Payload, "")
		}

	case domain.MsgTypeLiveHeartbeat:
		var msg domain.LiveHeartbeatMessage
		if err := event.UnmarshalPayload(&msg); err != nil {
			l.Warn().Err(err).Str(pkglog.FieldEventType, event.Type).Msg("relay: invalid payload")
			return
		}
		if s.arbiter.ObserveRemote(puzzleID, event.Origin, live.Candidate{ClientID: msg.UserID}, nil) {
			if b, ok := s.arbiter.Current(puzzleID); ok {
				s.hub.BroadcastToRoom(puzzleID, liveStartedMessage(b), "")
			}
		}

	case domain.MsgTypeLiveEnded:
		var msg domain.LiveEndedMessage
		if err := event.UnmarshalPayload(&msg); err != nil {
			l.Warn().Err(err).Str(pkglog.FieldEventType, event.Type).Msg("relay: invalid payload")
			return
		}
		if _, ok := s.arbiter.ForgetRemote(puzzleID, msg.UserID); ok {
			s.hub.BroadcastRaw(puzzleID, event.Payload, "")
		}

	case domain.MsgTypeChat, domain.MsgTypeComment, domain.MsgTypeLike:
		s.hub.BroadcastRaw(puzzleID, event.Payload, "")

	default:
		l.Debug().Str(pkglog.FieldEventType, event.Type).Msg("relay: ignoring event")
	}
}
