package pubsub

import (
	"context"
	"errors"
	"time"

	"github.com/afikyefet/sudoku-live/internal/metrics"
	pkglog "github.com/afikyefet/sudoku-live/pkg/log"
	"github.com/afikyefet/sudoku-live/pkg/pubsub"
)

const (
	outboxSize     = 1024
	publishTimeout = 3 * time.Second
	reconnectDelay = 2 * time.Second
)

var errSubscriptionClosed = errors.New("relay subscription closed")

// EventHandler receives room events published by other instances.
type EventHandler interface {
	HandleRelayEvent(ctx context.Context, event *pubsub.Event)
}

// Relay shares room events with the other instances of the service. Events
// published by this instance are ignored when they come back.
type Relay struct {
	bus        pubsub.PubSub
	instanceID string
	metrics    *metrics.Metrics
	outbox     chan *pubsub.Event
	doneCh     chan struct{}
}

// NewRelay creates a relay over bus.
func NewRelay(bus pubsub.PubSub, instanceID string, m *metrics.Metrics) *Relay {
	if m == nil {
		m = metrics.New()
	}
	return &Relay{
		bus:        bus,
		instanceID: instanceID,
		metrics:    m,
		outbox:     make(chan *pubsub.Event, outboxSize),
		doneCh:     make(chan struct{}),
	}
}

// InstanceID returns the origin stamped on published events.
func (r *Relay) InstanceID() string { return r.instanceID }

// Done returns a channel that is closed when Run() exits.
func (r *Relay) Done() <-chan struct{} { return r.doneCh }

// Publish queues a room event for the other instances. It never blocks; a
// full outbox drops the event.
func (r *Relay) Publish(puzzleID, eventType string, payload interface{}) {
	l := pkglog.L()

	event, err := pubsub.NewEvent(eventType, puzzleID, payload)
	if err != nil {
		l.Error().Err(err).Str(pkglog.FieldEventType, eventType).Msg("relay: failed to encode event")
		return
	}
	event.WithOrigin(r.instanceID)

	select {
	case r.outbox <- event:
	default:
		l.Warn().Str(pkglog.FieldPuzzleID, puzzleID).Str(pkglog.FieldEventType, eventType).Msg("relay: outbox full, event dropped")
	}
}

// Run publishes queued events and delivers remote ones to handler until ctx
// is done. Reconnects on subscription errors.
func (r *Relay) Run(ctx context.Context, handler EventHandler) {
	defer close(r.doneCh)

	publisherDone := make(chan struct{})
	go func() {
		defer close(publisherDone)
		r.publishLoop(ctx)
	}()
	defer func() { <-publisherDone }()

	l := pkglog.L()
	for {
		err := r.runSubscription(ctx, handler)
		if ctx.Err() != nil {
			return
		}
		l.Warn().Err(err).Msg("relay subscription error, reconnecting in 2s")
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (r *Relay) runSubscription(ctx context.Context, handler EventHandler) error {
	ch, err := r.bus.SubscribePattern(ctx, pubsub.PatternRoomRelay)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-ch:
			if !ok {
				return errSubscriptionClosed
			}
			r.handleEvent(ctx, handler, event)
		}
	}
}

func (r *Relay) handleEvent(ctx context.Context, handler EventHandler, event *pubsub.Event) {
	if event == nil || event.RoomID == "" || event.Origin == r.instanceID {
		return
	}
	r.metrics.Relay.WithLabelValues("in").Inc()
	handler.HandleRelayEvent(ctx, event)
}

func (r *Relay) publishLoop(ctx context.Context) {
	l := pkglog.L()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-r.outbox:
			pctx, cancel := context.WithTimeout(ctx, publishTimeout)
			err := r.bus.Publish(pctx, pubsub.RoomRelayChannel(event.RoomID), event)
			cancel()
			if err != nil {
				l.Warn().Err(err).Str(pkglog.FieldPuzzleID, event.RoomID).Msg("relay: publish failed")
				continue
			}
			r.metrics.Relay.WithLabelValues("out").Inc()
		}
	}
}
