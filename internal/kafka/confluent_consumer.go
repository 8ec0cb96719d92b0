package kafka

import (
	"context"
	"fmt"
	"time"

	pkglog "github.com/afikyefet/sudoku-live/pkg/log"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// ConfluentConsumer implements InteractionConsumer using confluent-kafka-go.
type ConfluentConsumer struct {
	consumer *kafka.Consumer
	topic    string
	handler  InteractionHandler
	doneCh   chan struct{}
}

// NewConfluentConsumer creates a new Kafka consumer for interaction events.
func NewConfluentConsumer(brokers, topic, groupID string, handler InteractionHandler) (*ConfluentConsumer, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  brokers,
		"group.id":           groupID,
		"auto.offset.reset":  "latest",
		"enable.auto.commit": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	return &ConfluentConsumer{
		consumer: c,
		topic:    topic,
		handler:  handler,
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins consuming messages from Kafka.
func (cc *ConfluentConsumer) Start(ctx context.Context) error {
	if err := cc.consumer.Subscribe(cc.topic, nil); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", cc.topic, err)
	}

	l := pkglog.L()
	l.Info().Str("topic", cc.topic).Msg("kafka consumer started")

	go cc.consumeLoop(ctx)

	return nil
}

func (cc *ConfluentConsumer) consumeLoop(ctx context.Context) {
	defer close(cc.doneCh)
	l := pkglog.L()

	for {
		select {
		case <-ctx.Done():
			l.Info().Str("topic", cc.topic).Msg("kafka consumer shutting down")
			return
		default:
			msg, err := cc.consumer.ReadMessage(100 * time.Millisecond)
			if err != nil {
				if kerr, ok := err.(kafka.Error); ok && kerr.IsTimeout() {
					continue
				}
				l.Warn().Err(err).Str("topic", cc.topic).Msg("kafka consumer error")
				continue
			}

			cc.processMessage(ctx, msg)
		}
	}
}

func (cc *ConfluentConsumer) processMessage(ctx context.Context, msg *kafka.Message) {
	l := pkglog.L()
	event, err := DecodeInteraction(msg.Value)
	if err != nil {
		l.Warn().Err(err).Str("topic", cc.topic).Msg("dropping interaction event")
		return
	}

	l.Debug().
		Str(pkglog.FieldEventType, event.Type).
		Str(pkglog.FieldPuzzleID, event.PuzzleID).
		Msg("received interaction event")

	if err := cc.handler.HandleInteractionEvent(ctx, event); err != nil {
		l.Error().Err(err).Str(pkglog.FieldPuzzleID, event.PuzzleID).Msg("failed to handle interaction event")
	}
}

// Close stops the consumer and releases resources. The context passed to
// Start must be cancelled first.
func (cc *ConfluentConsumer) Close() error {
	<-cc.doneCh
	if err := cc.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	return nil
}
