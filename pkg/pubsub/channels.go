package pubsub

import "fmt"

// Channel naming for the room relay between instances. The Kafka driver maps
// "{prefix}:room:{id}:{suffix}" to topic "{prefix}-{suffix}" keyed by id.
const (
	ChannelRoomRelay = "puzzle:room:%s:relay"
	PatternRoomRelay = "puzzle:room:*:relay"

	TopicRoomRelay = "puzzle-relay"
)

// RoomRelayChannel returns the relay channel for one puzzle room.
func RoomRelayChannel(roomID string) string {
	return fmt.Sprintf(ChannelRoomRelay, roomID)
}
