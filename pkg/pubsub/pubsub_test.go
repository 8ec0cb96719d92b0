package pubsub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelToTopicAndKey(t *testing.T) {
	tests := []struct {
		channel string
		topic   string
		key     string
		wantErr bool
	}{
		{RoomRelayChannel("P42"), TopicRoomRelay, "P42", false},
		{"puzzle:room:abc:spectator_count", "puzzle-spectator-count", "abc", false},
		{"puzzle:relay", "", "", true},
		{"puzzle:rooms:abc:relay", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			topic, key, err := channelToTopicAndKey(tt.channel)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.topic, topic)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestPatternToTopic(t *testing.T) {
	topic, err := patternToTopic(PatternRoomRelay)
	require.NoError(t, err)
	assert.Equal(t, TopicRoomRelay, topic)
}

func TestSanitizeGroupID(t *testing.T) {
	assert.Equal(t, "puzzle-relay-host-1.local", sanitizeGroupID("puzzle-relay-host:1.local"))
}

func TestNewEvent(t *testing.T) {
	t.Run("struct payload", func(t *testing.T) {
		e, err := NewEvent("chat", "p1", map[string]string{"message": "hi"})
		require.NoError(t, err)
		assert.Equal(t, "chat", e.Type)
		assert.Equal(t, "p1", e.RoomID)
		assert.JSONEq(t, `{"message":"hi"}`, string(e.Payload))
		assert.False(t, e.Timestamp.IsZero())
	})

	t.Run("raw payload is kept", func(t *testing.T) {
		raw := json.RawMessage(`{"a":1}`)
		e, err := NewEvent("like", "p1", raw)
		require.NoError(t, err)
		assert.Equal(t, raw, e.Payload)

		e, err = NewEvent("like", "p1", []byte(`[1,2]`))
		require.NoError(t, err)
		assert.Equal(t, json.RawMessage(`[1,2]`), e.Payload)
	})

	t.Run("unencodable payload", func(t *testing.T) {
		_, err := NewEvent("x", "p1", make(chan int))
		assert.Error(t, err)
	})

	t.Run("origin round trip", func(t *testing.T) {
		e, err := NewEvent("boardUpdate", "p1", map[string]int{"n": 1})
		require.NoError(t, err)
		data, err := json.Marshal(e.WithOrigin("node-1"))
		require.NoError(t, err)

		var back Event
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, "node-1", back.Origin)

		var payload map[string]int
		require.NoError(t, back.UnmarshalPayload(&payload))
		assert.Equal(t, 1, payload["n"])
	})
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled())

	cfg.Driver = DriverRedis
	assert.True(t, cfg.Enabled())

	_, err := NewPubSub(Config{Driver: "carrier-pigeon"})
	assert.Error(t, err)
}
