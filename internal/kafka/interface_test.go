package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInteraction(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
		check   func(t *testing.T, e *InteractionEvent)
	}{
		{
			name:  "comment",
			value: `{"type":"comment","puzzleId":"p1","comment":{"id":7,"text":"nice"}}`,
			check: func(t *testing.T, e *InteractionEvent) {
				assert.Equal(t, InteractionComment, e.Type)
				assert.Equal(t, "p1", e.PuzzleID)
				assert.JSONEq(t, `{"id":7,"text":"nice"}`, string(e.Comment))
			},
		},
		{
			name:  "like",
			value: `{"type":"like","puzzleId":"p1","userId":"u1"}`,
			check: func(t *testing.T, e *InteractionEvent) {
				assert.Equal(t, InteractionLike, e.Type)
				assert.Equal(t, "u1", e.UserID)
			},
		},
		{name: "not json", value: `nope`, wantErr: true},
		{name: "missing puzzle", value: `{"type":"like","userId":"u1"}`, wantErr: true},
		{name: "comment without body", value: `{"type":"comment","puzzleId":"p1"}`, wantErr: true},
		{name: "unknown type", value: `{"type":"boardUpdate","puzzleId":"p1"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := DecodeInteraction([]byte(tt.value))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInteraction)
				return
			}
			require.NoError(t, err)
			tt.check(t, e)
		})
	}
}
