package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/afikyefet/sudoku-live/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogWithDetail(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Level: "debug", Out: &buf})
	ctx := log.WithLogger(context.Background(), logger)

	LogWithDetail(ctx, ActionLiveEnd, "c1", "p1", "timeout", "live ended")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, log.LogTypeAudit, entry[log.FieldLogType])
	assert.Equal(t, ActionLiveEnd, entry[FieldAction])
	assert.Equal(t, "c1", entry[log.FieldUserID])
	assert.Equal(t, "p1", entry[FieldTargetID])
	assert.Equal(t, "timeout", entry[FieldDetail])
	assert.Equal(t, "live ended", entry["message"])
}
