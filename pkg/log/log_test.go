package log

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zerolog.Disabled, ParseLevel("off"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("bogus"))
}

func TestNew_StaticFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", ServiceName: "puzzle-live", InstanceID: "node-1", Out: &buf})
	l.Debug().Msg("hidden")
	l.Info().Msg("shown")

	got := lines(t, &buf)
	require.Len(t, got, 1)
	assert.Equal(t, "puzzle-live", got[0][FieldService])
	assert.Equal(t, "node-1", got[0][FieldInstanceID])
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(Config{Out: &buf}))
	ctx = WithFields(ctx, FieldPuzzleID, "p1", FieldClientID)

	l := Ctx(ctx)
	l.Info().Msg("hello")

	got := lines(t, &buf)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0][FieldPuzzleID])
	assert.NotContains(t, got[0], FieldClientID)
}

func TestHTTPMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Out: &buf})

	h := HTTPMiddleware(logger, "/health")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := Ctx(r.Context())
		l.Info().Msg("inside")
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/live-puzzles", nil)
	req.Header.Set("X-Request-ID", "req-1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))
	got := lines(t, &buf)
	require.Len(t, got, 2)
	assert.Equal(t, "req-1", got[0][FieldRequestID], "handler logs carry the request id")
	assert.Equal(t, float64(http.StatusTeapot), got[1][FieldStatus])

	buf.Reset()
	quiet := httptest.NewRecorder()
	h.ServeHTTP(quiet, httptest.NewRequest(http.MethodGet, "/health", nil))
	got = lines(t, &buf)
	require.Len(t, got, 1, "quiet paths log completion at debug only")
	assert.Equal(t, "inside", got[0]["message"])
	assert.NotEmpty(t, quiet.Header().Get("X-Request-ID"))
}
