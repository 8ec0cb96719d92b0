package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_WriteReadList(t *testing.T) {
	st, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, st.Write(ctx, "boards/p1/a.json", strings.NewReader(`[[1]]`), -1, "application/json"))
	require.NoError(t, st.Write(ctx, "boards/p1/b.json", strings.NewReader(`[[2]]`), -1, "application/json"))
	require.NoError(t, st.Write(ctx, "boards/p2/c.json", strings.NewReader(`[[3]]`), -1, "application/json"))

	rc, err := st.Read(ctx, "boards/p1/a.json")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, `[[1]]`, string(body))

	objects, err := st.List(ctx, "boards/p1")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	keys := []string{objects[0].Key, objects[1].Key}
	assert.ElementsMatch(t, []string{"boards/p1/a.json", "boards/p1/b.json"}, keys)
	assert.Equal(t, int64(5), objects[0].Size)
}

func TestLocalStorage_Missing(t *testing.T) {
	st, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)

	_, err = st.Read(context.Background(), "boards/p1/none.json")
	assert.ErrorIs(t, err, ErrNotFound)

	objects, err := st.List(context.Background(), "boards/nothing")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestLocalStorage_RejectsEscapingKeys(t *testing.T) {
	st, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)

	for _, key := range []string{"../x.json", "..", "", "/etc/passwd"} {
		err := st.Write(context.Background(), key, strings.NewReader("x"), 1, "")
		assert.Error(t, err, key)
	}
}

func TestNew(t *testing.T) {
	st, err := New(context.Background(), Config{Driver: DriverNone})
	require.NoError(t, err)
	assert.Nil(t, st)

	st, err = New(context.Background(), Config{Driver: DriverLocal, Local: LocalConfig{BasePath: t.TempDir()}})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, st)

	_, err = New(context.Background(), Config{Driver: DriverS3})
	assert.Error(t, err, "bucket is required")

	_, err = New(context.Background(), Config{Driver: "ftp"})
	assert.Error(t, err)
}
