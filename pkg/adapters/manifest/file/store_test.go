package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenResolve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dsl.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
  {"type": "package", "id": "0xabc"},
  {"type": "house::House", "id": "0xdef"},
  {"type": "", "id": "0xskip"}
]`), 0o644))

	store, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())

	id, found, err := store.Resolve(context.Background(), "house::House")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "0xdef", id)

	_, found, err = store.Resolve(context.Background(), "game::Game")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestWriteThenOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dsl.json")
	require.NoError(t, Write(path, []Entry{{Type: "package", ID: "0x1"}}))

	store, err := Open(path)
	require.NoError(t, err)

	id, found, _ := store.Resolve(context.Background(), "package")
	assert.True(t, found)
	assert.Equal(t, "0x1", id)
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"x"}`), 0o644))
	_, err = Open(path)
	assert.Error(t, err)
}
