package fslog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_NodeArtifactRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.WriteNodeArtifact(ctx, "write-code", "prompt.md", []byte("do the thing")))
	got, err := store.ReadNodeArtifact(ctx, "write-code", "prompt.md")
	require.NoError(t, err)
	assert.Equal(t, "do the thing", string(got))
}

func TestStore_CheckpointRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, ok, err := store.LoadCheckpoint(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SaveCheckpoint(ctx, []byte(`{"version":1}`)))
	data, ok, err := store.LoadCheckpoint(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"version":1}`, string(data))
}

func TestStore_SaveCheckpointLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	store, err := New(root)
	require.NoError(t, err)
	require.NoError(t, store.SaveCheckpoint(context.Background(), []byte("x")))

	matches, err := filepath.Glob(filepath.Join(root, ".tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}
