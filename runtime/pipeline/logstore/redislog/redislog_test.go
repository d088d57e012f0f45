package redislog

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, "test-run")
}

func TestStore_NodeArtifactRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.WriteNodeArtifact(ctx, "write-code", "prompt.md", []byte("do the thing")))
	got, err := store.ReadNodeArtifact(ctx, "write-code", "prompt.md")
	require.NoError(t, err)
	assert.Equal(t, "do the thing", string(got))
}

func TestStore_CheckpointRoundTrip(t *testing.T) {
	store := newTestStore(t)
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

func TestStore_NamespaceIsolatesRuns(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	a := New(rdb, "run-a")
	b := New(rdb, "run-b")
	require.NoError(t, a.SaveCheckpoint(ctx, []byte("a")))
	_, ok, err := b.LoadCheckpoint(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
