package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipeforge/pipeforge/runtime/pipeline/graph"
	"github.com/pipeforge/pipeforge/runtime/pipeline/logstore/fslog"
	"github.com/pipeforge/pipeforge/runtime/pipeline/pctx"
)

func testGraph(t *testing.T) *graph.Graph {
	t.Helper()
	raw := &graph.RawGraph{
		Name: "g", Goal: "ship it",
		Nodes: []graph.RawNode{
			{ID: "start", Shape: "Mdiamond"},
			{ID: "end", Shape: "Msquare"},
		},
		Edges: []graph.RawEdge{{From: "start", To: "end"}},
	}
	g, err := graph.Compile(raw)
	require.NoError(t, err)
	return g
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, err := fslog.New(t.TempDir())
	require.NoError(t, err)

	g := testGraph(t)
	now := time.Unix(1700000000, 0).UTC()
	cp := New(g, now)
	cp.CompletedNodes = []string{"start"}
	cp.LastCompletedNodeID = "start"
	cp.OutcomeByNode["start"] = pctx.Success()
	cp.ContextSnapshot["goal"] = pctx.String("ship it")

	require.NoError(t, Save(context.Background(), store, cp))

	loaded, ok, err := Load(context.Background(), store)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cp.LastCompletedNodeID, loaded.LastCompletedNodeID)
	assert.Equal(t, cp.CompletedNodes, loaded.CompletedNodes)
	assert.NoError(t, VerifyFingerprint(loaded, g))
}

func TestVerifyFingerprint_MismatchErrors(t *testing.T) {
	g := testGraph(t)
	cp := New(g, time.Unix(0, 0))
	cp.GraphNodeCount = 99

	err := VerifyFingerprint(cp, g)
	assert.Error(t, err)
}

func TestLoad_NoCheckpointYet(t *testing.T) {
	store, err := fslog.New(t.TempDir())
	require.NoError(t, err)

	_, ok, err := Load(context.Background(), store)
	require.NoError(t, err)
	assert.False(t, ok)
}
