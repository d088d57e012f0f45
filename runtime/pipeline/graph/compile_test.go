package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearRaw() *RawGraph {
	return &RawGraph{
		Name: "demo",
		Goal: "ship $name",
		Nodes: []RawNode{
			{ID: "start", Shape: "Mdiamond"},
			{ID: "write", Shape: "box", Attributes: map[string]any{"prompt": "do the thing"}},
			{ID: "end", Shape: "Msquare"},
		},
		Edges: []RawEdge{
			{From: "start", To: "write"},
			{From: "write", To: "end"},
		},
	}
}

func TestCompile_LinearGraph(t *testing.T) {
	g, err := Compile(linearRaw())
	require.NoError(t, err)
	assert.Equal(t, "start", g.StartID)
	assert.Equal(t, []string{"end"}, g.ExitIDs)
	assert.Equal(t, "ship demo", g.Goal)

	write := g.Nodes["write"]
	assert.Equal(t, KindCodergen, write.Kind)
	assert.Equal(t, DefaultMaxRetries, write.AttrInt("max_retries", -1))
	assert.Equal(t, "high", write.AttrString("reasoning_effort", ""))
}

func TestCompile_MissingStartFails(t *testing.T) {
	raw := linearRaw()
	raw.Nodes = raw.Nodes[1:]
	_, err := Compile(raw)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "no START")
}

func TestCompile_DuplicateStartFails(t *testing.T) {
	raw := linearRaw()
	raw.Nodes = append(raw.Nodes, RawNode{ID: "start2", Shape: "Mdiamond"})
	raw.Edges = append(raw.Edges, RawEdge{From: "start2", To: "write"})
	_, err := Compile(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate START")
}

func TestCompile_UnreachableNodeFails(t *testing.T) {
	raw := linearRaw()
	raw.Nodes = append(raw.Nodes, RawNode{ID: "orphan", Shape: "box", Attributes: map[string]any{"prompt": "x"}})
	_, err := Compile(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"orphan"`)
}

func TestCompile_CodergenMissingPromptFails(t *testing.T) {
	raw := linearRaw()
	raw.Nodes[1].Attributes = map[string]any{}
	_, err := Compile(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no prompt")
}

func TestCompile_NodeLocalAttributeWinsOverStylesheet(t *testing.T) {
	raw := linearRaw()
	raw.Stylesheet = []RawRule{
		{Shape: "box", Declarations: map[string]any{"reasoning_effort": "low"}},
	}
	raw.Nodes[1].Attributes["reasoning_effort"] = "medium"
	g, err := Compile(raw)
	require.NoError(t, err)
	assert.Equal(t, "medium", g.Nodes["write"].AttrString("reasoning_effort", ""))
}

func TestCompile_StylesheetSpecificity_IDBeatsShapeBeatsUniversal(t *testing.T) {
	raw := linearRaw()
	raw.Stylesheet = []RawRule{
		{Declarations: map[string]any{"reasoning_effort": "none"}},
		{Shape: "box", Declarations: map[string]any{"reasoning_effort": "low"}},
		{ID: "write", Declarations: map[string]any{"reasoning_effort": "high"}},
	}
	raw.Nodes[1].Attributes = map[string]any{"prompt": "x"}
	g, err := Compile(raw)
	require.NoError(t, err)
	assert.Equal(t, "high", g.Nodes["write"].AttrString("reasoning_effort", ""))
}

func TestCompile_ClassTokensFromSubgraphLabel(t *testing.T) {
	raw := linearRaw()
	raw.Nodes[1].Attributes = map[string]any{"prompt": "x"}
	raw.SubgraphLabels = map[string]string{"cluster_0": "Code Review!!"}
	raw.NodeSubgraph = map[string]string{"write": "cluster_0"}
	g, err := Compile(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"code-review"}, g.Nodes["write"].Classes)
}

func TestCompile_EdgeWeightAndPriorityDefaults(t *testing.T) {
	g, err := Compile(linearRaw())
	require.NoError(t, err)
	for _, e := range g.Edges {
		assert.Equal(t, 1, e.Weight)
		assert.Equal(t, 0, e.Priority)
	}
}

func TestCompile_GoalGateBackEdgeCycleAllowed(t *testing.T) {
	raw := &RawGraph{
		Name:        "retry-demo",
		RetryTarget: "write",
		Nodes: []RawNode{
			{ID: "start", Shape: "Mdiamond"},
			{ID: "write", Shape: "box", Attributes: map[string]any{"prompt": "x", "goal_gate": true}},
			{ID: "end", Shape: "Msquare"},
		},
		Edges: []RawEdge{
			{From: "start", To: "write"},
			{From: "write", To: "end"},
			{From: "write", To: "write"},
		},
	}
	_, err := Compile(raw)
	require.NoError(t, err)
}

func TestCompile_UnmarkedCycleFails(t *testing.T) {
	raw := &RawGraph{
		Name: "cyclic",
		Nodes: []RawNode{
			{ID: "start", Shape: "Mdiamond"},
			{ID: "a", Shape: "box", Attributes: map[string]any{"prompt": "x"}},
			{ID: "b", Shape: "box", Attributes: map[string]any{"prompt": "y"}},
			{ID: "end", Shape: "Msquare"},
		},
		Edges: []RawEdge{
			{From: "start", To: "a"},
			{From: "a", To: "b"},
			{From: "b", To: "a"},
			{From: "b", To: "end"},
		},
	}
	_, err := Compile(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a goal-gate back-edge")
}

func TestCompile_UnknownContextKeyIsWarningNotError(t *testing.T) {
	raw := linearRaw()
	raw.Edges[1].Condition = "context.missing_thing=1"
	g, err := Compile(raw)
	require.NoError(t, err)
	require.Len(t, g.Warnings, 1)
	assert.Contains(t, g.Warnings[0], "missing_thing")
}
