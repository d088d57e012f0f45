package edge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipeforge/pipeforge/runtime/pipeline/graph"
	"github.com/pipeforge/pipeforge/runtime/pipeline/pctx"
)

func TestSelect_ConditionOnOutcome(t *testing.T) {
	edges := []graph.Edge{
		{From: "n", To: "ok", Condition: "outcome=success"},
		{From: "n", To: "bad", Condition: "outcome=fail"},
	}
	ctx := pctx.New()
	ctx.Set(pctx.KeyOutcome, pctx.String("success"))
	to, err := Select(edges, pctx.Success(), ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", to)
}

func TestSelect_ContextEqualityAndNegation(t *testing.T) {
	edges := []graph.Edge{
		{From: "n", To: "a", Condition: "context.lang=go"},
		{From: "n", To: "b", Condition: "context.lang!=go"},
	}
	ctx := pctx.New()
	ctx.Set("lang", pctx.String("rust"))
	to, err := Select(edges, pctx.Outcome{}, ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", to)
}

func TestSelect_RegexCondition(t *testing.T) {
	edges := []graph.Edge{
		{From: "n", To: "a", Condition: `context.msg~^err`},
		{From: "n", To: "b", Condition: ""},
	}
	ctx := pctx.New()
	ctx.Set("msg", pctx.String("error: boom"))
	to, err := Select(edges, pctx.Outcome{}, ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", to)
}

func TestSelect_PreferredLabelBeatsPriority(t *testing.T) {
	edges := []graph.Edge{
		{From: "n", To: "low", Label: "retry", Priority: 10},
		{From: "n", To: "high", Label: "continue", Priority: 0},
	}
	outcome := pctx.Outcome{Status: pctx.StatusSuccess, PreferredLabel: "continue"}
	to, err := Select(edges, outcome, pctx.New())
	require.NoError(t, err)
	assert.Equal(t, "high", to)
}

func TestSelect_PreferredLabelBracketForm(t *testing.T) {
	edges := []graph.Edge{
		{From: "n", To: "yes", Label: "[y] Yes, proceed"},
		{From: "n", To: "no", Label: "[n] No, stop"},
	}
	outcome := pctx.Outcome{Status: pctx.StatusSuccess, PreferredLabel: "y"}
	to, err := Select(edges, outcome, pctx.New())
	require.NoError(t, err)
	assert.Equal(t, "yes", to)
}

func TestSelect_PriorityThenWeightThenSourceOrder(t *testing.T) {
	edges := []graph.Edge{
		{From: "n", To: "first", Priority: 1, Weight: 1, SourceIndex: 0},
		{From: "n", To: "second", Priority: 1, Weight: 5, SourceIndex: 1},
		{From: "n", To: "third", Priority: 0, Weight: 99, SourceIndex: 2},
	}
	to, err := Select(edges, pctx.Outcome{}, pctx.New())
	require.NoError(t, err)
	assert.Equal(t, "second", to)
}

func TestSelect_NoMatchIsFatal(t *testing.T) {
	edges := []graph.Edge{
		{From: "n", To: "a", Condition: "outcome=success"},
	}
	ctx := pctx.New()
	ctx.Set(pctx.KeyOutcome, pctx.String("fail"))
	_, err := Select(edges, pctx.Outcome{}, ctx)
	require.ErrorIs(t, err, ErrNoMatch)
}

func TestSelectFanOut_HighestWeightIsContinuation(t *testing.T) {
	edges := []graph.Edge{
		{From: "n", To: "branch-a", Weight: 1},
		{From: "n", To: "branch-b", Weight: 1},
		{From: "n", To: "after-fanin", Weight: 10},
	}
	branches, cont, err := SelectFanOut(edges, pctx.New())
	require.NoError(t, err)
	assert.Equal(t, "after-fanin", cont.To)
	assert.Len(t, branches, 2)
}

func TestSelectFanOut_ExplicitContinuationLabel(t *testing.T) {
	edges := []graph.Edge{
		{From: "n", To: "branch-a", Weight: 5},
		{From: "n", To: "join", Weight: 1, Label: "continuation"},
	}
	branches, cont, err := SelectFanOut(edges, pctx.New())
	require.NoError(t, err)
	assert.Equal(t, "join", cont.To)
	assert.Len(t, branches, 1)
	assert.Equal(t, "branch-a", branches[0].To)
}
