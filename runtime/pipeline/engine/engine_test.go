package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipeforge/pipeforge/runtime/llm/model"
	"github.com/pipeforge/pipeforge/runtime/pipeline/agentloop"
	"github.com/pipeforge/pipeforge/runtime/pipeline/graph"
	"github.com/pipeforge/pipeforge/runtime/pipeline/interview"
	"github.com/pipeforge/pipeforge/runtime/pipeline/logstore/fslog"
	"github.com/pipeforge/pipeforge/runtime/pipeline/pctx"
)

type scriptedClient struct {
	responses []*model.Response
	i         int
}

func textResponse(text string) *model.Response {
	return &model.Response{
		FinishReason: model.FinishStop,
		Message:      model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: text}}},
	}
}

func (c *scriptedClient) Complete(context.Context, model.Request) (*model.Response, error) {
	r := c.responses[c.i]
	if c.i < len(c.responses)-1 {
		c.i++
	}
	return r, nil
}

func (c *scriptedClient) Stream(context.Context, model.Request) (model.Streamer, error) {
	panic("not used")
}

func newSession(t *testing.T, responses ...*model.Response) *agentloop.Session {
	t.Helper()
	env := agentloop.NewDefaultEnvironment(t.TempDir())
	profile := agentloop.DefaultProfile{ProviderName: "anthropic", ModelName: "m", Effort: "high"}
	return agentloop.NewSession(&scriptedClient{responses: responses}, profile, env)
}

func newStore(t *testing.T) *fslog.Store {
	t.Helper()
	store, err := fslog.New(t.TempDir())
	require.NoError(t, err)
	return store
}

// S1: linear pipeline START -> codegen -> EXIT.
func TestEngine_LinearPipeline(t *testing.T) {
	raw := &graph.RawGraph{
		Name: "s1", Goal: "a REST API",
		Nodes: []graph.RawNode{
			{ID: "start", Shape: "Mdiamond"},
			{ID: "codegen", Shape: "box", Attributes: map[string]any{"prompt": "Build $goal"}},
			{ID: "exit", Shape: "Msquare"},
		},
		Edges: []graph.RawEdge{
			{From: "start", To: "codegen"},
			{From: "codegen", To: "exit"},
		},
	}
	g, err := graph.Compile(raw)
	require.NoError(t, err)

	store := newStore(t)
	e := New(g, newSession(t, textResponse("DONE")), nil, store, nil)

	result, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, result.State)
	assert.Equal(t, []string{"start", "codegen", "exit"}, result.CompletedNodes)

	prompt, err := store.ReadNodeArtifact(context.Background(), "codegen", "prompt.md")
	require.NoError(t, err)
	assert.Contains(t, string(prompt), "Build a REST API")

	resp, err := store.ReadNodeArtifact(context.Background(), "codegen", "response.md")
	require.NoError(t, err)
	assert.Equal(t, "DONE", string(resp))
}

// S2: conditional routing on outcome.
func TestEngine_ConditionalRouting(t *testing.T) {
	raw := &graph.RawGraph{
		Name: "s2", Goal: "g",
		Nodes: []graph.RawNode{
			{ID: "start", Shape: "Mdiamond"},
			{ID: "work", Shape: "box", Attributes: map[string]any{"prompt": "do work"}},
			{ID: "check", Shape: "diamond"},
			{ID: "good", Shape: "box", Attributes: map[string]any{"prompt": "good path"}},
			{ID: "bad", Shape: "box", Attributes: map[string]any{"prompt": "bad path"}},
			{ID: "exit", Shape: "Msquare"},
		},
		Edges: []graph.RawEdge{
			{From: "start", To: "work"},
			{From: "work", To: "check"},
			{From: "check", To: "good", Condition: "outcome=success"},
			{From: "check", To: "bad", Condition: "outcome=fail"},
			{From: "good", To: "exit"},
			{From: "bad", To: "exit"},
		},
	}
	g, err := graph.Compile(raw)
	require.NoError(t, err)

	store := newStore(t)
	e := New(g, newSession(t, textResponse("ok"), textResponse("ok")), nil, store, nil)

	result, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, result.State)
	assert.Contains(t, result.CompletedNodes, "good")
	assert.NotContains(t, result.CompletedNodes, "bad")
}

// S4: retry-then-success.
func TestEngine_RetryThenSuccess(t *testing.T) {
	raw := &graph.RawGraph{
		Name: "s4", Goal: "g",
		Nodes: []graph.RawNode{
			{ID: "start", Shape: "Mdiamond"},
			{ID: "flaky", Shape: "box", Attributes: map[string]any{"prompt": "p", "max_retries": float64(5)}},
			{ID: "exit", Shape: "Msquare"},
		},
		Edges: []graph.RawEdge{
			{From: "start", To: "flaky"},
			{From: "flaky", To: "exit"},
		},
	}
	g, err := graph.Compile(raw)
	require.NoError(t, err)

	store := newStore(t)
	client := &retryThenSucceedClient{failCount: 2}
	env := agentloop.NewDefaultEnvironment(t.TempDir())
	profile := agentloop.DefaultProfile{ProviderName: "anthropic", ModelName: "m"}
	session := agentloop.NewSession(client, profile, env)
	e := New(g, session, nil, store, nil)

	var retryEvents int
	e.Subscribe(func(ev Event) {
		if ev.Kind == EventStageRetrying {
			retryEvents++
		}
	})

	result, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, result.State)
	assert.Equal(t, 2, retryEvents)
	assert.Equal(t, 3, client.calls)
}

// retryThenSucceedClient errors on its first failCount calls (simulating a
// codergen node handler's RETRY path via a failing backend), then succeeds.
type retryThenSucceedClient struct {
	failCount int
	calls     int
}

func (c *retryThenSucceedClient) Complete(context.Context, model.Request) (*model.Response, error) {
	c.calls++
	if c.calls <= c.failCount {
		return nil, errTransient
	}
	return textResponse("DONE"), nil
}

func (c *retryThenSucceedClient) Stream(context.Context, model.Request) (model.Streamer, error) {
	panic("not used")
}

var errTransient = &model.ProviderError{
	Provider:  "anthropic",
	Operation: "complete",
	Kind:      model.ErrorKindServer,
	Msg:       "upstream overloaded",
}

// S5: human-in-the-loop.
func TestEngine_WaitHuman(t *testing.T) {
	raw := &graph.RawGraph{
		Name: "s5", Goal: "g",
		Nodes: []graph.RawNode{
			{ID: "start", Shape: "Mdiamond"},
			{ID: "ask", Shape: "hexagon"},
			{ID: "apply", Shape: "box", Attributes: map[string]any{"prompt": "apply"}},
			{ID: "reject", Shape: "box", Attributes: map[string]any{"prompt": "reject"}},
			{ID: "exit", Shape: "Msquare"},
		},
		Edges: []graph.RawEdge{
			{From: "start", To: "ask"},
			{From: "ask", To: "apply", Label: "[A] Approve"},
			{From: "ask", To: "reject", Label: "[R] Reject"},
			{From: "apply", To: "exit"},
			{From: "reject", To: "exit"},
		},
	}
	g, err := graph.Compile(raw)
	require.NoError(t, err)

	store := newStore(t)
	q := interview.NewQueueInterviewer(interview.Answer{Status: interview.AnswerSelected, Key: "A"})
	e := New(g, newSession(t, textResponse("ok")), q, store, nil)

	result, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, result.State)
	assert.Contains(t, result.CompletedNodes, "apply")
	assert.NotContains(t, result.CompletedNodes, "reject")
	assert.Equal(t, 0, q.Pending())
}

// Checkpoint round-trip: resume from a checkpoint saved mid-run continues
// to completion against the same graph.
func TestEngine_ResumeFromCheckpoint(t *testing.T) {
	raw := &graph.RawGraph{
		Name: "resume", Goal: "g",
		Nodes: []graph.RawNode{
			{ID: "start", Shape: "Mdiamond"},
			{ID: "first", Shape: "box", Attributes: map[string]any{"prompt": "first"}},
			{ID: "second", Shape: "box", Attributes: map[string]any{"prompt": "second"}},
			{ID: "exit", Shape: "Msquare"},
		},
		Edges: []graph.RawEdge{
			{From: "start", To: "first"},
			{From: "first", To: "second"},
			{From: "second", To: "exit"},
		},
	}
	g, err := graph.Compile(raw)
	require.NoError(t, err)

	store := newStore(t)
	first := New(g, newSession(t, textResponse("one")), nil, store, nil)

	// Abort after "first" completes by using a context that's cancelled once
	// the checkpoint for "first" is saved.
	ctx, cancel := context.WithCancel(context.Background())
	first.Subscribe(func(ev Event) {
		if ev.Kind == EventCheckpointSaved && ev.NodeID == "first" {
			cancel()
		}
	})
	result, err := first.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, StateAborted, result.State)
	assert.Contains(t, result.CompletedNodes, "first")
	assert.NotContains(t, result.CompletedNodes, "second")

	resumed := New(g, newSession(t, textResponse("two")), nil, store, nil)
	finalResult, err := resumed.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, finalResult.State)
	assert.Contains(t, finalResult.CompletedNodes, "second")
	assert.Contains(t, finalResult.CompletedNodes, "exit")
}
