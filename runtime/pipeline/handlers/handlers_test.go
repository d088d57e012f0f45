package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipeforge/pipeforge/runtime/llm/model"
	"github.com/pipeforge/pipeforge/runtime/pipeline/agentloop"
	"github.com/pipeforge/pipeforge/runtime/pipeline/graph"
	"github.com/pipeforge/pipeforge/runtime/pipeline/interview"
	"github.com/pipeforge/pipeforge/runtime/pipeline/logstore"
	"github.com/pipeforge/pipeforge/runtime/pipeline/logstore/fslog"
	"github.com/pipeforge/pipeforge/runtime/pipeline/pctx"
)

type fakeLLMClient struct {
	responses []*model.Response
	calls     int
}

func (f *fakeLLMClient) Complete(context.Context, model.Request) (*model.Response, error) {
	if f.calls >= len(f.responses) {
		return nil, errors.New("fakeLLMClient: no more responses queued")
	}
	r := f.responses[f.calls]
	f.calls++
	return r, nil
}

func (f *fakeLLMClient) Stream(context.Context, model.Request) (model.Streamer, error) {
	panic("not used")
}

type fakeServices struct {
	session     *agentloop.Session
	interviewer interview.Interviewer
	store       *fslog.Store
	edges       map[string][]graph.Edge
	runFromFn   func(ctx context.Context, startNodeID string, branchCtx *pctx.Context) (BranchResult, error)
	done        chan struct{}
}

func (s *fakeServices) Session() *agentloop.Session        { return s.session }
func (s *fakeServices) Interviewer() interview.Interviewer { return s.interviewer }
func (s *fakeServices) LogStore() logstore.LogStore        { return s.store }
func (s *fakeServices) RunFrom(ctx context.Context, startNodeID string, branchCtx *pctx.Context) (BranchResult, error) {
	return s.runFromFn(ctx, startNodeID, branchCtx)
}
func (s *fakeServices) RunSubPipeline(ctx context.Context, subGraphRef string, parentCtx *pctx.Context) (BranchResult, error) {
	return BranchResult{Outcome: pctx.Success(), Context: parentCtx}, nil
}
func (s *fakeServices) OutgoingEdges(nodeID string) []graph.Edge { return s.edges[nodeID] }
func (s *fakeServices) Done() <-chan struct{}                    { return s.done }

func newFakeServices(t *testing.T) *fakeServices {
	t.Helper()
	store, err := fslog.New(t.TempDir())
	require.NoError(t, err)
	return &fakeServices{store: store, edges: map[string][]graph.Edge{}, done: make(chan struct{})}
}

func TestPassthrough_AlwaysSuccess(t *testing.T) {
	svc := newFakeServices(t)
	out := Passthrough(context.Background(), graph.Node{ID: "start"}, pctx.New(), svc)
	assert.Equal(t, pctx.StatusSuccess, out.Status)
}

func TestCodergen_SuccessPersistsPromptAndResponse(t *testing.T) {
	client := &fakeLLMClient{responses: []*model.Response{
		{
			FinishReason: model.FinishStop,
			Message:      model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: "built it"}}},
		},
	}}
	env := agentloop.NewDefaultEnvironment(t.TempDir())
	profile := agentloop.DefaultProfile{ProviderName: "anthropic", ModelName: "m", Effort: "high"}
	session := agentloop.NewSession(client, profile, env)

	svc := newFakeServices(t)
	svc.session = session

	c := pctx.New()
	c.Set(pctx.KeyGoal, pctx.String("ship it"))
	node := graph.Node{ID: "write", Kind: graph.KindCodergen, Attributes: map[string]pctx.Value{
		"prompt": pctx.String("do the $goal"),
	}}
	c.Set("goal", pctx.String("ship it"))

	out := Codergen(context.Background(), node, c, svc)
	require.Equal(t, pctx.StatusSuccess, out.Status)
	assert.Equal(t, "built it", out.Notes)

	prompt, err := svc.store.ReadNodeArtifact(context.Background(), "write", "prompt.md")
	require.NoError(t, err)
	assert.Contains(t, string(prompt), "ship it")

	resp, err := svc.store.ReadNodeArtifact(context.Background(), "write", "response.md")
	require.NoError(t, err)
	assert.Equal(t, "built it", string(resp))
}

func TestCodergen_GoalGateConvertsFailToRetry(t *testing.T) {
	client := &fakeLLMClient{} // no responses queued: Complete always errors
	env := agentloop.NewDefaultEnvironment(t.TempDir())
	profile := agentloop.DefaultProfile{ProviderName: "anthropic", ModelName: "m"}
	session := agentloop.NewSession(client, profile, env)

	svc := newFakeServices(t)
	svc.session = session

	node := graph.Node{ID: "gate", Kind: graph.KindCodergen, Attributes: map[string]pctx.Value{
		"prompt":       pctx.String("x"),
		"goal_gate":    pctx.Bool(true),
		"retry_target": pctx.String("earlier"),
	}}

	out := Codergen(context.Background(), node, pctx.New(), svc)
	assert.Equal(t, pctx.StatusRetry, out.Status)
	assert.Equal(t, "earlier", out.RetryTarget)
}

func TestWaitHuman_BracketLabelsBuildOptions(t *testing.T) {
	svc := newFakeServices(t)
	svc.edges["ask"] = []graph.Edge{
		{From: "ask", To: "yes", Label: "[y] Yes, proceed"},
		{From: "ask", To: "no", Label: "[n] No, stop"},
	}
	svc.interviewer = interview.NewQueueInterviewer(interview.Answer{Status: interview.AnswerSelected, Key: "y"})

	out := WaitHuman(context.Background(), graph.Node{ID: "ask"}, pctx.New(), svc)
	require.Equal(t, pctx.StatusSuccess, out.Status)
	assert.Equal(t, "[y] Yes, proceed", out.PreferredLabel)
}

func TestWaitHuman_SkippedIsFail(t *testing.T) {
	svc := newFakeServices(t)
	svc.edges["ask"] = []graph.Edge{{From: "ask", To: "yes", Label: "[y] Yes"}}
	svc.interviewer = interview.NewQueueInterviewer(interview.Answer{Status: interview.AnswerSkipped})

	out := WaitHuman(context.Background(), graph.Node{ID: "ask"}, pctx.New(), svc)
	assert.Equal(t, pctx.StatusFail, out.Status)
}

func TestParallelFanOut_AndFanIn(t *testing.T) {
	svc := newFakeServices(t)
	svc.edges["fork"] = []graph.Edge{
		{From: "fork", To: "a", Weight: 1},
		{From: "fork", To: "b", Weight: 1},
		{From: "fork", To: "join", Weight: 10},
	}
	svc.runFromFn = func(ctx context.Context, startNodeID string, branchCtx *pctx.Context) (BranchResult, error) {
		switch startNodeID {
		case "a":
			return BranchResult{Outcome: pctx.Outcome{Status: pctx.StatusFail}, Context: branchCtx}, nil
		case "b":
			return BranchResult{Outcome: pctx.Outcome{
				Status:         pctx.StatusSuccess,
				ContextUpdates: map[string]pctx.Value{"winner": pctx.String("b")},
			}, Context: branchCtx}, nil
		}
		return BranchResult{}, nil
	}

	c := pctx.New()
	out := ParallelFanOut(context.Background(), graph.Node{ID: "fork"}, c, svc)
	require.Equal(t, pctx.StatusSuccess, out.Status)
	c.Merge(out.ContextUpdates)

	bestID, _ := c.Get(ContextKeyFanInBestID)
	s, _ := bestID.AsString()
	assert.Equal(t, "b", s)

	finOut := FanIn(context.Background(), graph.Node{ID: "join"}, c, svc)
	require.Equal(t, pctx.StatusSuccess, finOut.Status)
	winner, ok := finOut.ContextUpdates["winner"]
	require.True(t, ok)
	ws, _ := winner.AsString()
	assert.Equal(t, "b", ws)
}
