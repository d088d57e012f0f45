package generate

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipeforge/pipeforge/runtime/llm/model"
)

type scriptedClient struct {
	responses []*model.Response
	i         int
	calls     int
}

func (c *scriptedClient) Complete(context.Context, model.Request) (*model.Response, error) {
	c.calls++
	r := c.responses[c.i]
	if c.i < len(c.responses)-1 {
		c.i++
	}
	return r, nil
}

func (c *scriptedClient) Stream(context.Context, model.Request) (model.Streamer, error) {
	panic("not used")
}

func textResponse(text string) *model.Response {
	return &model.Response{
		FinishReason: model.FinishStop,
		Message:      model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: text}}},
		Usage:        model.TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}
}

func toolCallResponse(id, name string, args string) *model.Response {
	return &model.Response{
		FinishReason: model.FinishToolCalls,
		Message: model.Message{Role: model.RoleAssistant, Parts: []model.Part{
			model.ToolCallPart{ID: id, Name: name, Arguments: json.RawMessage(args)},
		}},
		Usage: model.TokenUsage{InputTokens: 20, OutputTokens: 8, TotalTokens: 28},
	}
}

func TestRun_StopsOnFinishStop(t *testing.T) {
	c := &scriptedClient{responses: []*model.Response{textResponse("hello")}}
	result, err := Run(context.Background(), c, Options{Prompt: "hi", MaxToolRounds: 8})
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Text)
	assert.Equal(t, 1, c.calls)
	assert.Len(t, result.Steps, 1)
}

func TestRun_ToolLoopTerminatesOnStop(t *testing.T) {
	c := &scriptedClient{responses: []*model.Response{
		toolCallResponse("1", "search", `{"q":"go"}`),
		toolCallResponse("2", "search", `{"q":"go2"}`),
		textResponse("done"),
	}}
	var executed []string
	tool := Tool{
		Definition: model.ToolDefinition{Name: "search"},
		Execute: func(ctx context.Context, rawArgs json.RawMessage) (any, error) {
			executed = append(executed, string(rawArgs))
			return "result", nil
		},
	}
	result, err := Run(context.Background(), c, Options{Prompt: "find it", Tools: []Tool{tool}, MaxToolRounds: 8})
	require.NoError(t, err)
	assert.Equal(t, "done", result.Text)
	assert.Equal(t, 3, c.calls)
	assert.Len(t, executed, 2)
	// usage additivity (spec property 5): TotalUsage is the sum of every step's usage.
	assert.Equal(t, 28*2+15, result.TotalUsage.TotalTokens)
}

func TestRun_MaxToolRoundsBoundsLoop(t *testing.T) {
	resp := toolCallResponse("1", "loop", `{}`)
	c := &scriptedClient{responses: []*model.Response{resp}}
	tool := Tool{
		Definition: model.ToolDefinition{Name: "loop"},
		Execute: func(ctx context.Context, rawArgs json.RawMessage) (any, error) {
			return "again", nil
		},
	}
	result, err := Run(context.Background(), c, Options{Prompt: "go forever", Tools: []Tool{tool}, MaxToolRounds: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, c.calls)
	assert.Len(t, result.Steps, 3)
}

func TestRun_AllPassiveToolCallsStopsLoop(t *testing.T) {
	c := &scriptedClient{responses: []*model.Response{toolCallResponse("1", "passive", `{}`)}}
	// No Execute func: the tool is declared but passive, the model may request
	// it but the loop never calls it and stops instead of looping forever.
	tool := Tool{Definition: model.ToolDefinition{Name: "passive"}}
	result, err := Run(context.Background(), c, Options{Prompt: "p", Tools: []Tool{tool}, MaxToolRounds: 8})
	require.NoError(t, err)
	assert.Equal(t, 1, c.calls)
	assert.Len(t, result.Steps, 1)
}

func TestRun_ToolExecutorPanicBecomesErrorResult(t *testing.T) {
	c := &scriptedClient{responses: []*model.Response{
		toolCallResponse("1", "boom", `{}`),
		textResponse("recovered"),
	}}
	tool := Tool{
		Definition: model.ToolDefinition{Name: "boom"},
		Execute: func(ctx context.Context, rawArgs json.RawMessage) (any, error) {
			panic("kaboom")
		},
	}
	result, err := Run(context.Background(), c, Options{Prompt: "p", Tools: []Tool{tool}, MaxToolRounds: 8})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.Text)
	require.Len(t, result.Steps, 2)
	require.Len(t, result.Steps[0].ToolResults, 1)
	assert.True(t, result.Steps[0].ToolResults[0].IsError)
}

func TestRun_RejectsPromptAndMessagesTogether(t *testing.T) {
	c := &scriptedClient{responses: []*model.Response{textResponse("x")}}
	_, err := Run(context.Background(), c, Options{Prompt: "p", Messages: []model.Message{{Role: model.RoleUser}}})
	require.Error(t, err)
	var cfgErr *model.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestRun_ClientErrorPropagates(t *testing.T) {
	c := &erroringClient{err: &model.ProviderError{Kind: model.ErrorKindServer, Msg: "boom"}}
	_, err := Run(context.Background(), c, Options{Prompt: "p"})
	require.Error(t, err)
	pe, ok := model.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrorKindServer, pe.Kind)
}

type erroringClient struct{ err error }

func (c *erroringClient) Complete(context.Context, model.Request) (*model.Response, error) {
	return nil, c.err
}

func (c *erroringClient) Stream(context.Context, model.Request) (model.Streamer, error) {
	return nil, c.err
}
