package agentloop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipeforge/pipeforge/runtime/llm/model"
)

type fakeClient struct {
	responses []*model.Response
	calls     int
}

func (f *fakeClient) Complete(_ context.Context, _ model.Request) (*model.Response, error) {
	r := f.responses[f.calls]
	f.calls++
	return r, nil
}

func (f *fakeClient) Stream(context.Context, model.Request) (model.Streamer, error) {
	panic("not used by this test")
}

func TestSession_Run_PlainTextStopsLoop(t *testing.T) {
	client := &fakeClient{responses: []*model.Response{
		{
			Model:        "test-model",
			FinishReason: model.FinishStop,
			Message:      model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: "done"}}},
		},
	}}
	dir := t.TempDir()
	env := NewDefaultEnvironment(dir)
	profile := DefaultProfile{ProviderName: "anthropic", ModelName: "test-model", Effort: "high"}
	session := NewSession(client, profile, env)

	result, err := session.Run(context.Background(), "build a widget", "write the widget", 5, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", result.Text)
	assert.Equal(t, 1, client.calls)
}
