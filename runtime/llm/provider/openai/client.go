// Package openai adapts the unified model.Request/model.Response contract to
// OpenAI's Responses API via github.com/openai/openai-go. It is the
// Responses-style provider adapter (spec §4.9, Provider B): system/developer
// messages become a top-level instructions string, tool calls are
// function_call items, and tool_choice is either a bare string or a named
// function reference.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/responses"

	"github.com/pipeforge/pipeforge/runtime/llm/model"
)

const providerName = "openai"

type (
	// ResponsesClient captures the subset of the OpenAI SDK used by the
	// adapter, satisfied by the real client.Responses service or a test
	// double.
	ResponsesClient interface {
		New(ctx context.Context, body responses.ResponseNewParams, opts ...option.RequestOption) (*responses.Response, error)
		NewStreaming(ctx context.Context, body responses.ResponseNewParams, opts ...option.RequestOption) *ssestream.Stream[responses.ResponseStreamEventUnion]
	}

	// Options configures optional adapter behavior.
	Options struct {
		DefaultModel string
	}

	// Client implements the Responses-style provider adapter.
	Client struct {
		resp  ResponsesClient
		model string
	}
)

// New builds an openai Client from a Responses client and options.
func New(resp ResponsesClient, opts Options) (*Client, error) {
	if resp == nil {
		return nil, errors.New("openai: responses client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("openai: default model is required")
	}
	return &Client{resp: resp, model: opts.DefaultModel}, nil
}

// NewFromAPIKey builds a Client using the SDK's default HTTP transport.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	c := openai.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Responses, Options{DefaultModel: defaultModel})
}

// Name returns the provider identifier.
func (c *Client) Name() string { return providerName }

// Complete issues a non-streaming Responses.New request.
func (c *Client) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	params, err := c.prepare(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.resp.New(ctx, *params)
	if err != nil {
		return nil, translateError(err)
	}
	return translateResponse(resp)
}

// Stream issues a Responses.NewStreaming request.
func (c *Client) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	params, err := c.prepare(req)
	if err != nil {
		return nil, err
	}
	stream := c.resp.NewStreaming(ctx, *params)
	if err := stream.Err(); err != nil {
		return nil, translateError(err)
	}
	return newStreamer(stream), nil
}

func (c *Client) prepare(req model.Request) (*responses.ResponseNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.model
	}
	instructions, input, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	params := &responses.ResponseNewParams{
		Model: responses.ResponsesModel(modelID),
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: input},
	}
	if instructions != "" {
		params.Instructions = openai.String(instructions)
	}
	if len(req.Tools) > 0 {
		tools, err := encodeTools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}
	if req.ToolChoice != nil {
		tc, err := encodeToolChoice(*req.ToolChoice, req.Tools)
		if err != nil {
			return nil, err
		}
		params.ToolChoice = tc
	}
	switch req.ResponseFormat.Kind {
	case model.ResponseFormatJSONSchema:
		name := req.ResponseFormat.Name
		if name == "" {
			name = "result"
		}
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:   name,
					Schema: req.ResponseFormat.Schema,
					Strict: openai.Bool(req.ResponseFormat.Strict),
				},
			},
		}
	case model.ResponseFormatJSON:
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{OfJSONObject: &responses.ResponseFormatTextJSONObjectParam{}},
		}
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.TopP > 0 {
		params.TopP = openai.Float(req.TopP)
	}
	if req.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.ReasoningEffort != "" && req.ReasoningEffort != model.ReasoningEffortNone {
		params.Reasoning = responses.ReasoningParam{Effort: responses.ReasoningEffort(req.ReasoningEffort)}
	}
	applyProviderOptions(params, req.ProviderOptionsFor(providerName))
	return params, nil
}

func applyProviderOptions(params *responses.ResponseNewParams, opts map[string]any) {
	if opts == nil {
		return
	}
	if v, ok := opts["user"].(string); ok && params.User.Value == "" {
		params.User = openai.String(v)
	}
}

func encodeMessages(msgs []model.Message) (instructions string, items responses.ResponseInputParam, err error) {
	for _, m := range msgs {
		if m.Role == model.RoleSystem || m.Role == model.RoleDeveloper {
			instructions += m.Text()
			continue
		}
		switch m.Role {
		case model.RoleUser:
			parts, perr := encodeUserParts(m.Parts)
			if perr != nil {
				return "", nil, perr
			}
			if len(parts) > 0 {
				items = append(items, responses.ResponseInputItemUnionParam{
					OfMessage: &responses.EasyInputMessageParam{
						Role:    responses.EasyInputMessageRoleUser,
						Content: responses.EasyInputMessageContentUnionParam{OfInputItemContentList: parts},
					},
				})
			}
			for _, p := range m.Parts {
				if tr, ok := p.(model.ToolResultPart); ok {
					items = append(items, responses.ResponseInputItemUnionParam{
						OfFunctionCallOutput: &responses.ResponseInputItemFunctionCallOutputParam{
							CallID: tr.ToolCallID,
							Output: tr.Content,
						},
					})
				}
			}
		case model.RoleAssistant:
			text := m.Text()
			if text != "" {
				items = append(items, responses.ResponseInputItemUnionParam{
					OfMessage: &responses.EasyInputMessageParam{
						Role: responses.EasyInputMessageRoleAssistant,
						Content: responses.EasyInputMessageContentUnionParam{
							OfString: openai.String(text),
						},
					},
				})
			}
			for _, p := range m.Parts {
				if tc, ok := p.(model.ToolCallPart); ok {
					items = append(items, responses.ResponseInputItemUnionParam{
						OfFunctionCall: &responses.ResponseFunctionToolCallParam{
							CallID:    tc.ID,
							Name:      tc.Name,
							Arguments: string(tc.Arguments),
						},
					})
				}
			}
		default:
			return "", nil, fmt.Errorf("openai: unsupported message role %q", m.Role)
		}
	}
	if len(items) == 0 {
		return "", nil, errors.New("openai: at least one user/assistant message is required")
	}
	return instructions, items, nil
}

func encodeUserParts(parts []model.Part) ([]responses.ResponseInputContentUnionParam, error) {
	var out []responses.ResponseInputContentUnionParam
	for _, p := range parts {
		switch v := p.(type) {
		case model.TextPart:
			if v.Text != "" {
				out = append(out, responses.ResponseInputContentUnionParam{
					OfInputText: &responses.ResponseInputTextParam{Text: v.Text},
				})
			}
		case model.ImagePart:
			img := &responses.ResponseInputImageParam{}
			if v.URL != "" {
				img.ImageURL = openai.String(v.URL)
			} else {
				img.ImageURL = openai.String(fmt.Sprintf("data:%s;base64,%s", v.MediaType, encodeBase64(v.Bytes)))
			}
			out = append(out, responses.ResponseInputContentUnionParam{OfInputImage: img})
		case model.DocumentPart, model.AudioPart:
			return nil, fmt.Errorf("openai: %T parts are not supported by this adapter build", p)
		}
	}
	return out, nil
}

func encodeTools(defs []model.ToolDefinition) ([]responses.ToolUnionParam, error) {
	out := make([]responses.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		schema, err := toJSONMap(def.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("openai: tool %q schema: %w", def.Name, err)
		}
		out = append(out, responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  schema,
			},
		})
	}
	return out, nil
}

func encodeToolChoice(choice model.ToolChoice, defs []model.ToolDefinition) (responses.ResponseNewParamsToolChoiceUnion, error) {
	switch choice.Mode {
	case "", model.ToolChoiceAuto:
		return responses.ResponseNewParamsToolChoiceUnion{OfToolChoiceMode: openai.String(string(responses.ToolChoiceOptionsAuto))}, nil
	case model.ToolChoiceNone:
		return responses.ResponseNewParamsToolChoiceUnion{OfToolChoiceMode: openai.String(string(responses.ToolChoiceOptionsNone))}, nil
	case model.ToolChoiceRequired:
		return responses.ResponseNewParamsToolChoiceUnion{OfToolChoiceMode: openai.String(string(responses.ToolChoiceOptionsRequired))}, nil
	case model.ToolChoiceNamed:
		if choice.Name == "" {
			return responses.ResponseNewParamsToolChoiceUnion{}, errors.New("openai: named tool choice requires a tool name")
		}
		found := false
		for _, d := range defs {
			if d.Name == choice.Name {
				found = true
				break
			}
		}
		if !found {
			return responses.ResponseNewParamsToolChoiceUnion{}, fmt.Errorf("openai: tool choice name %q does not match any tool", choice.Name)
		}
		return responses.ResponseNewParamsToolChoiceUnion{
			OfFunctionTool: &responses.ToolChoiceFunctionParam{Name: choice.Name},
		}, nil
	default:
		return responses.ResponseNewParamsToolChoiceUnion{}, fmt.Errorf("openai: unsupported tool choice mode %q", choice.Mode)
	}
}

func toJSONMap(schema any) (map[string]any, error) {
	if schema == nil {
		return map[string]any{"type": "object"}, nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func translateResponse(resp *responses.Response) (*model.Response, error) {
	if resp == nil {
		return nil, errors.New("openai: response is nil")
	}
	out := &model.Response{
		ID:       resp.ID,
		Model:    string(resp.Model),
		Provider: providerName,
		Raw:      resp,
		Message:  model.Message{Role: model.RoleAssistant},
	}
	for _, item := range resp.Output {
		switch v := item.AsAny().(type) {
		case responses.ResponseOutputMessage:
			for _, c := range v.Content {
				if t, ok := c.AsAny().(responses.ResponseOutputText); ok && t.Text != "" {
					out.Message.Parts = append(out.Message.Parts, model.TextPart{Text: t.Text})
				}
			}
		case responses.ResponseFunctionToolCall:
			out.Message.Parts = append(out.Message.Parts, model.ToolCallPart{
				ID:        v.CallID,
				Name:      v.Name,
				Arguments: json.RawMessage(v.Arguments),
			})
		case responses.ResponseReasoningItem:
			for _, s := range v.Summary {
				out.Message.Parts = append(out.Message.Parts, model.ThinkingPart{Text: s.Text})
			}
		}
	}
	out.RawFinishReason = string(resp.Status)
	out.FinishReason = mapFinishReason(resp, out.Message)
	out.Usage = model.TokenUsage{
		InputTokens:     int(resp.Usage.InputTokens),
		OutputTokens:    int(resp.Usage.OutputTokens),
		TotalTokens:     int(resp.Usage.TotalTokens),
		ReasoningTokens: int(resp.Usage.OutputTokensDetails.ReasoningTokens),
		CacheReadTokens: int(resp.Usage.InputTokensDetails.CachedTokens),
	}
	return out, nil
}

func mapFinishReason(resp *responses.Response, msg model.Message) model.FinishReason {
	if len(msg.ToolCalls()) > 0 {
		return model.FinishToolCalls
	}
	switch resp.Status {
	case responses.ResponseStatusCompleted:
		return model.FinishStop
	case responses.ResponseStatusIncomplete:
		return model.FinishLength
	default:
		return model.FinishOther
	}
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return model.ClassifyHTTPStatus(providerName, "responses.new", apiErr.StatusCode, apiErr.Message, apiErr.RequestID, err)
	}
	return model.ClassifyHTTPStatus(providerName, "responses.new", 0, err.Error(), "", err)
}
