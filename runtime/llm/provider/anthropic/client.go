// Package anthropic adapts the unified model.Request/model.Response contract
// to Anthropic's Messages API via github.com/anthropics/anthropic-sdk-go. It
// is the Messages-style provider adapter (spec §4.9, Provider A): system
// messages become a top-level system blocks list, tool_choice none omits the
// tools array entirely, and thinking maps to a thinking content block.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/pipeforge/pipeforge/runtime/llm/model"
)

const providerName = "anthropic"

type (
	// MessagesClient captures the subset of the Anthropic SDK used by the
	// adapter, satisfied by *sdk.MessageService or a test double.
	MessagesClient interface {
		New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
		NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
	}

	// Options configures optional adapter behavior.
	Options struct {
		DefaultModel string
		MaxTokens    int
		Temperature  float64
		// AutoCache sets cache_control=ephemeral on the last system block
		// unless explicitly disabled via Request.ProviderOptions["anthropic"]["auto_cache"]=false.
		AutoCache bool
	}

	// Client implements the Messages-style provider adapter.
	Client struct {
		msg       MessagesClient
		model     string
		maxTok    int
		temp      float64
		autoCache bool
	}
)

// New builds an anthropic Client from a Messages client and options.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("anthropic: default model is required")
	}
	maxTok := opts.MaxTokens
	if maxTok <= 0 {
		maxTok = 4096
	}
	return &Client{msg: msg, model: opts.DefaultModel, maxTok: maxTok, temp: opts.Temperature, autoCache: opts.AutoCache}, nil
}

// NewFromAPIKey builds a Client using the SDK's default HTTP transport,
// reading ANTHROPIC_API_KEY/ANTHROPIC_BASE_URL as the SDK's option package
// does by default.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, Options{DefaultModel: defaultModel, AutoCache: true})
}

// Name returns the provider identifier used in model.Request.Provider and
// error classification.
func (c *Client) Name() string { return providerName }

// Complete issues a non-streaming Messages.New request.
func (c *Client) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	params, idx, err := c.prepare(req)
	if err != nil {
		return nil, err
	}
	msg, err := c.msg.New(ctx, *params)
	if err != nil {
		return nil, translateError(err)
	}
	return translateResponse(msg, idx)
}

// Stream issues a Messages.NewStreaming request and adapts SSE frames into
// model.StreamEvents.
func (c *Client) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	params, idx, err := c.prepare(req)
	if err != nil {
		return nil, err
	}
	stream := c.msg.NewStreaming(ctx, *params)
	if err := stream.Err(); err != nil {
		return nil, translateError(err)
	}
	return newStreamer(stream, idx), nil
}

// toolNameIndex maps the sanitized provider-facing tool name back to the
// caller's canonical name, since Anthropic tool names are restricted to
// [A-Za-z0-9_-]{1,64}.
type toolNameIndex map[string]string

func (c *Client) prepare(req model.Request) (*sdk.MessageNewParams, toolNameIndex, error) {
	if len(req.Messages) == 0 {
		return nil, nil, errors.New("anthropic: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.model
	}
	toolParams, canonToSan, sanToCanon, err := encodeTools(req.Tools)
	if err != nil {
		return nil, nil, err
	}
	msgs, system, err := encodeMessages(req.Messages, canonToSan)
	if err != nil {
		return nil, nil, err
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTok
	}
	params := &sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
		Model:     sdk.Model(modelID),
	}
	if len(system) > 0 {
		if c.autoCacheEnabled(req) {
			system[len(system)-1].CacheControl = sdk.NewCacheControlEphemeralParam()
		}
		params.System = system
	}
	// Tool choice "none" omits both the tools array and tool_choice.
	noTools := req.ToolChoice != nil && req.ToolChoice.Mode == model.ToolChoiceNone
	if len(toolParams) > 0 && !noTools {
		params.Tools = toolParams
	}
	temp := req.Temperature
	if temp <= 0 {
		temp = c.temp
	}
	if temp > 0 {
		params.Temperature = sdk.Float(temp)
	}
	if req.ReasoningEffort != "" && req.ReasoningEffort != model.ReasoningEffortNone {
		budget := thinkingBudget(req.ReasoningEffort, maxTokens)
		params.Thinking = sdk.ThinkingConfigParamOfEnabled(int64(budget))
	}
	if req.ResponseFormat.Kind == model.ResponseFormatJSONSchema {
		// Messages-style providers have no native structured-output mode:
		// synthesize a single mandatory tool whose schema is the requested
		// schema and force tool_choice to name it (spec §4.10).
		name := req.ResponseFormat.Name
		if name == "" {
			name = "emit_result"
		}
		schema, err := toolInputSchema(req.ResponseFormat.Schema)
		if err != nil {
			return nil, nil, fmt.Errorf("anthropic: response format schema: %w", err)
		}
		u := sdk.ToolUnionParamOfTool(schema, name)
		params.Tools = append(params.Tools, u)
		params.ToolChoice = sdk.ToolChoiceParamOfTool(name)
		sanToCanon[name] = name
		canonToSan[name] = name
	} else if req.ToolChoice != nil && !noTools {
		tc, err := encodeToolChoice(*req.ToolChoice, canonToSan)
		if err != nil {
			return nil, nil, err
		}
		params.ToolChoice = tc
	}
	applyProviderOptions(params, req.ProviderOptionsFor(providerName))
	return params, sanToCanon, nil
}

func (c *Client) autoCacheEnabled(req model.Request) bool {
	if opts := req.ProviderOptionsFor(providerName); opts != nil {
		if v, ok := opts["auto_cache"].(bool); ok {
			return v
		}
	}
	return c.autoCache
}

// thinkingBudget maps a reasoning effort level to a token budget, clamped
// below max_tokens but never under 1024 tokens (Anthropic's minimum); when
// max_tokens is 1024 or less the budget is 1024.
func thinkingBudget(effort model.ReasoningEffort, maxTokens int) int {
	var budget int
	switch effort {
	case model.ReasoningEffortLow:
		budget = 1024
	case model.ReasoningEffortMedium:
		budget = 4096
	case model.ReasoningEffortHigh:
		budget = 8192
	default:
		budget = 1024
	}
	if budget >= maxTokens {
		budget = maxTokens - 1
	}
	if budget < 1024 {
		budget = 1024
	}
	return budget
}

// applyProviderOptions merges a caller-supplied extension bag into fields
// the adapter has not already populated. The deterministic fields above
// always win (spec §4.9: "MUST NOT overwrite any field the adapter itself
// set").
func applyProviderOptions(params *sdk.MessageNewParams, opts map[string]any) {
	if opts == nil {
		return
	}
	if v, ok := opts["top_p"].(float64); ok && !params.TopP.Valid() {
		params.TopP = sdk.Float(v)
	}
	if v, ok := opts["top_k"].(int64); ok && !params.TopK.Valid() {
		params.TopK = sdk.Int(v)
	}
}

func encodeMessages(msgs []model.Message, canonToSan map[string]string) ([]sdk.MessageParam, []sdk.TextBlockParam, error) {
	conversation := make([]sdk.MessageParam, 0, len(msgs))
	system := make([]sdk.TextBlockParam, 0, len(msgs))

	for _, m := range msgs {
		if m.Role == model.RoleSystem || m.Role == model.RoleDeveloper {
			for _, p := range m.Parts {
				if v, ok := p.(model.TextPart); ok && v.Text != "" {
					system = append(system, sdk.TextBlockParam{Text: v.Text})
				}
			}
			continue
		}

		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Parts))
		for _, part := range m.Parts {
			switch v := part.(type) {
			case model.TextPart:
				if v.Text != "" {
					blocks = append(blocks, sdk.NewTextBlock(v.Text))
				}
			case model.ToolCallPart:
				sanitized, ok := canonToSan[v.Name]
				if !ok {
					return nil, nil, fmt.Errorf("anthropic: tool_call in messages references %q which is not in the current tool configuration", v.Name)
				}
				var input any
				if len(v.Arguments) > 0 {
					if err := json.Unmarshal(v.Arguments, &input); err != nil {
						return nil, nil, fmt.Errorf("anthropic: tool_call %q arguments: %w", v.Name, err)
					}
				}
				blocks = append(blocks, sdk.NewToolUseBlock(v.ID, input, sanitized))
			case model.ToolResultPart:
				blocks = append(blocks, sdk.NewToolResultBlock(v.ToolCallID, v.Content, v.IsError))
			case model.DocumentPart, model.ImagePart, model.AudioPart:
				return nil, nil, fmt.Errorf("anthropic: %T parts are not supported by this adapter build", part)
				// Thinking and redacted-thinking parts are provider-specific
				// reasoning payloads; round-tripping them through a fresh
				// request is not re-encoded here (they are only ever emitted,
				// never replayed as request input, in this adapter).
			}
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case model.RoleUser, model.RoleTool:
			conversation = mergeOrAppend(conversation, sdk.NewUserMessage(blocks...))
		case model.RoleAssistant:
			conversation = mergeOrAppend(conversation, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, nil, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("anthropic: at least one user/assistant message is required")
	}
	return conversation, system, nil
}

// mergeOrAppend merges msg into the last conversation entry when it shares
// the same role (spec §4.9 common rule: consecutive same-role messages are
// merged in the wire format).
func mergeOrAppend(conversation []sdk.MessageParam, msg sdk.MessageParam) []sdk.MessageParam {
	if n := len(conversation); n > 0 && conversation[n-1].Role == msg.Role {
		conversation[n-1].Content = append(conversation[n-1].Content, msg.Content...)
		return conversation
	}
	return append(conversation, msg)
}

func encodeTools(defs []model.ToolDefinition) (tools []sdk.ToolUnionParam, canonToSan, sanToCanon map[string]string, err error) {
	if len(defs) == 0 {
		return nil, map[string]string{}, map[string]string{}, nil
	}
	canonToSan = make(map[string]string, len(defs))
	sanToCanon = make(map[string]string, len(defs))
	for _, def := range defs {
		sanitized := sanitizeToolName(def.Name)
		if prev, ok := sanToCanon[sanitized]; ok && prev != def.Name {
			return nil, nil, nil, fmt.Errorf("anthropic: tool name %q sanitizes to %q which collides with %q", def.Name, sanitized, prev)
		}
		sanToCanon[sanitized] = def.Name
		canonToSan[def.Name] = sanitized
		schema, err := toolInputSchema(def.InputSchema)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("anthropic: tool %q schema: %w", def.Name, err)
		}
		u := sdk.ToolUnionParamOfTool(schema, sanitized)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(def.Description)
		}
		tools = append(tools, u)
	}
	return tools, canonToSan, sanToCanon, nil
}

func toolInputSchema(schema any) (sdk.ToolInputSchemaParam, error) {
	if schema == nil {
		return sdk.ToolInputSchemaParam{}, nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	return sdk.ToolInputSchemaParam{ExtraFields: m}, nil
}

// encodeToolChoice translates a unified ToolChoice. Mode "none" is not
// reachable from prepare(), which omits both the tools array and
// tool_choice when none is selected; the none case below maps to the SDK's
// none param for any other caller.
func encodeToolChoice(choice model.ToolChoice, canonToSan map[string]string) (sdk.ToolChoiceUnionParam, error) {
	switch choice.Mode {
	case "", model.ToolChoiceAuto:
		return sdk.ToolChoiceUnionParam{}, nil
	case model.ToolChoiceNone:
		none := sdk.NewToolChoiceNoneParam()
		return sdk.ToolChoiceUnionParam{OfNone: &none}, nil
	case model.ToolChoiceRequired:
		return sdk.ToolChoiceUnionParam{OfAny: &sdk.ToolChoiceAnyParam{}}, nil
	case model.ToolChoiceNamed:
		if choice.Name == "" {
			return sdk.ToolChoiceUnionParam{}, errors.New("anthropic: named tool choice requires a tool name")
		}
		sanitized, ok := canonToSan[choice.Name]
		if !ok {
			return sdk.ToolChoiceUnionParam{}, fmt.Errorf("anthropic: tool choice name %q does not match any tool", choice.Name)
		}
		return sdk.ToolChoiceParamOfTool(sanitized), nil
	default:
		return sdk.ToolChoiceUnionParam{}, fmt.Errorf("anthropic: unsupported tool choice mode %q", choice.Mode)
	}
}

// sanitizeToolName maps a canonical tool identifier to the character set
// Anthropic tool names accept ([A-Za-z0-9_-]{1,64}).
func sanitizeToolName(in string) string {
	if isProviderSafeToolName(in) {
		return in
	}
	out := make([]rune, 0, len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	if len(out) > 64 {
		out = out[:64]
	}
	return string(out)
}

func isProviderSafeToolName(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-') {
			return false
		}
	}
	return true
}

func translateResponse(msg *sdk.Message, idx toolNameIndex) (*model.Response, error) {
	if msg == nil {
		return nil, errors.New("anthropic: response message is nil")
	}
	resp := &model.Response{
		ID:              msg.ID,
		Model:           string(msg.Model),
		Provider:        providerName,
		RawFinishReason: string(msg.StopReason),
		Raw:             msg,
	}
	resp.Message.Role = model.RoleAssistant
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				resp.Message.Parts = append(resp.Message.Parts, model.TextPart{Text: block.Text})
			}
		case "thinking":
			resp.Message.Parts = append(resp.Message.Parts, model.ThinkingPart{Text: block.Thinking, Signature: block.Signature})
		case "redacted_thinking":
			resp.Message.Parts = append(resp.Message.Parts, model.RedactedThinkingPart{Data: []byte(block.Data)})
		case "tool_use":
			name := block.Name
			if canonical, ok := idx[name]; ok {
				name = canonical
			}
			payload, _ := json.Marshal(block.Input)
			resp.Message.Parts = append(resp.Message.Parts, model.ToolCallPart{ID: block.ID, Name: name, Arguments: payload})
		}
	}
	resp.FinishReason = mapFinishReason(string(msg.StopReason))
	if u := msg.Usage; u.InputTokens != 0 || u.OutputTokens != 0 || u.CacheReadInputTokens != 0 || u.CacheCreationInputTokens != 0 {
		resp.Usage = model.TokenUsage{
			InputTokens:      int(u.InputTokens),
			OutputTokens:     int(u.OutputTokens),
			TotalTokens:      int(u.InputTokens + u.OutputTokens),
			CacheReadTokens:  int(u.CacheReadInputTokens),
			CacheWriteTokens: int(u.CacheCreationInputTokens),
		}
	}
	return resp, nil
}

func mapFinishReason(stop string) model.FinishReason {
	switch stop {
	case "end_turn", "stop_sequence":
		return model.FinishStop
	case "max_tokens":
		return model.FinishLength
	case "tool_use":
		return model.FinishToolCalls
	default:
		return model.FinishOther
	}
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return model.ClassifyHTTPStatus(providerName, "messages.new", apiErr.StatusCode, apiErr.Message, apiErr.RequestID, err)
	}
	return model.ClassifyHTTPStatus(providerName, "messages.new", 0, err.Error(), "", err)
}
