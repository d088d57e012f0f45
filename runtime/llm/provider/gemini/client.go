// Package gemini adapts the unified model.Request/model.Response contract to
// Google's Gemini API via google.golang.org/genai. It is the Contents-style
// provider adapter (spec §4.9, Provider C): messages become genai.Content
// values with a role of "user" or "model", tool calls are FunctionCall parts,
// and tool results are FunctionResponse parts.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/pipeforge/pipeforge/runtime/llm/model"
)

const providerName = "gemini"

type (
	// ContentsClient captures the subset of the genai SDK used by the
	// adapter, satisfied by the real client.Models service or a test
	// double.
	ContentsClient interface {
		GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
		GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) func(func(*genai.GenerateContentResponse, error) bool)
	}

	// Options configures optional adapter behavior.
	Options struct {
		DefaultModel string
	}

	// Client implements the Contents-style provider adapter.
	Client struct {
		models ContentsClient
		model  string
	}
)

// New builds a gemini Client from a Models client and options.
func New(models ContentsClient, opts Options) (*Client, error) {
	if models == nil {
		return nil, errors.New("gemini: models client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("gemini: default model is required")
	}
	return &Client{models: models, model: opts.DefaultModel}, nil
}

// NewFromAPIKey builds a Client using the SDK's default HTTP transport.
func NewFromAPIKey(ctx context.Context, apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}
	return New(c.Models, Options{DefaultModel: defaultModel})
}

// Name returns the provider identifier.
func (c *Client) Name() string { return providerName }

// Complete issues a non-streaming GenerateContent request.
func (c *Client) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	modelID, contents, cfg, err := c.prepare(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.models.GenerateContent(ctx, modelID, contents, cfg)
	if err != nil {
		return nil, translateError(err)
	}
	return translateResponse(resp, modelID)
}

// Stream issues a GenerateContentStream request.
func (c *Client) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	modelID, contents, cfg, err := c.prepare(req)
	if err != nil {
		return nil, err
	}
	seq := c.models.GenerateContentStream(ctx, modelID, contents, cfg)
	return newStreamer(modelID, seq), nil
}

func (c *Client) prepare(req model.Request) (string, []*genai.Content, *genai.GenerateContentConfig, error) {
	if len(req.Messages) == 0 {
		return "", nil, nil, errors.New("gemini: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.model
	}
	systemInstruction, contents, err := encodeMessages(req.Messages)
	if err != nil {
		return "", nil, nil, err
	}
	cfg := &genai.GenerateContentConfig{SystemInstruction: systemInstruction}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.TopP > 0 {
		cfg.TopP = genai.Ptr(float32(req.TopP))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.StopSequences) > 0 {
		cfg.StopSequences = req.StopSequences
	}
	switch req.ResponseFormat.Kind {
	case model.ResponseFormatJSON:
		cfg.ResponseMIMEType = "application/json"
	case model.ResponseFormatJSONSchema:
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = toGenaiSchema(req.ResponseFormat.Schema)
	}
	if req.ReasoningEffort != "" && req.ReasoningEffort != model.ReasoningEffortNone {
		cfg.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true, ThinkingBudget: thinkingBudget(req.ReasoningEffort)}
	}
	if len(req.Tools) > 0 {
		cfg.Tools = encodeTools(req.Tools)
	}
	if req.ToolChoice != nil {
		tc, err := encodeToolChoice(*req.ToolChoice)
		if err != nil {
			return "", nil, nil, err
		}
		cfg.ToolConfig = tc
	}
	return modelID, contents, cfg, nil
}

func thinkingBudget(effort model.ReasoningEffort) *int32 {
	var budget int32
	switch effort {
	case model.ReasoningEffortLow:
		budget = 1024
	case model.ReasoningEffortMedium:
		budget = 4096
	case model.ReasoningEffortHigh:
		budget = 16384
	default:
		return nil
	}
	return &budget
}

func encodeMessages(msgs []model.Message) (systemInstruction *genai.Content, contents []*genai.Content, err error) {
	var systemText string
	for _, m := range msgs {
		if m.Role == model.RoleSystem || m.Role == model.RoleDeveloper {
			systemText += m.Text()
			continue
		}
		content, cerr := encodeContent(m)
		if cerr != nil {
			return nil, nil, cerr
		}
		if content != nil {
			contents = append(contents, content)
		}
	}
	if systemText != "" {
		systemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemText}}}
	}
	if len(contents) == 0 {
		return nil, nil, errors.New("gemini: at least one user/assistant message is required")
	}
	return systemInstruction, contents, nil
}

func encodeContent(m model.Message) (*genai.Content, error) {
	role := "user"
	if m.Role == model.RoleAssistant {
		role = "model"
	}
	var parts []*genai.Part
	for _, p := range m.Parts {
		switch v := p.(type) {
		case model.TextPart:
			if v.Text != "" {
				parts = append(parts, &genai.Part{Text: v.Text})
			}
		case model.ToolCallPart:
			var args map[string]any
			if len(v.Arguments) > 0 {
				if err := json.Unmarshal(v.Arguments, &args); err != nil {
					return nil, fmt.Errorf("gemini: decoding tool call arguments: %w", err)
				}
			}
			parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: v.ID, Name: v.Name, Args: args}})
		case model.ToolResultPart:
			parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       v.ToolCallID,
				Response: map[string]any{"result": v.Content},
			}})
		case model.ImagePart:
			if len(v.Bytes) > 0 {
				parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: v.MediaType, Data: v.Bytes}})
			} else if v.URL != "" {
				parts = append(parts, &genai.Part{FileData: &genai.FileData{MIMEType: v.MediaType, FileURI: v.URL}})
			}
		case model.DocumentPart, model.AudioPart:
			return nil, fmt.Errorf("gemini: %T parts are not supported by this adapter build", p)
		}
	}
	if len(parts) == 0 {
		return nil, nil
	}
	return &genai.Content{Role: role, Parts: parts}, nil
}

func encodeTools(defs []model.ToolDefinition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, def := range defs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  toGenaiSchema(jsonMap(def.InputSchema)),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func encodeToolChoice(choice model.ToolChoice) (*genai.ToolConfig, error) {
	switch choice.Mode {
	case "", model.ToolChoiceAuto:
		return &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto}}, nil
	case model.ToolChoiceNone:
		return &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeNone}}, nil
	case model.ToolChoiceRequired:
		return &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAny}}, nil
	case model.ToolChoiceNamed:
		if choice.Name == "" {
			return nil, errors.New("gemini: named tool choice requires a tool name")
		}
		return &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{
			Mode:                 genai.FunctionCallingConfigModeAny,
			AllowedFunctionNames: []string{choice.Name},
		}}, nil
	default:
		return nil, fmt.Errorf("gemini: unsupported tool choice mode %q", choice.Mode)
	}
}

func jsonMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// toGenaiSchema converts a plain JSON-schema map into a genai.Schema,
// recursively handling object/array composition.
func toGenaiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	s := &genai.Schema{}
	if t, ok := schema["type"].(string); ok {
		s.Type = genai.Type(t)
	}
	if desc, ok := schema["description"].(string); ok {
		s.Description = desc
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				s.Properties[name] = toGenaiSchema(propMap)
			}
		}
	}
	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			if rs, ok := r.(string); ok {
				s.Required = append(s.Required, rs)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		s.Items = toGenaiSchema(items)
	}
	if enum, ok := schema["enum"].([]any); ok {
		for _, e := range enum {
			if es, ok := e.(string); ok {
				s.Enum = append(s.Enum, es)
			}
		}
	}
	return s
}

func translateResponse(resp *genai.GenerateContentResponse, modelID string) (*model.Response, error) {
	if len(resp.Candidates) == 0 {
		return nil, errors.New("gemini: empty response (no candidates)")
	}
	cand := resp.Candidates[0]
	out := &model.Response{
		Model:           modelID,
		Provider:        providerName,
		Raw:             resp,
		Message:         model.Message{Role: model.RoleAssistant},
		RawFinishReason: string(cand.FinishReason),
		FinishReason:    mapFinishReason(cand.FinishReason),
	}
	if resp.ResponseID != "" {
		out.ID = resp.ResponseID
	}
	if cand.Content != nil {
		for _, p := range cand.Content.Parts {
			appendPart(out, p)
		}
	}
	if resp.UsageMetadata != nil {
		out.Usage = model.TokenUsage{
			InputTokens:     int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens:    int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:     int(resp.UsageMetadata.TotalTokenCount),
			ReasoningTokens: int(resp.UsageMetadata.ThoughtsTokenCount),
			CacheReadTokens: int(resp.UsageMetadata.CachedContentTokenCount),
		}
	}
	return out, nil
}

func appendPart(out *model.Response, p *genai.Part) {
	switch {
	case p.FunctionCall != nil:
		args, _ := json.Marshal(p.FunctionCall.Args)
		id := p.FunctionCall.ID
		if id == "" {
			id = p.FunctionCall.Name
		}
		out.Message.Parts = append(out.Message.Parts, model.ToolCallPart{ID: id, Name: p.FunctionCall.Name, Arguments: args})
	case p.Text != "" && p.Thought:
		out.Message.Parts = append(out.Message.Parts, model.ThinkingPart{Text: p.Text, Signature: string(p.ThoughtSignature)})
	case p.Text != "":
		out.Message.Parts = append(out.Message.Parts, model.TextPart{Text: p.Text})
	}
}

func mapFinishReason(reason genai.FinishReason) model.FinishReason {
	switch reason {
	case genai.FinishReasonStop:
		return model.FinishStop
	case genai.FinishReasonMaxTokens:
		return model.FinishLength
	case genai.FinishReasonSafety, genai.FinishReasonRecitation:
		return model.FinishContentFilter
	case "":
		return model.FinishOther
	default:
		return model.FinishOther
	}
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return model.ClassifyHTTPStatus(providerName, "models.generateContent", apiErr.Code, apiErr.Message, "", err)
	}
	return model.ClassifyHTTPStatus(providerName, "models.generateContent", 0, err.Error(), "", err)
}
