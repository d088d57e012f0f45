// Package generate implements the bounded tool-call loop (spec §4.10) on top
// of the unified client: generate() for a single assembled Response,
// stream() for a replayable event handle, and generate_object() for
// schema-constrained structured output. The loop is grounded on the
// teacher's planner PlanStart/PlanResume pattern, collapsed into a single
// bounded loop since this module has no code-generated planner interface to
// split across.
package generate

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pipeforge/pipeforge/runtime/llm/model"
)

type (
	// ToolExecutor runs a tool call's parsed arguments and returns a result
	// to feed back to the model, or an error to surface as an is_error tool
	// result. A nil executor marks the tool as passive: the model may
	// request it, but the loop never calls it and treats an all-passive
	// round as a stopping condition.
	ToolExecutor func(ctx context.Context, rawArgs json.RawMessage) (any, error)

	// Tool pairs a tool definition with its (optional) executor.
	Tool struct {
		Definition model.ToolDefinition
		Execute    ToolExecutor
	}

	// StepResult captures one iteration of the tool-call loop.
	StepResult struct {
		Text         string
		Reasoning    string
		ToolCalls    []model.ToolCallPart
		ToolResults  []model.ToolResultPart
		FinishReason model.FinishReason
		Usage        model.TokenUsage
		Response     *model.Response
	}

	// Client is the subset of the unified client used by the loop.
	Client interface {
		Complete(ctx context.Context, req model.Request) (*model.Response, error)
		Stream(ctx context.Context, req model.Request) (model.Streamer, error)
	}

	// Options configures a generate/stream call.
	Options struct {
		Provider string
		Model    string

		// System is prepended as a system message. Prompt and Messages are
		// mutually exclusive; exactly one of them (or neither, with an
		// empty System-only call) may be set alongside System.
		System   string
		Prompt   string
		Messages []model.Message

		Tools          []Tool
		ToolChoice     *model.ToolChoice
		ResponseFormat model.ResponseFormat

		Temperature     float64
		TopP            float64
		MaxTokens       int
		StopSequences   []string
		ReasoningEffort model.ReasoningEffort
		ProviderOptions map[string]map[string]any

		// MaxToolRounds bounds the loop; defaults to 8.
		MaxToolRounds int
		// StopWhen, when non-nil, is evaluated after every step; returning
		// true ends the loop after recording that step.
		StopWhen func(StepResult) bool

		// Abort, when non-nil, ends the loop with an AbortError as soon as
		// it is closed or receives a value.
		Abort <-chan struct{}
		// Timeout, when positive, ends the loop with a TimeoutError once
		// elapsed, measured from the call to Run/Stream.
		Timeout time.Duration
	}

	// Result is the outcome of a completed generate() call.
	Result struct {
		Steps        []StepResult
		Messages     []model.Message
		Text         string
		FinishReason model.FinishReason
		TotalUsage   model.TokenUsage
	}
)

// Run executes the bounded tool-call loop described in spec §4.10.
func Run(ctx context.Context, c Client, opts Options) (*Result, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	ctx, finish := composeCancellation(ctx, opts.Abort, opts.Timeout)
	defer finish()

	messages := buildInitialMessages(opts)
	toolDefs, toolIndex := splitTools(opts.Tools)

	maxRounds := opts.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = 8
	}

	var steps []StepResult
	var total model.TokenUsage

	for round := 0; ; round++ {
		if err := cancellationErr(ctx); err != nil {
			return &Result{Steps: steps, Messages: messages, TotalUsage: total}, err
		}

		req := model.Request{
			Provider:        opts.Provider,
			Model:           opts.Model,
			Messages:        messages,
			Tools:           toolDefs,
			ToolChoice:      opts.ToolChoice,
			ResponseFormat:  opts.ResponseFormat,
			Temperature:     opts.Temperature,
			TopP:            opts.TopP,
			MaxTokens:       opts.MaxTokens,
			StopSequences:   opts.StopSequences,
			ReasoningEffort: opts.ReasoningEffort,
			ProviderOptions: opts.ProviderOptions,
		}
		resp, err := c.Complete(ctx, req)
		if err != nil {
			return &Result{Steps: steps, Messages: messages, TotalUsage: total}, err
		}

		step := stepFromResponse(resp)
		total = total.Add(resp.Usage)
		messages = append(messages, resp.Message)

		stop := opts.StopWhen != nil && opts.StopWhen(step)
		noToolCalls := resp.FinishReason != model.FinishToolCalls || len(step.ToolCalls) == 0
		passive := !noToolCalls && allPassive(step.ToolCalls, toolIndex)
		lastRound := round+1 >= maxRounds

		if stop || noToolCalls || passive || lastRound {
			steps = append(steps, step)
			return finalResult(steps, messages, total), nil
		}

		results := executeToolCalls(ctx, step.ToolCalls, toolIndex)
		step.ToolResults = results
		steps = append(steps, step)
		messages = append(messages, model.Message{Role: model.RoleUser, Parts: toolResultParts(results)})
	}
}

func stepFromResponse(resp *model.Response) StepResult {
	step := StepResult{
		Text:         resp.Message.Text(),
		ToolCalls:    resp.Message.ToolCalls(),
		FinishReason: resp.FinishReason,
		Usage:        resp.Usage,
		Response:     resp,
	}
	for _, p := range resp.Message.Parts {
		if t, ok := p.(model.ThinkingPart); ok {
			step.Reasoning += t.Text
		}
	}
	return step
}

func finalResult(steps []StepResult, messages []model.Message, total model.TokenUsage) *Result {
	r := &Result{Steps: steps, Messages: messages, TotalUsage: total}
	if n := len(steps); n > 0 {
		r.Text = steps[n-1].Text
		r.FinishReason = steps[n-1].FinishReason
	}
	return r
}

func validateOptions(opts Options) error {
	hasPrompt := opts.Prompt != ""
	hasMessages := len(opts.Messages) > 0
	if hasPrompt && hasMessages {
		return &model.ConfigurationError{Msg: "prompt and messages are mutually exclusive"}
	}
	if !hasPrompt && !hasMessages && opts.System == "" {
		return &model.ConfigurationError{Msg: "one of prompt or messages is required"}
	}
	return nil
}

func buildInitialMessages(opts Options) []model.Message {
	var out []model.Message
	if opts.System != "" {
		out = append(out, model.Message{Role: model.RoleSystem, Parts: []model.Part{model.TextPart{Text: opts.System}}})
	}
	if opts.Prompt != "" {
		out = append(out, model.Message{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: opts.Prompt}}})
	} else {
		out = append(out, opts.Messages...)
	}
	return out
}

func splitTools(tools []Tool) ([]model.ToolDefinition, map[string]Tool) {
	if len(tools) == 0 {
		return nil, nil
	}
	defs := make([]model.ToolDefinition, 0, len(tools))
	idx := make(map[string]Tool, len(tools))
	for _, t := range tools {
		defs = append(defs, t.Definition)
		idx[t.Definition.Name] = t
	}
	return defs, idx
}

func allPassive(calls []model.ToolCallPart, idx map[string]Tool) bool {
	for _, tc := range calls {
		if t, ok := idx[tc.Name]; ok && t.Execute != nil {
			return false
		}
	}
	return true
}

func executeToolCalls(ctx context.Context, calls []model.ToolCallPart, idx map[string]Tool) []model.ToolResultPart {
	out := make([]model.ToolResultPart, 0, len(calls))
	for _, tc := range calls {
		out = append(out, executeOne(ctx, tc, idx))
	}
	return out
}

func executeOne(ctx context.Context, tc model.ToolCallPart, idx map[string]Tool) model.ToolResultPart {
	t, ok := idx[tc.Name]
	if !ok || t.Execute == nil {
		return model.ToolResultPart{ToolCallID: tc.ID, Content: "Unknown tool " + tc.Name, IsError: true}
	}
	result, err := runExecutorSafely(ctx, t.Execute, tc.Arguments)
	if err != nil {
		return model.ToolResultPart{ToolCallID: tc.ID, Content: err.Error(), IsError: true}
	}
	if result == nil {
		return model.ToolResultPart{ToolCallID: tc.ID, Content: ""}
	}
	if s, ok := result.(string); ok {
		return model.ToolResultPart{ToolCallID: tc.ID, Content: s}
	}
	data, err := json.Marshal(result)
	if err != nil {
		return model.ToolResultPart{ToolCallID: tc.ID, Content: err.Error(), IsError: true}
	}
	return model.ToolResultPart{ToolCallID: tc.ID, Content: string(data)}
}

// runExecutorSafely recovers a panicking executor into an error, mirroring
// the "catch exceptions" requirement for a loop that must never abort on a
// single tool's misbehavior.
func runExecutorSafely(ctx context.Context, fn ToolExecutor, args json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{r}
		}
	}()
	return fn(ctx, args)
}

type panicError struct{ v any }

func (e *panicError) Error() string {
	if err, ok := e.v.(error); ok {
		return err.Error()
	}
	return "tool panicked"
}

func toolResultParts(results []model.ToolResultPart) []model.Part {
	out := make([]model.Part, len(results))
	for i, r := range results {
		out[i] = r
	}
	return out
}

// composeCancellation builds a single context from parent plus an optional
// abort channel and total timeout, implementing the "observe-once-then-
// settle" race described in spec §4.10: whichever of ctx/abort/timer fires
// first determines the error classification (AbortError vs TimeoutError).
func composeCancellation(parent context.Context, abort <-chan struct{}, timeout time.Duration) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	var once sync.Once
	settle := func(err error) { once.Do(func() { cancel(err) }) }

	if abort != nil {
		select {
		case <-abort:
			settle(&model.AbortError{Msg: "abort signal already tripped"})
		default:
			go func() {
				select {
				case <-abort:
					settle(&model.AbortError{Msg: "abort signal tripped"})
				case <-ctx.Done():
				}
			}()
		}
	}

	var timer *time.Timer
	if timeout > 0 {
		timer = time.AfterFunc(timeout, func() {
			settle(&model.TimeoutError{Msg: "total timeout elapsed"})
		})
	}

	return ctx, func() {
		if timer != nil {
			timer.Stop()
		}
		cancel(nil)
	}
}

// cancellationErr returns the classified cancellation error if ctx has
// already ended, or nil if it is still live.
func cancellationErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		if cause := context.Cause(ctx); cause != nil {
			if _, ok := cause.(*model.AbortError); ok {
				return cause
			}
			if _, ok := cause.(*model.TimeoutError); ok {
				return cause
			}
		}
		return ctx.Err()
	default:
		return nil
	}
}
