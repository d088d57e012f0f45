package generate

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/pipeforge/pipeforge/runtime/llm/model"
)

// StreamHandle is a multi-consumer replayable view over a generate() call
// run with streaming completion. Every StreamEvent produced by the loop is
// buffered on a shared ring so that a consumer starting after the producer
// began still observes the full event history (spec §4.10).
type StreamHandle struct {
	mu       sync.Mutex
	cond     *sync.Cond
	events   []model.StreamEvent
	done     bool
	response *model.Response
	err      error
}

func newStreamHandle() *StreamHandle {
	h := &StreamHandle{}
	h.cond = sync.NewCond(&h.mu)
	return h
}

func (h *StreamHandle) append(ev model.StreamEvent) {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.cond.Broadcast()
	h.mu.Unlock()
}

func (h *StreamHandle) finish(resp *model.Response, err error) {
	h.mu.Lock()
	h.done = true
	h.response = resp
	h.err = err
	h.cond.Broadcast()
	h.mu.Unlock()
}

// Events returns a channel replaying every event from index 0, closed once
// the producer finishes and all buffered events have been delivered. Each
// call to Events returns an independent replay cursor.
func (h *StreamHandle) Events(ctx context.Context) <-chan model.StreamEvent {
	out := make(chan model.StreamEvent)
	go func() {
		defer close(out)
		idx := 0
		for {
			h.mu.Lock()
			for idx >= len(h.events) && !h.done {
				h.cond.Wait()
			}
			var batch []model.StreamEvent
			if idx < len(h.events) {
				batch = append(batch, h.events[idx:]...)
				idx = len(h.events)
			}
			done := h.done
			h.mu.Unlock()

			for _, ev := range batch {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
			if done && idx >= len(h.events) {
				return
			}
		}
	}()
	return out
}

// TextStream returns only TEXT_DELTA event text, in order.
func (h *StreamHandle) TextStream(ctx context.Context) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		for ev := range h.Events(ctx) {
			if ev.Type == model.StreamTextDelta && ev.TextDelta != "" {
				select {
				case out <- ev.TextDelta:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Response blocks until the loop finishes and returns the final assembled
// Response, or the error that ended the loop. It returns a StreamError if
// the underlying stream ended without a FINISH event carrying a Response.
func (h *StreamHandle) Response() (*model.Response, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for !h.done {
		h.cond.Wait()
	}
	if h.err != nil {
		return nil, h.err
	}
	if h.response == nil {
		return nil, &model.StreamError{Msg: "stream ended without a FINISH event carrying a response"}
	}
	return h.response, nil
}

// RunStream executes the same bounded tool-call loop as Run but sources
// each step from Client.Stream, forwarding every StreamEvent onto the
// returned handle as it arrives.
func RunStream(ctx context.Context, c Client, opts Options) *StreamHandle {
	h := newStreamHandle()
	go func() {
		resp, err := runStreamingLoop(ctx, c, opts, h)
		h.finish(resp, err)
	}()
	return h
}

func runStreamingLoop(ctx context.Context, c Client, opts Options, h *StreamHandle) (*model.Response, error) {
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

	var total model.TokenUsage

	for round := 0; ; round++ {
		if err := cancellationErr(ctx); err != nil {
			return nil, err
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
			Stream:          true,
		}
		sr, err := c.Stream(ctx, req)
		if err != nil {
			return nil, err
		}
		resp, err := drainStream(sr, h)
		if err != nil {
			return nil, err
		}
		total = total.Add(resp.Usage)
		messages = append(messages, resp.Message)
		step := stepFromResponse(resp)

		stop := opts.StopWhen != nil && opts.StopWhen(step)
		noToolCalls := resp.FinishReason != model.FinishToolCalls || len(step.ToolCalls) == 0
		passive := !noToolCalls && allPassive(step.ToolCalls, toolIndex)
		lastRound := round+1 >= maxRounds

		if stop || noToolCalls || passive || lastRound {
			final := *resp
			final.Usage = total
			return &final, nil
		}

		results := executeToolCalls(ctx, step.ToolCalls, toolIndex)
		messages = append(messages, model.Message{Role: model.RoleUser, Parts: toolResultParts(results)})
	}
}

func drainStream(sr model.Streamer, h *StreamHandle) (*model.Response, error) {
	defer sr.Close()
	for {
		ev, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			return nil, &model.StreamError{Msg: "stream ended without a FINISH event carrying a response"}
		}
		if err != nil {
			return nil, err
		}
		h.append(ev)
		switch ev.Type {
		case model.StreamFinish:
			if ev.Response == nil {
				return nil, &model.StreamError{Msg: "FINISH event carried no response"}
			}
			return ev.Response, nil
		case model.StreamError:
			return nil, ev.Err
		}
	}
}
