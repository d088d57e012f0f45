package gemini

import (
	"context"
	"errors"
	"io"
	"sync"

	"google.golang.org/genai"

	"github.com/pipeforge/pipeforge/runtime/llm/model"
)

// streamer adapts the genai iter.Seq2 streaming callback to model.Streamer by
// draining it on a background goroutine into a buffered channel.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc

	events chan model.StreamEvent

	errMu    sync.Mutex
	errSet   bool
	finalErr error
}

func newStreamer(modelID string, seq func(func(*genai.GenerateContentResponse, error) bool)) model.Streamer {
	ctx, cancel := context.WithCancel(context.Background())
	s := &streamer{ctx: ctx, cancel: cancel, events: make(chan model.StreamEvent, 32)}
	go s.run(modelID, seq)
	return s
}

func (s *streamer) Recv() (model.StreamEvent, error) {
	select {
	case ev, ok := <-s.events:
		if ok {
			return ev, nil
		}
		if err := s.err(); err != nil {
			return model.StreamEvent{}, err
		}
		return model.StreamEvent{}, io.EOF
	case <-s.ctx.Done():
		err := s.ctx.Err()
		s.setErr(err)
		return model.StreamEvent{}, err
	}
}

func (s *streamer) Close() error {
	s.cancel()
	return nil
}

func (s *streamer) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if !s.errSet {
		s.errSet = true
		s.finalErr = err
	}
}

func (s *streamer) err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.finalErr
}

func (s *streamer) emit(ev model.StreamEvent) bool {
	select {
	case <-s.ctx.Done():
		return false
	case s.events <- ev:
		return true
	}
}

func (s *streamer) run(modelID string, seq func(func(*genai.GenerateContentResponse, error) bool)) {
	defer close(s.events)

	p := newChunkProcessor(modelID)
	s.emit(model.StreamEvent{Type: model.StreamStart})

	streamErr := error(nil)
	seq(func(resp *genai.GenerateContentResponse, err error) bool {
		if err != nil {
			streamErr = err
			return false
		}
		return p.handle(resp, s.emit)
	})

	if streamErr != nil {
		e := translateError(streamErr)
		s.setErr(e)
		s.emit(model.StreamEvent{Type: model.StreamError, Err: e})
		return
	}
	resp, err := p.finish()
	if err != nil {
		s.setErr(err)
		return
	}
	s.emit(model.StreamEvent{Type: model.StreamFinish, Response: resp})
}

// chunkProcessor assembles genai streaming chunks into a final
// model.Response while emitting model.StreamEvents for text and tool-call
// deltas. Gemini streams whole parts per chunk rather than incremental
// deltas within a part, so each text/tool-call part is emitted as a single
// start+delta+end triple.
type chunkProcessor struct {
	resp       model.Response
	nextIndex  int
	sawContent bool
}

func newChunkProcessor(modelID string) *chunkProcessor {
	return &chunkProcessor{
		resp: model.Response{Model: modelID, Provider: providerName, Message: model.Message{Role: model.RoleAssistant}},
	}
}

func (p *chunkProcessor) handle(resp *genai.GenerateContentResponse, emit func(model.StreamEvent) bool) bool {
	if resp.ResponseID != "" {
		p.resp.ID = resp.ResponseID
	}
	if len(resp.Candidates) == 0 {
		return true
	}
	cand := resp.Candidates[0]
	if cand.FinishReason != "" {
		p.resp.RawFinishReason = string(cand.FinishReason)
		p.resp.FinishReason = mapFinishReason(cand.FinishReason)
	}
	if resp.UsageMetadata != nil {
		p.resp.Usage = model.TokenUsage{
			InputTokens:     int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens:    int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:     int(resp.UsageMetadata.TotalTokenCount),
			ReasoningTokens: int(resp.UsageMetadata.ThoughtsTokenCount),
			CacheReadTokens: int(resp.UsageMetadata.CachedContentTokenCount),
		}
	}
	if cand.Content == nil {
		return true
	}
	for _, part := range cand.Content.Parts {
		idx := p.nextIndex
		p.nextIndex++
		p.sawContent = true
		switch {
		case part.FunctionCall != nil:
			name := part.FunctionCall.Name
			id := part.FunctionCall.ID
			if id == "" {
				id = name
			}
			if !emit(model.StreamEvent{Type: model.StreamToolCallStart, Index: idx, ToolCallID: id, ToolCallName: name}) {
				return false
			}
			appendPart(&p.resp, part)
			tc := p.resp.Message.Parts[len(p.resp.Message.Parts)-1].(model.ToolCallPart)
			if !emit(model.StreamEvent{Type: model.StreamToolCallDelta, Index: idx, ToolCallID: id, ToolCallName: name, ToolDelta: string(tc.Arguments)}) {
				return false
			}
			if !emit(model.StreamEvent{Type: model.StreamToolCallEnd, Index: idx, ToolCallID: id, ToolCallName: name, ToolCall: &tc}) {
				return false
			}
		case part.Text != "" && part.Thought:
			if !emit(model.StreamEvent{Type: model.StreamReasoningStart, Index: idx}) {
				return false
			}
			if !emit(model.StreamEvent{Type: model.StreamReasoningDelta, Index: idx, ReasoningDelta: part.Text}) {
				return false
			}
			appendPart(&p.resp, part)
			if !emit(model.StreamEvent{Type: model.StreamReasoningEnd, Index: idx}) {
				return false
			}
		case part.Text != "":
			if !emit(model.StreamEvent{Type: model.StreamTextStart, Index: idx}) {
				return false
			}
			if !emit(model.StreamEvent{Type: model.StreamTextDelta, Index: idx, TextDelta: part.Text}) {
				return false
			}
			appendPart(&p.resp, part)
			if !emit(model.StreamEvent{Type: model.StreamTextEnd, Index: idx}) {
				return false
			}
		}
	}
	return true
}

func (p *chunkProcessor) finish() (*model.Response, error) {
	if !p.sawContent && p.resp.FinishReason == "" {
		return nil, errors.New("gemini stream: ended without any content or finish reason")
	}
	out := p.resp
	return &out, nil
}
