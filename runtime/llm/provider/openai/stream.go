package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/responses"

	"github.com/pipeforge/pipeforge/runtime/llm/model"
)

// streamer adapts a Responses API SSE stream to model.Streamer.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *ssestream.Stream[responses.ResponseStreamEventUnion]

	events chan model.StreamEvent

	errMu    sync.Mutex
	errSet   bool
	finalErr error
}

func newStreamer(stream *ssestream.Stream[responses.ResponseStreamEventUnion]) model.Streamer {
	ctx, cancel := context.WithCancel(context.Background())
	s := &streamer{ctx: ctx, cancel: cancel, stream: stream, events: make(chan model.StreamEvent, 32)}
	go s.run()
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
	if s.stream == nil {
		return nil
	}
	return s.stream.Close()
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

func (s *streamer) emit(ev model.StreamEvent) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case s.events <- ev:
		return nil
	}
}

func (s *streamer) run() {
	defer close(s.events)
	defer func() {
		if s.stream != nil {
			_ = s.stream.Close()
		}
	}()

	p := newChunkProcessor(s.emit)
	_ = s.emit(model.StreamEvent{Type: model.StreamStart})

	for {
		if s.ctx.Err() != nil {
			s.setErr(s.ctx.Err())
			return
		}
		if !s.stream.Next() {
			if err := s.stream.Err(); err != nil {
				e := translateError(err)
				s.setErr(e)
				_ = s.emit(model.StreamEvent{Type: model.StreamError, Err: e})
			} else {
				resp, err := p.finish()
				if err != nil {
					s.setErr(err)
					return
				}
				_ = s.emit(model.StreamEvent{Type: model.StreamFinish, Response: resp})
			}
			return
		}
		if err := p.handle(s.stream.Current()); err != nil {
			s.setErr(err)
			_ = s.emit(model.StreamEvent{Type: model.StreamError, Err: err})
			return
		}
	}
}

// chunkProcessor converts Responses API streaming events into
// model.StreamEvents, assembling the final model.Response emitted with
// StreamFinish.
type chunkProcessor struct {
	emit func(model.StreamEvent) error

	resp       model.Response
	textOpen   map[int]bool
	toolBlocks map[int]*toolBuffer
	status     responses.ResponseStatus
}

type toolBuffer struct {
	id, name string
	args     strings.Builder
}

func newChunkProcessor(emit func(model.StreamEvent) error) *chunkProcessor {
	return &chunkProcessor{
		emit:       emit,
		textOpen:   make(map[int]bool),
		toolBlocks: make(map[int]*toolBuffer),
		resp:       model.Response{Provider: providerName, Message: model.Message{Role: model.RoleAssistant}},
	}
}

func (p *chunkProcessor) handle(event responses.ResponseStreamEventUnion) error {
	switch ev := event.AsAny().(type) {
	case responses.ResponseCreatedEvent:
		p.resp.ID = ev.Response.ID
		p.resp.Model = string(ev.Response.Model)
		return nil
	case responses.ResponseOutputItemAddedEvent:
		if fc, ok := ev.Item.AsAny().(responses.ResponseFunctionToolCall); ok {
			idx := int(ev.OutputIndex)
			p.toolBlocks[idx] = &toolBuffer{id: fc.CallID, name: fc.Name}
			return p.emit(model.StreamEvent{Type: model.StreamToolCallStart, Index: idx, ToolCallID: fc.CallID, ToolCallName: fc.Name})
		}
		return nil
	case responses.ResponseTextDeltaEvent:
		idx := int(ev.OutputIndex)
		if !p.textOpen[idx] {
			p.textOpen[idx] = true
			if err := p.emit(model.StreamEvent{Type: model.StreamTextStart, Index: idx}); err != nil {
				return err
			}
		}
		if ev.Delta == "" {
			return nil
		}
		p.appendText(ev.Delta)
		return p.emit(model.StreamEvent{Type: model.StreamTextDelta, Index: idx, TextDelta: ev.Delta})
	case responses.ResponseTextDoneEvent:
		idx := int(ev.OutputIndex)
		delete(p.textOpen, idx)
		return p.emit(model.StreamEvent{Type: model.StreamTextEnd, Index: idx})
	case responses.ResponseFunctionCallArgumentsDeltaEvent:
		idx := int(ev.OutputIndex)
		tb := p.toolBlocks[idx]
		if tb == nil || ev.Delta == "" {
			return nil
		}
		tb.args.WriteString(ev.Delta)
		return p.emit(model.StreamEvent{Type: model.StreamToolCallDelta, Index: idx, ToolCallID: tb.id, ToolCallName: tb.name, ToolDelta: ev.Delta})
	case responses.ResponseOutputItemDoneEvent:
		idx := int(ev.OutputIndex)
		if tb, ok := p.toolBlocks[idx]; ok {
			delete(p.toolBlocks, idx)
			raw := decodeToolPayload(tb.args.String())
			p.resp.Message.Parts = append(p.resp.Message.Parts, model.ToolCallPart{ID: tb.id, Name: tb.name, Arguments: raw})
			return p.emit(model.StreamEvent{Type: model.StreamToolCallEnd, Index: idx, ToolCallID: tb.id, ToolCallName: tb.name,
				ToolCall: &model.ToolCallPart{ID: tb.id, Name: tb.name, Arguments: raw}})
		}
		return nil
	case responses.ResponseCompletedEvent:
		p.status = ev.Response.Status
		p.resp.Usage = p.resp.Usage.Add(model.TokenUsage{
			InputTokens:     int(ev.Response.Usage.InputTokens),
			OutputTokens:    int(ev.Response.Usage.OutputTokens),
			TotalTokens:     int(ev.Response.Usage.TotalTokens),
			ReasoningTokens: int(ev.Response.Usage.OutputTokensDetails.ReasoningTokens),
			CacheReadTokens: int(ev.Response.Usage.InputTokensDetails.CachedTokens),
		})
		return nil
	default:
		return nil
	}
}

func (p *chunkProcessor) appendText(delta string) {
	n := len(p.resp.Message.Parts)
	if n > 0 {
		if last, ok := p.resp.Message.Parts[n-1].(model.TextPart); ok {
			p.resp.Message.Parts[n-1] = model.TextPart{Text: last.Text + delta}
			return
		}
	}
	p.resp.Message.Parts = append(p.resp.Message.Parts, model.TextPart{Text: delta})
}

func (p *chunkProcessor) finish() (*model.Response, error) {
	if p.resp.ID == "" {
		return nil, errors.New("openai stream: ended without a response.created event")
	}
	p.resp.RawFinishReason = string(p.status)
	p.resp.FinishReason = mapFinishReason(&responses.Response{Status: p.status}, p.resp.Message)
	out := p.resp
	return &out, nil
}

func decodeToolPayload(raw string) json.RawMessage {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = "{}"
	}
	return json.RawMessage(trimmed)
}
