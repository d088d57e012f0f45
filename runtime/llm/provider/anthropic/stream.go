package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/pipeforge/pipeforge/runtime/llm/model"
)

// streamer adapts an Anthropic Messages SSE stream to model.Streamer,
// translating each wire frame into the spec's unified StreamEvent variants.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *ssestream.Stream[sdk.MessageStreamEventUnion]

	events chan model.StreamEvent

	errMu    sync.Mutex
	errSet   bool
	finalErr error

	idx toolNameIndex
}

func newStreamer(stream *ssestream.Stream[sdk.MessageStreamEventUnion], idx toolNameIndex) model.Streamer {
	ctx, cancel := context.WithCancel(context.Background())
	s := &streamer{ctx: ctx, cancel: cancel, stream: stream, events: make(chan model.StreamEvent, 32), idx: idx}
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

	p := newChunkProcessor(s.emit, s.idx)
	_ = s.emit(model.StreamEvent{Type: model.StreamStart})

	for {
		if s.ctx.Err() != nil {
			s.setErr(s.ctx.Err())
			return
		}
		if !s.stream.Next() {
			if err := s.stream.Err(); err != nil {
				s.setErr(translateError(err))
				_ = s.emit(model.StreamEvent{Type: model.StreamError, Err: translateError(err)})
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
		event := s.stream.Current()
		if err := p.handle(event); err != nil {
			s.setErr(err)
			_ = s.emit(model.StreamEvent{Type: model.StreamError, Err: err})
			return
		}
	}
}

// chunkProcessor converts Anthropic streaming events into model.StreamEvents
// while assembling the final model.Response emitted with StreamFinish.
type chunkProcessor struct {
	emit func(model.StreamEvent) error
	idx  toolNameIndex

	resp       model.Response
	toolBlocks map[int]*toolBuffer
	thinking   map[int]*strings.Builder
	stopReason string
}

func newChunkProcessor(emit func(model.StreamEvent) error, idx toolNameIndex) *chunkProcessor {
	return &chunkProcessor{
		emit:       emit,
		idx:        idx,
		toolBlocks: make(map[int]*toolBuffer),
		thinking:   make(map[int]*strings.Builder),
		resp:       model.Response{Provider: providerName, Message: model.Message{Role: model.RoleAssistant}},
	}
}

type toolBuffer struct {
	id, name  string
	fragments []string
}

func (p *chunkProcessor) handle(event sdk.MessageStreamEventUnion) error {
	switch ev := event.AsAny().(type) {
	case sdk.MessageStartEvent:
		p.resp.ID = ev.Message.ID
		p.resp.Model = string(ev.Message.Model)
		return nil
	case sdk.ContentBlockStartEvent:
		idx := int(ev.Index)
		if tu, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
			name := tu.Name
			if canonical, ok := p.idx[name]; ok {
				name = canonical
			}
			p.toolBlocks[idx] = &toolBuffer{id: tu.ID, name: name}
			return p.emit(model.StreamEvent{Type: model.StreamToolCallStart, Index: idx, ToolCallID: tu.ID, ToolCallName: name})
		}
		return p.emit(model.StreamEvent{Type: model.StreamTextStart, Index: idx})
	case sdk.ContentBlockDeltaEvent:
		idx := int(ev.Index)
		switch delta := ev.Delta.AsAny().(type) {
		case sdk.TextDelta:
			if delta.Text == "" {
				return nil
			}
			p.appendText(delta.Text)
			return p.emit(model.StreamEvent{Type: model.StreamTextDelta, Index: idx, TextDelta: delta.Text})
		case sdk.InputJSONDelta:
			if delta.PartialJSON == "" {
				return nil
			}
			tb := p.toolBlocks[idx]
			if tb == nil {
				return nil
			}
			tb.fragments = append(tb.fragments, delta.PartialJSON)
			return p.emit(model.StreamEvent{Type: model.StreamToolCallDelta, Index: idx, ToolCallID: tb.id, ToolCallName: tb.name, ToolDelta: delta.PartialJSON})
		case sdk.ThinkingDelta:
			if delta.Thinking == "" {
				return nil
			}
			b := p.thinking[idx]
			if b == nil {
				b = &strings.Builder{}
				p.thinking[idx] = b
				if err := p.emit(model.StreamEvent{Type: model.StreamReasoningStart, Index: idx}); err != nil {
					return err
				}
			}
			b.WriteString(delta.Thinking)
			return p.emit(model.StreamEvent{Type: model.StreamReasoningDelta, Index: idx, ReasoningDelta: delta.Thinking})
		default:
			return nil
		}
	case sdk.ContentBlockStopEvent:
		idx := int(ev.Index)
		if b, ok := p.thinking[idx]; ok {
			p.resp.Message.Parts = append(p.resp.Message.Parts, model.ThinkingPart{Text: b.String()})
			delete(p.thinking, idx)
			return p.emit(model.StreamEvent{Type: model.StreamReasoningEnd, Index: idx})
		}
		if tb, ok := p.toolBlocks[idx]; ok {
			delete(p.toolBlocks, idx)
			raw := decodeToolPayload(strings.Join(tb.fragments, ""))
			p.resp.Message.Parts = append(p.resp.Message.Parts, model.ToolCallPart{ID: tb.id, Name: tb.name, Arguments: raw})
			return p.emit(model.StreamEvent{Type: model.StreamToolCallEnd, Index: idx, ToolCallID: tb.id, ToolCallName: tb.name,
				ToolCall: &model.ToolCallPart{ID: tb.id, Name: tb.name, Arguments: raw}})
		}
		return p.emit(model.StreamEvent{Type: model.StreamTextEnd, Index: idx})
	case sdk.MessageDeltaEvent:
		p.stopReason = string(ev.Delta.StopReason)
		usage := model.TokenUsage{
			InputTokens:      int(ev.Usage.InputTokens),
			OutputTokens:     int(ev.Usage.OutputTokens),
			TotalTokens:      int(ev.Usage.InputTokens + ev.Usage.OutputTokens),
			CacheReadTokens:  int(ev.Usage.CacheReadInputTokens),
			CacheWriteTokens: int(ev.Usage.CacheCreationInputTokens),
		}
		p.resp.Usage = p.resp.Usage.Add(usage)
		return nil
	case sdk.MessageStopEvent:
		return nil
	}
	return nil
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
	p.resp.RawFinishReason = p.stopReason
	p.resp.FinishReason = mapFinishReason(p.stopReason)
	if p.resp.ID == "" {
		return nil, errors.New("anthropic stream: ended without a message_start event")
	}
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
