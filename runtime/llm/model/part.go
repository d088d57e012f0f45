// Package model defines the provider-agnostic message and content algebra
// shared by every LLM provider adapter, the unified client, and the generate
// API. Messages are modeled as typed parts (text, image, audio, document,
// tool call/result, thinking) rather than flattened strings so that
// structure survives a round trip through any provider's wire format.
package model

import "encoding/json"

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleDeveloper Role = "developer"
)

// Part is a marker interface implemented by every content-part variant.
// The set is closed: TextPart, ImagePart, AudioPart, DocumentPart,
// ToolCallPart, ToolResultPart, ThinkingPart, RedactedThinkingPart.
type Part interface {
	isPart()
}

type (
	// TextPart is a plain text content block.
	TextPart struct {
		Text string
	}

	// ImageFormat identifies the on-wire encoding of an ImagePart.
	ImageFormat string

	// ImagePart carries image content, either as a remote URL or inline bytes.
	// Exactly one of URL or (Bytes, MediaType) should be set.
	ImagePart struct {
		URL       string
		Bytes     []byte
		MediaType string
		Format    ImageFormat
	}

	// AudioPart carries inline audio bytes attached to a message.
	AudioPart struct {
		Bytes     []byte
		MediaType string
	}

	// DocumentFormat identifies the on-wire format/extension of a DocumentPart.
	DocumentFormat string

	// DocumentPart carries document content. Provider adapters that do not
	// support document inputs fail fast rather than silently dropping it.
	DocumentPart struct {
		Name      string
		Format    DocumentFormat
		Bytes     []byte
		MediaType string
	}

	// ToolCallPart declares a tool invocation requested by the assistant.
	ToolCallPart struct {
		ID        string
		Name      string
		Arguments json.RawMessage
	}

	// ToolResultPart carries the result of a prior tool call, attached to a
	// subsequent message so the model can read it.
	ToolResultPart struct {
		ToolCallID string
		Content    string
		IsError    bool
	}

	// ThinkingPart represents provider-issued reasoning content. Signature is
	// opaque provider metadata and must be preserved verbatim across
	// request/response round trips; the core never inspects or mutates it.
	ThinkingPart struct {
		Text      string
		Signature string
	}

	// RedactedThinkingPart carries reasoning content the provider redacted.
	// Data is opaque and must be preserved verbatim across round trips.
	RedactedThinkingPart struct {
		Data []byte
	}
)

func (TextPart) isPart()             {}
func (ImagePart) isPart()            {}
func (AudioPart) isPart()            {}
func (DocumentPart) isPart()         {}
func (ToolCallPart) isPart()         {}
func (ToolResultPart) isPart()       {}
func (ThinkingPart) isPart()         {}
func (RedactedThinkingPart) isPart() {}

// Message is a single entry in a conversation transcript.
type Message struct {
	Role  Role
	Parts []Part
}

// Text concatenates the text of every TextPart in the message, in order.
// Useful for callers that only care about plain assistant text.
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if t, ok := p.(TextPart); ok {
			out += t.Text
		}
	}
	return out
}

// ToolCalls returns every ToolCallPart present in the message, in order.
func (m Message) ToolCalls() []ToolCallPart {
	var out []ToolCallPart
	for _, p := range m.Parts {
		if tc, ok := p.(ToolCallPart); ok {
			out = append(out, tc)
		}
	}
	return out
}
