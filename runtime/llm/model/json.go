package model

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON encodes TextPart with a Kind discriminator so a Message's
// Parts slice round-trips through JSON.
func (p TextPart) MarshalJSON() ([]byte, error) {
	type alias TextPart
	return json.Marshal(struct {
		Kind string `json:"kind"`
		alias
	}{Kind: "text", alias: alias(p)})
}

// MarshalJSON encodes ImagePart with a Kind discriminator.
func (p ImagePart) MarshalJSON() ([]byte, error) {
	type alias ImagePart
	return json.Marshal(struct {
		Kind string `json:"kind"`
		alias
	}{Kind: "image", alias: alias(p)})
}

// MarshalJSON encodes AudioPart with a Kind discriminator.
func (p AudioPart) MarshalJSON() ([]byte, error) {
	type alias AudioPart
	return json.Marshal(struct {
		Kind string `json:"kind"`
		alias
	}{Kind: "audio", alias: alias(p)})
}

// MarshalJSON encodes DocumentPart with a Kind discriminator.
func (p DocumentPart) MarshalJSON() ([]byte, error) {
	type alias DocumentPart
	return json.Marshal(struct {
		Kind string `json:"kind"`
		alias
	}{Kind: "document", alias: alias(p)})
}

// MarshalJSON encodes ToolCallPart with a Kind discriminator.
func (p ToolCallPart) MarshalJSON() ([]byte, error) {
	type alias ToolCallPart
	return json.Marshal(struct {
		Kind string `json:"kind"`
		alias
	}{Kind: "tool_call", alias: alias(p)})
}

// MarshalJSON encodes ToolResultPart with a Kind discriminator.
func (p ToolResultPart) MarshalJSON() ([]byte, error) {
	type alias ToolResultPart
	return json.Marshal(struct {
		Kind string `json:"kind"`
		alias
	}{Kind: "tool_result", alias: alias(p)})
}

// MarshalJSON encodes ThinkingPart with a Kind discriminator.
func (p ThinkingPart) MarshalJSON() ([]byte, error) {
	type alias ThinkingPart
	return json.Marshal(struct {
		Kind string `json:"kind"`
		alias
	}{Kind: "thinking", alias: alias(p)})
}

// MarshalJSON encodes RedactedThinkingPart with a Kind discriminator.
func (p RedactedThinkingPart) MarshalJSON() ([]byte, error) {
	type alias RedactedThinkingPart
	return json.Marshal(struct {
		Kind string `json:"kind"`
		alias
	}{Kind: "redacted_thinking", alias: alias(p)})
}

// MarshalJSON encodes Message with its Parts as a discriminated-union array.
func (m Message) MarshalJSON() ([]byte, error) {
	type alias struct {
		Role  Role   `json:"role"`
		Parts []Part `json:"parts"`
	}
	return json.Marshal(alias{Role: m.Role, Parts: m.Parts})
}

// UnmarshalJSON decodes a Message, dispatching each Parts entry on its Kind
// discriminator back to the concrete Part type it was marshaled from.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role  Role              `json:"role"`
		Parts []json.RawMessage `json:"parts"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.Parts = make([]Part, 0, len(raw.Parts))
	for _, rp := range raw.Parts {
		part, err := unmarshalPart(rp)
		if err != nil {
			return err
		}
		m.Parts = append(m.Parts, part)
	}
	return nil
}

func unmarshalPart(data []byte) (Part, error) {
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	switch head.Kind {
	case "text":
		var p TextPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case "image":
		var p ImagePart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case "audio":
		var p AudioPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case "document":
		var p DocumentPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case "tool_call":
		var p ToolCallPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case "tool_result":
		var p ToolResultPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case "thinking":
		var p ThinkingPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case "redacted_thinking":
		var p RedactedThinkingPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("model: unknown part kind %q", head.Kind)
	}
}
