package pctx

import (
	"encoding/json"
	"fmt"
)

// kindName/nameToKind give Value's Kind discriminator a stable wire form,
// mirroring the Kind-tagged encoding the Unified LLM Core uses for its
// closed Part sum type.
var kindName = map[ValueKind]string{
	KindNull:   "null",
	KindString: "string",
	KindNumber: "number",
	KindBool:   "bool",
}

var nameToKind = map[string]ValueKind{
	"null":   KindNull,
	"string": KindString,
	"number": KindNumber,
	"bool":   KindBool,
}

// MarshalJSON encodes v with its Kind discriminator so a Context snapshot
// round-trips through the Checkpoint serializer.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(struct {
			Kind string `json:"kind"`
			Str  string `json:"str"`
		}{kindName[v.kind], v.str})
	case KindNumber:
		return json.Marshal(struct {
			Kind string  `json:"kind"`
			Num  float64 `json:"num"`
		}{kindName[v.kind], v.num})
	case KindBool:
		return json.Marshal(struct {
			Kind string `json:"kind"`
			Bool bool   `json:"bool"`
		}{kindName[v.kind], v.b})
	default:
		return json.Marshal(struct {
			Kind string `json:"kind"`
		}{kindName[KindNull]})
	}
}

// UnmarshalJSON decodes a Value from its Kind-discriminated wire form.
func (v *Value) UnmarshalJSON(data []byte) error {
	var head struct {
		Kind string          `json:"kind"`
		Str  string          `json:"str"`
		Num  float64         `json:"num"`
		Bool bool            `json:"bool"`
		Raw  json.RawMessage `json:"-"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	kind, ok := nameToKind[head.Kind]
	if !ok {
		return fmt.Errorf("pctx: unknown value kind %q", head.Kind)
	}
	switch kind {
	case KindString:
		*v = String(head.Str)
	case KindNumber:
		*v = Number(head.Num)
	case KindBool:
		*v = Bool(head.Bool)
	default:
		*v = Null()
	}
	return nil
}
