// Package pctx implements the Context Store (spec §4, C7): the typed
// key/value bag threaded through every pipeline stage, plus the Outcome
// record handlers return to the engine. Values are a closed sum type over
// string|number|bool|null rather than an open `any` map, generalizing the
// closed-content-part pattern (spec Design Note 9.1) to the attribute and
// context layer.
package pctx

import (
	"fmt"
	"strconv"
)

// ValueKind identifies which case of Value is populated.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
)

// Value is a closed sum type over the four kinds a Context entry or node
// attribute may hold. The zero Value is KindNull.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
}

// Null returns the null Value.
func Null() Value { return Value{kind: KindNull} }

// String wraps s as a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number wraps f as a number Value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool wraps b as a bool Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Kind reports which case v holds.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is the null case.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString returns v's string payload and whether v holds KindString.
func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// AsNumber returns v's number payload and whether v holds KindNumber.
func (v Value) AsNumber() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// AsBool returns v's bool payload and whether v holds KindBool.
func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// Render renders v as the string form used for $name substitution and
// condition-grammar literal comparison: strings render verbatim, numbers
// render without a trailing ".0" when integral, bools render "true"/"false",
// null renders "".
func (v Value) Render() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		if v.num == float64(int64(v.num)) {
			return strconv.FormatInt(int64(v.num), 10)
		}
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// ValueFromAny converts a parsed attribute literal (string, float64, bool,
// or nil, the shapes produced by the graph-source parser and JSON decoding,
// plus int and int64) into a Value. It returns an error for any other Go type, keeping the sum
// type closed at its one conversion boundary.
func ValueFromAny(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	default:
		return Value{}, fmt.Errorf("pctx: unsupported attribute value type %T", v)
	}
}
