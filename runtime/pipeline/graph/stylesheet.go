package graph

import "github.com/pipeforge/pipeforge/runtime/pipeline/pctx"

// SelectorKind identifies which of the five ModelStylesheet selector forms
// a Rule uses.
type SelectorKind int

const (
	SelectorUniversal SelectorKind = iota
	SelectorShape
	SelectorID
	SelectorClass
	SelectorCompound
)

// specificity ranks a selector kind per spec §3: "id > class > shape >
// universal". Compound selectors (e.g. "shape.class") take the specificity
// of their most specific component.
func (k SelectorKind) specificity() int {
	switch k {
	case SelectorID:
		return 3
	case SelectorClass:
		return 2
	case SelectorShape:
		return 1
	default:
		return 0
	}
}

// Selector matches a subset of a graph's nodes.
type Selector struct {
	Kind SelectorKind

	// Shape/ID/Class hold the selector's matched token(s); a compound
	// selector may set both Shape and Class.
	Shape string
	ID    string
	Class string
}

func (s Selector) specificity() int {
	if s.Kind == SelectorCompound {
		sp := SelectorShape.specificity()
		if s.Class != "" {
			sp = SelectorClass.specificity()
		}
		if s.ID != "" {
			sp = SelectorID.specificity()
		}
		return sp
	}
	return s.Kind.specificity()
}

func (s Selector) matches(n Node) bool {
	switch s.Kind {
	case SelectorUniversal:
		return true
	case SelectorShape:
		return n.Shape == s.Shape
	case SelectorID:
		return n.ID == s.ID
	case SelectorClass:
		return n.HasClass(s.Class)
	case SelectorCompound:
		if s.Shape != "" && n.Shape != s.Shape {
			return false
		}
		if s.Class != "" && !n.HasClass(s.Class) {
			return false
		}
		if s.ID != "" && n.ID != s.ID {
			return false
		}
		return true
	default:
		return false
	}
}

// Rule is one (selector, declarations) pair of a ModelStylesheet.
type Rule struct {
	Selector     Selector
	Declarations map[string]pctx.Value

	// SourceIndex preserves declaration order for the source-order
	// tiebreak among equally specific matching rules.
	SourceIndex int
}

// ModelStylesheet is the ordered rule set resolved against every node at
// compile time, before node-local attributes are applied (spec §3
// "ModelStylesheet").
type ModelStylesheet struct {
	Rules []Rule
}

// Resolve returns the attribute set a node inherits from the stylesheet:
// for each attribute name touched by any matching rule, the value from the
// highest-specificity matching rule, source order breaking ties (later
// wins).
func (s ModelStylesheet) Resolve(n Node) map[string]pctx.Value {
	type winner struct {
		value       pctx.Value
		specificity int
		sourceIndex int
	}
	best := make(map[string]winner)
	for _, rule := range s.Rules {
		if !rule.Selector.matches(n) {
			continue
		}
		sp := rule.Selector.specificity()
		for attr, val := range rule.Declarations {
			cur, ok := best[attr]
			if !ok || sp > cur.specificity ||
				(sp == cur.specificity && rule.SourceIndex >= cur.sourceIndex) {
				best[attr] = winner{value: val, specificity: sp, sourceIndex: rule.SourceIndex}
			}
		}
	}
	out := make(map[string]pctx.Value, len(best))
	for attr, w := range best {
		out[attr] = w.value
	}
	return out
}
