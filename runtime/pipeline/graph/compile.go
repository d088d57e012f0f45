package graph

import (
	"fmt"
	"strings"

	"github.com/pipeforge/pipeforge/runtime/pipeline/pctx"
)

// Compile builds an immutable Graph from a RawGraph (C5, spec §4.1):
// resolving attribute inheritance (graph defaults -> stylesheet -> node
// local), deriving each node's Kind from its shape, deriving class tokens
// from subgraph labels, expanding compile-time `$name` bindings (`goal`),
// and defaulting edge weight/priority. Compile then
// runs Validate (C6) and returns any structural error.
func Compile(raw *RawGraph) (*Graph, error) {
	if raw == nil {
		return nil, fmt.Errorf("graph: nil RawGraph")
	}

	stylesheet, err := compileStylesheet(raw.Stylesheet)
	if err != nil {
		return nil, err
	}

	g := &Graph{
		Name:            raw.Name,
		Goal:            raw.Goal,
		Nodes:           make(map[string]Node, len(raw.Nodes)),
		DefaultMaxRetry: raw.DefaultMaxRetry,
		RetryTarget:     raw.RetryTarget,
		Stylesheet:      stylesheet,
	}
	if g.DefaultMaxRetry == 0 {
		g.DefaultMaxRetry = DefaultMaxRetries
	}

	for _, rn := range raw.Nodes {
		n, err := compileNode(rn, raw, stylesheet)
		if err != nil {
			return nil, err
		}
		if _, dup := g.Nodes[n.ID]; dup {
			return nil, fmt.Errorf("graph: duplicate node id %q", n.ID)
		}
		g.Nodes[n.ID] = n
		switch n.Kind {
		case KindStart:
			if g.StartID != "" {
				return nil, fmt.Errorf("graph: duplicate START node (%q and %q)", g.StartID, n.ID)
			}
			g.StartID = n.ID
		case KindExit:
			g.ExitIDs = append(g.ExitIDs, n.ID)
		}
	}

	for i, re := range raw.Edges {
		e := Edge{
			From:        re.From,
			To:          re.To,
			Label:       re.Label,
			Condition:   re.Condition,
			Weight:      1,
			Priority:    0,
			SourceIndex: i,
		}
		if re.Weight != nil {
			e.Weight = *re.Weight
		}
		if re.Priority != nil {
			e.Priority = *re.Priority
		}
		g.Edges = append(g.Edges, e)
	}
	g.outAdj = buildAdjacency(g.Edges)

	// Compile-time expansion of graph-level bindings, $goal in particular
	// (spec §4.1: "against graph-level bindings at compile-time for
	// goal, etc."). Node attribute values are left for run-time Expand
	// against the live Context, per the same section's invariant that
	// attribute values are never mutated after compile.
	bindings := pctx.New()
	bindings.Set("goal", pctx.String(g.Goal))
	bindings.Set("name", pctx.String(g.Name))
	g.Goal = pctx.Expand(g.Goal, bindings)

	if err := Validate(g); err != nil {
		return nil, err
	}
	return g, nil
}

func compileNode(rn RawNode, raw *RawGraph, stylesheet ModelStylesheet) (Node, error) {
	if rn.ID == "" {
		return Node{}, fmt.Errorf("graph: node with empty id")
	}
	kind, ok := KindForShape(rn.Shape)
	if !ok {
		return Node{}, fmt.Errorf("graph: node %q has unrecognized shape %q", rn.ID, rn.Shape)
	}

	nodeLocal := make(map[string]pctx.Value, len(rn.Attributes))
	for k, v := range rn.Attributes {
		val, err := pctx.ValueFromAny(v)
		if err != nil {
			return Node{}, fmt.Errorf("graph: node %q attribute %q: %w", rn.ID, k, err)
		}
		nodeLocal[k] = val
	}

	classes := classTokensFor(rn, raw)

	merged := defaultAttributes()
	if raw.DefaultMaxRetry > 0 {
		merged["max_retries"] = pctx.Number(float64(raw.DefaultMaxRetry))
	}
	if raw.RetryTarget != "" {
		merged["retry_target"] = pctx.String(raw.RetryTarget)
	}
	styled := stylesheet.Resolve(Node{ID: rn.ID, Shape: rn.Shape, Classes: classes})
	for k, v := range styled {
		merged[k] = v
	}
	for k, v := range nodeLocal {
		merged[k] = v
	}

	return Node{
		ID:          rn.ID,
		Shape:       rn.Shape,
		Kind:        kind,
		Attributes:  merged,
		Classes:     classes,
		SubGraphRef: rn.SubGraphRef,
	}, nil
}

func defaultAttributes() map[string]pctx.Value {
	return map[string]pctx.Value{
		"max_retries":      pctx.Number(DefaultMaxRetries),
		"allow_partial":    pctx.Bool(DefaultAllowPartial),
		"goal_gate":        pctx.Bool(DefaultGoalGate),
		"reasoning_effort": pctx.String(DefaultReasoningEffort),
	}
}

// classTokensFor derives a node's class tokens from the label of the
// subgraph it was declared inside (spec §4.1: "lowercased, non-alphanumerics
// -> '-'"). A node with no enclosing subgraph, or whose subgraph has no
// label, gets no class tokens.
func classTokensFor(rn RawNode, raw *RawGraph) []string {
	sg := raw.NodeSubgraph[rn.ID]
	if sg == "" {
		return nil
	}
	label := raw.SubgraphLabels[sg]
	if label == "" {
		return nil
	}
	return []string{slugify(label)}
}

func slugify(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevDash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			prevDash = false
			continue
		}
		if !prevDash {
			b.WriteByte('-')
			prevDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}

func compileStylesheet(rules []RawRule) (ModelStylesheet, error) {
	out := ModelStylesheet{Rules: make([]Rule, 0, len(rules))}
	for i, rr := range rules {
		sel, err := compileSelector(rr)
		if err != nil {
			return ModelStylesheet{}, err
		}
		decls := make(map[string]pctx.Value, len(rr.Declarations))
		for k, v := range rr.Declarations {
			val, err := pctx.ValueFromAny(v)
			if err != nil {
				return ModelStylesheet{}, fmt.Errorf("graph: stylesheet rule %d declaration %q: %w", i, k, err)
			}
			decls[k] = val
		}
		out.Rules = append(out.Rules, Rule{Selector: sel, Declarations: decls, SourceIndex: i})
	}
	return out, nil
}

func compileSelector(rr RawRule) (Selector, error) {
	set := 0
	if rr.Shape != "" {
		set++
	}
	if rr.ID != "" {
		set++
	}
	if rr.Class != "" {
		set++
	}
	switch {
	case set == 0:
		return Selector{Kind: SelectorUniversal}, nil
	case set == 1 && rr.ID != "":
		return Selector{Kind: SelectorID, ID: rr.ID}, nil
	case set == 1 && rr.Class != "":
		return Selector{Kind: SelectorClass, Class: rr.Class}, nil
	case set == 1 && rr.Shape != "":
		return Selector{Kind: SelectorShape, Shape: rr.Shape}, nil
	default:
		return Selector{Kind: SelectorCompound, Shape: rr.Shape, ID: rr.ID, Class: rr.Class}, nil
	}
}
