package graph

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ValidationError reports every fatal structural problem Validate found, so
// a caller fixing a graph source sees the whole list at once rather than
// one error per Compile attempt.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("graph: %d validation problem(s): %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

// Validate checks g for the structural well-formedness spec §4.2 (C6)
// requires. Fatal problems are returned as a *ValidationError; non-fatal
// issues (an edge condition referencing an unknown context key) are
// recorded on g.Warnings instead of failing compile.
func Validate(g *Graph) error {
	var problems []string

	if g.StartID == "" {
		problems = append(problems, "no START node (shape Mdiamond)")
	}
	if len(g.ExitIDs) == 0 {
		problems = append(problems, "no EXIT node (shape Msquare)")
	}

	for id, n := range g.Nodes {
		if id == g.StartID {
			continue
		}
		if len(inboundOf(g, id)) == 0 {
			problems = append(problems, fmt.Sprintf("node %q is unreachable: no inbound edges", id))
		}
		if !g.IsExit(id) && len(g.OutgoingEdges(id)) == 0 {
			problems = append(problems, fmt.Sprintf("node %q is a dead end: no outgoing edges", id))
		}
		if n.Kind == KindCodergen && strings.TrimSpace(n.AttrString("prompt", "")) == "" {
			problems = append(problems, fmt.Sprintf("codergen node %q has no prompt", id))
		}
	}

	if g.StartID != "" && len(g.ExitIDs) > 0 {
		reachable := reachableFrom(g, g.StartID)
		anyExit := false
		for _, id := range g.ExitIDs {
			if reachable[id] {
				anyExit = true
				break
			}
		}
		if !anyExit {
			problems = append(problems, "no EXIT node is reachable from START")
		}
		for id := range g.Nodes {
			if id != g.StartID && !reachable[id] {
				problems = append(problems, fmt.Sprintf("node %q is not reachable from START", id))
			}
		}
	}

	problems = append(problems, checkCycles(g)...)

	g.Warnings = unknownContextKeyWarnings(g)

	if len(problems) > 0 {
		sort.Strings(problems)
		return &ValidationError{Problems: problems}
	}
	return nil
}

func inboundOf(g *Graph, id string) []Edge {
	var in []Edge
	for _, e := range g.Edges {
		if e.To == id {
			in = append(in, e)
		}
	}
	return in
}

func reachableFrom(g *Graph, start string) map[string]bool {
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.OutgoingEdges(cur) {
			if !seen[e.To] {
				seen[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	return seen
}

// checkCycles rejects any cycle whose closing back-edge, as found by a
// depth-first walk, is not a goal-gate back-edge (spec §4.2: "cyclic edges
// that are not explicitly marked as goal-gate back-edges"): an edge from a
// goal_gate node to the graph's retry_target. The other edges of the cycle
// are not checked.
func checkCycles(g *Graph) []string {
	var problems []string
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.Nodes))
	var stack []string

	var visit func(id string)
	visit = func(id string) {
		color[id] = gray
		stack = append(stack, id)
		for _, e := range g.OutgoingEdges(id) {
			switch color[e.To] {
			case white:
				visit(e.To)
			case gray:
				if !isGoalGateBackEdge(g, e) {
					problems = append(problems, fmt.Sprintf(
						"cycle through edge %s->%s is not a goal-gate back-edge", e.From, e.To))
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
	}
	for id := range g.Nodes {
		if color[id] == white {
			visit(id)
		}
	}
	return problems
}

func isGoalGateBackEdge(g *Graph, e Edge) bool {
	n, ok := g.Nodes[e.From]
	if !ok {
		return false
	}
	return n.AttrBool("goal_gate", false) && e.To == g.RetryTarget
}

var contextKeyConditionRE = regexp.MustCompile(`^context\.([A-Za-z0-9_.]+)(=|!=|~)`)

// unknownContextKeyWarnings flags edge conditions that reference a context
// key that no node declares in its writes_context_keys attribute and that is
// not one of the engine's well-known keys. This is advisory only: at run
// time a missing key makes "=" and "~" conditions fail and "!=" conditions
// hold (spec §4.2: "warning only").
func unknownContextKeyWarnings(g *Graph) []string {
	known := map[string]bool{"outcome": true, "last_stage": true, "goal": true}
	for _, n := range g.Nodes {
		if wk, ok := n.Attr("writes_context_keys"); ok {
			if s, ok := wk.AsString(); ok {
				for _, k := range strings.Split(s, ",") {
					if k = strings.TrimSpace(k); k != "" {
						known[k] = true
					}
				}
			}
		}
	}
	var warnings []string
	for _, e := range g.Edges {
		m := contextKeyConditionRE.FindStringSubmatch(e.Condition)
		if m == nil {
			continue
		}
		if !known[m[1]] {
			warnings = append(warnings, fmt.Sprintf(
				"edge %s->%s condition references unknown context key %q", e.From, e.To, m[1]))
		}
	}
	return warnings
}
