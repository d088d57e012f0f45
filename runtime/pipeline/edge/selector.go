// Package edge implements the Edge Selector (spec §4.4, C9): choosing the
// next node(s) to run from a completed node's Outcome and the post-outcome
// Context. The condition grammar is a small closed evaluator grounded on
// the teacher's basic-policy predicate style (simple field comparisons)
// rather than a general expression language.
package edge

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/pipeforge/pipeforge/runtime/pipeline/graph"
	"github.com/pipeforge/pipeforge/runtime/pipeline/pctx"
)

// ErrNoMatch is returned when no outgoing edge of a node matches, a fatal
// condition for the engine (spec §4.4: "no match => fatal FAIL").
var ErrNoMatch = fmt.Errorf("edge: no outgoing edge matched")

// Select implements the three-step selection procedure spec §4.4 defines
// for a single-successor dispatch (every handler kind except parallel
// fan-out). It returns the chosen edge's target node id.
func Select(edges []graph.Edge, outcome pctx.Outcome, ctx *pctx.Context) (string, error) {
	candidates := filterByCondition(edges, ctx)
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: all %d outgoing edge(s) failed their condition", ErrNoMatch, len(edges))
	}

	if outcome.PreferredLabel != "" {
		if byLabel := filterByPreferredLabel(candidates, outcome.PreferredLabel); len(byLabel) > 0 {
			candidates = byLabel
		}
	}

	best := rankBest(candidates)
	return best.To, nil
}

// SelectFanOut implements the parallel fan-out variant of edge selection
// (spec §4.3 "Parallel fan-out"): every outgoing edge whose condition
// matches is a sibling branch, except the single highest-weight edge
// (or the edge explicitly flagged via the "continuation" label), which is
// the post-fan-in continuation edge. It returns (branches, continuation).
func SelectFanOut(edges []graph.Edge, ctx *pctx.Context) (branches []graph.Edge, continuation graph.Edge, err error) {
	candidates := filterByCondition(edges, ctx)
	if len(candidates) == 0 {
		return nil, graph.Edge{}, fmt.Errorf("%w: all %d outgoing edge(s) failed their condition", ErrNoMatch, len(edges))
	}

	contIdx := -1
	for i, e := range candidates {
		if e.Label == "continuation" {
			contIdx = i
			break
		}
	}
	if contIdx == -1 {
		contIdx = indexOfHighestWeight(candidates)
	}

	continuation = candidates[contIdx]
	for i, e := range candidates {
		if i != contIdx {
			branches = append(branches, e)
		}
	}
	return branches, continuation, nil
}

func indexOfHighestWeight(edges []graph.Edge) int {
	best := 0
	for i := 1; i < len(edges); i++ {
		if edges[i].Weight > edges[best].Weight {
			best = i
		}
	}
	return best
}

func filterByCondition(edges []graph.Edge, ctx *pctx.Context) []graph.Edge {
	var out []graph.Edge
	for _, e := range edges {
		if evaluateCondition(e.Condition, ctx) {
			out = append(out, e)
		}
	}
	return out
}

// filterByPreferredLabel matches spec §4.4 step 2: an edge label equals
// preferred exactly, or the edge label has the "[K] rest" form and either
// K or the full label equals preferred.
func filterByPreferredLabel(edges []graph.Edge, preferred string) []graph.Edge {
	var out []graph.Edge
	for _, e := range edges {
		if e.Label == preferred {
			out = append(out, e)
			continue
		}
		if key, ok := bracketKey(e.Label); ok && key == preferred {
			out = append(out, e)
		}
	}
	return out
}

var bracketLabelRE = regexp.MustCompile(`^\[([^\]]+)\]\s*`)

func bracketKey(label string) (string, bool) {
	m := bracketLabelRE.FindStringSubmatch(label)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// rankBest applies step 3: highest priority, then highest weight, then
// source order.
func rankBest(edges []graph.Edge) graph.Edge {
	sorted := make([]graph.Edge, len(edges))
	copy(sorted, edges)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		return a.SourceIndex < b.SourceIndex
	})
	return sorted[0]
}

// evaluateCondition implements the closed condition grammar (spec §4.4
// step 1): "outcome=<value>", "context.<key>=<literal>",
// "context.<key>!=<literal>", "context.<key>~<regex>", or the empty string
// (always true). A context key absent from ctx makes "=" and "~"
// conditions false and "!=" conditions true, the run-time half of the
// "unknown context key" case the compiler only warns about.
func evaluateCondition(cond string, ctx *pctx.Context) bool {
	cond = strings.TrimSpace(cond)
	if cond == "" {
		return true
	}
	if rest, ok := strings.CutPrefix(cond, "outcome="); ok {
		v, _ := ctx.Get(pctx.KeyOutcome)
		return v.Render() == rest
	}
	if !strings.HasPrefix(cond, "context.") {
		return false
	}
	rest := cond[len("context."):]
	for _, op := range []string{"!=", "~", "="} {
		idx := strings.Index(rest, op)
		if idx < 0 {
			continue
		}
		key, rhs := rest[:idx], rest[idx+len(op):]
		v, ok := ctx.Get(key)
		switch op {
		case "!=":
			return !ok || v.Render() != rhs
		case "=":
			return ok && v.Render() == rhs
		case "~":
			if !ok {
				return false
			}
			re, err := regexp.Compile(rhs)
			if err != nil {
				return false
			}
			return re.MatchString(v.Render())
		}
	}
	return false
}
