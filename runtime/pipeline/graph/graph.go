// Package graph implements the Graph Model (spec §4.1, C5) and Graph
// Validation (spec §4.2, C6): compiling a parser-produced RawGraph into an
// immutable, attribute-resolved Graph, and checking it for structural
// well-formedness before the engine accepts it.
package graph

import "github.com/pipeforge/pipeforge/runtime/pipeline/pctx"

// Kind is the handler kind a node dispatches to, derived from its shape.
type Kind string

const (
	KindStart        Kind = "start"
	KindExit         Kind = "exit"
	KindCodergen     Kind = "codergen"
	KindConditional  Kind = "conditional"
	KindParallelFork Kind = "parallel_fork"
	KindFanIn        Kind = "fan_in"
	KindWaitHuman    Kind = "wait_human"
	KindSubPipeline  Kind = "sub_pipeline"
)

// shapeToKind is the shape -> handler kind mapping from spec §6.
var shapeToKind = map[string]Kind{
	"Mdiamond":      KindStart,
	"Msquare":       KindExit,
	"box":           KindCodergen,
	"diamond":       KindConditional,
	"component":     KindParallelFork,
	"tripleoctagon": KindFanIn,
	"hexagon":       KindWaitHuman,
	"folder":        KindSubPipeline,
}

// KindForShape resolves a node's handler Kind from its declared shape. The
// second return is false for an unrecognized shape.
func KindForShape(shape string) (Kind, bool) {
	k, ok := shapeToKind[shape]
	return k, ok
}

// Default node attribute values (spec §3 "Node").
const (
	DefaultMaxRetries      = 2
	DefaultAllowPartial    = false
	DefaultGoalGate        = false
	DefaultReasoningEffort = "high"
)

// Node is an immutable record describing one pipeline stage. Once returned
// by Compile, a Node's fields are never mutated; run-time $name expansion
// of an attribute produces a new string rather than rewriting the Node.
type Node struct {
	ID         string
	Shape      string
	Kind       Kind
	Attributes map[string]pctx.Value
	Classes    []string

	// SubGraphRef names the sub-pipeline this node invokes, non-empty only
	// for KindSubPipeline nodes.
	SubGraphRef string
}

// Attr returns the node's resolved attribute; ok is false if it is unset.
func (n Node) Attr(name string) (pctx.Value, bool) {
	v, ok := n.Attributes[name]
	return v, ok
}

func (n Node) AttrString(name, def string) string {
	if v, ok := n.Attributes[name]; ok {
		if s, ok := v.AsString(); ok {
			return s
		}
	}
	return def
}

func (n Node) AttrInt(name string, def int) int {
	if v, ok := n.Attributes[name]; ok {
		if f, ok := v.AsNumber(); ok {
			return int(f)
		}
	}
	return def
}

func (n Node) AttrBool(name string, def bool) bool {
	if v, ok := n.Attributes[name]; ok {
		if b, ok := v.AsBool(); ok {
			return b
		}
	}
	return def
}

// HasClass reports whether cls is one of the node's class tokens.
func (n Node) HasClass(cls string) bool {
	for _, c := range n.Classes {
		if c == cls {
			return true
		}
	}
	return false
}

// Edge is a directed, ordered pair of node ids plus its routing attributes.
type Edge struct {
	From, To string

	Label     string
	Condition string
	Weight    int
	Priority  int

	// SourceIndex preserves declaration order for tie-break (spec §4.4
	// step 3, "ties broken by source order").
	SourceIndex int
}

// Graph is the compiled, immutable pipeline description the engine drives.
type Graph struct {
	Name string
	Goal string

	Nodes map[string]Node
	Edges []Edge

	StartID string
	ExitIDs []string

	DefaultMaxRetry int
	RetryTarget     string

	Stylesheet ModelStylesheet

	// Warnings holds non-fatal Validate findings (an edge condition
	// referencing an unknown context key). Populated by Compile.
	Warnings []string

	// outAdj maps a node id to the indices into Edges of its outgoing
	// edges, in source order.
	outAdj map[string][]int
}

// OutgoingEdges returns nodeID's outgoing edges in source-declaration
// order.
func (g *Graph) OutgoingEdges(nodeID string) []Edge {
	idxs := g.outAdj[nodeID]
	out := make([]Edge, len(idxs))
	for i, idx := range idxs {
		out[i] = g.Edges[idx]
	}
	return out
}

// IsExit reports whether nodeID is one of the graph's EXIT nodes.
func (g *Graph) IsExit(nodeID string) bool {
	for _, id := range g.ExitIDs {
		if id == nodeID {
			return true
		}
	}
	return false
}

// Fingerprint returns the graph-identity tuple a Checkpoint records to
// detect a mismatched resume target (spec §3 "Checkpoint": "graph
// fingerprint (name+goal+node-count)").
func (g *Graph) Fingerprint() (name, goal string, nodeCount int) {
	return g.Name, g.Goal, len(g.Nodes)
}

func buildAdjacency(edges []Edge) map[string][]int {
	adj := make(map[string][]int)
	for i, e := range edges {
		adj[e.From] = append(adj[e.From], i)
	}
	return adj
}
