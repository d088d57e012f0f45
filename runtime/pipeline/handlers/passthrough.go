package handlers

import (
	"context"

	"github.com/pipeforge/pipeforge/runtime/pipeline/graph"
	"github.com/pipeforge/pipeforge/runtime/pipeline/pctx"
)

// Passthrough implements the START (Mdiamond) and EXIT (Msquare) node
// kinds: always SUCCESS, no side effects (spec §4.3 "Passthrough").
func Passthrough(context.Context, graph.Node, *pctx.Context, EngineServices) pctx.Outcome {
	return pctx.Success()
}

// Conditional implements the diamond-shape node kind: a pure passthrough.
// The branching happens entirely in the edge selector, using the edge
// conditions and/or the preferred_label the engine's top-level run loop
// carries forward from the outcome of the node dispatched just before it
// (a parallel branch walk does not carry it forward). Carrying it across a
// passthrough dispatch is the engine's job, not this handler's, since the
// handler has no memory of what ran before it.
func Conditional(context.Context, graph.Node, *pctx.Context, EngineServices) pctx.Outcome {
	return pctx.Success()
}
