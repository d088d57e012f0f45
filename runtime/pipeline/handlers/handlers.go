// Package handlers implements the Node Handlers (spec §4.3, C8): one
// handler per node kind, each with signature
// (node, context, engineServices) -> Outcome. Handlers never talk to the
// engine's FIFO queue or the edge selector directly; they only read/write
// the Context and the services the engine injects, so they stay testable in
// isolation and the engine stays the single place that knows about
// dispatch order.
package handlers

import (
	"context"

	"github.com/pipeforge/pipeforge/runtime/pipeline/agentloop"
	"github.com/pipeforge/pipeforge/runtime/pipeline/graph"
	"github.com/pipeforge/pipeforge/runtime/pipeline/interview"
	"github.com/pipeforge/pipeforge/runtime/pipeline/logstore"
	"github.com/pipeforge/pipeforge/runtime/pipeline/pctx"
)

// BranchResult is what running a node (or a chain of nodes) to completion
// produces: the terminal Outcome and the Context as left by that run.
type BranchResult struct {
	Outcome pctx.Outcome
	Context *pctx.Context
}

// EngineServices is the capability set a handler may use, injected by the
// engine (C10) that owns dispatch order and the FIFO queue. RunFrom and
// RunSubPipeline are the "sub-engine entry" points spec §4.3 describes:
// RunFrom drives the *same* graph forward from startNodeID using branchCtx
// (used by the parallel fan-out handler to run a sibling branch to its
// fan-in/continuation point); RunSubPipeline drives a different graph named
// by a sub-pipeline node's SubGraphRef to completion.
type EngineServices interface {
	Session() *agentloop.Session
	Interviewer() interview.Interviewer
	LogStore() logstore.LogStore
	RunFrom(ctx context.Context, startNodeID string, branchCtx *pctx.Context) (BranchResult, error)
	RunSubPipeline(ctx context.Context, subGraphRef string, parentCtx *pctx.Context) (BranchResult, error)
	OutgoingEdges(nodeID string) []graph.Edge
	Done() <-chan struct{}
}

// Handler is the signature every node kind implements.
type Handler func(ctx context.Context, node graph.Node, c *pctx.Context, svc EngineServices) pctx.Outcome

// Dispatch table, keyed by graph.Kind, populated by this package's init.
var registry = map[graph.Kind]Handler{}

func init() {
	registry[graph.KindStart] = Passthrough
	registry[graph.KindExit] = Passthrough
	registry[graph.KindConditional] = Conditional
	registry[graph.KindCodergen] = Codergen
	registry[graph.KindParallelFork] = ParallelFanOut
	registry[graph.KindFanIn] = FanIn
	registry[graph.KindWaitHuman] = WaitHuman
	registry[graph.KindSubPipeline] = SubPipeline
}

// For looks up the Handler registered for kind.
func For(kind graph.Kind) (Handler, bool) {
	h, ok := registry[kind]
	return h, ok
}
