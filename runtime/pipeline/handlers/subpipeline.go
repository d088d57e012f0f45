package handlers

import (
	"context"
	"fmt"

	"github.com/pipeforge/pipeforge/runtime/pipeline/graph"
	"github.com/pipeforge/pipeforge/runtime/pipeline/pctx"
)

// SubPipeline implements the folder-shape node kind (spec §4.3
// "Sub-pipeline"): invoke a nested engine run on the referenced sub-graph,
// adopt its completion status as this node's outcome, and merge its final
// context back under a namespaced prefix.
func SubPipeline(ctx context.Context, node graph.Node, c *pctx.Context, svc EngineServices) pctx.Outcome {
	if node.SubGraphRef == "" {
		return pctx.Fail(fmt.Sprintf("sub-pipeline node %q has no sub-graph reference", node.ID))
	}

	result, err := svc.RunSubPipeline(ctx, node.SubGraphRef, c.Clone())
	if err != nil {
		return pctx.Fail(err.Error())
	}

	prefix := node.ID + "."
	updates := make(map[string]pctx.Value)
	if result.Context != nil {
		for _, k := range result.Context.Keys() {
			v, _ := result.Context.Get(k)
			updates[prefix+k] = v
		}
	}
	for k, v := range result.Outcome.ContextUpdates {
		updates[prefix+k] = v
	}

	return pctx.Outcome{
		Status:         result.Outcome.Status,
		FailureReason:  result.Outcome.FailureReason,
		Notes:          result.Outcome.Notes,
		ContextUpdates: updates,
	}
}
