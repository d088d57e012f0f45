package handlers

import (
	"context"
	"fmt"

	"github.com/pipeforge/pipeforge/runtime/llm/model"
	"github.com/pipeforge/pipeforge/runtime/pipeline/agentloop"
	"github.com/pipeforge/pipeforge/runtime/pipeline/graph"
	"github.com/pipeforge/pipeforge/runtime/pipeline/pctx"
)

// Codergen implements the box-shape node kind (spec §4.3 "Codergen"):
// expand the prompt against context, persist it, drive an Agent Loop
// session, persist the raw response, and wrap the result as an Outcome. A
// node with goal_gate=true additionally converts a FAIL into a RETRY
// targeted at the graph's retry_target (spec §4.3 "Goal gate").
func Codergen(ctx context.Context, node graph.Node, c *pctx.Context, svc EngineServices) pctx.Outcome {
	outcome := runCodergen(ctx, node, c, svc)
	if outcome.Status == pctx.StatusFail && node.AttrBool("goal_gate", graph.DefaultGoalGate) {
		return pctx.Outcome{
			Status:        pctx.StatusRetry,
			FailureReason: outcome.FailureReason,
			RetryTarget:   node.AttrString("retry_target", ""),
		}
	}
	return outcome
}

func runCodergen(ctx context.Context, node graph.Node, c *pctx.Context, svc EngineServices) pctx.Outcome {
	prompt := pctx.Expand(node.AttrString("prompt", ""), c)
	if err := svc.LogStore().WriteNodeArtifact(ctx, node.ID, "prompt.md", []byte(prompt)); err != nil {
		return pctx.Fail(fmt.Sprintf("write prompt.md: %s", err))
	}

	goal := c.GetString(pctx.KeyGoal, "")
	ov := agentloop.Overrides{
		Provider:        node.AttrString("llm_provider", ""),
		Model:           node.AttrString("llm_model", ""),
		ReasoningEffort: node.AttrString("reasoning_effort", graph.DefaultReasoningEffort),
	}

	maxRounds := node.AttrInt("max_tool_rounds", defaultMaxToolRounds)
	result, err := svc.Session().RunWithOverrides(ctx, goal, prompt, ov, maxRounds, svc.Done())
	if err != nil {
		if pe, ok := model.AsProviderError(err); ok && pe.Retryable() {
			return pctx.Outcome{Status: pctx.StatusRetry, FailureReason: err.Error()}
		}
		return pctx.Fail(err.Error())
	}

	if err := svc.LogStore().WriteNodeArtifact(ctx, node.ID, "response.md", []byte(result.Text)); err != nil {
		return pctx.Fail(fmt.Sprintf("write response.md: %s", err))
	}

	return pctx.Outcome{Status: pctx.StatusSuccess, Notes: result.Text}
}

// defaultMaxToolRounds bounds a codergen node's tool-call loop when the
// node declares no max_tool_rounds attribute of its own.
const defaultMaxToolRounds = 25
