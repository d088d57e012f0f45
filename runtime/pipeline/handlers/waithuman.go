package handlers

import (
	"context"
	"regexp"

	"github.com/pipeforge/pipeforge/runtime/pipeline/graph"
	"github.com/pipeforge/pipeforge/runtime/pipeline/interview"
	"github.com/pipeforge/pipeforge/runtime/pipeline/pctx"
)

var bracketOptionRE = regexp.MustCompile(`^\[([^\]]+)\]\s*(.*)$`)

// WaitHuman implements the hexagon-shape node kind (spec §4.3
// "Wait-human"): synthesize options from outgoing-edge labels of the form
// "[K] text", ask the Interviewer, and translate the answer into an
// Outcome the edge selector routes deterministically.
func WaitHuman(ctx context.Context, node graph.Node, c *pctx.Context, svc EngineServices) pctx.Outcome {
	edges := svc.OutgoingEdges(node.ID)
	options := make([]interview.Option, 0, len(edges))
	labelByKey := make(map[string]string, len(edges))
	for _, e := range edges {
		key, text := e.Label, e.Label
		if m := bracketOptionRE.FindStringSubmatch(e.Label); m != nil {
			key, text = m[1], m[2]
		}
		options = append(options, interview.Option{Key: key, Label: text})
		labelByKey[key] = e.Label
	}

	prompt := pctx.Expand(node.AttrString("prompt", node.ID), c)
	answer, err := svc.Interviewer().Ask(ctx, prompt, options)
	if err != nil {
		return pctx.Fail(err.Error())
	}
	if answer.Status != interview.AnswerSelected {
		return pctx.Fail("human skipped/invalid")
	}
	label, ok := labelByKey[answer.Key]
	if !ok {
		return pctx.Fail("human skipped/invalid")
	}
	return pctx.Outcome{Status: pctx.StatusSuccess, PreferredLabel: label}
}
