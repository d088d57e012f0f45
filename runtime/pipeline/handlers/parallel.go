package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pipeforge/pipeforge/runtime/pipeline/edge"
	"github.com/pipeforge/pipeforge/runtime/pipeline/graph"
	"github.com/pipeforge/pipeforge/runtime/pipeline/pctx"
)

// ContextKeyFanInBestID and ContextKeyFanInResults are the well-known
// context keys the parallel fan-out handler writes and the fan-in handler
// reads (spec §4.3: "emits context keys parallel.fan_in.best_id and
// parallel.results").
const (
	ContextKeyFanInBestID  = "parallel.fan_in.best_id"
	ContextKeyFanInResults = "parallel.results"
)

// branchResultRecord is one sibling branch's serialized outcome, JSON
// encoded into ContextKeyFanInResults since pctx.Context only stores
// scalar Values (spec §3 "no nested maps").
type branchResultRecord struct {
	BranchID       string            `json:"branch_id"`
	Status         string            `json:"status"`
	Weight         int               `json:"weight"`
	ContextUpdates map[string]string `json:"context_updates,omitempty"`
}

// ParallelFanOut implements the component-shape node kind (spec §4.3
// "Parallel fan-out"): split into every outgoing edge except the
// continuation edge, run each sibling's downstream slice against its own
// context clone (sequentially, the simulation default required for
// reproducibility — spec §5), and record the best branch by status rank
// then weight for the fan-in handler.
func ParallelFanOut(ctx context.Context, node graph.Node, c *pctx.Context, svc EngineServices) pctx.Outcome {
	edges := svc.OutgoingEdges(node.ID)
	branches, continuation, err := edge.SelectFanOut(edges, c)
	if err != nil {
		return pctx.Fail(err.Error())
	}

	results := make([]branchRun, len(branches))
	if useConcurrentExecutor(node) {
		runBranchesConcurrently(ctx, branches, c, svc, results)
	} else {
		runBranchesSequentially(ctx, branches, c, svc, results)
	}

	bestIdx := indexOfBest(results, branches)
	records := make([]branchResultRecord, len(results))
	for i, r := range results {
		records[i] = toRecord(branches[i].To, branches[i].Weight, r)
	}
	encoded, encErr := json.Marshal(records)
	if encErr != nil {
		return pctx.Fail("encode parallel.results: " + encErr.Error())
	}

	updates := map[string]pctx.Value{
		ContextKeyFanInResults: pctx.String(string(encoded)),
	}
	if bestIdx >= 0 {
		updates[ContextKeyFanInBestID] = pctx.String(branches[bestIdx].To)
	}

	return pctx.Outcome{
		Status:         pctx.StatusSuccess,
		ContextUpdates: updates,
		PreferredLabel: continuation.Label,
	}
}

type branchRun struct {
	outcome pctx.Outcome
	ctx     *pctx.Context
	err     error
}

func runBranchesSequentially(ctx context.Context, branches []graph.Edge, parent *pctx.Context, svc EngineServices, out []branchRun) {
	for i, b := range branches {
		res, err := svc.RunFrom(ctx, b.To, parent.Clone())
		out[i] = branchRun{outcome: res.Outcome, ctx: res.Context, err: err}
		if err != nil {
			out[i].outcome = pctx.Fail(err.Error())
		}
	}
}

// runBranchesConcurrently runs every sibling branch in parallel but reduces
// results in source order, preserving the tie-break determinism ordering
// guarantees (spec §5: "results are reduced in source order"). Grounded on
// the teacher's future/fan-in pattern (engine/inmem's `future` type),
// generalized from Future.Get() to a plain sync.WaitGroup over an ordered
// slice.
func runBranchesConcurrently(ctx context.Context, branches []graph.Edge, parent *pctx.Context, svc EngineServices, out []branchRun) {
	var wg sync.WaitGroup
	wg.Add(len(branches))
	for i, b := range branches {
		i, b := i, b
		go func() {
			defer wg.Done()
			res, err := svc.RunFrom(ctx, b.To, parent.Clone())
			run := branchRun{outcome: res.Outcome, ctx: res.Context, err: err}
			if err != nil {
				run.outcome = pctx.Fail(err.Error())
			}
			out[i] = run
		}()
	}
	wg.Wait()
}

func useConcurrentExecutor(node graph.Node) bool {
	return node.AttrBool("concurrent", false)
}

func indexOfBest(results []branchRun, branches []graph.Edge) int {
	best := -1
	for i, r := range results {
		if best == -1 || pctx.Better(r.outcome, branches[i].Weight, results[best].outcome, branches[best].Weight) {
			best = i
		}
	}
	return best
}

func toRecord(branchID string, weight int, r branchRun) branchResultRecord {
	rec := branchResultRecord{BranchID: branchID, Status: string(r.outcome.Status), Weight: weight}
	if r.ctx != nil {
		updates := make(map[string]string, len(r.outcome.ContextUpdates))
		for k, v := range r.outcome.ContextUpdates {
			updates[k] = v.Render()
		}
		rec.ContextUpdates = updates
	}
	return rec
}

// FanIn implements the tripleoctagon-shape node kind (spec §4.3 "Fan-in"):
// read parallel.results, pick the best outcome by the same ranking the
// fan-out handler used, merge its context_updates, and return SUCCESS.
func FanIn(_ context.Context, _ graph.Node, c *pctx.Context, _ EngineServices) pctx.Outcome {
	raw, ok := c.Get(ContextKeyFanInResults)
	if !ok {
		return pctx.Fail("fan-in: no parallel.results in context")
	}
	encoded, _ := raw.AsString()
	var records []branchResultRecord
	if err := json.Unmarshal([]byte(encoded), &records); err != nil {
		return pctx.Fail("fan-in: decode parallel.results: " + err.Error())
	}
	if len(records) == 0 {
		return pctx.Fail("fan-in: parallel.results is empty")
	}

	bestIdx := 0
	for i := 1; i < len(records); i++ {
		if pctx.Better(statusOutcome(records[i]), records[i].Weight, statusOutcome(records[bestIdx]), records[bestIdx].Weight) {
			bestIdx = i
		}
	}

	updates := make(map[string]pctx.Value, len(records[bestIdx].ContextUpdates))
	for k, v := range records[bestIdx].ContextUpdates {
		updates[k] = pctx.String(v)
	}
	return pctx.Outcome{Status: pctx.StatusSuccess, ContextUpdates: updates}
}

func statusOutcome(r branchResultRecord) pctx.Outcome {
	return pctx.Outcome{Status: pctx.Status(r.Status)}
}
