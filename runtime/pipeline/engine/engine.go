// Package engine implements the Pipeline Engine (spec §4.5, C10) and Event
// Bus (§4.5/§3, C11): a single-goroutine FIFO state machine that dispatches
// nodes to their handlers, runs the edge selector between them, checkpoints
// after every completed stage, and fans out PipelineEvents to observers.
//
// Per §9's "single-threaded cooperative" concurrency model, this is a plain
// Go FIFO queue (container/list) driven by one goroutine rather than the
// teacher's Temporal-oriented engine.Engine/WorkflowContext abstraction —
// that abstraction and its adapter are dropped (see DESIGN.md); the
// in-memory engine's future/fan-in pattern survives, generalized, inside
// the parallel fan-out handler instead.
package engine

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pipeforge/pipeforge/runtime/pipeline/agentloop"
	"github.com/pipeforge/pipeforge/runtime/pipeline/checkpoint"
	"github.com/pipeforge/pipeforge/runtime/pipeline/edge"
	"github.com/pipeforge/pipeforge/runtime/pipeline/graph"
	"github.com/pipeforge/pipeforge/runtime/pipeline/handlers"
	"github.com/pipeforge/pipeforge/runtime/pipeline/interview"
	"github.com/pipeforge/pipeforge/runtime/pipeline/logstore"
	"github.com/pipeforge/pipeforge/runtime/pipeline/pctx"
)

// State is the engine's run state (spec §4.5: "Idle → Running →
// (Completed | Failed | Aborted)").
type State string

const (
	StateIdle      State = "IDLE"
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
	StateAborted   State = "ABORTED"
)

// SubGraphLoader resolves a sub-pipeline node's SubGraphRef to the compiled
// Graph it names, the caller-supplied bridge between this graph and
// whatever graph-source/registry the host application uses.
type SubGraphLoader func(ref string) (*graph.Graph, error)

type workItem struct {
	NodeID  string
	Attempt int
}

// RunResult is what a completed, failed, or aborted run leaves behind.
type RunResult struct {
	State          State
	Context        *pctx.Context
	FailureReason  string
	CompletedNodes []string
	OutcomeByNode  map[string]pctx.Outcome
}

// Engine drives one Graph to completion. It implements
// handlers.EngineServices so node handlers can call back into it for
// sub-runs (parallel branches, sub-pipelines) without importing this
// package.
type Engine struct {
	graph       *graph.Graph
	session     *agentloop.Session
	interviewer interview.Interviewer
	store       logstore.LogStore
	loadSub     SubGraphLoader

	bus bus

	state         State
	context       *pctx.Context
	completedNodes []string
	outcomeByNode map[string]pctx.Outcome
	failureReason string
	checkpoint    *checkpoint.Checkpoint
	startedAt     time.Time

	abortOnce sync.Once
	abort     chan struct{}
}

var _ handlers.EngineServices = (*Engine)(nil)

// New constructs an Engine ready to run g. loadSub may be nil if g contains
// no sub-pipeline nodes.
func New(g *graph.Graph, session *agentloop.Session, interviewer interview.Interviewer, store logstore.LogStore, loadSub SubGraphLoader) *Engine {
	return &Engine{
		graph:         g,
		session:       session,
		interviewer:   interviewer,
		store:         store,
		loadSub:       loadSub,
		state:         StateIdle,
		outcomeByNode: map[string]pctx.Outcome{},
		abort:         make(chan struct{}),
	}
}

// Subscribe registers o to receive every Event this engine emits, in
// emission order.
func (e *Engine) Subscribe(o Observer) { e.bus.Subscribe(o) }

// Abort trips the engine's cancellation signal; the running (or next
// dispatched) node observes it via Done().
func (e *Engine) Abort() {
	e.abortOnce.Do(func() { close(e.abort) })
}

// State reports the engine's current run state.
func (e *Engine) State() State { return e.state }

// --- handlers.EngineServices ---

func (e *Engine) Session() *agentloop.Session        { return e.session }
func (e *Engine) Interviewer() interview.Interviewer { return e.interviewer }
func (e *Engine) LogStore() logstore.LogStore        { return e.store }
func (e *Engine) OutgoingEdges(nodeID string) []graph.Edge {
	return e.graph.OutgoingEdges(nodeID)
}
func (e *Engine) Done() <-chan struct{} { return e.abort }

// RunFrom drives this engine's own graph forward from startNodeID against
// branchCtx, stopping at the first fan-in node it reaches (returned
// without running it) or at an EXIT/FAIL terminus. Used by the parallel
// fan-out handler to run one sibling branch.
func (e *Engine) RunFrom(ctx context.Context, startNodeID string, branchCtx *pctx.Context) (handlers.BranchResult, error) {
	return e.runChain(ctx, startNodeID, branchCtx)
}

// RunSubPipeline resolves subGraphRef via the configured SubGraphLoader and
// drives it to completion as an independent nested Engine run, seeded with
// parentCtx itself (the child run writes into it; the SubPipeline handler
// passes a clone).
func (e *Engine) RunSubPipeline(ctx context.Context, subGraphRef string, parentCtx *pctx.Context) (handlers.BranchResult, error) {
	if e.loadSub == nil {
		return handlers.BranchResult{}, fmt.Errorf("engine: sub-pipeline %q requested but no sub-graph loader is configured", subGraphRef)
	}
	sub, err := e.loadSub(subGraphRef)
	if err != nil {
		return handlers.BranchResult{}, fmt.Errorf("engine: load sub-graph %q: %w", subGraphRef, err)
	}
	child := New(sub, e.session, e.interviewer, e.store, e.loadSub)
	result, err := child.runQueue(ctx, parentCtx, []workItem{{NodeID: sub.StartID, Attempt: 0}})
	if err != nil {
		return handlers.BranchResult{Outcome: pctx.Fail(err.Error()), Context: result.Context}, nil
	}
	status := pctx.StatusSuccess
	if result.State != StateCompleted {
		status = pctx.StatusFail
	}
	return handlers.BranchResult{
		Outcome: pctx.Outcome{Status: status, FailureReason: result.FailureReason},
		Context: result.Context,
	}, nil
}

// --- run loop ---

// Run starts a fresh execution of the graph from its START node with an
// empty Context.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	return e.runQueue(ctx, pctx.New(), []workItem{{NodeID: e.graph.StartID, Attempt: 0}})
}

// Resume reloads the last checkpoint from the engine's LogStore, verifies
// it matches this graph, replays its context snapshot, and re-derives the
// single deterministic successor of the last completed node via the edge
// selector (rather than blindly enqueuing every graph successor) so resume
// dispatch stays identical to normal forward dispatch (spec §4.6).
func (e *Engine) Resume(ctx context.Context) (*RunResult, error) {
	cp, ok, err := checkpoint.Load(ctx, e.store)
	if err != nil {
		return nil, fmt.Errorf("engine: load checkpoint: %w", err)
	}
	if !ok {
		return nil, errors.New("engine: no checkpoint to resume from")
	}
	if err := checkpoint.VerifyFingerprint(cp, e.graph); err != nil {
		return nil, err
	}

	e.checkpoint = cp
	e.completedNodes = append([]string{}, cp.CompletedNodes...)
	e.outcomeByNode = cp.OutcomeByNode
	if e.outcomeByNode == nil {
		e.outcomeByNode = map[string]pctx.Outcome{}
	}
	e.startedAt = cp.StartedAt

	restoredCtx := pctx.FromSnapshot(cp.ContextSnapshot)
	lastOutcome, ok := e.outcomeByNode[cp.LastCompletedNodeID]
	if !ok {
		return nil, fmt.Errorf("engine: checkpoint has no recorded outcome for last completed node %q", cp.LastCompletedNodeID)
	}

	edges := e.graph.OutgoingEdges(cp.LastCompletedNodeID)
	target, err := edge.Select(edges, lastOutcome, restoredCtx)
	if err != nil {
		return nil, fmt.Errorf("engine: resume: %w", err)
	}

	return e.runQueue(ctx, restoredCtx, []workItem{{NodeID: target, Attempt: 0}})
}

func (e *Engine) runQueue(ctx context.Context, initial *pctx.Context, seed []workItem) (*RunResult, error) {
	e.context = initial
	e.context.Set(pctx.KeyGoal, pctx.String(e.graph.Goal))
	e.state = StateRunning
	if e.startedAt.IsZero() {
		e.startedAt = time.Now()
	}
	e.bus.emit(Event{Kind: EventPipelineStarted})

	queue := list.New()
	for _, it := range seed {
		queue.PushBack(it)
	}
	var prevLabel string

	for queue.Len() > 0 {
		select {
		case <-ctx.Done():
			return e.abortRun(ctx.Err())
		case <-e.abort:
			return e.abortRun(errors.New("engine: aborted"))
		default:
		}

		front := queue.Front()
		item := front.Value.(workItem)
		queue.Remove(front)

		node, ok := e.graph.Nodes[item.NodeID]
		if !ok {
			return e.failRun(item.NodeID, fmt.Sprintf("unknown node %q", item.NodeID))
		}

		outcome, attempt := e.runNodeWithRetries(ctx, node, e.context, item.Attempt)

		if outcome.Status == pctx.StatusRetry {
			if outcome.RetryTarget == "" {
				// runNodeWithRetries converts an exhausted untargeted RETRY
				// to PARTIAL_SUCCESS or FAIL itself, so this branch is
				// defensive only.
				outcome.Status = pctx.StatusFail
			} else {
				e.bus.emit(Event{Kind: EventStageRetrying, NodeID: item.NodeID, Attempt: attempt, Outcome: outcome})
				queue.PushFront(workItem{NodeID: outcome.RetryTarget, Attempt: 0})
				continue
			}
		}

		switch outcome.Status {
		case pctx.StatusSuccess, pctx.StatusPartialSuccess:
			if node.Kind == graph.KindConditional && outcome.PreferredLabel == "" {
				outcome.PreferredLabel = prevLabel
			}
			prevLabel = outcome.PreferredLabel
			e.context.Merge(outcome.ContextUpdates)
			e.context.Set(pctx.KeyOutcome, pctx.String(strings.ToLower(string(outcome.Status))))
			e.context.Set(pctx.KeyLastStage, pctx.String(item.NodeID))
			e.completedNodes = append(e.completedNodes, item.NodeID)
			e.outcomeByNode[item.NodeID] = outcome
			e.bus.emit(Event{Kind: EventStageCompleted, NodeID: item.NodeID, Attempt: attempt, Outcome: outcome})

			if err := e.saveCheckpoint(ctx, item.NodeID); err != nil {
				return e.failRun(item.NodeID, err.Error())
			}
			e.bus.emit(Event{Kind: EventCheckpointSaved, NodeID: item.NodeID})

			if e.graph.IsExit(item.NodeID) && queue.Len() == 0 {
				e.state = StateCompleted
				e.bus.emit(Event{Kind: EventPipelineCompleted})
				return e.result(), nil
			}

			edges := e.graph.OutgoingEdges(item.NodeID)
			target, err := edge.Select(edges, outcome, e.context)
			if err != nil {
				return e.failRun(item.NodeID, fmt.Sprintf("no edge matched from %s", item.NodeID))
			}
			e.bus.emit(Event{Kind: EventEdgeSelected, NodeID: item.NodeID, TargetNodeID: target})
			queue.PushBack(workItem{NodeID: target, Attempt: 0})

		case pctx.StatusFail:
			e.bus.emit(Event{Kind: EventStageFailed, NodeID: item.NodeID, Attempt: attempt, Outcome: outcome, Err: errors.New(outcome.FailureReason)})
			return e.failRun(item.NodeID, outcome.FailureReason)

		default:
			reason := fmt.Sprintf("node returned unhandled status %q", outcome.Status)
			e.bus.emit(Event{Kind: EventStageFailed, NodeID: item.NodeID, Attempt: attempt, Outcome: outcome, Err: errors.New(reason)})
			return e.failRun(item.NodeID, reason)
		}
	}

	return e.failRun("", "queue emptied before reaching an EXIT node")
}

// runChain walks the same graph forward one single-successor node at a
// time, used for a parallel branch: it stops (without running) at the
// first fan-in node reached, or returns once a FAIL/EXIT terminates the
// branch.
func (e *Engine) runChain(ctx context.Context, startNodeID string, c *pctx.Context) (handlers.BranchResult, error) {
	currentID := startNodeID
	var last pctx.Outcome

	for {
		node, ok := e.graph.Nodes[currentID]
		if !ok {
			return handlers.BranchResult{}, fmt.Errorf("engine: unknown node %q", currentID)
		}
		if node.Kind == graph.KindFanIn {
			return handlers.BranchResult{Outcome: last, Context: c}, nil
		}

		outcome, _ := e.runNodeWithRetries(ctx, node, c, 0)
		if outcome.Status == pctx.StatusRetry && outcome.RetryTarget != "" {
			currentID = outcome.RetryTarget
			continue
		}
		if outcome.Status == pctx.StatusSuccess || outcome.Status == pctx.StatusPartialSuccess {
			c.Merge(outcome.ContextUpdates)
		}
		last = outcome

		if outcome.Status == pctx.StatusFail || outcome.Status == pctx.StatusRetry {
			return handlers.BranchResult{Outcome: outcome, Context: c}, nil
		}
		if e.graph.IsExit(currentID) {
			return handlers.BranchResult{Outcome: outcome, Context: c}, nil
		}

		edges := e.graph.OutgoingEdges(currentID)
		next, err := edge.Select(edges, outcome, c)
		if err != nil {
			return handlers.BranchResult{Outcome: pctx.Fail(err.Error()), Context: c}, nil
		}
		currentID = next
	}
}

// runNodeWithRetries dispatches node to its handler, looping on ordinary
// RETRY outcomes (no RetryTarget) up to its resolved max_retries, then
// converting an exhausted retry to PARTIAL_SUCCESS or FAIL per
// allow_partial (spec §4.5 step 3). A goal-gate RETRY (RetryTarget set) is
// returned as-is for the caller to route.
func (e *Engine) runNodeWithRetries(ctx context.Context, node graph.Node, c *pctx.Context, attempt int) (pctx.Outcome, int) {
	maxRetries := e.maxRetriesFor(node)
	for {
		e.bus.emit(Event{Kind: EventStageStarted, NodeID: node.ID, Attempt: attempt})

		h, ok := handlers.For(node.Kind)
		var outcome pctx.Outcome
		if !ok {
			outcome = pctx.Fail(fmt.Sprintf("no handler registered for kind %q", node.Kind))
		} else {
			outcome = h(ctx, node, c, e)
		}

		if outcome.Status != pctx.StatusRetry || outcome.RetryTarget != "" {
			return outcome, attempt
		}

		if attempt < maxRetries {
			e.bus.emit(Event{Kind: EventStageRetrying, NodeID: node.ID, Attempt: attempt, Outcome: outcome})
			attempt++
			continue
		}

		if node.AttrBool("allow_partial", graph.DefaultAllowPartial) {
			outcome.Status = pctx.StatusPartialSuccess
		} else {
			outcome.Status = pctx.StatusFail
		}
		return outcome, attempt
	}
}

func (e *Engine) maxRetriesFor(node graph.Node) int {
	def := e.graph.DefaultMaxRetry
	if def <= 0 {
		def = graph.DefaultMaxRetries
	}
	return node.AttrInt("max_retries", def)
}

func (e *Engine) saveCheckpoint(ctx context.Context, lastNodeID string) error {
	if e.checkpoint == nil {
		e.checkpoint = checkpoint.New(e.graph, e.startedAt)
	}
	cp := e.checkpoint
	cp.LastCompletedNodeID = lastNodeID
	cp.CompletedNodes = append([]string{}, e.completedNodes...)
	cp.OutcomeByNode = e.outcomeByNode
	cp.ContextSnapshot = e.context.Snapshot()
	cp.UpdatedAt = time.Now()
	return checkpoint.Save(ctx, e.store, cp)
}

func (e *Engine) failRun(nodeID, reason string) (*RunResult, error) {
	e.state = StateFailed
	e.failureReason = reason
	return e.result(), fmt.Errorf("engine: %s", reason)
}

func (e *Engine) abortRun(cause error) (*RunResult, error) {
	e.state = StateAborted
	e.failureReason = cause.Error()
	e.bus.emit(Event{Kind: EventPipelineAborted, Err: cause})
	return e.result(), cause
}

func (e *Engine) result() *RunResult {
	return &RunResult{
		State:          e.state,
		Context:        e.context,
		FailureReason:  e.failureReason,
		CompletedNodes: e.completedNodes,
		OutcomeByNode:  e.outcomeByNode,
	}
}
