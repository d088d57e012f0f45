// Package checkpoint implements the Checkpoint record (spec §4.6, C12):
// the engine's resumable snapshot, persisted through a logstore.LogStore
// after every completed stage and replayed on resume.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pipeforge/pipeforge/runtime/pipeline/graph"
	"github.com/pipeforge/pipeforge/runtime/pipeline/logstore"
	"github.com/pipeforge/pipeforge/runtime/pipeline/pctx"
)

// CurrentVersion is the checkpoint wire-format version this package writes.
// Load does not check the version of the checkpoint it reads.
const CurrentVersion = 1

// Checkpoint is the engine's resumable state, serialized as JSON (spec §3
// "Checkpoint": "Version tag, graph fingerprint, last-completed node id,
// completed-nodes ordered list, per-node outcome map, final context
// snapshot, wall-clock timestamps").
type Checkpoint struct {
	Version int `json:"version"`

	GraphName      string `json:"graph_name"`
	GraphGoal      string `json:"graph_goal"`
	GraphNodeCount int    `json:"graph_node_count"`

	LastCompletedNodeID string              `json:"last_completed_node_id"`
	CompletedNodes       []string            `json:"completed_nodes"`
	OutcomeByNode        map[string]pctx.Outcome `json:"outcome_by_node"`
	ContextSnapshot       map[string]pctx.Value `json:"context_snapshot"`

	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New builds a Checkpoint's graph-identity fields from g, leaving the
// progress fields zero-valued for a freshly started run.
func New(g *graph.Graph, startedAt time.Time) *Checkpoint {
	name, goal, nodeCount := g.Fingerprint()
	return &Checkpoint{
		Version:        CurrentVersion,
		GraphName:      name,
		GraphGoal:      goal,
		GraphNodeCount: nodeCount,
		OutcomeByNode:  map[string]pctx.Outcome{},
		ContextSnapshot: map[string]pctx.Value{},
		StartedAt:      startedAt,
		UpdatedAt:      startedAt,
	}
}

// Save atomically persists cp to store (spec §4.6: "writes the current
// Checkpoint atomically... to {logsRoot}/checkpoint.json").
func Save(ctx context.Context, store logstore.LogStore, cp *Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal: %w", err)
	}
	return store.SaveCheckpoint(ctx, data)
}

// Load reads back the checkpoint persisted in store, returning ok=false if
// none exists yet.
func Load(ctx context.Context, store logstore.LogStore) (*Checkpoint, bool, error) {
	data, ok, err := store.LoadCheckpoint(ctx)
	if err != nil || !ok {
		return nil, ok, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, false, fmt.Errorf("checkpoint: unmarshal: %w", err)
	}
	return &cp, true, nil
}

// VerifyFingerprint reports whether cp was produced against g (spec §4.6:
// "verifies the graph fingerprint matches the supplied graph").
func VerifyFingerprint(cp *Checkpoint, g *graph.Graph) error {
	name, goal, nodeCount := g.Fingerprint()
	if cp.GraphName != name || cp.GraphGoal != goal || cp.GraphNodeCount != nodeCount {
		return fmt.Errorf(
			"checkpoint: graph fingerprint mismatch: checkpoint was (%q, %q, %d nodes), graph is (%q, %q, %d nodes)",
			cp.GraphName, cp.GraphGoal, cp.GraphNodeCount, name, goal, nodeCount,
		)
	}
	return nil
}
