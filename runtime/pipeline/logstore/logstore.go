// Package logstore implements the per-node log store every handler writes
// prompt/response artifacts to, and the Checkpoint persistence backend
// (spec §4.6, C12): "After every STAGE_COMPLETED the engine writes the
// current Checkpoint atomically... to {logsRoot}/checkpoint.json". Two
// implementations are provided: fslog (default, atomic
// write-temp-then-rename) and redislog (SET-based atomicity for engines
// sharing a checkpoint namespace across processes).
package logstore

import "context"

// LogStore is append-only per node directory: it tolerates concurrent node
// directories but never concurrent writers to the same file (spec §5
// "Shared-resource policy").
type LogStore interface {
	// WriteNodeArtifact persists content under the given node's log
	// directory at the given relative name (e.g. "prompt.md",
	// "response.md").
	WriteNodeArtifact(ctx context.Context, nodeID, name string, content []byte) error

	// ReadNodeArtifact reads back a previously written artifact.
	ReadNodeArtifact(ctx context.Context, nodeID, name string) ([]byte, error)

	// SaveCheckpoint atomically persists data as the current checkpoint.
	SaveCheckpoint(ctx context.Context, data []byte) error

	// LoadCheckpoint returns the persisted checkpoint, or ok=false if none
	// exists yet.
	LoadCheckpoint(ctx context.Context) (data []byte, ok bool, err error)
}
