// Package fslog is the default LogStore backend: per-node artifact files
// under {logsRoot}/{nodeId}/{name}, and a checkpoint file at
// {logsRoot}/checkpoint.json written atomically via write-temp-then-rename
// (spec §4.6, C12).
package fslog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

const checkpointFile = "checkpoint.json"

// Store is a filesystem-backed logstore.LogStore rooted at a logs
// directory.
type Store struct {
	root string
}

// New returns a Store rooted at root, creating the directory if absent.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("fslog: create root %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

func (s *Store) WriteNodeArtifact(_ context.Context, nodeID, name string, content []byte) error {
	dir := filepath.Join(s.root, nodeID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fslog: create node dir %s: %w", dir, err)
	}
	return atomicWrite(filepath.Join(dir, name), content)
}

func (s *Store) ReadNodeArtifact(_ context.Context, nodeID, name string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(s.root, nodeID, name))
	if err != nil {
		return nil, fmt.Errorf("fslog: read %s/%s: %w", nodeID, name, err)
	}
	return b, nil
}

func (s *Store) SaveCheckpoint(_ context.Context, data []byte) error {
	return atomicWrite(filepath.Join(s.root, checkpointFile), data)
}

func (s *Store) LoadCheckpoint(_ context.Context) ([]byte, bool, error) {
	b, err := os.ReadFile(filepath.Join(s.root, checkpointFile))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("fslog: load checkpoint: %w", err)
	}
	return b, true, nil
}

// atomicWrite writes content to a temp file in path's directory, then
// renames it over path, so a reader never observes a partially written
// file (spec §4.6: "write-to-temp + rename").
func atomicWrite(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("fslog: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("fslog: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("fslog: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("fslog: rename into place: %w", err)
	}
	return nil
}
