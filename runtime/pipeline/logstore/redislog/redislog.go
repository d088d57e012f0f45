// Package redislog is an alternate LogStore backend for callers running
// multiple engine instances against a shared checkpoint namespace: node
// artifacts and the checkpoint are stored as Redis keys under a namespace
// prefix rather than files, using a plain SET/GET for the same
// replace-in-one-round-trip atomicity contract fslog gets from rename.
package redislog

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Store is a Redis-backed logstore.LogStore. Callers own the *redis.Client
// connection and are responsible for closing it.
type Store struct {
	rdb       *redis.Client
	namespace string
}

// New returns a Store keyed under namespace (e.g. the pipeline run id),
// so multiple runs can share one Redis keyspace without colliding.
func New(rdb *redis.Client, namespace string) *Store {
	return &Store{rdb: rdb, namespace: namespace}
}

func (s *Store) artifactKey(nodeID, name string) string {
	return fmt.Sprintf("pipeforge:%s:node:%s:%s", s.namespace, nodeID, name)
}

func (s *Store) checkpointKey() string {
	return fmt.Sprintf("pipeforge:%s:checkpoint", s.namespace)
}

func (s *Store) WriteNodeArtifact(ctx context.Context, nodeID, name string, content []byte) error {
	if err := s.rdb.Set(ctx, s.artifactKey(nodeID, name), content, 0).Err(); err != nil {
		return fmt.Errorf("redislog: write artifact %s/%s: %w", nodeID, name, err)
	}
	return nil
}

func (s *Store) ReadNodeArtifact(ctx context.Context, nodeID, name string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, s.artifactKey(nodeID, name)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("redislog: read artifact %s/%s: %w", nodeID, name, err)
	}
	return b, nil
}

// SaveCheckpoint replaces the checkpoint value in a single SET round trip,
// the Redis-backed equivalent of fslog's write-temp-then-rename: a reader
// never observes a partially written checkpoint.
func (s *Store) SaveCheckpoint(ctx context.Context, data []byte) error {
	if err := s.rdb.Set(ctx, s.checkpointKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("redislog: save checkpoint: %w", err)
	}
	return nil
}

func (s *Store) LoadCheckpoint(ctx context.Context) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, s.checkpointKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redislog: load checkpoint: %w", err)
	}
	return b, true, nil
}
