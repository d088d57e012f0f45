package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipeforge/pipeforge/runtime/pipeline/logstore/fslog"
	"github.com/pipeforge/pipeforge/runtime/pipeline/logstore/redislog"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipelinectl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultsLogsRootAndBackend(t *testing.T) {
	path := writeConfig(t, `
default_provider: anthropic
providers:
  anthropic:
    api_key: test-key
    default_model: claude-sonnet-4-5
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.DefaultProvider)
	assert.Equal(t, "test-key", cfg.Providers["anthropic"].APIKey)
	assert.Equal(t, "./pipelinectl-logs", cfg.LogsRoot)
	assert.Equal(t, "fs", cfg.CheckpointBackend)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestOpenLogStore_FSBackend(t *testing.T) {
	cfg := &Config{LogsRoot: t.TempDir(), CheckpointBackend: "fs"}
	store, err := cfg.OpenLogStore()
	require.NoError(t, err)
	assert.IsType(t, &fslog.Store{}, store)
}

func TestOpenLogStore_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &Config{CheckpointBackend: "redis", RedisAddr: mr.Addr(), LogsRoot: "run-1"}
	store, err := cfg.OpenLogStore()
	require.NoError(t, err)
	assert.IsType(t, &redislog.Store{}, store)
}

func TestOpenLogStore_RedisBackendRequiresAddr(t *testing.T) {
	cfg := &Config{CheckpointBackend: "redis"}
	_, err := cfg.OpenLogStore()
	assert.Error(t, err)
}

func TestOpenLogStore_UnknownBackend(t *testing.T) {
	cfg := &Config{CheckpointBackend: "dynamo"}
	_, err := cfg.OpenLogStore()
	assert.Error(t, err)
}

func TestBuildClient_NoProvidersConfiguredErrors(t *testing.T) {
	cfg := &Config{}
	_, err := cfg.BuildClient(context.Background())
	assert.Error(t, err)
}
