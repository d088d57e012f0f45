package agentloop

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultEnvironment_ReadWriteEdit(t *testing.T) {
	dir := t.TempDir()
	env := NewDefaultEnvironment(dir)
	ctx := context.Background()

	require.NoError(t, env.WriteFile(ctx, "a.txt", "hello world"))
	got, err := env.ReadFile(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)

	require.NoError(t, env.EditFile(ctx, "a.txt", "world", "pipeforge"))
	got, err = env.ReadFile(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello pipeforge", got)
}

func TestDefaultEnvironment_EditFile_RequiresUniqueMatch(t *testing.T) {
	dir := t.TempDir()
	env := NewDefaultEnvironment(dir)
	ctx := context.Background()
	require.NoError(t, env.WriteFile(ctx, "a.txt", "aa"))
	err := env.EditFile(ctx, "a.txt", "a", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matches 2 times")
}

func TestDefaultEnvironment_Grep(t *testing.T) {
	dir := t.TempDir()
	env := NewDefaultEnvironment(dir)
	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\nfunc Foo() {}\n"), 0o644))

	out, err := env.Grep(ctx, "func Foo", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "a.go:2:")
}

func TestDefaultEnvironment_Glob(t *testing.T) {
	dir := t.TempDir()
	env := NewDefaultEnvironment(dir)
	ctx := context.Background()
	require.NoError(t, env.WriteFile(ctx, "a.txt", "x"))
	require.NoError(t, env.WriteFile(ctx, "b.txt", "y"))

	matches, err := env.Glob(ctx, "*.txt")
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestDefaultEnvironment_RunShell(t *testing.T) {
	dir := t.TempDir()
	env := NewDefaultEnvironment(dir)
	stdout, _, err := env.RunShell(context.Background(), "echo hi")
	require.NoError(t, err)
	assert.Equal(t, "hi\n", stdout)
}
