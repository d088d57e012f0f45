package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pipeforge/pipeforge/runtime/llm/generate"
	"github.com/pipeforge/pipeforge/runtime/llm/model"
)

// DefaultTools returns the read/write/edit/shell/grep/glob tool set every
// ProviderProfile registers by default (spec §4.11), each bound to env.
func DefaultTools(env ExecutionEnvironment) []generate.Tool {
	return []generate.Tool{
		readFileTool(env),
		writeFileTool(env),
		editFileTool(env),
		runShellTool(env),
		grepTool(env),
		globTool(env),
	}
}

func readFileTool(env ExecutionEnvironment) generate.Tool {
	return generate.Tool{
		Definition: toolDef("read_file", "Read a file's contents.", map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string"}},
			"required":   []string{"path"},
		}),
		Execute: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args struct{ Path string }
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, err
			}
			return env.ReadFile(ctx, args.Path)
		},
	}
}

func writeFileTool(env ExecutionEnvironment) generate.Tool {
	return generate.Tool{
		Definition: toolDef("write_file", "Write content to a file, creating or overwriting it.", map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    map[string]any{"type": "string"},
				"content": map[string]any{"type": "string"},
			},
			"required": []string{"path", "content"},
		}),
		Execute: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args struct{ Path, Content string }
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, err
			}
			if err := env.WriteFile(ctx, args.Path, args.Content); err != nil {
				return nil, err
			}
			return fmt.Sprintf("wrote %d bytes to %s", len(args.Content), args.Path), nil
		},
	}
}

func editFileTool(env ExecutionEnvironment) generate.Tool {
	return generate.Tool{
		Definition: toolDef("edit_file", "Replace one exact occurrence of old_text with new_text in a file.", map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":     map[string]any{"type": "string"},
				"old_text": map[string]any{"type": "string"},
				"new_text": map[string]any{"type": "string"},
			},
			"required": []string{"path", "old_text", "new_text"},
		}),
		Execute: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args struct {
				Path    string `json:"path"`
				OldText string `json:"old_text"`
				NewText string `json:"new_text"`
			}
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, err
			}
			if err := env.EditFile(ctx, args.Path, args.OldText, args.NewText); err != nil {
				return nil, err
			}
			return fmt.Sprintf("edited %s", args.Path), nil
		},
	}
}

func runShellTool(env ExecutionEnvironment) generate.Tool {
	return generate.Tool{
		Definition: toolDef("run_shell", "Run a shell command in the working directory.", map[string]any{
			"type":       "object",
			"properties": map[string]any{"command": map[string]any{"type": "string"}},
			"required":   []string{"command"},
		}),
		Execute: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args struct{ Command string }
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, err
			}
			stdout, stderr, err := env.RunShell(ctx, args.Command)
			if err != nil {
				return nil, fmt.Errorf("run_shell: %w\nstderr:\n%s", err, stderr)
			}
			var b strings.Builder
			b.WriteString(stdout)
			if stderr != "" {
				b.WriteString("\n[stderr]\n")
				b.WriteString(stderr)
			}
			return b.String(), nil
		},
	}
}

func grepTool(env ExecutionEnvironment) generate.Tool {
	return generate.Tool{
		Definition: toolDef("grep", "Search for a regex pattern under a path.", map[string]any{
			"type": "object",
			"properties": map[string]any{
				"pattern": map[string]any{"type": "string"},
				"path":    map[string]any{"type": "string"},
			},
			"required": []string{"pattern"},
		}),
		Execute: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args struct{ Pattern, Path string }
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, err
			}
			if args.Path == "" {
				args.Path = env.WorkingDir()
			}
			return env.Grep(ctx, args.Pattern, args.Path)
		},
	}
}

func globTool(env ExecutionEnvironment) generate.Tool {
	return generate.Tool{
		Definition: toolDef("glob", "List files matching a glob pattern.", map[string]any{
			"type":       "object",
			"properties": map[string]any{"pattern": map[string]any{"type": "string"}},
			"required":   []string{"pattern"},
		}),
		Execute: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args struct{ Pattern string }
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, err
			}
			return env.Glob(ctx, args.Pattern)
		},
	}
}

func toolDef(name, description string, schema map[string]any) model.ToolDefinition {
	return model.ToolDefinition{Name: name, Description: description, InputSchema: schema}
}
