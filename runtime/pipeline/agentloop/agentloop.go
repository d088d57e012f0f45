// Package agentloop implements the Agent Loop contract (spec §4.11, C14):
// wrapping the Generate API (C4) behind an ExecutionEnvironment so a
// codergen node handler can drive a full coding session — read/write/edit
// files, run shell commands, search — without the generate package itself
// knowing anything about a filesystem. A ProviderProfile picks the model
// and tool registry and builds the system prompt; only a minimal default
// profile and an os/exec-backed ExecutionEnvironment live here, matching
// the teacher's cmd/demo role of providing a runnable default rather than
// a production terminal/shell front-end.
package agentloop

import (
	"context"

	"github.com/pipeforge/pipeforge/runtime/llm/generate"
)

// ExecutionEnvironment is the filesystem/shell/search surface a ProviderProfile's
// tools are bound to. The terminal/TUI front-end and a sandboxed shell tool
// implementation remain external collaborators; this module only declares
// the contract and a minimal direct implementation (DefaultEnvironment).
type ExecutionEnvironment interface {
	ReadFile(ctx context.Context, path string) (string, error)
	WriteFile(ctx context.Context, path, content string) error
	EditFile(ctx context.Context, path, oldText, newText string) error
	RunShell(ctx context.Context, command string) (stdout, stderr string, err error)
	Grep(ctx context.Context, pattern, path string) (string, error)
	Glob(ctx context.Context, pattern string) ([]string, error)
	WorkingDir() string
}

// ProviderProfile picks the model/provider a codergen node uses, the tool
// registry bound to an ExecutionEnvironment, and the system prompt prefix.
type ProviderProfile interface {
	Model() string
	Provider() string
	ReasoningEffort() string
	Tools(env ExecutionEnvironment) []generate.Tool
	SystemPrompt(goal string) string
}

// Session wraps the Generate API (C4) with a ProviderProfile and
// ExecutionEnvironment, the unit a codergen handler drives.
type Session struct {
	client  generate.Client
	profile ProviderProfile
	env     ExecutionEnvironment
}

// NewSession builds a Session. client is the same generate.Client interface
// C4's Run/RunStream take (a Complete/Stream pair), so a Session composes
// with any Unified LLM Client implementation without an import dependency
// on runtime/llm/client.
func NewSession(client generate.Client, profile ProviderProfile, env ExecutionEnvironment) *Session {
	return &Session{client: client, profile: profile, env: env}
}

// Run drives one bounded tool-call loop for prompt, wiring the profile's
// tools against the session's ExecutionEnvironment. It returns the final
// generate.Result, from which a codergen handler derives its Outcome.
func (s *Session) Run(ctx context.Context, goal, prompt string, maxToolRounds int, abort <-chan struct{}) (*generate.Result, error) {
	return s.RunWithOverrides(ctx, goal, prompt, Overrides{}, maxToolRounds, abort)
}

// Overrides lets a caller (a codergen node with its own llm_model/
// llm_provider/reasoning_effort attributes) replace the profile's defaults
// for a single Run call. A zero-value field means "use the profile's
// default".
type Overrides struct {
	Provider        string
	Model           string
	ReasoningEffort string
}

// RunWithOverrides is Run, with per-call Provider/Model/ReasoningEffort
// overrides layered on top of the profile's defaults (spec §6: node-level
// `llm_model`, `llm_provider`, `reasoning_effort` attributes).
func (s *Session) RunWithOverrides(ctx context.Context, goal, prompt string, ov Overrides, maxToolRounds int, abort <-chan struct{}) (*generate.Result, error) {
	provider := s.profile.Provider()
	if ov.Provider != "" {
		provider = ov.Provider
	}
	model := s.profile.Model()
	if ov.Model != "" {
		model = ov.Model
	}
	effort := s.profile.ReasoningEffort()
	if ov.ReasoningEffort != "" {
		effort = ov.ReasoningEffort
	}
	opts := generate.Options{
		Provider:        provider,
		Model:           model,
		System:          s.profile.SystemPrompt(goal),
		Prompt:          prompt,
		Tools:           s.profile.Tools(s.env),
		ReasoningEffort: effort,
		MaxToolRounds:   maxToolRounds,
		Abort:           abort,
	}
	return generate.Run(ctx, s.client, opts)
}

