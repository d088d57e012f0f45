package agentloop

import (
	"fmt"

	"github.com/pipeforge/pipeforge/runtime/llm/generate"
)

// DefaultProfile is a minimal ProviderProfile: a fixed provider/model pair,
// the standard read/write/edit/shell/grep/glob tool set, and a system
// prompt that states the pipeline's goal. The CLI demo and tests needing a
// runnable profile without a real provider-specific system-prompt template
// use this; a production deployment supplies its own ProviderProfile.
type DefaultProfile struct {
	ProviderName string
	ModelName    string
	Effort       string
}

func (p DefaultProfile) Provider() string        { return p.ProviderName }
func (p DefaultProfile) Model() string            { return p.ModelName }
func (p DefaultProfile) ReasoningEffort() string  { return p.Effort }

func (p DefaultProfile) Tools(env ExecutionEnvironment) []generate.Tool {
	return DefaultTools(env)
}

func (p DefaultProfile) SystemPrompt(goal string) string {
	return fmt.Sprintf(
		"You are an autonomous coding agent working toward this goal:\n\n%s\n\n"+
			"Use the read_file, write_file, edit_file, run_shell, grep, and glob tools "+
			"to inspect and modify the project. Make the smallest change that satisfies "+
			"the current stage's prompt.",
		goal,
	)
}
