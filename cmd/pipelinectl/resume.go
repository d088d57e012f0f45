package main

import (
	"github.com/spf13/cobra"
)

// newResumeCmd creates the "resume" subcommand: it rebuilds the same
// Engine a "run" of this graph would, then calls Resume instead of Run so
// the engine reloads its checkpoint from the configured LogStore (spec
// §4.6, C12) instead of starting at the START node.
func newResumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume <graph-file>",
		Short: "Resume a pipeline from its last saved checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  runResume,
	}
	cmd.Flags().String("model", "", "Override the default provider's model")
	cmd.Flags().String("effort", "high", "Reasoning effort passed to codergen nodes")
	cmd.Flags().String("workdir", ".", "Working directory the Agent Loop's ExecutionEnvironment is rooted at")
	return cmd
}

func runResume(cmd *cobra.Command, args []string) error {
	e, err := buildEngine(cmd, args[0], nil)
	if err != nil {
		return err
	}
	return execute(cmd, e, e.Resume)
}
