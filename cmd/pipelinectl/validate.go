package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pipeforge/pipeforge/runtime/pipeline/graph"
)

// newValidateCmd creates the "validate" subcommand, grounded on
// petal-labs-petalflow/cli's NewValidateCmd/runValidate pattern (read,
// compile, print diagnostics, exit non-zero on a validation failure).
func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <graph-file>",
		Short: "Compile and validate a graph source without running it",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	filePath := args[0]

	raw, err := loadRawGraph(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return exitError(exitFileNotFound, "file not found: %s", filePath)
		}
		return exitError(exitInputParse, "%v", err)
	}

	g, err := graph.Compile(raw)
	if err != nil {
		var verr *graph.ValidationError
		if errors.As(err, &verr) {
			for _, p := range verr.Problems {
				fmt.Fprintf(out, "ERROR: %s\n", p)
			}
			return exitError(exitValidation, "%d validation problem(s)", len(verr.Problems))
		}
		return exitError(exitValidation, "compile failed: %v", err)
	}

	for _, w := range g.Warnings {
		fmt.Fprintf(out, "WARNING: %s\n", w)
	}

	name, goal, nodeCount := g.Fingerprint()
	fmt.Fprintf(out, "Valid! %q (goal: %q), %d node(s)\n", name, goal, nodeCount)
	return nil
}
