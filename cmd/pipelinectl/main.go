// Command pipelinectl is the CLI front-end for the Pipeline Engine (spec
// §6: "External interfaces"), grounded on
// petal-labs-petalflow/cmd/petalflow/main.go's cobra root command plus
// per-subcommand New*Cmd() factories.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(exitRuntime)
	}
}

var rootCmd = &cobra.Command{
	Use:          "pipelinectl",
	Short:        "Pipeline Engine CLI",
	Long:         "pipelinectl — compile, validate, run, and resume agent-orchestration pipelines.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "pipelinectl.yaml", "Path to the pipelinectl YAML config file")

	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("pipelinectl version %s\n", version))

	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newResumeCmd())
}
