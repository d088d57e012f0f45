package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/pipeforge/pipeforge/runtime/pipeline/agentloop"
	"github.com/pipeforge/pipeforge/runtime/pipeline/config"
	"github.com/pipeforge/pipeforge/runtime/pipeline/engine"
	"github.com/pipeforge/pipeforge/runtime/pipeline/graph"
	"github.com/pipeforge/pipeforge/runtime/pipeline/interview"
)

// newRunCmd creates the "run" subcommand, grounded on
// petal-labs-petalflow/cli's NewRunCmd/runRun: load config, compile the
// graph, wire a session and log store from config, and drive one Engine
// run to completion.
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <graph-file>",
		Short: "Run a pipeline to completion",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}
	cmd.Flags().String("model", "", "Override the default provider's model")
	cmd.Flags().String("effort", "high", "Reasoning effort passed to codergen nodes")
	cmd.Flags().String("workdir", ".", "Working directory the Agent Loop's ExecutionEnvironment is rooted at")
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	e, err := buildEngine(cmd, args[0], nil)
	if err != nil {
		return err
	}
	return execute(cmd, e, e.Run)
}

// buildEngine loads config, compiles the graph at filePath, and wires an
// Engine against it. loadSub is forwarded to engine.New for sub-pipeline
// resolution (nil: this CLI does not resolve sub-pipeline references
// across files).
func buildEngine(cmd *cobra.Command, filePath string, loadSub engine.SubGraphLoader) (*engine.Engine, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, exitError(exitConfig, "%v", err)
	}

	raw, err := loadRawGraph(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, exitError(exitFileNotFound, "file not found: %s", filePath)
		}
		return nil, exitError(exitInputParse, "%v", err)
	}
	g, err := graph.Compile(raw)
	if err != nil {
		return nil, exitError(exitValidation, "compile failed: %v", err)
	}

	client, err := cfg.BuildClient(cmd.Context())
	if err != nil {
		return nil, exitError(exitConfig, "%v", err)
	}
	store, err := cfg.OpenLogStore()
	if err != nil {
		return nil, exitError(exitConfig, "%v", err)
	}

	model, _ := cmd.Flags().GetString("model")
	if model == "" {
		model = cfg.Providers[cfg.DefaultProvider].DefaultModel
	}
	effort, _ := cmd.Flags().GetString("effort")
	workdir, _ := cmd.Flags().GetString("workdir")

	profile := agentloop.DefaultProfile{
		ProviderName: cfg.DefaultProvider,
		ModelName:    model,
		Effort:       effort,
	}
	env := agentloop.NewDefaultEnvironment(workdir)
	session := agentloop.NewSession(client, profile, env)

	interviewer := interview.NewStdioInterviewer(cmd.InOrStdin(), cmd.OutOrStdout())

	e := engine.New(g, session, interviewer, store, loadSub)
	e.Subscribe(func(ev engine.Event) { printEvent(cmd.ErrOrStderr(), ev) })
	return e, nil
}

// execute runs driver (Engine.Run or Engine.Resume) under a context
// cancelled on SIGINT (os.Interrupt) and translates the RunResult/error into a
// process exit code.
func execute(cmd *cobra.Command, e *engine.Engine, driver func(context.Context) (*engine.RunResult, error)) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	result, err := driver(ctx)
	if result != nil {
		printSummary(cmd.OutOrStdout(), result)
	}
	if err != nil {
		return exitError(exitRuntime, "%v", err)
	}
	return nil
}

func printEvent(w io.Writer, ev engine.Event) {
	switch ev.Kind {
	case engine.EventStageStarted:
		fmt.Fprintf(w, "-> %s (attempt %d)\n", ev.NodeID, ev.Attempt)
	case engine.EventStageRetrying:
		fmt.Fprintf(w, "   %s: retrying (%s)\n", ev.NodeID, ev.Outcome.FailureReason)
	case engine.EventStageFailed:
		fmt.Fprintf(w, "   %s: failed: %v\n", ev.NodeID, ev.Err)
	case engine.EventEdgeSelected:
		fmt.Fprintf(w, "   %s -> %s\n", ev.NodeID, ev.TargetNodeID)
	case engine.EventCheckpointSaved:
		fmt.Fprintf(w, "   %s: checkpoint saved\n", ev.NodeID)
	}
}

func printSummary(w io.Writer, result *engine.RunResult) {
	fmt.Fprintf(w, "state: %s\n", result.State)
	if result.FailureReason != "" {
		fmt.Fprintf(w, "reason: %s\n", result.FailureReason)
	}
	fmt.Fprintf(w, "completed: %v\n", result.CompletedNodes)
}
