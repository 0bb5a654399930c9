// Command tasksched runs dependency-ordered task graphs described in YAML job
// files on a pool of workers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	// Create signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tasksched",
		Short: "Dependency-aware task scheduler",
		Long: `tasksched runs the tasks of a job file on a pool of workers.

A task starts only after every task it lists under "after" has finished.
Among ready tasks, higher priority runs first.

Examples:
  tasksched plan render.yaml             # Show execution order
  tasksched run render.yaml -w 8         # Run with 8 workers
  tasksched run render.yaml --tui        # Run with live progress view
  tasksched profile spans.db             # Summarize the newest profiled run
  tasksched config init                  # Write default project config`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		runCmd(),
		planCmd(),
		configCmd(),
		profileCmd(),
	)

	return rootCmd
}
