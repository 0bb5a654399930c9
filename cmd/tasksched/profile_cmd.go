package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/aristath/tasksched/internal/profile"
)

func profileCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "profile <db> [run-id]",
		Short: "Show recorded span summaries",
		Long: `Show the span summary of a run recorded with --profile-db.
Without a run ID the newest run is shown.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err != nil {
				return fmt.Errorf("profile database: %w", err)
			}
			store, err := profile.Open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Runs(cmd.Context())
			if err != nil {
				return err
			}
			if list {
				printRuns(cmd.OutOrStdout(), runs)
				return nil
			}

			var run profile.Run
			switch {
			case len(args) == 2:
				if run, err = store.GetRun(cmd.Context(), args[1]); err != nil {
					return err
				}
			case len(runs) == 0:
				return fmt.Errorf("%w: database has no runs", profile.ErrRunNotFound)
			default:
				run = runs[0]
			}

			rows, err := store.Summary(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s (%s) started %s\n", run.ID, run.Name, run.StartedAt.Format(time.RFC3339))
			if len(rows) == 0 {
				fmt.Fprintln(out, "no spans recorded")
				return nil
			}
			fmt.Fprintln(out, summaryTable(rows))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&list, "list", "l", false, "List runs instead of showing a summary")
	return cmd
}

func printRuns(w io.Writer, runs []profile.Run) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "NAME", "STARTED", "DURATION")
	for _, run := range runs {
		elapsed := "running"
		if !run.FinishedAt.IsZero() {
			elapsed = run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		t.Row(run.ID, run.Name, run.StartedAt.Format(time.RFC3339), elapsed)
	}
	fmt.Fprintln(w, t.Render())
}
