package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aristath/tasksched/internal/jobfile"
)

func planCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "plan <job.yaml>",
		Short: "Validate a job file and print its execution order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			job, err := jobfile.Load(args[0])
			if err != nil {
				return err
			}
			printPlan(cmd.OutOrStdout(), job, &jobfile.Executor{Kinds: cfg.Kinds})
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Project config file (default .tasksched/config.json)")
	return cmd
}

// printPlan writes one line per task in topological order, with spawn
// children indented under their parent.
func printPlan(w io.Writer, job *jobfile.Job, f jobfile.Factory) {
	name := job.Name
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(w, "job %s: %d tasks\n", name, job.Count())

	for i, id := range job.Order() {
		def, _ := job.Task(id)
		printDef(w, def, f, fmt.Sprintf("%2d.", i+1), 0)
	}
}

func printDef(w io.Writer, def jobfile.TaskDef, f jobfile.Factory, label string, depth int) {
	indent := strings.Repeat("    ", depth)
	line := fmt.Sprintf("%s%s %s  priority=%d", indent, label, def.ID, f.Priority(def))
	if def.Kind != "" {
		line += " kind=" + def.Kind
	}
	if len(def.After) > 0 {
		line += " after=" + strings.Join(def.After, ",")
	}
	if def.Command != "" {
		line += fmt.Sprintf(" command=%q", def.Command)
	}
	fmt.Fprintln(w, line)

	for _, child := range def.Spawn {
		printDef(w, child, f, "+", depth+1)
	}
}
