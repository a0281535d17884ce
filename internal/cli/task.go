package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sublimetools/sublime/pkg/errors"
	"github.com/sublimetools/sublime/pkg/graph"
	"github.com/sublimetools/sublime/pkg/task"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Run package scripts in dependency order",
	}
	cmd.AddCommand(newTaskRunCmd())
	return cmd
}

func newTaskRunCmd() *cobra.Command {
	var (
		packages []string
		workers  int
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run a named script across workspace packages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			ws, err := a.workspace()
			if err != nil {
				return err
			}

			if len(packages) == 0 {
				packages = ws.Names()
			}
			opts := a.taskOptions()
			if workers > 0 {
				opts.Workers = workers
			}
			if timeout > 0 {
				opts.Timeout = timeout
			}

			runner := task.NewRunner(ws, graph.Build(ws), opts)
			results, err := runner.Run(cmd.Context(), args[0], packages)
			if err != nil {
				return errors.Wrap(errors.ErrCodeCancelled, err, "task run interrupted")
			}

			out := cmd.OutOrStdout()
			for _, r := range results {
				fmt.Fprintf(out, "%-8s %s %s (%s)\n", r.Status, r.Package, r.Task, r.Duration.Round(time.Millisecond))
				if r.Status == task.StatusFailed && r.StderrTail != "" {
					fmt.Fprintf(out, "         %s\n", r.StderrTail)
				}
			}
			if task.Failed(results) {
				return errors.New(errors.ErrCodeTaskFailed, "task %s failed", args[0])
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&packages, "package", nil, "limit to a package (repeatable; default all)")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel workers (default: configured max_concurrent or CPU count)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-command timeout (default: configured command_timeout)")
	return cmd
}
