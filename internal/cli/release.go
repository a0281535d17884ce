package cli

import (
	"fmt"
	"os/user"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sublimetools/sublime/pkg/errors"
	"github.com/sublimetools/sublime/pkg/gitx"
	"github.com/sublimetools/sublime/pkg/graph"
	"github.com/sublimetools/sublime/pkg/plan"
	"github.com/sublimetools/sublime/pkg/release"
	"github.com/sublimetools/sublime/pkg/task"
)

func newReleaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Run the release workflow",
	}
	cmd.AddCommand(newReleaseRunCmd())
	return cmd
}

func newReleaseRunCmd() *cobra.Command {
	var (
		dryRun   bool
		force    bool
		envs     []string
		strategy string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Detect changes, apply changesets, run tasks, deploy, write changelogs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			ws, err := a.workspace()
			if err != nil {
				return err
			}
			git := gitx.New(a.Root)
			if !git.IsRepo(cmd.Context()) {
				return errors.New(errors.ErrCodeNotAProject, "%s is not a git repository", a.Root)
			}

			if len(envs) == 0 {
				envs = a.Config.Changeset.DefaultEnvironments
			}
			if strategy == "" {
				strategy = a.Config.Version.Strategy
			}

			opts := release.Options{
				DryRun:             dryRun,
				Force:              force,
				Environments:       envs,
				EnvironmentCatalog: a.Config.Changeset.AvailableEnvironments,
				DeploymentTasks:    a.Config.Tasks.DeploymentTasks,
				AppliedBy:          currentUser(),
				Strategy:           plan.Strategy(strategy),
				Workers:            a.Config.Tasks.MaxConcurrent,
				Timeout:            a.taskOptions().Timeout,
				Logger:             a.Logger,
			}
			w := release.New(ws, graph.Build(ws), git, a.changesetStore(), opts)

			res, err := w.Run(cmd.Context())
			printReleaseResult(cmd, res)
			return err
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without writing manifests, deploying, or changelogs")
	cmd.Flags().BoolVar(&force, "force", false, "continue past task failures and version conflicts")
	cmd.Flags().StringSliceVar(&envs, "env", nil, "deployment environment, in order (repeatable)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "independent or unified (default: configured strategy)")
	return cmd
}

func printReleaseResult(cmd *cobra.Command, res *release.Result) {
	if res == nil {
		return
	}
	out := cmd.OutOrStdout()

	if res.DryRun {
		fmt.Fprintln(out, "dry run")
	}
	for _, step := range res.Steps {
		state := "done"
		if step.Skipped {
			state = "skipped"
		}
		fmt.Fprintf(out, "%-22s %s\n", step.Name, state)
		for _, note := range step.Notes {
			fmt.Fprintf(out, "  %s\n", note)
		}
	}
	if res.Plan != nil && !res.Plan.Empty() {
		fmt.Fprintf(out, "versions: ")
		parts := make([]string, 0, len(res.Plan.Changes))
		for _, c := range res.Plan.Changes {
			if c.To == nil {
				continue
			}
			parts = append(parts, c.Name+"@"+c.To.String())
		}
		fmt.Fprintln(out, strings.Join(parts, " "))
	}
	if len(res.Archived) > 0 {
		fmt.Fprintf(out, "archived changesets: %s\n", strings.Join(res.Archived, ", "))
	}
	if len(res.Deployed) > 0 {
		fmt.Fprintf(out, "deployed: %s\n", strings.Join(res.Deployed, ", "))
	}
	if failed := failedResults(res.TaskResults); len(failed) > 0 {
		fmt.Fprintln(out, "failed tasks:")
		for _, r := range failed {
			fmt.Fprintf(out, "  %s %s (exit %d)\n", r.Package, r.Task, r.ExitCode)
		}
	}
	for _, warning := range res.Warnings {
		fmt.Fprintf(out, "warning: %s\n", warning)
	}
}

func failedResults(results []task.Result) []task.Result {
	var failed []task.Result
	for _, r := range results {
		if r.Status == task.StatusFailed || r.Status == task.StatusTimeout {
			failed = append(failed, r)
		}
	}
	return failed
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}
