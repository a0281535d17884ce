package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sublimetools/sublime/pkg/changeset"
	"github.com/sublimetools/sublime/pkg/errors"
	"github.com/sublimetools/sublime/pkg/gitx"
)

func newChangesetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "changeset",
		Short: "Manage per-branch release intents",
	}
	cmd.AddCommand(newChangesetCreateCmd())
	cmd.AddCommand(newChangesetListCmd())
	cmd.AddCommand(newChangesetStatusCmd())
	return cmd
}

func newChangesetCreateCmd() *cobra.Command {
	var (
		branch   string
		bump     string
		packages []string
		envs     []string
		commits  []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create or merge the changeset for a branch",
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

			if branch == "" {
				git := gitx.New(a.Root)
				branch, err = git.CurrentBranch(cmd.Context())
				if err != nil {
					return errors.Wrap(errors.ErrCodeChangesetInvalid, err, "no --branch given and no git branch found")
				}
			}
			if len(envs) == 0 {
				envs = a.Config.Changeset.DefaultEnvironments
			}

			candidate := &changeset.Changeset{
				Branch:       branch,
				Bump:         changeset.Bump(bump),
				Environments: envs,
				Packages:     packages,
				Commits:      commits,
			}
			if err := changeset.Validate(candidate, a.Config.Changeset.AvailableEnvironments, ws); err != nil {
				return err
			}

			cs, err := a.changesetStore().CreateOrUpdate(branch, changeset.Bump(bump), envs, packages, commits)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "changeset %s: bump=%s packages=%s\n",
				cs.Branch, cs.Bump, strings.Join(cs.Packages, ","))
			return nil
		},
	}
	cmd.Flags().StringVar(&branch, "branch", "", "branch name (default: current git branch)")
	cmd.Flags().StringVar(&bump, "bump", "patch", "bump severity: major, minor, patch, none")
	cmd.Flags().StringSliceVar(&packages, "package", nil, "affected package (repeatable)")
	cmd.Flags().StringSliceVar(&envs, "env", nil, "target environment (repeatable)")
	cmd.Flags().StringSliceVar(&commits, "commit", nil, "associated commit SHA (repeatable)")
	return cmd
}

func newChangesetListCmd() *cobra.Command {
	var history bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active (or archived) changesets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			store := a.changesetStore()
			out := cmd.OutOrStdout()

			if history {
				archived, err := store.ListArchived()
				if err != nil {
					return err
				}
				for _, cs := range archived {
					fmt.Fprintf(out, "%s  bump=%s  applied=%s  by=%s\n",
						cs.Branch, cs.Bump,
						cs.ReleaseInfo.AppliedAt.Format("2006-01-02 15:04"),
						cs.ReleaseInfo.AppliedBy)
				}
				return nil
			}

			active, err := store.ListActive()
			if err != nil {
				return err
			}
			if len(active) == 0 {
				fmt.Fprintln(out, "no active changesets")
				return nil
			}
			for _, cs := range active {
				fmt.Fprintf(out, "%s  bump=%s  packages=%s  envs=%s\n",
					cs.Branch, cs.Bump,
					strings.Join(cs.Packages, ","), strings.Join(cs.Environments, ","))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&history, "history", false, "list archived changesets instead")
	return cmd
}

func newChangesetStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Validate active changesets and suggest bumps from git history",
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
			active, err := a.changesetStore().ListActive()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			catalog := a.Config.Changeset.AvailableEnvironments
			for _, cs := range active {
				if err := changeset.Validate(cs, catalog, ws); err != nil {
					fmt.Fprintf(out, "%s: INVALID: %s\n", cs.Branch, errors.UserMessage(err))
					continue
				}
				fmt.Fprintf(out, "%s: ok (bump=%s)\n", cs.Branch, cs.Bump)
			}

			git := gitx.New(a.Root)
			if !git.IsRepo(cmd.Context()) {
				return nil
			}
			baseline, err := git.LastTag(cmd.Context())
			if err != nil {
				return err
			}
			if baseline == "" {
				if baseline, err = git.InitialCommit(cmd.Context()); err != nil {
					return err
				}
			}
			summary, err := gitx.NewTracker(git, ws).Changes(cmd.Context(), baseline, "")
			if err != nil {
				return err
			}
			for _, name := range summary.AffectedPackages {
				fmt.Fprintf(out, "suggested: %s %s\n", name, summary.SuggestedBumps[name])
			}
			return nil
		},
	}
}
