// Package cli implements the sublime command-line interface.
//
// Commands are thin wrappers over the library packages: they load
// configuration and the workspace, call into pkg/, and print results.
// All commands support --verbose (-v) for debug-level logging; loggers
// travel through context.Context.
package cli

import (
	"context"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/sublimetools/sublime/pkg/buildinfo"
)

// Execute runs the sublime CLI and returns the first command error.
// Exit-code mapping is the caller's job (see cmd/sublime).
func Execute(ctx context.Context) error {
	var (
		verbose bool
		repo    string
	)

	root := &cobra.Command{
		Use:          "sublime",
		Short:        "Workspace intelligence for JS/TS monorepos",
		Long:         "sublime discovers workspace packages, analyzes their dependency graph, and drives changeset-based version planning, task running, and releases.",
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			ctx := withLogger(cmd.Context(), newLogger(os.Stderr, level))
			ctx = withRepoPath(ctx, repo)
			cmd.SetContext(ctx)
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVarP(&repo, "repo", "C", ".", "repository root")

	root.AddCommand(newWorkspaceCmd())
	root.AddCommand(newGraphCmd())
	root.AddCommand(newChangesetCmd())
	root.AddCommand(newPlanCmd())
	root.AddCommand(newReleaseCmd())
	root.AddCommand(newTaskCmd())
	root.AddCommand(newResolveCmd())
	root.AddCommand(newCacheCmd())
	root.AddCommand(newDaemonCmd())
	root.AddCommand(newConfigCmd())

	return root.ExecuteContext(ctx)
}
