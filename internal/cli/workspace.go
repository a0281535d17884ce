package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sublimetools/sublime/pkg/errors"
	"github.com/sublimetools/sublime/pkg/graph"
)

func newWorkspaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Inspect the discovered workspace",
	}
	cmd.AddCommand(newWorkspaceListCmd())
	cmd.AddCommand(newWorkspaceInfoCmd())
	return cmd
}

func newWorkspaceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workspace packages",
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

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tVERSION\tPRIVATE\tDIR")
			for _, p := range ws.Packages {
				version := "-"
				if p.Version != nil {
					version = p.Version.String()
				}
				fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", p.Name, version, p.Private, p.Dir)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d packages (manager: %s)\n", len(ws.Packages), ws.Manager)
			return nil
		},
	}
}

func newWorkspaceInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <package>",
		Short: "Show one package with its dependencies and dependents",
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
			pkg, ok := ws.Get(args[0])
			if !ok {
				return errors.New(errors.ErrCodeNotFound, "package %s not in workspace", args[0])
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "name:    %s\n", pkg.Name)
			if pkg.Version != nil {
				fmt.Fprintf(out, "version: %s\n", pkg.Version)
			}
			fmt.Fprintf(out, "dir:     %s\n", pkg.Dir)
			fmt.Fprintf(out, "private: %v\n", pkg.Private)

			g := graph.Build(ws)
			if deps := g.DependenciesOf(pkg.Name); len(deps) > 0 {
				fmt.Fprintf(out, "depends on: %v\n", deps)
			}
			if dependents := g.DirectDependentsOf(pkg.Name); len(dependents) > 0 {
				fmt.Fprintf(out, "depended on by: %v\n", dependents)
			}
			if len(pkg.Scripts) > 0 {
				fmt.Fprintln(out, "scripts:")
				for _, name := range sortedKeys(pkg.Scripts) {
					fmt.Fprintf(out, "  %s: %s\n", name, pkg.Scripts[name])
				}
			}
			return nil
		},
	}
}
