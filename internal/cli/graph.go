package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sublimetools/sublime/pkg/graph"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Analyze the package dependency graph",
	}
	cmd.AddCommand(newGraphShowCmd())
	cmd.AddCommand(newGraphCyclesCmd())
	cmd.AddCommand(newGraphConflictsCmd())
	cmd.AddCommand(newGraphExportCmd())
	return cmd
}

func buildGraph(cmd *cobra.Command) (*graph.Graph, error) {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return nil, err
	}
	ws, err := a.workspace()
	if err != nil {
		return nil, err
	}
	return graph.Build(ws), nil
}

func newGraphShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print nodes and edges in topological order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := buildGraph(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, name := range g.TopoOrder() {
				deps := g.DependenciesOf(name)
				if len(deps) == 0 {
					fmt.Fprintln(out, name)
					continue
				}
				fmt.Fprintf(out, "%s -> %v\n", name, deps)
			}
			fmt.Fprintf(out, "\n%d packages, %d edges\n", g.NodeCount(), g.EdgeCount())
			return nil
		},
	}
}

func newGraphCyclesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cycles",
		Short: "List dependency cycle groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := buildGraph(cmd)
			if err != nil {
				return err
			}

			groups := g.CycleGroups()
			if len(groups) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no cycles")
				return nil
			}
			for _, cg := range groups {
				fmt.Fprintln(cmd.OutOrStdout(), cg.String())
			}
			return nil
		},
	}
}

func newGraphConflictsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "List external dependencies with unsatisfiable requirement sets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := buildGraph(cmd)
			if err != nil {
				return err
			}

			conflicts := g.VersionConflicts()
			if len(conflicts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no version conflicts")
				return nil
			}
			for _, c := range conflicts {
				fmt.Fprintf(cmd.OutOrStdout(), "%s:\n", c.Name)
				for _, r := range c.Requirements {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s requires %s\n", r.Requester, r.Requirement)
				}
			}
			return nil
		},
	}
}

func newGraphExportCmd() *cobra.Command {
	var (
		output   string
		versions bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the graph as DOT",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := buildGraph(cmd)
			if err != nil {
				return err
			}

			dot := g.ToDOT(graph.DOTOptions{Versions: versions})
			if output == "" || output == "-" {
				fmt.Fprint(cmd.OutOrStdout(), dot)
				return nil
			}
			return os.WriteFile(output, []byte(dot), 0644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file, - for stdout")
	cmd.Flags().BoolVar(&versions, "versions", false, "label nodes with versions")
	return cmd
}
