package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sublimetools/sublime/pkg/graph"
	"github.com/sublimetools/sublime/pkg/plan"
)

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Version planning",
	}
	cmd.AddCommand(newPlanPreviewCmd())
	return cmd
}

func newPlanPreviewCmd() *cobra.Command {
	var (
		strategy          string
		noHarmonizeCycles bool
		force             bool
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Compute and print the version plan for pending changesets",
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
			sets, err := a.changesetStore().ListActive()
			if err != nil {
				return err
			}
			if len(sets) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no pending changesets")
				return nil
			}

			if strategy == "" {
				strategy = a.Config.Version.Strategy
			}
			planner := plan.NewPlanner(ws, graph.Build(ws))
			p, err := planner.Plan(sets, plan.Options{
				Strategy:          plan.Strategy(strategy),
				NoHarmonizeCycles: noHarmonizeCycles,
				Force:             force,
			})
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), plan.Preview(p))
			return nil
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "", "independent or unified (default: configured strategy)")
	cmd.Flags().BoolVar(&noHarmonizeCycles, "no-harmonize-cycles", false, "do not raise cycle members to the group maximum")
	cmd.Flags().BoolVar(&force, "force", false, "plan despite version conflicts")
	return cmd
}
