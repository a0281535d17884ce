package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sublimetools/sublime/pkg/resolve"
)

func newResolveCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "resolve <dependency> [requirement...]",
		Short: "Resolve a dependency to a concrete version",
		Long:  "Resolves the highest version satisfying the given requirements. Without explicit requirements, the workspace's declared requirements for the dependency are used.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			ws, err := a.workspace()
			if err != nil {
				return err
			}

			name := args[0]
			reqs := args[1:]
			if len(reqs) == 0 {
				for _, p := range ws.Packages {
					for _, dep := range p.Deps {
						if dep.Name == name {
							reqs = append(reqs, dep.Requirement.Raw)
						}
					}
				}
			}

			resolver := resolve.New(ws, nil)
			if !offline {
				reg, err := a.registryClient(cmd.Context())
				if err != nil {
					return err
				}
				resolver = resolve.New(ws, reg)
			}

			res, err := resolver.Resolve(cmd.Context(), name, reqs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", res.Name, res.Version, res.Source)
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "skip the registry, resolve from workspace data only")
	return cmd
}
