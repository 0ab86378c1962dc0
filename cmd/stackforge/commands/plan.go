package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/stackforge/cmd/stackforge/handlers"
)

// Plan returns the plan command.
func Plan() *cobra.Command {
	var opts handlers.Options

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the changes apply would make",
		Long: `Plan compares the desired stack with the recorded state and prints
the resulting changes without touching any resource.

Example:
  stackforge plan -c stackforge.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Plan(cmd.Context(), opts)
		},
	}

	bindCommonFlags(cmd, &opts)
	cmd.Flags().BoolVar(&opts.Refresh, "refresh", false, "Read live resources and plan changes for drifted ones")

	return cmd
}
