package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/stackforge/cmd/stackforge/handlers"
)

// Apply returns the apply command.
func Apply() *cobra.Command {
	var opts handlers.Options

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create or update the stack",
		Long: `Apply plans the stack and executes the changes in dependency order.

Independent resources are created in parallel. State is saved after every
completed resource, so an interrupted run resumes where it stopped.

Example:
  stackforge apply -c stackforge.yaml --yes`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Apply(cmd.Context(), opts)
		},
	}

	bindCommonFlags(cmd, &opts)
	cmd.Flags().BoolVar(&opts.Refresh, "refresh", false, "Read live resources and plan changes for drifted ones")
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "Apply without asking for confirmation")

	return cmd
}
