package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/stackforge/cmd/stackforge/handlers"
)

// Outputs returns the outputs command.
func Outputs() *cobra.Command {
	var opts handlers.Options
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "outputs",
		Short: "Print the outputs recorded by the last apply",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Outputs(cmd.Context(), opts, asJSON)
		},
	}

	bindCommonFlags(cmd, &opts)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print outputs as a JSON object")

	return cmd
}
