package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/stackforge/cmd/stackforge/handlers"
)

// Destroy returns the destroy command.
func Destroy() *cobra.Command {
	var opts handlers.Options

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Delete every resource of the stack",
		Long: `Destroy removes all stack resources in reverse dependency order:
  - Compute service, task definition and cluster
  - DNS record, HTTPS listener and certificate
  - Load balancer, target group and security groups
  - Log group, IAM roles and container registry
  - Subnets, route table, internet gateway and VPC

Resources marked preventDestroy (the production registry) stop the run
before any resource is deleted.

Example:
  stackforge destroy -c stackforge.yaml

WARNING: This operation is irreversible.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Destroy(cmd.Context(), opts)
		},
	}

	bindCommonFlags(cmd, &opts)
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "Destroy without asking for confirmation")

	return cmd
}
