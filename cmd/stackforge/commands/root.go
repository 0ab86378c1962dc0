// Package commands defines the CLI command structure and flag bindings.
//
// Command execution is delegated to handler functions in the handlers
// package.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/stackforge/cmd/stackforge/handlers"
)

// Root returns the root command for the stackforge CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stackforge",
		Short:         "Provision a containerized web service on AWS",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(Plan())
	cmd.AddCommand(Apply())
	cmd.AddCommand(Destroy())
	cmd.AddCommand(Outputs())
	cmd.AddCommand(Unlock())
	cmd.AddCommand(Version())

	return cmd
}

// bindCommonFlags registers the flags shared by every stateful command.
func bindCommonFlags(cmd *cobra.Command, opts *handlers.Options) {
	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to environment configuration file (default ./stackforge.yaml)")
	cmd.Flags().StringVar(&opts.LogFormat, "log-format", handlers.LogFormatText, "Log format: text or json")
	cmd.Flags().StringVar(&opts.LockMode, "lock-mode", "", "Override backend.lockMode: block or fail-fast")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this file after the run")
}
