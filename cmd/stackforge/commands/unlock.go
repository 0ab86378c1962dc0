package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/stackforge/cmd/stackforge/handlers"
)

// Unlock returns the unlock command.
func Unlock() *cobra.Command {
	var opts handlers.Options

	cmd := &cobra.Command{
		Use:   "unlock [LOCK_ID]",
		Short: "Force-release a stale state lock",
		Long: `Unlock deletes the state lock left behind by a crashed run.

The lock ID defaults to the environment's own lock. Only use this when no
other run is in progress.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lockID := ""
			if len(args) == 1 {
				lockID = args[0]
			}
			return handlers.Unlock(cmd.Context(), opts, lockID)
		},
	}

	bindCommonFlags(cmd, &opts)

	return cmd
}
