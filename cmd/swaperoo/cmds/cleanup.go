package cmds

import (
	"context"

	"github.com/spf13/cobra"
)

func NewCleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup <alias>",
		Short: "Delete every non-active index of the previous color",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cp, err := newControlPlane()
			if err != nil {
				return err
			}
			deleted, err := cp.coordinator.Cleanup(context.Background(), args[0])
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{
				"alias":   args[0],
				"deleted": deleted,
			})
		},
	}
}
