package cmds

import (
	"context"

	"github.com/spf13/cobra"
)

func NewRollbackCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <alias>",
		Short: "Swap the alias back to the most recent previous-color index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cp, err := newControlPlane()
			if err != nil {
				return err
			}
			state, err := cp.coordinator.Rollback(context.Background(), args[0])
			if err != nil {
				return err
			}
			return printJSON(state)
		},
	}
}
