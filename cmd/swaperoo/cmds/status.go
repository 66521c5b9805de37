package cmds

import (
	"context"

	"github.com/spf13/cobra"
)

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <alias>",
		Short: "Show the derived deployment state for an alias",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cp, err := newControlPlane()
			if err != nil {
				return err
			}
			state, err := cp.coordinator.GetStatus(context.Background(), args[0])
			if err != nil {
				return err
			}
			return printJSON(state)
		},
	}
}
