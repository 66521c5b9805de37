package cmds

import (
	"context"

	"github.com/go-go-golems/swaperoo/pkg/errs"
	"github.com/spf13/cobra"
)

func NewPromoteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "promote <alias>",
		Short: "Swap the alias onto its staging index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alias := args[0]
			cp, err := newControlPlane()
			if err != nil {
				return err
			}
			ctx := context.Background()

			state, err := cp.coordinator.GetStatus(ctx, alias)
			if err != nil {
				return err
			}
			if state.StagingIndex == "" {
				return errs.New(errs.KindPreconditionFailed,
					"no staging index for alias %s", alias)
			}
			if err := cp.coordinator.SwapAlias(ctx, alias, state.StagingColor); err != nil {
				return err
			}

			state, err = cp.coordinator.GetStatus(ctx, alias)
			if err != nil {
				return err
			}
			return printJSON(state)
		},
	}
}
