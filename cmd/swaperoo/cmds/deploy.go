package cmds

import (
	"context"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/swaperoo/pkg/bluegreen"
)

func NewDeployCommand() *cobra.Command {
	var strategyFlag string

	cmd := &cobra.Command{
		Use:   "deploy <alias> <documents.json>",
		Short: "Deploy a document file into a fresh index behind the alias",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			alias := args[0]

			strategy, err := bluegreen.ParseStrategy(strategyFlag)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[1])
			if err != nil {
				return errors.Wrap(err, "failed to read documents file")
			}
			var docs []bluegreen.Document
			if err := json.Unmarshal(data, &docs); err != nil {
				return errors.Wrap(err, "documents file must contain a JSON array")
			}

			cp, err := newControlPlane()
			if err != nil {
				return err
			}
			mappingDoc, err := cp.provider.Mapping()
			if err != nil {
				return err
			}

			state, err := cp.coordinator.Deploy(
				context.Background(), alias, docs, strategy, mappingDoc)
			if state != nil {
				_ = printJSON(state)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&strategyFlag, "strategy", string(bluegreen.StrategySafe),
		"Deployment strategy: safe (manual promotion) or auto-swap")

	return cmd
}
