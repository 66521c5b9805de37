package cmds

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/swaperoo/pkg/bluegreen"
	"github.com/go-go-golems/swaperoo/pkg/es"
	"github.com/go-go-golems/swaperoo/pkg/mapping"
	"github.com/go-go-golems/swaperoo/pkg/session"
)

func init() {
	viper.SetDefault("port", 3000)
	_ = viper.BindEnv("port", "PORT")
	viper.SetDefault("default-alias", "products")
}

// controlPlane bundles the components every command needs. The gateway is
// constructed once and injected everywhere; there is no process-wide
// cluster singleton.
type controlPlane struct {
	gateway     *es.Gateway
	coordinator *bluegreen.Coordinator
	sessions    *session.Manager
	provider    mapping.Provider
}

func newControlPlane() (*controlPlane, error) {
	client, err := es.CreateClientFromViper()
	if err != nil {
		return nil, err
	}
	gateway := es.NewGateway(client)
	registry := bluegreen.NewRegistry(gateway)
	lifecycle := bluegreen.NewLifecycle(gateway)
	probe := bluegreen.NewProbe(gateway)
	coordinator := bluegreen.NewCoordinator(gateway, registry, lifecycle, probe)
	provider := mapping.NewProductProvider()

	return &controlPlane{
		gateway:     gateway,
		coordinator: coordinator,
		sessions:    session.NewManager(gateway, coordinator, provider),
		provider:    provider,
	}, nil
}

func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func AddToRootCommand(rootCmd *cobra.Command) error {
	rootCmd.AddCommand(
		NewServeCommand(),
		NewDeployCommand(),
		NewStatusCommand(),
		NewPromoteCommand(),
		NewRollbackCommand(),
		NewCleanupCommand(),
	)
	return nil
}
