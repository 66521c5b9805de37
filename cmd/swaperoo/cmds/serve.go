package cmds

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/swaperoo/pkg/server"
)

func NewServeCommand() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the batch ingest and deployment API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cp, err := newControlPlane()
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("serve-port") {
				port = viper.GetInt("port")
			}

			srv := server.New(
				cp.gateway,
				cp.coordinator,
				cp.sessions,
				viper.GetString("default-alias"),
			)
			addr := fmt.Sprintf("%s:%d", host, port)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				err := cp.sessions.Sweep(gctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
			g.Go(func() error {
				log.Info().Str("addr", addr).Msg("serving API")
				err := srv.Start(addr)
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})

			err = g.Wait()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&host, "serve-host", "", "Host to serve the API on")
	cmd.Flags().IntVarP(&port, "serve-port", "p", 3000, "Port to serve the API on")

	return cmd
}
