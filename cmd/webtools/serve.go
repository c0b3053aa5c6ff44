package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/solarecho3/web-tools/pkg/dashboard"
	"github.com/solarecho3/web-tools/pkg/logging"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only dashboard",
		Long: `Serve a read-only view of the stores matching dashboard.glob, the
mirrored rate-limit log (when redis is configured), /health, /ready and
/metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Dashboard.Addr
			}

			logger := logging.NewLogger("dashboard")
			srv := &http.Server{
				Addr:              addr,
				Handler:           dashboard.New(a.cfg.Dashboard.Glob, a.redis, logger).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx := contextOf(cmd)
			errCh := make(chan error, 1)
			go func() {
				logger.Info().Str("addr", addr).Str("glob", a.cfg.Dashboard.Glob).Msg("Starting dashboard")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
				logger.Info().Msg("Shutting down dashboard")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default is dashboard.addr)")

	return cmd
}
