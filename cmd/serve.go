package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/niw-crawler/internal/api"
)

// newServeCmd creates the 'serve' subcommand exposing reports over HTTP.
func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve distribution reports and metrics over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := a.Config()
			if port == 0 {
				port = cfg.Server.Port
			}
			appDate, err := cfg.ApplicationDate()
			if err != nil {
				return err
			}
			logger := a.Logger()

			apiServer := api.NewServer(a.Analyzer(), appDate, logger)
			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", port),
				Handler:           apiServer.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			ctx, stop := context.WithCancel(cmd.Context())
			defer stop()
			errCh := make(chan error, 1)
			go func() {
				logger.Info("HTTP server started", zap.Int("port", port))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
					stop()
				}
			}()

			<-ctx.Done()
			logger.Info("Shutdown initiated")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("Server shutdown error", zap.Error(err))
			}
			select {
			case err := <-errCh:
				return fmt.Errorf("http server: %w", err)
			default:
			}
			logger.Info("Shutdown complete")
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default server.port)")
	return cmd
}
