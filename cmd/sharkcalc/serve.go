package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/szaher/sharkcalc/internal/config"
	"github.com/szaher/sharkcalc/internal/server"
	"github.com/szaher/sharkcalc/internal/service"
	"github.com/szaher/sharkcalc/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var (
		addr  string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Serve the calculator over HTTP:

  GET  /healthz              liveness
  GET  /v1/functions         available functions and constants
  POST /v1/calculate         evaluate one expression
  POST /v1/calculate/batch   evaluate many expressions
  GET  /metrics              Prometheus metrics

When SHARKCALC_API_KEY is set every route except /healthz requires it in
X-API-Key or as a bearer token. With --watch the config file is reloaded
on change without a restart; a changed server.rate_limit takes effect on
the next request. The listen address and API key are read once at start.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			metrics := telemetry.NewMetrics()
			svc, cfg, logger, err := newService(service.WithMetrics(metrics))
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if watch {
				if configPath == "" {
					return fmt.Errorf("--watch requires --config")
				}
				go func() {
					err := config.Watch(ctx, configPath, svc.Apply, svc.ReloadFailed)
					if err != nil {
						logger.Error("config watcher stopped", "error", err)
					}
				}()
			}

			srv := server.New(svc,
				server.WithAPIKey(cfg.Server.APIKey),
				server.WithLogger(logger),
				server.WithVersion(version),
			)

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.ListenAndServe(addr)
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("server: %w", err)
			case <-ctx.Done():
			}

			logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout.String())
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8080)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Reload --config when the file changes")
	return cmd
}
