package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/szaher/sharkcalc/internal/config"
	"github.com/szaher/sharkcalc/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the calculator as MCP tools over stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout exposing two tools:
calculate (expression, precision, timeout_ms, max_complexity) and
list_functions. Logs go to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, logger, err := newService()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if watch && configPath != "" {
				go func() {
					if err := config.Watch(ctx, configPath, svc.Apply, svc.ReloadFailed); err != nil {
						logger.Error("config watcher stopped", "error", err)
					}
				}()
			}

			return mcp.NewServer(svc, version, logger).Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Reload --config when the file changes")
	return cmd
}
