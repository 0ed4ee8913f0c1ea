// Package main is the entry point for the sharkcalc CLI.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/szaher/sharkcalc/internal/config"
	"github.com/szaher/sharkcalc/internal/service"
	"github.com/szaher/sharkcalc/internal/telemetry"
)

// Version information set at build time.
var (
	version = "0.1.0"
	commit  = "unknown"
)

// Global flags.
var (
	configPath    string
	logLevel      string
	correlationID string
)

// exitCode ends the process with a status but no extra message; the
// command has already reported the failure.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sharkcalc",
		Short: "Safe arithmetic expression evaluator",
		Long: `sharkcalc evaluates untrusted arithmetic expressions against a fixed
table of math functions and constants. Expressions are bounded in length,
nesting, function calls, complexity and wall-clock time, and may be
evaluated from the command line, over HTTP or as an MCP tool.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides config")
	root.PersistentFlags().StringVar(&correlationID, "correlation-id", "", "Set explicit correlation ID")

	root.AddCommand(newEvalCmd())
	root.AddCommand(newBatchCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newMCPCmd())
	root.AddCommand(newFunctionsCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// loadConfig reads --config and applies the --log-level override.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

// newLogger builds the JSON logger on stderr; stdout is reserved for
// results and the MCP transport.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := telemetry.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return telemetry.NewLogger(os.Stderr, level), nil
}

// newService loads configuration and builds the shared service.
func newService(opts ...service.Option) (*service.Service, *config.Config, *slog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	opts = append([]service.Option{service.WithLogger(logger)}, opts...)
	return service.New(cfg, opts...), cfg, logger, nil
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		var code exitCode
		if errors.As(err, &code) {
			os.Exit(int(code))
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
