// Package cli defines the command-line interface for stackctl.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dbgenai/stackctl/internal/config"
	"github.com/dbgenai/stackctl/internal/logging"
)

// Options stores global CLI options shared between commands.
type Options struct {
	ConfigPath string
	Vars       string
	LogLevel   logging.Level
}

// Execute builds the root command, runs it with the provided args and logger, and returns any error.
func Execute(args []string, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewLogger(os.Stderr, logging.LevelInfo)
	}

	rootOpts := &Options{
		ConfigPath: config.DefaultConfigPath,
		LogLevel:   logging.LevelInfo,
	}
	applyBaseEnv(rootOpts)

	rootCmd := newRootCommand(rootOpts, logger)
	rootCmd.SetArgs(args)

	return rootCmd.Execute()
}

// newRootCommand constructs the root cobra.Command with global flags and subcommands.
func newRootCommand(opts *Options, logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stackctl",
		Short: "stackctl provisions the Azure OpenAI + Databricks environment in dependency-ordered stages",
		Long: "stackctl drives the per-stage terraform working directories that make up the GenAI " +
			"environment: resource group, OpenAI account and deployment, Databricks workspace, " +
			"Key Vault, compute, notebooks and the model serving endpoint. Stage order is derived " +
			"from declared dependencies, and outputs of completed stages feed the inputs of later ones.",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := logging.ParseLevel(cmd.Flag("log-level").Value.String())
			opts.LogLevel = level
			logger = logging.NewLogger(os.Stderr, level)
			cmd.SetContext(context.WithValue(cmd.Context(), loggerKey{}, logger))
			logger.Debug("logger initialized", "level", level)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", opts.ConfigPath, "Path to stackctl.yaml configuration file")
	cmd.PersistentFlags().StringVar(&opts.Vars, "vars", opts.Vars, "Stage input overrides in k=v,k2=v2 format")
	cmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newDeployCommand(opts),
		newDestroyCommand(opts),
		newPlanCommand(opts),
		newStagesCommand(opts),
	)

	return cmd
}

// loggerKey is a private context key used to store a logger in command contexts.
type loggerKey struct{}

// LoggerFromContext extracts a logger from the context or falls back to a default logger.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return logging.NewLogger(os.Stderr, logging.LevelInfo)
	}
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return logging.NewLogger(os.Stderr, logging.LevelInfo)
}
