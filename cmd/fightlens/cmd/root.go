// Package cmd implements the fightlens command line.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-fightlens/internal/config"
	"github.com/ahrav/go-fightlens/internal/logging"
)

// NewRootCommand builds the command tree.
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "fightlens",
		Short: "Multi-agent grappling frame analysis",
		Long: `fightlens analyzes a single frame of grappling footage with several
specialist model agents (technical, tactical, rules), consolidates their
findings into one report and accounts for the cost of every model call.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "config file (default: ./fightlens.yaml or ~/.config/fightlens/config.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "auto", "log format (auto, text, json)")

	root.AddCommand(newAnalyzeCommand(), newWorkerCommand(), newPromptsCommand())
	return root
}

// loadConfig loads configuration with the persistent flags and any
// command-specific bindings applied.
func loadConfig(cmd *cobra.Command, bindings map[string]string) (*config.Config, *slog.Logger, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")

	loader := config.NewLoader().
		WithConfigFile(path).
		BindFlag("log.level", flags.Lookup("log-level")).
		BindFlag("log.format", flags.Lookup("log-format"))
	for key, name := range bindings {
		loader.BindFlag(key, flags.Lookup(name))
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	cfg.Log.Output = cmd.ErrOrStderr()

	logger := logging.New(cfg.Log)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
