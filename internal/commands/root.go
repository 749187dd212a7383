// Package commands implements the relay CLI.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/loftwing/relay/internal/config"
	"github.com/loftwing/relay/internal/log"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	logger *slog.Logger
)

// NewRootCommand builds the relay root command.
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "relay",
		Short: "Resilient HTTP requests from the command line",
		Long: `relay issues HTTP requests through a resilience pipeline:
bearer-token injection with coordinated refresh-on-401, exponential-backoff
retry for transient failures, and per-endpoint request deduplication.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logCfg := log.FromEnv()
			if logLevel != "" {
				logCfg.Level = logLevel
			}
			if logFormat != "" {
				logCfg.Format = log.Format(logFormat)
			}
			logger = log.New(logCfg)
			slog.SetDefault(logger)
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "path to config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, text)")

	root.AddCommand(newRequestCommand())
	root.AddCommand(newVersionCommand(version))
	return root
}

// Execute runs the CLI and returns a process exit code.
func Execute(version string) int {
	if err := NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func defaultConfigPath() string {
	if p := os.Getenv("RELAY_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "relay.yaml"
	}
	return filepath.Join(home, ".config", "relay", "relay.yaml")
}
