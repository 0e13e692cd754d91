package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"wanemu/internal/config"
	"wanemu/internal/logging"
)

// defaultConfigFile is loaded when --config is not given and it exists.
const defaultConfigFile = "wanemu.yaml"

var configPath string

var rootCmd = &cobra.Command{
	Use:          "wanemu",
	Short:        "WAN emulation harness for gossip peers",
	Long:         "wanemu builds an emulated star network with per-pair delays taken from real ping measurements, runs one peer per host and measures message propagation stretch.",
	SilenceUsage: true,
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context so a run still tears its network down.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to run configuration YAML (default "+defaultConfigFile+" when present)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(identitiesCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(dashboardCmd)
}

// loadConfig reads the configured file, falling back to defaults.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	return config.Load(path)
}

// commandContext returns cmd's context carrying a logger at the configured
// level.
func commandContext(cmd *cobra.Command, cfg *config.Config) (context.Context, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, &config.ConfigurationError{Err: fmt.Errorf("log_level: %w", err)}
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := logging.NewOutput(cmd.ErrOrStderr())
	ctx = logging.WithOutput(ctx, out)
	return logging.NewContext(ctx, logging.New(out, level)), nil
}
