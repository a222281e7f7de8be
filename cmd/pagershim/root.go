package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pagershim/internal/config"
	"pagershim/internal/logging"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pagershim",
	Short: "Autonomous handshake hunter on top of pineapd",
	Long: `pagershim drives the Pager's recon daemon through a bettercap-style
command surface and runs an epoch-based recon and attack loop against it.`,
	PersistentPreRunE: loadConfig,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute runs the root command, cancelling its context on SIGINT or SIGTERM.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.LoadWithDefaults(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("log-level") {
		c.Logging.Level = logLevel
	}
	if cmd.Flags().Changed("log-format") {
		c.Logging.Format = logFormat
	}

	l, err := logging.Setup(c.Logging.Level, c.Logging.Format, os.Stderr)
	if err != nil {
		return err
	}
	cfg, logger = c, l
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/pagershim/config.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reconCmd)
	rootCmd.AddCommand(configCmd)
}
