package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	// Global flags.
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "storepulse",
	Short: "Prometheus exporter for store REST APIs",
	Long: `storepulse polls the orders, products and customers of one or more
stores, reduces them to per-store business metrics and serves them in the
Prometheus text format.

Examples:
  # Run the exporter
  storepulse serve --config storepulse.yaml

  # Collect once and print the exposition text
  storepulse collect

  # Check connectivity to every configured store
  storepulse probe`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(logLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "storepulse.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
}

// setupLogging installs a JSON slog handler on stderr as the default logger.
// Stdout is left to command output.
func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return fmt.Errorf("invalid --log-level %q", level)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}
