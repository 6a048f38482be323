package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/storepulse/storepulse/exporter/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the config file and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		fmt.Printf("%s: ok (%d stores, %d enabled, cycle every %s)\n",
			configPath, len(cfg.Stores), len(cfg.EnabledStores()), cfg.CycleInterval())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
