package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/storepulse/storepulse/exporter/internal/aggregate"
	"github.com/storepulse/storepulse/exporter/internal/config"
	"github.com/storepulse/storepulse/exporter/internal/orchestrator"
	"github.com/storepulse/storepulse/exporter/internal/registry"
)

var collectStrict bool

var collectCmd = &cobra.Command{
	Use:   "collect [id]",
	Short: "Run one collection cycle and print the metrics",
	Long: `Initialize every enabled store, run a single collection cycle and
write the exposition text to stdout. With an id only that store is
collected. Useful for checking a config before deploying it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCollect,
}

func init() {
	collectCmd.Flags().BoolVar(&collectStrict, "strict", false, "exit non-zero when any store fails")
	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	reg, err := registry.NewDefault()
	if err != nil {
		return err
	}

	orch := orchestrator.New(reg, aggregate.New(reg),
		orchestrator.WithConcurrency(cfg.Schedule.MaxConcurrency))
	if err := orch.Initialize(cmd.Context(), cfg.Stores); err != nil {
		return err
	}
	defer orch.Shutdown()

	var sum orchestrator.CycleSummary
	if len(args) == 1 {
		res, err := orch.RunStore(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		sum = orchestrator.CycleSummary{CycleID: res.CycleID, Duration: res.Duration, Results: []orchestrator.CycleResult{res}}
		if res.Success {
			sum.Completed = 1
		} else {
			sum.Failed = 1
		}
	} else {
		sum = orch.RunCycle(cmd.Context())
	}
	for _, res := range sum.Results {
		if !res.Success {
			slog.Warn("store failed", "store", res.StoreID, "error_kind", res.ErrorKind, "errors", res.Branches)
		}
	}
	slog.Info("cycle finished", "cycle", sum.CycleID, "completed", sum.Completed,
		"failed", sum.Failed, "duration", sum.Duration)

	body, err := reg.Render()
	if err != nil {
		return err
	}
	if _, err := os.Stdout.Write(body); err != nil {
		return err
	}
	if collectStrict && sum.Failed > 0 {
		return fmt.Errorf("%d of %d stores failed", sum.Failed, len(sum.Results))
	}
	return nil
}
