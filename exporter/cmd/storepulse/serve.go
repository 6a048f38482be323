package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/storepulse/storepulse/exporter/internal/aggregate"
	"github.com/storepulse/storepulse/exporter/internal/api"
	"github.com/storepulse/storepulse/exporter/internal/config"
	"github.com/storepulse/storepulse/exporter/internal/health"
	"github.com/storepulse/storepulse/exporter/internal/orchestrator"
	"github.com/storepulse/storepulse/exporter/internal/registry"
	"github.com/storepulse/storepulse/exporter/internal/status"
	"github.com/storepulse/storepulse/exporter/internal/ws"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the exporter until interrupted",
	Long: `Start collection cycles for every enabled store and serve:
- /metrics in the Prometheus text format
- /health and the /api/v1 operator endpoints
- /ws/stream with live per-store status
- grpc.health.v1 when server.grpc_addr is set`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	slog.Info("storepulse starting", "config", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.Server.ListenAddr,
		"grpc_addr", cfg.Server.GRPCAddr,
		"stores", len(cfg.Stores),
		"interval", cfg.CycleInterval(),
	)

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var regOpts []registry.Option
	if cfg.Server.RuntimeMetrics {
		regOpts = append(regOpts, registry.WithRuntimeMetrics())
	}
	reg, err := registry.NewDefault(regOpts...)
	if err != nil {
		return err
	}

	st := status.New(cfg.Server.StatusTTL)
	hs := health.New()
	agg := aggregate.New(reg, aggregate.WithLogger(slog.With("component", "aggregate")))
	orch := orchestrator.New(reg, agg,
		orchestrator.WithLogger(slog.With("component", "orchestrator")),
		orchestrator.WithObserver(st),
		orchestrator.WithObserver(hs),
		orchestrator.WithConcurrency(cfg.Schedule.MaxConcurrency),
	)
	if err := orch.Initialize(ctx, cfg.Stores); err != nil {
		return err
	}
	hs.SetReady(true)

	hub := ws.New(st, cfg.Server.WSInterval)
	httpSrv := &http.Server{
		Addr: cfg.Server.ListenAddr,
		Handler: api.New(reg, orch, st,
			api.WithProduction(cfg.Server.Production),
			api.WithStream(hub),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		st.Run(gctx)
		return nil
	})
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		slog.Info("HTTP server listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if cfg.Server.GRPCAddr != "" {
		g.Go(func() error {
			slog.Info("gRPC health listening", "addr", cfg.Server.GRPCAddr)
			return hs.ListenAndServe(gctx, cfg.Server.GRPCAddr)
		})
	}
	g.Go(func() error {
		err := config.Watch(gctx, configPath, func(next *config.Config) {
			if !config.SameStores(cfg, next) {
				slog.Warn("store list changed on disk, restart required to apply it")
			}
		})
		if err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
		return nil
	})
	g.Go(func() error {
		err := orch.Run(gctx, cfg.CycleInterval())
		hs.SetReady(false)

		sctx, scancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer scancel()
		if serr := httpSrv.Shutdown(sctx); serr != nil {
			slog.Error("HTTP server shutdown", "err", serr)
		}
		return err
	})

	err = g.Wait()
	slog.Info("storepulse stopped")
	return err
}
