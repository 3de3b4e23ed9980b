package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okanda/warden"
)

func createServeCommand(globalFlags *GlobalFlags, f *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the warden daemon",
		Long: `Start the warden daemon: reconcile leftover state, optionally
auto-start the current workspace's service, and serve the lifecycle API.

Examples:
  warden serve --config=warden.toml
  warden serve warden.toml
  warden serve --listen=127.0.0.1:9000 warden.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(globalFlags, f, args)
		},
	}
	cmd.Flags().StringVar(&f.Listen, "listen", "", "API listen address (overrides config)")
	return cmd
}

func runServe(globalFlags *GlobalFlags, f *ServeFlags, args []string) error {
	configPath := globalFlags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}

	var cfg warden.Config
	var err error
	if configPath != "" {
		cfg, err = warden.LoadConfig(configPath)
	} else {
		cfg, err = warden.DefaultConfig()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if f.Listen != "" {
		cfg.Server.Listen = f.Listen
	}

	slog.SetDefault(warden.NewLogger(cfg.Log))

	opts := cfg.ControllerOptions()
	if cfg.History.DSN != "" {
		sink, err := warden.NewHistorySink(cfg.History.DSN)
		if err != nil {
			return fmt.Errorf("open history sink: %w", err)
		}
		opts.Sinks = append(opts.Sinks, sink)
	}
	sup := warden.New(opts)

	if cfg.Metrics.Enabled {
		if err := warden.RegisterMetricsDefault(); err != nil {
			slog.Warn("Failed to register metrics", "error", err)
		}
		if cfg.Metrics.Listen != "" {
			go func() {
				if err := warden.ServeMetrics(cfg.Metrics.Listen); err != nil {
					slog.Warn("Metrics server error", "error", err)
				}
			}()
		}
	}

	// Heal anything a previous daemon left behind before taking traffic.
	sup.Reconcile()

	if cfg.AutoStart && cfg.CurrentWorkspace != "" && len(cfg.Command) > 0 {
		sup.AutoStart(cfg.CurrentWorkspace, cfg.Command)
	}

	srv, err := warden.NewHTTPServer(cfg.Server.Listen, sup, warden.RouterOptions{
		BasePath:  cfg.Server.BasePath,
		Workspace: cfg.CurrentWorkspace,
		Command:   cfg.Command,
		Metrics:   cfg.Metrics.Enabled,
	})
	if err != nil {
		return fmt.Errorf("start API server: %w", err)
	}
	slog.Info("Warden daemon started", "listen", cfg.Server.Listen, "root", cfg.Root)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	slog.Info("Shutting down")

	// Supervised services keep running; their PID records let the next
	// daemon pick them back up.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
