package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gitlab.bluewillows.net/root/zoneweaver/internal/health"
	"gitlab.bluewillows.net/root/zoneweaver/internal/metrics"
	"gitlab.bluewillows.net/root/zoneweaver/internal/watcher"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
)

type syncFlags struct {
	desired  string
	watch    bool
	interval time.Duration
	mode     string
}

func newCmdSync(g *globalFlags) *cobra.Command {
	f := &syncFlags{}
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Apply a desired-state file",
		Long: `Apply a desired-state file to the configured providers.

With --watch the command keeps running: it serves /health, /ready, /sync and
/metrics, re-applies the file whenever it changes and on every sync interval,
and retries providers that failed to initialize.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.desired == "" {
				return fmt.Errorf("--desired is required (or set ZONEWEAVER_DESIRED)")
			}
			return run(cmd, g, func(ctx context.Context, a *app) error {
				if err := f.apply(cmd, a); err != nil {
					return err
				}
				if a.cfg.Watch() {
					return serve(ctx, a, f.desired)
				}

				result, err := a.syncOnce(ctx, f.desired)
				if result != nil {
					fmt.Fprint(cmd.OutOrStdout(), result.Summary())
					for _, action := range result.Writes() {
						fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", action)
					}
				}
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&f.desired, "desired", "f", envOr("ZONEWEAVER_DESIRED", ""), "Desired-state file, YAML or TOML (env ZONEWEAVER_DESIRED)")
	cmd.Flags().BoolVarP(&f.watch, "watch", "w", false, "Keep running and re-sync on changes (env ZONEWEAVER_WATCH)")
	cmd.Flags().DurationVar(&f.interval, "interval", 0, "Periodic re-sync interval when watching (default: the configured sync interval)")
	cmd.Flags().StringVar(&f.mode, "mode", "", "Default mode for zones that set none (managed|authoritative|additive)")
	return cmd
}

// apply layers the sync flags over the loaded configuration.
func (f *syncFlags) apply(cmd *cobra.Command, a *app) error {
	if cmd.Flags().Changed("watch") {
		a.cfg.Global.Watch = f.watch
	}
	if cmd.Flags().Changed("interval") {
		if f.interval < time.Second {
			return fmt.Errorf("--interval must be at least 1s, got %s", f.interval)
		}
		a.cfg.Global.SyncInterval = f.interval
	}
	if f.mode != "" {
		mode, err := provider.ParseOperationalMode(f.mode)
		if err != nil {
			return err
		}
		a.cfg.Global.Mode = mode
	}
	return nil
}

// serve runs until SIGINT or SIGTERM, syncing on start, on file changes and
// on every sync interval.
func serve(ctx context.Context, a *app, desiredPath string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := a.logger
	logger.Info("starting zoneweaver",
		slog.String("version", Version),
		slog.String("build_date", BuildDate),
		slog.String("go_version", runtime.Version()),
	)
	metrics.SetBuildInfo(Version, runtime.Version())
	logger.Info("configuration loaded", slog.String("config", a.cfg.String()))

	healthServer := health.New(a.cfg.HealthPort(), health.WithLogger(logger))
	for _, p := range a.registry.All() {
		healthServer.RegisterProvider(p)
	}
	healthServer.RegisterDegradedChecker("pending-providers", health.PendingProvidersChecker(a.manager))
	if err := healthServer.Start(); err != nil {
		return fmt.Errorf("starting health server: %w", err)
	}

	if err := a.manager.Start(ctx); err != nil {
		return fmt.Errorf("starting provider manager: %w", err)
	}

	// Syncs are serialized; a trigger that arrives during a run waits for it.
	var mu sync.Mutex
	trigger := func() {
		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		result, err := a.syncOnce(ctx, desiredPath)
		if err != nil {
			logger.Error("sync failed", slog.String("error", err.Error()))
		}
		healthServer.RecordSync(result, err)
	}

	fileWatcher := watcher.New(desiredPath, trigger, watcher.WithLogger(logger))
	if err := fileWatcher.Start(ctx); err != nil {
		return fmt.Errorf("starting desired-state watcher: %w", err)
	}

	logger.Info("running initial sync")
	fileWatcher.TriggerNow()

	interval := a.cfg.SyncInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info("zoneweaver initialized, watching for changes",
		slog.String("desired", desiredPath),
		slog.Int("providers", a.registry.Count()),
		slog.Duration("interval", interval),
		slog.Int("health_port", a.cfg.HealthPort()),
	)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			logger.Debug("periodic sync triggered", slog.Duration("interval", interval))
			trigger()
		}
	}

	logger.Info("shutting down...")
	fileWatcher.Stop()
	a.manager.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("health server shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("zoneweaver shutdown complete")
	return nil
}
