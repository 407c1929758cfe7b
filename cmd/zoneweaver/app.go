package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"gitlab.bluewillows.net/root/zoneweaver/internal/config"
	"gitlab.bluewillows.net/root/zoneweaver/internal/reconciler"
	"gitlab.bluewillows.net/root/zoneweaver/internal/rrapi"
	"gitlab.bluewillows.net/root/zoneweaver/internal/syncer"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
	"gitlab.bluewillows.net/root/zoneweaver/providers/cloudflare"
	"gitlab.bluewillows.net/root/zoneweaver/providers/memory"
	"gitlab.bluewillows.net/root/zoneweaver/providers/rfc2136"
	"gitlab.bluewillows.net/root/zoneweaver/providers/sqlite"
	"gitlab.bluewillows.net/root/zoneweaver/providers/webhook"
)

// app is the wired runtime shared by the subcommands: configuration,
// logger and the provider instances that initialized.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *provider.Registry
	manager  *provider.Manager
	routers  map[string]*rrapi.Router
}

// newApp loads the configuration, applies flag overrides and initializes
// every configured provider. Logs go to logOut so command output stays clean.
func newApp(ctx context.Context, g *globalFlags, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if g.logLevel != "" {
		cfg.Global.LogLevel = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Global.LogFormat = g.logFormat
	}
	if g.dryRun {
		cfg.Global.DryRun = true
	}

	logger := setupLogger(logOut, cfg.LogLevel(), cfg.LogFormat())
	slog.SetDefault(logger)

	registry := provider.NewRegistry(logger)
	registerProviderFactories(registry, logger)
	if err := config.ValidateProviderTypes(cfg, registry.Types()); err != nil {
		return nil, err
	}

	manager := provider.NewManager(registry, provider.WithManagerLogger(logger))
	for _, inst := range cfg.ProviderInstances {
		if err := manager.InitializeProvider(ctx, inst.ToProviderConfig()); err != nil {
			return nil, fmt.Errorf("creating provider %s: %w", inst.Name, err)
		}
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		manager:  manager,
		routers:  make(map[string]*rrapi.Router),
	}, nil
}

func registerProviderFactories(registry *provider.Registry, logger *slog.Logger) {
	// In-process store, for tests and dry runs
	registry.RegisterFactory(memory.TypeName, memory.Factory(logger))

	// Local persistent store with geo and weighted namespaces
	registry.RegisterFactory(sqlite.TypeName, sqlite.Factory(logger))

	// Register Cloudflare provider factory (public DNS)
	registry.RegisterFactory(cloudflare.TypeName, cloudflare.Factory(logger))

	// Register Webhook provider factory (custom integrations)
	registry.RegisterFactory(webhook.TypeName, webhook.Factory(logger))

	// Register RFC 2136 provider factory (BIND, Knot, PowerDNS and friends)
	registry.RegisterFactory(rfc2136.TypeName, rfc2136.Factory(logger))
}

// router returns the record-set router of a ready provider instance.
func (a *app) router(name string) (*rrapi.Router, error) {
	if r, ok := a.routers[name]; ok {
		return r, nil
	}
	p, ok := a.registry.Get(name)
	if !ok {
		for _, pending := range a.manager.PendingProviders() {
			if pending.Name == name {
				return nil, fmt.Errorf("provider %s is not ready: %s", name, pending.LastError)
			}
		}
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	r := rrapi.ForProvider(p,
		rrapi.WithLogger(a.logger),
		rrapi.WithReconcilerConfig(a.cfg.ReconcilerConfig()),
	)
	a.routers[name] = r
	return r, nil
}

// defaultProvider picks the provider when the user named none: the only
// configured instance, if there is exactly one.
func (a *app) defaultProvider(name string) (string, error) {
	if name != "" {
		return name, nil
	}
	names := a.cfg.ProviderNames()
	if len(names) == 1 {
		return names[0], nil
	}
	return "", fmt.Errorf("--provider is required when %d providers are configured", len(names))
}

// checkZone rejects a zone outside the instance's configured zones.
func (a *app) checkZone(providerName, zone string) error {
	inst, ok := a.cfg.GetProviderInstance(providerName)
	if !ok {
		return nil
	}
	pc := inst.ToProviderConfig()
	if !pc.ManagesZone(zone) {
		return fmt.Errorf("provider %s does not manage zone %s (zones: %v)", providerName, zone, inst.Zones)
	}
	return nil
}

// syncOnce loads the desired-state file and applies it to every provider
// that is ready. Zones of pending providers fail with the provider's error.
func (a *app) syncOnce(ctx context.Context, desiredPath string) (*reconciler.Result, error) {
	state, err := config.LoadDesired(desiredPath)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, z := range state.Zones {
		if err := a.checkZone(z.Provider, z.Zone); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	var routers []*rrapi.Router
	seen := make(map[string]bool)
	for _, z := range state.Zones {
		if seen[z.Provider] {
			continue
		}
		seen[z.Provider] = true
		r, err := a.router(z.Provider)
		if err != nil {
			a.logger.Warn("skipping provider", slog.String("provider", z.Provider), slog.String("error", err.Error()))
			continue
		}
		routers = append(routers, r)
	}

	s := syncer.New(routers,
		syncer.WithLogger(a.logger),
		syncer.WithDefaultMode(a.cfg.Mode()),
	)
	return s.Sync(ctx, state)
}

// close releases providers that hold resources.
func (a *app) close() {
	for _, p := range a.registry.All() {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil {
				a.logger.Warn("closing provider", slog.String("provider", p.Name()), slog.String("error", err.Error()))
			}
		}
	}
}

// run builds the app for one command invocation and releases it afterwards.
func run(cmd *cobra.Command, g *globalFlags, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, g, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}
