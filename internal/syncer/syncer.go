// Package syncer applies a desired state to providers through their record-set
// routers and removes record sets the desired state no longer declares, as far
// as each zone's operational mode allows.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gitlab.bluewillows.net/root/zoneweaver/internal/config"
	"gitlab.bluewillows.net/root/zoneweaver/internal/metrics"
	"gitlab.bluewillows.net/root/zoneweaver/internal/reconciler"
	"gitlab.bluewillows.net/root/zoneweaver/internal/rrapi"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/rrset"
)

// Syncer drives desired-state runs. Runs are serialized.
type Syncer struct {
	routers map[string]*rrapi.Router
	mode    provider.OperationalMode
	logger  *slog.Logger

	mu   sync.Mutex
	last *reconciler.Result
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) {
		s.logger = logger
	}
}

// WithDefaultMode sets the mode of zones that declare none. Default: managed.
func WithDefaultMode(mode provider.OperationalMode) Option {
	return func(s *Syncer) {
		s.mode = mode
	}
}

// New creates a Syncer over routers, addressed by their provider name.
func New(routers []*rrapi.Router, opts ...Option) *Syncer {
	s := &Syncer{
		routers: make(map[string]*rrapi.Router, len(routers)),
		mode:    provider.ModeManaged,
		logger:  slog.Default(),
	}
	for _, r := range routers {
		s.routers[r.Name()] = r
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync applies every zone of state. A failing zone does not stop the others;
// the returned error joins the failures of all zones.
func (s *Syncer) Sync(ctx context.Context, state *config.DesiredState) (*reconciler.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result := reconciler.NewResult(s.dryRun())

	var errs []error
	for _, zone := range state.Zones {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		zr, err := s.syncZone(ctx, zone)
		result.Merge(zr)
		if err != nil {
			errs = append(errs, fmt.Errorf("zone %s on %s: %w", zone.Zone, zone.Provider, err))
		}
	}
	result.Complete()
	err := errors.Join(errs...)

	metrics.SyncRuns.WithLabelValues(metrics.Status(err)).Inc()
	metrics.SyncDuration.Observe(time.Since(start).Seconds())
	s.last = result

	s.logger.Info("sync complete",
		slog.Int("zones", len(state.Zones)),
		slog.Int("record_sets", result.RecordSets),
		slog.Int("created", result.CreatedCount()),
		slog.Int("updated", result.UpdatedCount()),
		slog.Int("deleted", result.DeletedCount()),
		slog.Bool("dry_run", result.DryRun),
		slog.Duration("duration", result.Duration()),
		slog.Bool("ok", err == nil),
	)
	return result, err
}

// SyncZone applies a single zone.
func (s *Syncer) SyncZone(ctx context.Context, zone config.DesiredZone) (*reconciler.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncZone(ctx, zone)
}

// LastResult returns the result of the most recent Sync, or nil.
func (s *Syncer) LastResult() *reconciler.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Syncer) dryRun() bool {
	for _, r := range s.routers {
		if r.DryRun() {
			return true
		}
	}
	return false
}

func (s *Syncer) syncZone(ctx context.Context, zone config.DesiredZone) (*reconciler.Result, error) {
	router, ok := s.routers[zone.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", zone.Provider)
	}
	scope, err := zone.Matcher()
	if err != nil {
		return nil, err
	}
	mode := zone.ModeOr(s.mode)
	logger := s.logger.With(
		slog.String("provider", zone.Provider),
		slog.String("zone", zone.Zone),
		slog.String("mode", mode.String()),
	)

	result := reconciler.NewResult(router.DryRun())
	var errs []error

	declared := make(map[rrset.Key]bool, len(zone.RecordSets))
	groups := make(map[rrset.Key]bool, len(zone.RecordSets))
	for _, set := range zone.RecordSets {
		key := set.Key()
		declared[key] = true
		groups[key.Group()] = true

		pr, err := router.Put(ctx, zone.Zone, set)
		result.Merge(pr)
		if err != nil {
			logger.Warn("put failed", slog.String("key", key.String()), slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("put %s: %w", key, err))
		}
	}

	if mode.AllowsDelete() {
		stale, err := s.staleKeys(ctx, router, zone.Zone, func(key rrset.Key) bool {
			if declared[key] || isProtected(zone.Zone, key) {
				return false
			}
			if mode.RequiresDeclaredGroup() {
				return groups[key.Group()]
			}
			return scope.Matches(key.Name)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("listing %s: %w", zone.Zone, err))
		}
		for _, key := range stale {
			logger.Debug("removing undeclared record set", slog.String("key", key.String()))
			dr, err := router.Delete(ctx, zone.Zone, key)
			result.Merge(dr)
			if err != nil {
				errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
			}
		}
	}

	result.Complete()
	return result, errors.Join(errs...)
}

// staleKeys lists the record sets of zone selected by stale. Deletes happen
// only after the listing is complete.
func (s *Syncer) staleKeys(ctx context.Context, router *rrapi.Router, zone string, stale func(rrset.Key) bool) ([]rrset.Key, error) {
	var keys []rrset.Key
	seen := make(map[rrset.Key]bool)
	it := router.Iterate(zone)
	for it.Next(ctx) {
		key := it.RecordSet().Key()
		if seen[key] || !stale(key) {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys, it.Err()
}

// isProtected reports whether key is the zone's apex SOA or NS set.
func isProtected(zone string, key rrset.Key) bool {
	if !rrset.EqualNames(key.Name, zone) {
		return false
	}
	return key.Type == "SOA" || key.Type == "NS"
}
