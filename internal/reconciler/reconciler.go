// Package reconciler turns a flat-record listing of one record set into the
// desired record set with the fewest provider writes.
//
// It knows nothing about routing profiles or partitioning; callers scope the
// existing records to a single name, type and qualifier and handle profiles
// themselves.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gitlab.bluewillows.net/root/zoneweaver/internal/metrics"
	"gitlab.bluewillows.net/root/zoneweaver/internal/stream"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/rrset"
)

// Config holds reconciler configuration options.
type Config struct {
	// DryRun if true, plans and logs writes without issuing them.
	DryRun bool

	// DefaultTTL is used for created records when the desired set has no TTL.
	DefaultTTL int

	// Job bounds the wait for asynchronous writes.
	Job JobConfig
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTTL: rrset.DefaultTTL,
		Job:        DefaultJobConfig(),
	}
}

// Reconciler applies record set changes to a single provider.
type Reconciler struct {
	name    string
	store   provider.RecordStore
	tracker provider.JobTracker
	config  Config
	logger  *slog.Logger
	waiter  *JobWaiter
}

// Option is a functional option for configuring the Reconciler.
type Option func(*Reconciler)

// WithLogger sets a custom logger for the reconciler.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// WithConfig sets the reconciler configuration.
func WithConfig(cfg Config) Option {
	return func(r *Reconciler) {
		r.config = cfg
	}
}

// WithJobTracker overrides the job status source. By default the store is
// used when it implements provider.JobTracker.
func WithJobTracker(t provider.JobTracker) Option {
	return func(r *Reconciler) {
		r.tracker = t
	}
}

// New creates a Reconciler writing through store. name identifies the
// provider instance in logs, metrics and errors.
func New(name string, store provider.RecordStore, opts ...Option) *Reconciler {
	r := &Reconciler{
		name:   name,
		store:  store,
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	if t, ok := store.(provider.JobTracker); ok {
		r.tracker = t
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.config.DefaultTTL <= 0 {
		r.config.DefaultTTL = rrset.DefaultTTL
	}
	r.logger = r.logger.With(slog.String("provider", name))
	r.waiter = NewJobWaiter(name, r.tracker, r.config.Job, r.logger)
	return r
}

// Name returns the provider instance name.
func (r *Reconciler) Name() string {
	return r.name
}

// DryRun reports whether writes are suppressed.
func (r *Reconciler) DryRun() bool {
	return r.config.DryRun
}

// Reconcile makes the flat records of existing match desired exactly.
//
// existing must only yield records of desired's name, type and qualifier.
// Writes are issued in plan order and each one is awaited before the next;
// the first failure stops the run and is returned alongside the partial
// result. The profile of desired is ignored.
func (r *Reconciler) Reconcile(ctx context.Context, zone string, desired rrset.RecordSet, existing stream.RecordIterator) (*Result, error) {
	if err := desired.ValidateForWrite(); err != nil {
		return nil, err
	}

	records, err := stream.CollectRecords(ctx, existing)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", desired.Key(), err)
	}

	ops, err := Plan(desired, records, r.config.DefaultTTL)
	if err != nil {
		return nil, err
	}

	result := NewResult(r.config.DryRun)
	result.RecordSets = 1
	if len(ops) == 0 {
		r.logger.Debug("record set up to date", slog.String("key", desired.Key().String()))
		result.AddAction(Action{
			Type:       ActionSkip,
			Status:     StatusSkipped,
			Provider:   r.name,
			Zone:       zone,
			Name:       desired.Name,
			RecordType: desired.Type,
			Qualifier:  desired.Qualifier,
			TTL:        desired.TTLOr(r.config.DefaultTTL),
		})
		result.Complete()
		return result, nil
	}

	err = r.apply(ctx, zone, ops, result)
	result.Complete()
	return result, err
}

// DeleteAll removes every record yielded by existing.
func (r *Reconciler) DeleteAll(ctx context.Context, zone string, existing stream.RecordIterator) (*Result, error) {
	records, err := stream.CollectRecords(ctx, existing)
	if err != nil {
		return nil, err
	}

	result := NewResult(r.config.DryRun)
	err = r.apply(ctx, zone, PlanDeleteAll(records), result)
	result.Complete()
	return result, err
}

func (r *Reconciler) apply(ctx context.Context, zone string, ops []Op, result *Result) error {
	for _, op := range ops {
		action := Action{
			Type:       op.Type,
			Status:     StatusSuccess,
			Provider:   r.name,
			Zone:       zone,
			Name:       op.Record.Name,
			RecordType: op.Record.Type,
			Qualifier:  op.Record.Qualifier,
			RecordID:   op.Record.ID,
			Data:       op.Record.Data,
			TTL:        op.Record.TTL,
		}

		if r.config.DryRun {
			r.logger.Info("would "+string(op.Type)+" record",
				slog.String("zone", zone),
				slog.String("key", op.Record.Key().String()),
				slog.String("data", op.Record.Data),
				slog.Int("ttl", op.Record.TTL),
			)
			result.AddAction(action)
			continue
		}

		recordID, err := r.execute(ctx, zone, op)
		metrics.ProviderOperations.WithLabelValues(r.name, string(op.Type), metrics.Status(err)).Inc()
		if err != nil {
			action.Status = StatusFailed
			action.Error = err.Error()
			result.AddAction(action)
			r.logger.Error("record write failed",
				slog.String("operation", string(op.Type)),
				slog.String("zone", zone),
				slog.String("key", op.Record.Key().String()),
				slog.String("error", err.Error()),
			)
			var perr *provider.ProviderError
			if errors.As(err, &perr) {
				return err
			}
			return provider.WrapRecordError(r.name, string(op.Type), recordID, err)
		}

		r.logger.Info(string(op.Type)+"d record",
			slog.String("zone", zone),
			slog.String("key", op.Record.Key().String()),
			slog.String("data", op.Record.Data),
			slog.Int("ttl", op.Record.TTL),
		)
		result.AddAction(action)
	}
	return nil
}

// execute issues one write and waits for its job. It returns the id of the
// affected record for error reporting.
func (r *Reconciler) execute(ctx context.Context, zone string, op Op) (string, error) {
	var (
		job *provider.Job
		err error
	)
	switch op.Type {
	case ActionCreate:
		job, err = r.store.Create(ctx, zone, op.Record)
	case ActionUpdate:
		job, err = r.store.Update(ctx, zone, op.Record.ID, op.Record.TTL, op.Record.Data)
	case ActionDelete:
		job, err = r.store.Delete(ctx, zone, op.Record.ID)
	default:
		return op.Record.ID, fmt.Errorf("unexpected operation %q", op.Type)
	}
	if err != nil {
		return op.Record.ID, err
	}
	return op.Record.ID, r.waiter.AwaitCompletion(ctx, job)
}
