package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"gitlab.bluewillows.net/root/zoneweaver/internal/metrics"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
)

// JobConfig bounds the wait for asynchronous writes.
type JobConfig struct {
	// Attempts is the number of status polls before giving up. Default: 3.
	Attempts int

	// BaseDelay is the wait after the first poll. Default: 500ms.
	BaseDelay time.Duration

	// MaxDelay caps the wait between polls. Default: 1s.
	MaxDelay time.Duration

	// Multiplier grows the wait after each poll. Default: 2.
	Multiplier float64
}

// DefaultJobConfig returns the polling budget used when none is configured.
func DefaultJobConfig() JobConfig {
	return JobConfig{
		Attempts:   3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2,
	}
}

func (c JobConfig) withDefaults() JobConfig {
	def := DefaultJobConfig()
	if c.Attempts <= 0 {
		c.Attempts = def.Attempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.Multiplier < 1 {
		c.Multiplier = def.Multiplier
	}
	return c
}

var errJobPending = errors.New("job still pending")

// JobWaiter polls a JobTracker until a job reaches a terminal state.
type JobWaiter struct {
	tracker  provider.JobTracker
	provider string
	config   JobConfig
	logger   *slog.Logger
}

// NewJobWaiter returns a waiter for jobs issued by the named provider.
// tracker may be nil for providers that always complete synchronously.
func NewJobWaiter(providerName string, tracker provider.JobTracker, cfg JobConfig, logger *slog.Logger) *JobWaiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobWaiter{
		tracker:  tracker,
		provider: providerName,
		config:   cfg.withDefaults(),
		logger:   logger,
	}
}

// AwaitCompletion blocks until job is complete. A nil job is a synchronous
// write and returns immediately. A job in the error state, or one still
// running after the configured attempts, is returned as *provider.JobFailure.
func (w *JobWaiter) AwaitCompletion(ctx context.Context, job *provider.Job) error {
	if job == nil || job.State == provider.JobComplete {
		return nil
	}
	if job.State == provider.JobError {
		metrics.JobPolls.WithLabelValues(w.provider, "error").Inc()
		return &provider.JobFailure{JobID: job.ID, State: job.State, Message: job.Message, Err: provider.ErrJobFailed}
	}
	if w.tracker == nil {
		return fmt.Errorf("provider %s returned job %s but does not report job status", w.provider, job.ID)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.config.BaseDelay
	b.MaxInterval = w.config.MaxDelay
	b.Multiplier = w.config.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(w.config.Attempts-1)), ctx)

	last := *job
	poll := func() error {
		status, err := w.tracker.JobStatus(ctx, job.ID)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("polling job %s: %w", job.ID, err))
		}
		last = status
		switch status.State {
		case provider.JobComplete:
			return nil
		case provider.JobError:
			return backoff.Permanent(&provider.JobFailure{
				JobID:   job.ID,
				State:   status.State,
				Message: status.Message,
				Err:     provider.ErrJobFailed,
			})
		default:
			return errJobPending
		}
	}
	notify := func(_ error, wait time.Duration) {
		w.logger.Debug("waiting for job",
			slog.String("provider", w.provider),
			slog.String("job", job.ID),
			slog.String("state", string(last.State)),
			slog.Duration("wait", wait),
		)
	}

	err := backoff.RetryNotify(poll, policy, notify)
	switch {
	case err == nil:
		metrics.JobPolls.WithLabelValues(w.provider, "complete").Inc()
		return nil
	case errors.Is(err, errJobPending):
		metrics.JobPolls.WithLabelValues(w.provider, "timeout").Inc()
		return &provider.JobFailure{JobID: job.ID, State: last.State, Message: last.Message, Err: provider.ErrJobTimeout}
	case errors.Is(err, provider.ErrJobFailed):
		metrics.JobPolls.WithLabelValues(w.provider, "error").Inc()
		return err
	default:
		return err
	}
}
