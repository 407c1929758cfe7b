package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"gitlab.bluewillows.net/root/zoneweaver/internal/metrics"
)

// ManagerConfig holds configuration for the provider manager.
type ManagerConfig struct {
	// InitialRetryInterval is the wait before the first retry of a failed provider.
	// Default: 5 seconds.
	InitialRetryInterval time.Duration

	// MaxRetryInterval caps the exponential backoff between retries.
	// Default: 5 minutes.
	MaxRetryInterval time.Duration

	// RetryBackoffMultiplier is the multiplier for exponential backoff.
	// Default: 2.0.
	RetryBackoffMultiplier float64

	// PingTimeout bounds each connectivity check.
	// Default: 10 seconds.
	PingTimeout time.Duration
}

// DefaultManagerConfig returns a ManagerConfig with sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		InitialRetryInterval:   5 * time.Second,
		MaxRetryInterval:       5 * time.Minute,
		RetryBackoffMultiplier: 2.0,
		PingTimeout:            10 * time.Second,
	}
}

// PendingProvider holds configuration and state for a provider that failed to initialize.
type PendingProvider struct {
	Config       InstanceConfig
	LastError    error
	LastAttempt  time.Time
	AttemptCount int
	NextRetryAt  time.Time

	backoff *backoff.ExponentialBackOff
}

// PendingProviderStatus holds status information for a pending provider.
type PendingProviderStatus struct {
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	LastError    string    `json:"last_error"`
	LastAttempt  time.Time `json:"last_attempt"`
	AttemptCount int       `json:"attempt_count"`
	NextRetryAt  time.Time `json:"next_retry_at"`
}

// Manager handles graceful provider initialization with retry logic.
// Providers that fail to connect are kept pending and retried in the
// background instead of aborting startup.
type Manager struct {
	registry *Registry
	config   ManagerConfig
	logger   *slog.Logger

	mu      sync.RWMutex
	pending map[string]*PendingProvider
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// ManagerOption is a functional option for configuring the Manager.
type ManagerOption func(*Manager)

// WithManagerConfig sets the manager configuration.
func WithManagerConfig(cfg ManagerConfig) ManagerOption {
	return func(m *Manager) {
		m.config = cfg
	}
}

// WithManagerLogger sets a custom logger for the manager.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a new provider manager wrapping the given registry.
func NewManager(registry *Registry, opts ...ManagerOption) *Manager {
	m := &Manager{
		registry: registry,
		config:   DefaultManagerConfig(),
		logger:   slog.Default(),
		pending:  make(map[string]*PendingProvider),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InitializeProvider creates a provider instance and verifies connectivity.
// A provider that cannot be created or reached is queued for retry and nil is
// returned; only an invalid configuration is an error.
func (m *Manager) InitializeProvider(ctx context.Context, cfg InstanceConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid provider config %q: %w", cfg.Name, err)
	}

	err := m.tryInitialize(ctx, cfg)
	if err == nil {
		m.logger.Info("provider initialized and connected",
			slog.String("provider", cfg.Name),
			slog.String("type", cfg.TypeName),
		)
		metrics.ProviderAvailable.WithLabelValues(cfg.Name, cfg.TypeName).Set(1)
		m.updateCountMetrics()
		return nil
	}

	b := m.newBackoff()
	next := b.NextBackOff()

	m.mu.Lock()
	m.pending[cfg.Name] = &PendingProvider{
		Config:       cfg,
		LastError:    err,
		LastAttempt:  time.Now(),
		AttemptCount: 1,
		NextRetryAt:  time.Now().Add(next),
		backoff:      b,
	}
	m.updateCountMetricsLocked()
	m.mu.Unlock()

	metrics.ProviderAvailable.WithLabelValues(cfg.Name, cfg.TypeName).Set(0)
	metrics.ProviderInitRetries.WithLabelValues(cfg.Name, "failed").Inc()

	m.logger.Warn("provider initialization failed, will retry",
		slog.String("provider", cfg.Name),
		slog.String("type", cfg.TypeName),
		slog.String("error", err.Error()),
		slog.Duration("retry_in", next),
	)
	return nil
}

func (m *Manager) tryInitialize(ctx context.Context, cfg InstanceConfig) error {
	if err := m.registry.CreateInstance(cfg); err != nil {
		return err
	}
	p, ok := m.registry.Get(cfg.Name)
	if !ok {
		return fmt.Errorf("provider %s vanished after creation", cfg.Name)
	}
	pingCtx, cancel := context.WithTimeout(ctx, m.config.PingTimeout)
	defer cancel()
	if err := p.Ping(pingCtx); err != nil {
		m.registry.Remove(cfg.Name)
		return fmt.Errorf("connectivity check failed: %w", err)
	}
	return nil
}

func (m *Manager) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.config.InitialRetryInterval
	b.MaxInterval = m.config.MaxRetryInterval
	b.Multiplier = m.config.RetryBackoffMultiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Start begins the background retry loop for pending providers.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("provider manager already running")
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	go m.retryLoop(ctx)

	m.logger.Info("provider manager started",
		slog.Int("ready_providers", m.registry.Count()),
		slog.Int("pending_providers", m.PendingCount()),
	)
	return nil
}

// Stop shuts down the background retry loop and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	<-m.doneCh
	m.logger.Info("provider manager stopped")
}

func (m *Manager) retryLoop(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.RetryDue(ctx)
		}
	}
}

// RetryDue retries every pending provider whose next attempt is due.
func (m *Manager) RetryDue(ctx context.Context) {
	m.mu.Lock()
	var due []*PendingProvider
	now := time.Now()
	for _, p := range m.pending {
		if !now.Before(p.NextRetryAt) {
			due = append(due, p)
		}
	}
	m.mu.Unlock()

	for _, p := range due {
		m.retryProvider(ctx, p)
	}
}

func (m *Manager) retryProvider(ctx context.Context, pending *PendingProvider) {
	cfg := pending.Config

	m.logger.Debug("retrying provider initialization",
		slog.String("provider", cfg.Name),
		slog.Int("attempt", pending.AttemptCount+1),
	)

	err := m.tryInitialize(ctx, cfg)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		delete(m.pending, cfg.Name)
		metrics.ProviderAvailable.WithLabelValues(cfg.Name, cfg.TypeName).Set(1)
		metrics.ProviderInitRetries.WithLabelValues(cfg.Name, "success").Inc()
		m.updateCountMetricsLocked()

		m.logger.Info("provider initialized and connected after retry",
			slog.String("provider", cfg.Name),
			slog.String("type", cfg.TypeName),
			slog.Int("attempts", pending.AttemptCount+1),
		)
		return
	}

	next := pending.backoff.NextBackOff()
	pending.LastError = err
	pending.LastAttempt = time.Now()
	pending.AttemptCount++
	pending.NextRetryAt = time.Now().Add(next)

	metrics.ProviderInitRetries.WithLabelValues(cfg.Name, "failed").Inc()

	m.logger.Warn("provider retry failed",
		slog.String("provider", cfg.Name),
		slog.String("error", err.Error()),
		slog.Int("attempt", pending.AttemptCount),
		slog.Duration("next_retry_in", next),
	)
}

func (m *Manager) updateCountMetrics() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.updateCountMetricsLocked()
}

// Caller must hold at least a read lock.
func (m *Manager) updateCountMetricsLocked() {
	metrics.ProvidersReady.Set(float64(m.registry.Count()))
	metrics.ProvidersPending.Set(float64(len(m.pending)))
}

// Registry returns the underlying provider registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// PendingCount returns the number of providers pending initialization.
func (m *Manager) PendingCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pending)
}

// IsFullyReady returns true if all configured providers are initialized.
func (m *Manager) IsFullyReady() bool {
	return m.PendingCount() == 0
}

// PendingProviders returns the providers still waiting for a successful retry, sorted by name.
func (m *Manager) PendingProviders() []PendingProviderStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]PendingProviderStatus, 0, len(m.pending))
	for _, p := range m.pending {
		result = append(result, PendingProviderStatus{
			Name:         p.Config.Name,
			Type:         p.Config.TypeName,
			LastError:    p.LastError.Error(),
			LastAttempt:  p.LastAttempt,
			AttemptCount: p.AttemptCount,
			NextRetryAt:  p.NextRetryAt,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}
