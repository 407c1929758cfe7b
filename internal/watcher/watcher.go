// Package watcher triggers a sync when the desired-state file changes.
//
// The watcher subscribes to the file's directory with fsnotify so atomic
// rename-based writes (editors, config management, Kubernetes ConfigMaps)
// are seen, filters events down to the watched file, and debounces bursts
// of events into a single trigger.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SyncFunc is called when the watched file changed.
type SyncFunc func()

// Config holds watcher configuration.
type Config struct {
	// DebounceInterval is the time to wait for additional events before
	// triggering. Editors often write a file in several steps.
	// Default: 500 milliseconds
	DebounceInterval time.Duration

	// ReconnectInterval is the time to wait before re-subscribing after the
	// event stream fails.
	// Default: 5 seconds
	ReconnectInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DebounceInterval:  500 * time.Millisecond,
		ReconnectInterval: 5 * time.Second,
	}
}

// Watcher monitors one file and calls onSync after it changes.
type Watcher struct {
	path   string
	onSync SyncFunc
	config Config
	logger *slog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	running  bool
	debounce *time.Timer
	done     chan struct{}
}

// Option is a functional option for configuring the Watcher.
type Option func(*Watcher)

// WithConfig sets the watcher configuration.
func WithConfig(cfg Config) Option {
	return func(w *Watcher) {
		w.config = cfg
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New creates a watcher for the file at path.
func New(path string, onSync SyncFunc, opts ...Option) *Watcher {
	w := &Watcher{
		path:   filepath.Clean(path),
		onSync: onSync,
		config: DefaultConfig(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Start begins watching. It subscribes before returning, so a change made
// after Start returns is observed. Call Stop to halt watching.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fw, err := w.subscribe()
	if err != nil {
		return err
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.running = true
	w.done = make(chan struct{})

	go w.watchLoop(ctx, fw, w.done)

	w.logger.Info("desired-state watcher started",
		slog.String("path", w.path),
		slog.Duration("debounce", w.config.DebounceInterval),
	)

	return nil
}

// Stop halts the watcher and waits for its goroutine to exit. A pending
// debounced trigger is dropped.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	if w.debounce != nil {
		w.debounce.Stop()
		w.debounce = nil
	}
	done := w.done
	w.mu.Unlock()

	if done != nil {
		<-done
	}

	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.done = nil
	w.mu.Unlock()

	if wasRunning {
		w.logger.Info("desired-state watcher stopped")
	}
}

// IsRunning returns whether the watcher is currently running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// subscribe watches the directory holding the file.
func (w *Watcher) subscribe() (*fsnotify.Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching directory %s: %w", dir, err)
	}
	return fw, nil
}

func (w *Watcher) watchLoop(ctx context.Context, fw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	for {
		err := w.watch(ctx, fw)
		fw.Close()
		if ctx.Err() != nil {
			return
		}
		w.logger.Warn("file watch error, resubscribing",
			slog.String("error", err.Error()),
			slog.Duration("retry_in", w.config.ReconnectInterval),
		)

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.config.ReconnectInterval):
			}
			if fw, err = w.subscribe(); err == nil {
				break
			}
			w.logger.Warn("resubscribe failed", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) watch(ctx context.Context, fw *fsnotify.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return fmt.Errorf("event stream closed")
			}
			w.handleEvent(event)

		case err, ok := <-fw.Errors:
			if !ok {
				return fmt.Errorf("error stream closed")
			}
			return err
		}
	}
}

// relevant reports whether event may have changed the watched file.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !w.relevant(event) {
		return
	}
	w.logger.Debug("desired-state file event",
		slog.String("path", event.Name),
		slog.String("op", event.Op.String()),
	)

	// Debounce: reset timer on each event
	w.mu.Lock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.config.DebounceInterval, w.triggerSync)
	w.mu.Unlock()
}

func (w *Watcher) triggerSync() {
	w.logger.Info("triggering sync due to desired-state change", slog.String("path", w.path))
	if w.onSync != nil {
		w.onSync()
	}
}

// TriggerNow immediately triggers a sync, bypassing debounce.
// Useful for the initial sync at startup.
func (w *Watcher) TriggerNow() {
	w.mu.Lock()
	if w.debounce != nil {
		w.debounce.Stop()
		w.debounce = nil
	}
	w.mu.Unlock()

	w.triggerSync()
}
