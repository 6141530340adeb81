// Package livefeed assembles one live feed: a connection controller, the
// store it writes, a visibility gate and the enabled switch.
package livefeed

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/visvasity/topic"

	"github.com/rickgao/livefeed/internal/connection"
	"github.com/rickgao/livefeed/internal/feedstore"
	"github.com/rickgao/livefeed/internal/visibility"
)

// Errors
var (
	ErrRunning = errors.New("feed already running")
	ErrClosed  = errors.New("feed closed")
)

// Config configures a Feed.
type Config struct {
	Controller connection.ControllerConfig
	Enabled    bool // initial value of the enabled switch
}

// Option configures a Feed.
type Option func(*Feed)

// WithControllerOptions passes options through to the connection controller.
func WithControllerOptions(opts ...connection.ControllerOption) Option {
	return func(f *Feed) {
		f.ctrlOpts = append(f.ctrlOpts, opts...)
	}
}

// Feed owns one controller and one store. The connection runs only while
// the feed is enabled and the gate is active.
type Feed struct {
	id     string
	store  *feedstore.Store
	ctrl   *connection.Controller
	gate   visibility.Gate
	logger *slog.Logger

	ctrlOpts []connection.ControllerOption

	mu      sync.Mutex
	enabled bool
	changed chan struct{}

	runMu     sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Feed. A nil gate means always active.
func New(cfg Config, gate visibility.Gate, logger *slog.Logger, opts ...Option) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	if gate == nil {
		gate = visibility.Always()
	}

	f := &Feed{
		id:      uuid.NewString(),
		store:   feedstore.New(),
		gate:    gate,
		enabled: cfg.Enabled,
		changed: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	f.logger = logger.With("feed_id", f.id)

	for _, opt := range opts {
		opt(f)
	}

	f.ctrl = connection.NewController(cfg.Controller, f.store, f.logger, f.ctrlOpts...)
	return f
}

// ID returns the feed's instance id.
func (f *Feed) ID() string {
	return f.id
}

// Reader returns the read-only view of the feed state.
func (f *Feed) Reader() feedstore.Reader {
	return f.store
}

// State returns the controller lifecycle state.
func (f *Feed) State() connection.State {
	return f.ctrl.State()
}

// Enabled reports the enabled switch.
func (f *Feed) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

// SetEnabled flips the enabled switch. Run applies the change.
func (f *Feed) SetEnabled(enabled bool) {
	f.mu.Lock()
	if f.enabled == enabled {
		f.mu.Unlock()
		return
	}
	f.enabled = enabled
	f.mu.Unlock()

	f.logger.Info("live feed switched", "enabled", enabled)

	select {
	case f.changed <- struct{}{}:
	default:
	}
}

// Run drives the controller from gate transitions and the enabled switch
// until ctx is cancelled or Close is called. Every start and stop happens
// on this goroutine.
func (f *Feed) Run(ctx context.Context) error {
	if !f.runMu.TryLock() {
		return ErrRunning
	}
	defer f.runMu.Unlock()

	select {
	case <-f.done:
		return ErrClosed
	default:
	}

	watch, err := f.gate.Watch()
	if err != nil {
		return err
	}
	defer watch.Close()

	gateCh, err := topic.ReceiveCh(watch)
	if err != nil {
		return err
	}

	defer f.ctrl.Stop()

	active := f.gate.Active()
	f.reconcile(ctx, active)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-f.done:
			return nil
		case a, ok := <-gateCh:
			if !ok {
				gateCh = nil
				continue
			}
			if a == active {
				continue
			}
			active = a
			f.logger.Debug("visibility changed", "active", active)
			f.reconcile(ctx, active)
		case <-f.changed:
			f.reconcile(ctx, active)
		}
	}
}

func (f *Feed) reconcile(ctx context.Context, active bool) {
	if f.Enabled() && active {
		if err := f.ctrl.Start(ctx); err != nil {
			f.logger.Error("failed to start live feed", "error", err)
		}
		return
	}
	f.ctrl.Stop()
}

// Close stops the feed, waits for Run to return and ends every store
// subscription.
func (f *Feed) Close() {
	f.closeOnce.Do(func() {
		close(f.done)

		f.runMu.Lock()
		f.ctrl.Stop()
		f.runMu.Unlock()

		f.store.Close()
	})
}
