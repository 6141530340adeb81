package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/livefeed/internal/api"
)

// Source fetches the dashboard pieces. *api.Client implements it.
type Source interface {
	Klines(ctx context.Context, timeframe api.Timeframe, limit int) ([]api.Kline, error)
	Portfolio(ctx context.Context) (*api.Portfolio, error)
	Decisions(ctx context.Context, limit int) ([]api.Decision, error)
}

// DashboardSnapshot is one consistent dashboard refresh.
type DashboardSnapshot struct {
	Klines    []api.Kline    `json:"klines"`
	Portfolio *api.Portfolio `json:"portfolio"`
	Decisions []api.Decision `json:"decisions"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// SnapshotHandler receives fetched snapshots.
type SnapshotHandler interface {
	HandleSnapshot(snapshot DashboardSnapshot) error
}

// SnapshotHandlerFunc is a function adapter for SnapshotHandler.
type SnapshotHandlerFunc func(DashboardSnapshot) error

func (f SnapshotHandlerFunc) HandleSnapshot(s DashboardSnapshot) error {
	return f(s)
}

// Observer is told about every completed cycle.
type Observer interface {
	PollCompleted(duration time.Duration, err error)
}

// Config holds poller configuration.
type Config struct {
	Interval      time.Duration // Poll interval (default: 15s)
	Timeframe     api.Timeframe // Kline timeframe (default: 1h)
	KlineLimit    int           // Candles per refresh (default: 120)
	DecisionLimit int           // Decisions per refresh (default: 30)
	Timeout       time.Duration // Per-cycle timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:      15 * time.Second,
		Timeframe:     api.Timeframe1h,
		KlineLimit:    api.DefaultKlineLimit,
		DecisionLimit: 30,
		Timeout:       10 * time.Second,
	}
}

// Poller periodically fetches the dashboard snapshot.
type Poller struct {
	cfg      Config
	source   Source
	handler  SnapshotHandler
	observer Observer
	logger   *slog.Logger

	mu       sync.RWMutex
	latest   *DashboardSnapshot
	lastErr  error
	lastPoll time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Poller.
type Option func(*Poller)

// WithObserver attaches a cycle observer.
func WithObserver(o Observer) Option {
	return func(p *Poller) {
		p.observer = o
	}
}

// New creates a new Poller. handler may be nil.
func New(cfg Config, source Source, handler SnapshotHandler, logger *slog.Logger, opts ...Option) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = def.Timeframe
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	p := &Poller{
		cfg:     cfg,
		source:  source,
		handler: handler,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run(ctx)

	p.logger.Info("dashboard poller started",
		"interval", p.cfg.Interval,
		"timeframe", p.cfg.Timeframe,
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("dashboard poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Latest returns the most recent successful snapshot.
func (p *Poller) Latest() (DashboardSnapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.latest == nil {
		return DashboardSnapshot{}, false
	}
	return *p.latest, true
}

// LastError returns the error of the most recent cycle, nil if it succeeded.
func (p *Poller) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// LastPoll returns when the most recent cycle finished.
func (p *Poller) LastPoll() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastPoll
}

// run is the main polling loop.
func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.Poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll runs one refresh cycle.
func (p *Poller) Poll(ctx context.Context) error {
	start := time.Now()

	snap, err := p.fetch(ctx)
	if err == nil && p.handler != nil {
		err = p.handler.HandleSnapshot(snap)
	}

	p.mu.Lock()
	p.lastErr = err
	p.lastPoll = time.Now()
	if err == nil {
		p.latest = &snap
	}
	p.mu.Unlock()

	if p.observer != nil {
		p.observer.PollCompleted(time.Since(start), err)
	}

	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("dashboard poll failed", "err", err)
		}
		return err
	}

	p.logger.Debug("poll cycle complete",
		"klines", len(snap.Klines),
		"decisions", len(snap.Decisions),
		"duration", time.Since(start),
	)
	return nil
}

func (p *Poller) fetch(ctx context.Context) (DashboardSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	var snap DashboardSnapshot
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		klines, err := p.source.Klines(gctx, p.cfg.Timeframe, p.cfg.KlineLimit)
		snap.Klines = klines
		return err
	})
	g.Go(func() error {
		portfolio, err := p.source.Portfolio(gctx)
		snap.Portfolio = portfolio
		return err
	})
	g.Go(func() error {
		decisions, err := p.source.Decisions(gctx, p.cfg.DecisionLimit)
		snap.Decisions = decisions
		return err
	})

	if err := g.Wait(); err != nil {
		return DashboardSnapshot{}, err
	}

	snap.UpdatedAt = time.Now()
	return snap, nil
}
