package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/livefeed/internal/model"
)

// Controller owns the live feed socket. At most one socket and one retry
// timer exist at any time, and only the controller's loop goroutine writes
// to the store.
type Controller struct {
	cfg       ControllerConfig
	store     StoreWriter
	newClient ClientFactory
	observer  Observer
	logger    *slog.Logger

	// lifeMu serializes Start and Stop so an exiting loop can never
	// overlap a new one.
	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	stateMu sync.RWMutex
	state   State
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithClientFactory replaces the WebSocket client used for each attempt.
func WithClientFactory(f ClientFactory) ControllerOption {
	return func(c *Controller) {
		c.newClient = f
	}
}

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) ControllerOption {
	return func(c *Controller) {
		if o != nil {
			c.observer = o
		}
	}
}

// NewController creates a Controller that publishes into store.
func NewController(cfg ControllerConfig, store StoreWriter, logger *slog.Logger, opts ...ControllerOption) *Controller {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller{
		cfg:      cfg,
		store:    store,
		observer: nopObserver{},
		logger:   logger,
	}
	c.newClient = func() Client {
		return NewClient(c.cfg.Client, c.logger)
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start begins connecting. It is a no-op if the controller is already running.
// The controller runs until Stop is called or ctx is cancelled.
func (c *Controller) Start(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.runningLocked() {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	r := &run{
		c:       c,
		events:  make(chan event, 64),
		machine: NewMachine(c.cfg.Backoff),
	}

	go func() {
		defer close(done)
		r.loop(runCtx)
	}()

	return nil
}

// Stop closes the socket, cancels any pending retry and in-flight connect,
// and waits for the controller to go quiet. No store update happens after
// Stop returns. Safe to call at any time, any number of times.
func (c *Controller) Stop() {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.cancel == nil {
		return
	}

	c.cancel()
	<-c.done

	c.cancel = nil
	c.done = nil
}

// Running reports whether the controller loop is active.
func (c *Controller) Running() bool {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	return c.runningLocked()
}

func (c *Controller) runningLocked() bool {
	if c.done == nil {
		return false
	}
	select {
	case <-c.done:
		// Parent context ended without Stop.
		c.cancel()
		c.cancel = nil
		c.done = nil
		return false
	default:
		return true
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// -----------------------------------------------------------------------------
// Run loop
// -----------------------------------------------------------------------------

type eventKind int

const (
	evOpened eventKind = iota
	evFailed
	evMessage
)

// event is a completion posted by a socket goroutine, tagged with the
// epoch of the attempt that produced it.
type event struct {
	kind  eventKind
	epoch uint64
	err   error
	msg   TimestampedMessage
}

// run is one activation of the controller. All fields are owned by loop.
type run struct {
	c       *Controller
	events  chan event
	machine Machine

	epoch         uint64
	client        Client
	cancelAttempt context.CancelFunc

	retry *time.Timer

	wg sync.WaitGroup
}

func (r *run) loop(ctx context.Context) {
	r.apply(ctx, Event{Kind: EventStart})

	for {
		var retryC <-chan time.Time
		if r.retry != nil {
			retryC = r.retry.C
		}

		select {
		case <-ctx.Done():
			r.apply(ctx, Event{Kind: EventStop})
			r.wg.Wait()
			return

		case <-retryC:
			r.retry = nil
			r.apply(ctx, Event{Kind: EventTimerFired})

		case ev := <-r.events:
			if ev.epoch != r.epoch {
				// Completion from a superseded socket.
				continue
			}
			r.handle(ctx, ev)
		}
	}
}

func (r *run) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case evOpened:
		r.c.logger.Info("live feed connected", "attempt", r.machine.Attempt)
		r.apply(ctx, Event{Kind: EventOpened})

	case evFailed:
		clean := IsCleanClose(ev.err)
		if clean {
			r.c.logger.Info("live feed closed by server")
		} else {
			r.c.logger.Warn("live feed connection failed",
				"state", r.machine.State,
				"attempt", r.machine.Attempt,
				"error", ev.err,
			)
		}
		r.closeSocket()
		r.apply(ctx, Event{Kind: EventFailed, Clean: clean})

	case evMessage:
		if r.machine.State != StateOpen {
			return
		}
		payload, err := model.DecodePayload(ev.msg.Data)
		if err != nil {
			// Malformed frames are dropped; the socket stays open.
			r.c.logger.Debug("dropping malformed payload", "error", err)
			r.c.observer.DecodeFailed(err)
			return
		}
		r.c.store.Publish(payload)
		r.c.observer.MessageReceived()
	}
}

// apply runs one transition and executes its effects in order.
func (r *run) apply(ctx context.Context, ev Event) {
	next, effects := r.machine.Apply(ev)
	r.machine = next
	r.c.setState(next.State)

	for _, eff := range effects {
		switch eff.Kind {
		case EffectDial:
			r.dial(ctx)
		case EffectCloseSocket:
			r.closeSocket()
		case EffectScheduleRetry:
			r.retry = time.NewTimer(eff.Delay)
			r.c.observer.RetryScheduled(next.Attempt, eff.Delay)
			r.c.logger.Info("scheduling reconnect",
				"attempt", next.Attempt,
				"delay", eff.Delay,
			)
		case EffectCancelRetry:
			if r.retry != nil {
				r.retry.Stop()
				r.retry = nil
			}
		case EffectSetStatus:
			r.c.store.SetStatus(eff.Status)
			r.c.observer.StatusChanged(eff.Status)
			if eff.Status == model.StatusGivenUp {
				r.c.logger.Error("live feed gave up reconnecting",
					"max_attempts", r.machine.Backoff().MaxAttempts,
				)
			}
		case EffectSetReconnectCount:
			r.c.store.SetReconnectCount(eff.Count)
		}
	}
}

// dial starts a new attempt under a fresh epoch.
func (r *run) dial(ctx context.Context) {
	r.closeSocket()

	r.epoch++
	epoch := r.epoch
	client := r.c.newClient()
	attemptCtx, cancel := context.WithCancel(ctx)
	r.client = client
	r.cancelAttempt = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		if err := client.Connect(attemptCtx); err != nil {
			r.post(attemptCtx, event{kind: evFailed, epoch: epoch, err: err})
			return
		}
		if !r.post(attemptCtx, event{kind: evOpened, epoch: epoch}) {
			return
		}
		r.pump(attemptCtx, epoch, client)
	}()
}

// pump forwards a connected client's frames and terminal error to the loop.
func (r *run) pump(ctx context.Context, epoch uint64, client Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-client.Messages():
			if !ok {
				r.post(ctx, event{kind: evFailed, epoch: epoch, err: ErrNotConnected})
				return
			}
			if !r.post(ctx, event{kind: evMessage, epoch: epoch, msg: msg}) {
				return
			}
		case err := <-client.Errors():
			// Frames read before the failure are still newer than latest.
			for drained := false; !drained; {
				select {
				case msg := <-client.Messages():
					if !r.post(ctx, event{kind: evMessage, epoch: epoch, msg: msg}) {
						return
					}
				default:
					drained = true
				}
			}
			r.post(ctx, event{kind: evFailed, epoch: epoch, err: err})
			return
		}
	}
}

// post delivers ev to the loop unless the attempt was cancelled first.
func (r *run) post(ctx context.Context, ev event) bool {
	select {
	case r.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// closeSocket releases the current attempt, if any. Later completions from it
// carry a stale epoch or are cut off by the cancelled attempt context.
func (r *run) closeSocket() {
	if r.cancelAttempt != nil {
		r.cancelAttempt()
		r.cancelAttempt = nil
	}
	if r.client != nil {
		if err := r.client.Close(); err != nil {
			r.c.logger.Debug("close websocket", "error", err)
		}
		r.client = nil
	}
	r.epoch++
}
