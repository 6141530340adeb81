package connection

import (
	"time"

	"github.com/rickgao/livefeed/internal/model"
)

// State is the controller lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateReconnecting // retry timer pending
	StateGivenUp      // retry budget spent
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateGivenUp:
		return "given_up"
	default:
		return "unknown"
	}
}

// EventKind identifies a lifecycle input.
type EventKind int

const (
	EventStart      EventKind = iota // feed enabled and gate active
	EventStop                        // feed disabled, gate inactive, or surface torn down
	EventOpened                      // socket handshake completed
	EventFailed                      // socket errored or closed
	EventTimerFired                  // retry timer elapsed
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventStop:
		return "stop"
	case EventOpened:
		return "opened"
	case EventFailed:
		return "failed"
	case EventTimerFired:
		return "timer_fired"
	default:
		return "unknown"
	}
}

// Event is one input to Machine.Apply.
type Event struct {
	Kind  EventKind
	Clean bool // EventFailed only: peer closed normally, no transport error
}

// EffectKind identifies an action the controller must perform.
type EffectKind int

const (
	EffectDial EffectKind = iota
	EffectCloseSocket
	EffectScheduleRetry
	EffectCancelRetry
	EffectSetStatus
	EffectSetReconnectCount
)

func (k EffectKind) String() string {
	switch k {
	case EffectDial:
		return "dial"
	case EffectCloseSocket:
		return "close_socket"
	case EffectScheduleRetry:
		return "schedule_retry"
	case EffectCancelRetry:
		return "cancel_retry"
	case EffectSetStatus:
		return "set_status"
	case EffectSetReconnectCount:
		return "set_reconnect_count"
	default:
		return "unknown"
	}
}

// Effect is one action produced by a transition. Only the field matching Kind is set.
type Effect struct {
	Kind   EffectKind
	Status model.ConnectionStatus // EffectSetStatus
	Delay  time.Duration          // EffectScheduleRetry
	Count  int                    // EffectSetReconnectCount
}

func dial() Effect                              { return Effect{Kind: EffectDial} }
func closeSocket() Effect                       { return Effect{Kind: EffectCloseSocket} }
func cancelRetry() Effect                       { return Effect{Kind: EffectCancelRetry} }
func scheduleRetry(d time.Duration) Effect      { return Effect{Kind: EffectScheduleRetry, Delay: d} }
func setStatus(s model.ConnectionStatus) Effect { return Effect{Kind: EffectSetStatus, Status: s} }
func setReconnectCount(n int) Effect            { return Effect{Kind: EffectSetReconnectCount, Count: n} }

// Machine is the connection lifecycle as a value. Apply never mutates the
// receiver and never performs I/O.
type Machine struct {
	State   State
	Attempt int // consecutive failures since the last successful open

	backoff Backoff
}

// NewMachine returns an idle machine using the given retry policy.
func NewMachine(b Backoff) Machine {
	return Machine{State: StateIdle, backoff: b}
}

// Backoff returns the machine's retry policy.
func (m Machine) Backoff() Backoff {
	return m.backoff
}

// Apply computes the next machine and the effects to execute, in order.
// Events that do not apply to the current state yield the same machine and no effects.
func (m Machine) Apply(ev Event) (Machine, []Effect) {
	next := m

	switch ev.Kind {
	case EventStart:
		if m.State != StateIdle && m.State != StateGivenUp {
			return m, nil
		}
		// A fresh activation never continues a previous failure run.
		next.State = StateConnecting
		next.Attempt = 0
		return next, []Effect{setStatus(model.StatusConnecting), dial()}

	case EventStop:
		if m.State == StateIdle {
			return m, nil
		}
		next.State = StateIdle
		next.Attempt = 0
		return next, []Effect{
			cancelRetry(),
			closeSocket(),
			setStatus(model.StatusClosed),
			setReconnectCount(0),
		}

	case EventOpened:
		if m.State != StateConnecting {
			return m, nil
		}
		next.State = StateOpen
		next.Attempt = 0
		return next, []Effect{setStatus(model.StatusOpen), setReconnectCount(0)}

	case EventFailed:
		if m.State != StateConnecting && m.State != StateOpen {
			return m, nil
		}
		var effects []Effect
		if !ev.Clean {
			effects = append(effects, setStatus(model.StatusError))
		}
		effects = append(effects, setStatus(model.StatusClosed))

		if m.backoff.Exhausted(m.Attempt) {
			next.State = StateGivenUp
			return next, append(effects, setStatus(model.StatusGivenUp))
		}

		next.State = StateReconnecting
		next.Attempt = m.Attempt + 1
		return next, append(effects,
			scheduleRetry(m.backoff.DelayFor(m.Attempt)),
			setReconnectCount(next.Attempt),
		)

	case EventTimerFired:
		if m.State != StateReconnecting {
			return m, nil
		}
		next.State = StateConnecting
		return next, []Effect{setStatus(model.StatusConnecting), dial()}
	}

	return m, nil
}
