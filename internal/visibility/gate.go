// Package visibility decides whether a live feed's consuming surface is
// active. An inactive surface must not hold a socket or a retry loop.
package visibility

import (
	"sync"

	"github.com/visvasity/topic"
)

// Gate reports surface activity and its transitions.
type Gate interface {
	// Active reports the current state.
	Active() bool

	// Watch returns a receiver that yields the current state first and then
	// every transition. Callers must Close the receiver.
	Watch() (*topic.Receiver[bool], error)
}

// state is a boolean that publishes only on change.
type state struct {
	mu      sync.Mutex
	active  bool
	updates *topic.Topic[bool]
}

func newState(active bool) *state {
	s := &state{active: active, updates: topic.New[bool]()}
	s.updates.Send(active)
	return s
}

func (s *state) get() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *state) set(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == active {
		return
	}
	s.active = active
	s.updates.Send(active)
}

func (s *state) watch() (*topic.Receiver[bool], error) {
	return topic.Subscribe(s.updates, 0, true)
}

func (s *state) close() {
	s.updates.Close()
}

type always struct {
	*state
}

// Always returns a gate that is permanently active, for headless hosts.
func Always() Gate {
	return always{newState(true)}
}

func (a always) Active() bool                          { return true }
func (a always) Watch() (*topic.Receiver[bool], error) { return a.watch() }

// Manual is a gate driven by explicit Set calls.
type Manual struct {
	s *state
}

// NewManual returns a gate with the given initial state.
func NewManual(active bool) *Manual {
	return &Manual{s: newState(active)}
}

// Set changes the state. Setting the current value again is a no-op.
func (m *Manual) Set(active bool) {
	m.s.set(active)
}

func (m *Manual) Active() bool                          { return m.s.get() }
func (m *Manual) Watch() (*topic.Receiver[bool], error) { return m.s.watch() }

// Close ends every watcher.
func (m *Manual) Close() {
	m.s.close()
}

// Presence is active while at least one lease is held. The relay takes one
// lease per connected browser.
type Presence struct {
	mu     sync.Mutex
	leases int
	s      *state
}

// NewPresence returns an inactive presence gate.
func NewPresence() *Presence {
	return &Presence{s: newState(false)}
}

// Acquire takes a lease. The returned release func is idempotent.
func (p *Presence) Acquire() (release func()) {
	p.mu.Lock()
	p.leases++
	if p.leases == 1 {
		p.s.set(true)
	}
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.leases--
			if p.leases == 0 {
				p.s.set(false)
			}
		})
	}
}

// Leases returns the number of held leases.
func (p *Presence) Leases() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.leases
}

func (p *Presence) Active() bool                          { return p.s.get() }
func (p *Presence) Watch() (*topic.Receiver[bool], error) { return p.s.watch() }

// Close ends every watcher.
func (p *Presence) Close() {
	p.s.close()
}

var (
	_ Gate = always{}
	_ Gate = (*Manual)(nil)
	_ Gate = (*Presence)(nil)
)
