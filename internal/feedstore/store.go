package feedstore

import (
	"sync"
	"time"

	"github.com/visvasity/topic"

	"github.com/rickgao/livefeed/internal/model"
)

// Snapshot is a consistent copy of the store at one instant.
type Snapshot struct {
	Latest         *model.LivePayload     `json:"latest"`
	Status         model.ConnectionStatus `json:"status"`
	ReconnectCount int                    `json:"reconnect_count"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// Label is the consumer-facing status indicator.
func (s Snapshot) Label() string {
	return s.Status.Label()
}

// Writer is the mutation side of the store. It matches connection.StoreWriter.
type Writer interface {
	Publish(payload model.LivePayload)
	SetStatus(status model.ConnectionStatus)
	SetReconnectCount(n int)
}

// Reader is the read-only side handed to consumers.
type Reader interface {
	Latest() (model.LivePayload, bool)
	Status() model.ConnectionStatus
	ReconnectCount() int
	Snapshot() Snapshot
	Subscribe(limit int) (*topic.Receiver[Snapshot], error)
}

// Store is a single-writer, multi-reader feed state holder.
type Store struct {
	mu        sync.RWMutex
	latest    *model.LivePayload
	status    model.ConnectionStatus
	count     int
	updatedAt time.Time
	closed    bool

	updates *topic.Topic[Snapshot]
}

var (
	_ Writer = (*Store)(nil)
	_ Reader = (*Store)(nil)
)

// New returns an empty store in the closed state.
func New() *Store {
	s := &Store{
		status:    model.StatusClosed,
		updatedAt: time.Now(),
		updates:   topic.New[Snapshot](),
	}
	s.updates.Send(s.snapshotLocked())
	return s
}

// Publish replaces the latest payload wholesale.
func (s *Store) Publish(payload model.LivePayload) {
	p := payload.Clone()
	s.mutate(func() { s.latest = &p })
}

// SetStatus records a connection status transition.
func (s *Store) SetStatus(status model.ConnectionStatus) {
	s.mutate(func() { s.status = status })
}

// SetReconnectCount records the current consecutive failure count.
func (s *Store) SetReconnectCount(n int) {
	if n < 0 {
		n = 0
	}
	s.mutate(func() { s.count = n })
}

// mutate applies fn and publishes the resulting snapshot while holding the
// write lock, so subscribers observe snapshots in mutation order.
func (s *Store) mutate(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	fn()
	s.updatedAt = time.Now()
	s.updates.Send(s.snapshotLocked())
}

// Latest returns a copy of the most recent payload, if any.
func (s *Store) Latest() (model.LivePayload, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.latest == nil {
		return model.LivePayload{}, false
	}
	return s.latest.Clone(), true
}

// Status returns the current connection status.
func (s *Store) Status() model.ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// ReconnectCount returns the current consecutive failure count.
func (s *Store) ReconnectCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Snapshot returns all fields read under one lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Status:         s.status,
		ReconnectCount: s.count,
		UpdatedAt:      s.updatedAt,
	}
	if s.latest != nil {
		p := s.latest.Clone()
		snap.Latest = &p
	}
	return snap
}

// Subscribe returns a receiver that first yields the current snapshot and
// then one snapshot per mutation. With limit 1 a slow receiver only ever
// sees the newest snapshot; limit 0 keeps every one. Callers must Close
// the receiver.
func (s *Store) Subscribe(limit int) (*topic.Receiver[Snapshot], error) {
	return topic.Subscribe(s.updates, limit, true)
}

// Close ends every subscription. Later mutations are ignored.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.updates.Close()
}
