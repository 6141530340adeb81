package connection

import (
	"errors"
	"time"

	"github.com/rickgao/livefeed/internal/model"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrAlreadyStarted  = errors.New("client already connected")
)

// DefaultStreamPath is appended to the REST base URL to reach the live stream.
const DefaultStreamPath = "/ws/live"

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // WebSocket URL (e.g., ws://localhost:8000/ws/live)
	HandshakeTimeout time.Duration // Connect timeout for the opening handshake
	PingInterval     time.Duration // How often to send keepalive pings
	PingTimeout      time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout     time.Duration // Write deadline for control frames
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      90 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       64,
	}
}

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	Client  ClientConfig
	Backoff Backoff
}

// DefaultControllerConfig returns sensible defaults.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		Client:  DefaultClientConfig(),
		Backoff: DefaultBackoff(),
	}
}

// StoreWriter is the write side of the feed store. The controller is its only caller.
type StoreWriter interface {
	Publish(payload model.LivePayload)
	SetStatus(status model.ConnectionStatus)
	SetReconnectCount(n int)
}

// Observer receives controller events for metrics.
type Observer interface {
	StatusChanged(status model.ConnectionStatus)
	MessageReceived()
	DecodeFailed(err error)
	RetryScheduled(attempt int, delay time.Duration)
}

type nopObserver struct{}

func (nopObserver) StatusChanged(model.ConnectionStatus) {}
func (nopObserver) MessageReceived()                     {}
func (nopObserver) DecodeFailed(error)                   {}
func (nopObserver) RetryScheduled(int, time.Duration)    {}
