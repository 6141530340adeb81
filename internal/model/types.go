package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Connection Status
// -----------------------------------------------------------------------------

// ConnectionStatus is the consumer-visible state of a live feed.
type ConnectionStatus string

const (
	StatusConnecting ConnectionStatus = "connecting"
	StatusOpen       ConnectionStatus = "open"
	StatusClosed     ConnectionStatus = "closed"
	StatusError      ConnectionStatus = "error"

	// StatusGivenUp is terminal for the current activation: the reconnect
	// budget is spent and no retry is pending.
	StatusGivenUp ConnectionStatus = "given_up"
)

// AllStatuses lists every status in display order.
var AllStatuses = []ConnectionStatus{
	StatusConnecting,
	StatusOpen,
	StatusClosed,
	StatusError,
	StatusGivenUp,
}

// Valid reports whether s is a known status.
func (s ConnectionStatus) Valid() bool {
	switch s {
	case StatusConnecting, StatusOpen, StatusClosed, StatusError, StatusGivenUp:
		return true
	}
	return false
}

func (s ConnectionStatus) String() string {
	return string(s)
}

// Label returns the short indicator text a dashboard shows for s.
func (s ConnectionStatus) Label() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "live"
	case StatusClosed, StatusError:
		return "reconnecting"
	case StatusGivenUp:
		return "offline"
	}
	return "unknown"
}

// -----------------------------------------------------------------------------
// Live Payload
// -----------------------------------------------------------------------------

// LivePayload is one decoded event from the streaming endpoint.
// A new payload replaces the previous one wholesale.
type LivePayload struct {
	Timestamp           time.Time       // Backend emit time (UTC)
	Symbol              string          // Trading pair, e.g. "BTCUSDT"
	Price               decimal.Decimal // Latest price
	LatestDecisionID    *int64          // Most recent AI decision id, nil if none yet
	LatestDecisionLabel *string         // "buy", "sell" or "hold", nil if none yet
}

// DecisionID returns the latest decision id, if any.
func (p LivePayload) DecisionID() (int64, bool) {
	if p.LatestDecisionID == nil {
		return 0, false
	}
	return *p.LatestDecisionID, true
}

// DecisionLabel returns the latest decision label, if any.
func (p LivePayload) DecisionLabel() (string, bool) {
	if p.LatestDecisionLabel == nil {
		return "", false
	}
	return *p.LatestDecisionLabel, true
}

// Clone returns a deep copy so callers cannot alias the pointer fields.
func (p LivePayload) Clone() LivePayload {
	c := p
	if p.LatestDecisionID != nil {
		id := *p.LatestDecisionID
		c.LatestDecisionID = &id
	}
	if p.LatestDecisionLabel != nil {
		label := *p.LatestDecisionLabel
		c.LatestDecisionLabel = &label
	}
	return c
}

// Equal reports whether p and o carry the same event.
func (p LivePayload) Equal(o LivePayload) bool {
	return p.Symbol == o.Symbol &&
		p.Timestamp.Equal(o.Timestamp) &&
		p.Price.Equal(o.Price) &&
		equalPtr(p.LatestDecisionID, o.LatestDecisionID) &&
		equalPtr(p.LatestDecisionLabel, o.LatestDecisionLabel)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// livePayloadJSON is the wire shape emitted by the backend.
type livePayloadJSON struct {
	Timestamp        string      `json:"timestamp"`
	Symbol           string      `json:"symbol"`
	Price            json.Number `json:"price"`
	LatestDecision   *string     `json:"latest_decision"`
	LatestDecisionID *int64      `json:"latest_decision_id"`
}

// MarshalJSON renders the payload in the backend's wire shape.
func (p LivePayload) MarshalJSON() ([]byte, error) {
	return json.Marshal(livePayloadJSON{
		Timestamp:        p.Timestamp.UTC().Format(time.RFC3339Nano),
		Symbol:           p.Symbol,
		Price:            json.Number(p.Price.String()),
		LatestDecision:   p.LatestDecisionLabel,
		LatestDecisionID: p.LatestDecisionID,
	})
}

// UnmarshalJSON accepts the wire shape with the same validation as DecodePayload.
func (p *LivePayload) UnmarshalJSON(data []byte) error {
	decoded, err := DecodePayload(data)
	if err != nil {
		return err
	}
	*p = decoded
	return nil
}
