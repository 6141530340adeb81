package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrDecode matches every *DecodeError via errors.Is.
var ErrDecode = errors.New("malformed live payload")

// DecodeError describes why an inbound frame was rejected.
type DecodeError struct {
	Field  string // Offending field, empty when the frame itself is not an object
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrDecode, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrDecode, e.Field, e.Reason)
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// DecodePayload parses one inbound frame into a LivePayload.
//
// Required: timestamp (RFC 3339 string), symbol (non-empty string), price (JSON number).
// Optional: latest_decision_id (integer or null), latest_decision (string or null).
// Unknown fields are ignored.
func DecodePayload(raw []byte) (LivePayload, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return LivePayload{}, &DecodeError{Reason: "not a json object"}
	}
	if fields == nil {
		return LivePayload{}, &DecodeError{Reason: "not a json object"}
	}

	var p LivePayload

	ts, err := requiredString(fields, "timestamp")
	if err != nil {
		return LivePayload{}, err
	}
	p.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return LivePayload{}, &DecodeError{Field: "timestamp", Reason: "not an RFC 3339 time"}
	}
	p.Timestamp = p.Timestamp.UTC()

	p.Symbol, err = requiredString(fields, "symbol")
	if err != nil {
		return LivePayload{}, err
	}
	if strings.TrimSpace(p.Symbol) == "" {
		return LivePayload{}, &DecodeError{Field: "symbol", Reason: "empty"}
	}

	p.Price, err = requiredNumber(fields, "price")
	if err != nil {
		return LivePayload{}, err
	}

	if rawID, ok := fields["latest_decision_id"]; ok && !isNull(rawID) {
		var id int64
		if err := json.Unmarshal(rawID, &id); err != nil {
			return LivePayload{}, &DecodeError{Field: "latest_decision_id", Reason: "not an integer"}
		}
		p.LatestDecisionID = &id
	}

	if rawLabel, ok := fields["latest_decision"]; ok && !isNull(rawLabel) {
		var label string
		if err := json.Unmarshal(rawLabel, &label); err != nil {
			return LivePayload{}, &DecodeError{Field: "latest_decision", Reason: "not a string"}
		}
		p.LatestDecisionLabel = &label
	}

	return p, nil
}

func requiredString(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return "", &DecodeError{Field: name, Reason: "missing"}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &DecodeError{Field: name, Reason: "not a string"}
	}
	return s, nil
}

func requiredNumber(fields map[string]json.RawMessage, name string) (decimal.Decimal, error) {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return decimal.Decimal{}, &DecodeError{Field: name, Reason: "missing"}
	}
	raw = bytes.TrimSpace(raw)
	// Quoted numbers are a type error, not a number.
	if len(raw) == 0 || (raw[0] != '-' && (raw[0] < '0' || raw[0] > '9')) {
		return decimal.Decimal{}, &DecodeError{Field: name, Reason: "not a number"}
	}
	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Decimal{}, &DecodeError{Field: name, Reason: "not a number"}
	}
	return d, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
