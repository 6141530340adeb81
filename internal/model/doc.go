// Package model defines the data types shared by the live feed, the relay and the recorder.
//
// Conventions:
//   - Prices: shopspring decimal, parsed from the JSON number text (no float rounding)
//   - Timestamps: time.Time in UTC, RFC 3339 on the wire
//   - Decision fields are nullable on the wire and pointers in Go
package model
