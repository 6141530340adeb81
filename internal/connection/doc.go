// Package connection implements the live feed connection controller.
//
// The controller:
//   - Holds at most one WebSocket connection to the streaming endpoint
//   - Reconnects with bounded exponential backoff (1s doubling to 30s, 10 retries)
//   - Gives up after the retry budget and reports a distinct given_up status
//   - Decodes every inbound frame and publishes successful decodes to the feed store
//
// Lifecycle decisions live in Machine, a pure (state, event) -> (state, effects)
// transition function. Controller executes the effects on a single goroutine.
package connection
