// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Live feed status, reconnect count and message rates
//   - Dashboard poll cycles and failures
//   - Tick writer rows and flush errors
//   - Relay HTTP requests
package metrics
