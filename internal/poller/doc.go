// Package poller refreshes the dashboard snapshot from the REST API.
//
// Every interval it fetches klines, the portfolio and recent decisions
// concurrently. A failed cycle keeps the previous snapshot and records
// the error.
package poller
