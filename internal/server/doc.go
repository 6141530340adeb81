// Package server relays the live feed to browsers over HTTP.
//
// Routes:
//   - GET /health: feed, dashboard and database state
//   - GET /feed/latest: current store snapshot
//   - GET /feed/stream: WebSocket push of every store snapshot
//   - GET, POST /feed/enabled: read or toggle the feed
//   - GET /api/dashboard: latest dashboard poll
//   - GET /metrics (configurable): Prometheus exposition
//
// Each /feed/stream connection holds a presence lease, so a feed gated on
// presence suspends its upstream socket while nobody is watching.
package server
