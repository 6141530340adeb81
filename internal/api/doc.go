// Package api is the REST client for the trading backend that serves the
// live feed.
//
// Snapshot endpoints (klines, portfolio, decisions, signals, market mind,
// performance, system status) are retried on 5xx and 429. Command endpoints
// (trigger-analysis, pause, resume) and the market mind update are sent once.
package api
