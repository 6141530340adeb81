package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID     = "feedwatch"
	DefaultRestURL        = "http://localhost:8000"
	DefaultAPITimeout     = 10 * time.Second
	DefaultMaxRetries     = 3
	DefaultStreamPath     = "/ws/live"
	DefaultConnectTimeout = 10 * time.Second
	DefaultPingInterval   = 30 * time.Second
	DefaultPingTimeout    = 90 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
	DefaultStreamBuffer   = 64
	DefaultBaseDelay      = 1 * time.Second
	DefaultMaxDelay       = 30 * time.Second
	DefaultMaxAttempts    = 10
	DefaultRelayAddr      = ":8080"
	DefaultPollInterval   = 15 * time.Second
	DefaultTimeframe      = "1h"
	DefaultKlineLimit     = 120
	DefaultDecisionLimit  = 30
	DefaultDBPort         = 5432
	DefaultDBSSLMode      = "prefer"
	DefaultMaxConns       = 10
	DefaultMinConns       = 2
	DefaultBatchSize      = 500
	DefaultFlushInterval  = 1 * time.Second
	DefaultMetricsPath    = "/metrics"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

func (c *Config) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}

	// Stream defaults
	if c.Stream.Path == "" {
		c.Stream.Path = DefaultStreamPath
	}
	if c.Stream.ConnectTimeout == 0 {
		c.Stream.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = DefaultPingInterval
	}
	if c.Stream.PingTimeout == 0 {
		c.Stream.PingTimeout = DefaultPingTimeout
	}
	if c.Stream.WriteTimeout == 0 {
		c.Stream.WriteTimeout = DefaultWriteTimeout
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultStreamBuffer
	}
	if c.Stream.Backoff.BaseDelay == 0 {
		c.Stream.Backoff.BaseDelay = DefaultBaseDelay
	}
	if c.Stream.Backoff.MaxDelay == 0 {
		c.Stream.Backoff.MaxDelay = DefaultMaxDelay
	}
	if c.Stream.Backoff.MaxAttempts == 0 {
		c.Stream.Backoff.MaxAttempts = DefaultMaxAttempts
	}

	if c.Relay.Addr == "" {
		c.Relay.Addr = DefaultRelayAddr
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.Timeframe == "" {
		c.Poller.Timeframe = DefaultTimeframe
	}
	if c.Poller.KlineLimit == 0 {
		c.Poller.KlineLimit = DefaultKlineLimit
	}
	if c.Poller.DecisionLimit == 0 {
		c.Poller.DecisionLimit = DefaultDecisionLimit
	}

	// Database defaults
	applyDBDefaults(&c.Database.Timescale)

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
