package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultEngineTimeout     = 30 * time.Second
	DefaultEngineMaxRetries  = 3
	DefaultDialTimeout       = 10 * time.Second
	DefaultHandshakeTimeout  = 60 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultRetryBaseDelay    = 1 * time.Second
	DefaultRetryMaxAttempts  = 20
	DefaultEventBuffer       = 256
	DefaultBatchSize         = 500
	DefaultFlushInterval     = 1 * time.Second
	DefaultQueueSize         = 1000
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultProbeInterval     = 60 * time.Second
	DefaultHealthPort        = 8080
	DefaultMetricsPort       = 9090
	DefaultMetricsPath       = "/metrics"
)

func (c *RelayConfig) applyDefaults() {
	// Engine defaults
	if c.Engine.Timeout == 0 {
		c.Engine.Timeout = DefaultEngineTimeout
	}
	if c.Engine.MaxRetries == 0 {
		c.Engine.MaxRetries = DefaultEngineMaxRetries
	}

	// Link defaults
	if c.Link.DialTimeout == 0 {
		c.Link.DialTimeout = DefaultDialTimeout
	}
	if c.Link.HandshakeTimeout == 0 {
		c.Link.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Link.HeartbeatInterval == 0 {
		c.Link.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Link.WriteTimeout == 0 {
		c.Link.WriteTimeout = DefaultWriteTimeout
	}
	if c.Link.RetryBaseDelay == 0 {
		c.Link.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.Link.RetryMaxAttempts == 0 {
		c.Link.RetryMaxAttempts = DefaultRetryMaxAttempts
	}
	if c.Link.EventBuffer == 0 {
		c.Link.EventBuffer = DefaultEventBuffer
	}

	// Journal defaults
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}
	if c.Journal.QueueSize == 0 {
		c.Journal.QueueSize = DefaultQueueSize
	}
	applyDBDefaults(&c.Journal.Database)

	// Probe defaults
	if c.Probe.Interval == 0 {
		c.Probe.Interval = DefaultProbeInterval
	}

	// Health and metrics defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
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
