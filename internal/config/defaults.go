package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultServerPort       = 8080
	DefaultServerPath       = "/ws"
	DefaultInitialBackoff   = 1 * time.Second
	DefaultMaxBackoff       = 30 * time.Second
	DefaultMaxRetries       = 10
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultPingInterval     = 15 * time.Second
	DefaultPingTimeout      = 60 * time.Second
	DefaultBufferSize       = 256
	DefaultWindowCapacity   = 100
	DefaultMetricsPort      = 9090
	DefaultMetricsPath      = "/metrics"
	DefaultLogLevel         = "info"
)

func (c *WatcherConfig) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.Path == "" {
		c.Server.Path = DefaultServerPath
	}

	// Connection defaults
	if c.Connection.InitialBackoff == 0 {
		c.Connection.InitialBackoff = DefaultInitialBackoff
	}
	if c.Connection.MaxBackoff == 0 {
		c.Connection.MaxBackoff = DefaultMaxBackoff
	}
	if c.Connection.MaxRetries == 0 {
		c.Connection.MaxRetries = DefaultMaxRetries
	}
	if c.Connection.HandshakeTimeout == 0 {
		c.Connection.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.PingInterval == 0 {
		c.Connection.PingInterval = DefaultPingInterval
	}
	if c.Connection.PingTimeout == 0 {
		c.Connection.PingTimeout = DefaultPingTimeout
	}
	if c.Connection.BufferSize == 0 {
		c.Connection.BufferSize = DefaultBufferSize
	}

	// Window defaults
	if c.Window.Capacity == 0 {
		c.Window.Capacity = DefaultWindowCapacity
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}
