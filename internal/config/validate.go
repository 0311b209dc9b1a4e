package config

import "errors"

// Validate checks that all required fields are set and values are valid.
func (c *WatcherConfig) Validate() error {
	if c.Server.Host == "" {
		return errors.New("server.host is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.New("server.port must be in 1-65535")
	}

	if c.Connection.InitialBackoff <= 0 {
		return errors.New("connection.initial_backoff must be positive")
	}
	if c.Connection.MaxBackoff < c.Connection.InitialBackoff {
		return errors.New("connection.max_backoff must be >= connection.initial_backoff")
	}
	if c.Connection.MaxRetries < 1 {
		return errors.New("connection.max_retries must be >= 1")
	}
	if c.Connection.BufferSize < 1 {
		return errors.New("connection.buffer_size must be >= 1")
	}

	if c.Window.Capacity < 1 {
		return errors.New("window.capacity must be >= 1")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return errors.New("metrics.port must be in 1-65535")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("log.level must be one of debug, info, warn, error")
	}

	return nil
}
