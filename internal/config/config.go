package config

import (
	"fmt"
	"time"
)

// WatcherConfig is the top-level configuration for cmd/attendwatch.
type WatcherConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Connection ConnectionConfig `yaml:"connection"`
	Window     WindowConfig     `yaml:"window"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig locates the attendance stream endpoint.
type ServerConfig struct {
	Host string `yaml:"host"` // required
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// Address returns the host:port target for the stream connection.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ConnectionConfig tunes the stream connection lifecycle.
type ConnectionConfig struct {
	InitialBackoff   time.Duration `yaml:"initial_backoff"`
	MaxBackoff       time.Duration `yaml:"max_backoff"`
	MaxRetries       int           `yaml:"max_retries"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	BufferSize       int           `yaml:"buffer_size"`
}

// WindowConfig bounds the in-memory attendance window.
type WindowConfig struct {
	Capacity int `yaml:"capacity"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}
