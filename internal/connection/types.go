package connection

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/libtrack/attendstream/pkg/attend"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrClosed          = errors.New("client closed")
	ErrStaleConnection = errors.New("connection stale (no pong)")
	ErrConnectionLost  = errors.New("connection closed by peer")
)

// Message wraps raw frame data with its receive timestamp. The timestamp is
// what the normalizer falls back to for records without a usable one.
type Message struct {
	Data       []byte
	ReceivedAt time.Time
}

// inboundEnvelope mirrors the server's externally-tagged event union. Exactly
// one field is set on a recognized frame; pointers distinguish an empty list
// from an absent one.
type inboundEnvelope struct {
	AttendanceList *[]attend.Record `json:"AttendanceList"`
	NewAttendance  *attend.Record   `json:"NewAttendance"`
	Error          json.RawMessage  `json:"Error"`
}

// outboundEnvelope is the frame shape for user-originated submissions.
type outboundEnvelope struct {
	Type string               `json:"type"`
	Data attend.SubmitRequest `json:"data"`
}

const outboundTypeNewAttendance = "NewAttendance"

// Config configures the Connection Manager and its transport.
type Config struct {
	URL string // websocket URL (e.g., ws://192.168.1.10:8080/ws)

	InitialBackoff time.Duration // delay before the first retry
	MaxBackoff     time.Duration // cap on the doubled retry delay
	MaxRetries     int           // retries before giving up

	HandshakeTimeout time.Duration // dial deadline
	WriteTimeout     time.Duration // per-send deadline
	PingInterval     time.Duration // keepalive ping cadence
	PingTimeout      time.Duration // max silence before the link counts as stale
	BufferSize       int           // inbound message channel buffer
}

// DefaultConfig returns sensible defaults for everything but the URL.
func DefaultConfig() Config {
	return Config{
		InitialBackoff:   1 * time.Second,
		MaxBackoff:       30 * time.Second,
		MaxRetries:       10,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     15 * time.Second,
		PingTimeout:      60 * time.Second,
		BufferSize:       256,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.InitialBackoff == 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = d.PingTimeout
	}
	if c.BufferSize == 0 {
		c.BufferSize = d.BufferSize
	}
	return c
}

// Hooks carries the observer callbacks injected at construction. Callbacks
// run on manager goroutines after the transition is committed and must not
// block; observers read authoritative snapshots from the owning client.
type Hooks struct {
	StateChange  func(attend.ConnectionState)
	WindowChange func()
}
