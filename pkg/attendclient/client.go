package attendclient

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/libtrack/attendstream/internal/connection"
	"github.com/libtrack/attendstream/internal/window"
	"github.com/libtrack/attendstream/pkg/attend"
)

// Errors surfaced to callers. Transport and protocol conditions never
// propagate as panics; they become state or error values.
var (
	ErrNotConnected    = connection.ErrNotConnected
	ErrClosed          = connection.ErrClosed
	ErrMissingSchoolID = errors.New("school_id is required")
)

// Config configures a Client. Only Address is required.
type Config struct {
	Address string // server host:port
	Path    string // websocket route, default "/ws"

	WindowCapacity int // default 100

	InitialBackoff   time.Duration // default 1s
	MaxBackoff       time.Duration // default 30s
	MaxRetries       int           // default 10
	HandshakeTimeout time.Duration // default 10s
	WriteTimeout     time.Duration // default 10s
	PingInterval     time.Duration // default 15s
	PingTimeout      time.Duration // default 60s
	BufferSize       int           // default 256
}

// NotificationKind discriminates change notifications.
type NotificationKind int

const (
	StateChanged NotificationKind = iota
	WindowChanged
)

// Notification signals a change. Subscribers with full buffers miss
// intermediate notifications, never current state: read the authoritative
// snapshot from the client on receipt.
type Notification struct {
	Kind NotificationKind

	// State is the connection state at the transition, for StateChanged.
	State attend.ConnectionState
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client is the facade over the attendance stream.
type Client struct {
	logger *slog.Logger
	path   string
	win    *window.Window
	mgr    *connection.Manager

	mu     sync.Mutex
	subs   map[int]chan Notification
	nextID int
	closed bool
}

// New creates a Client. It does not connect until Start.
func New(cfg Config, opts ...Option) *Client {
	return newClient(cfg, nil, opts...)
}

// newClient exists so tests can substitute the dialer.
func newClient(cfg Config, dial connection.Dialer, opts ...Option) *Client {
	c := &Client{
		subs: make(map[int]chan Notification),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	c.path = cfg.Path
	if c.path == "" {
		c.path = "/ws"
	}
	c.win = window.New(cfg.WindowCapacity)

	connCfg := connection.Config{
		URL:              streamURL(cfg.Address, c.path),
		InitialBackoff:   cfg.InitialBackoff,
		MaxBackoff:       cfg.MaxBackoff,
		MaxRetries:       cfg.MaxRetries,
		HandshakeTimeout: cfg.HandshakeTimeout,
		WriteTimeout:     cfg.WriteTimeout,
		PingInterval:     cfg.PingInterval,
		PingTimeout:      cfg.PingTimeout,
		BufferSize:       cfg.BufferSize,
	}

	hooks := connection.Hooks{
		StateChange: func(s attend.ConnectionState) {
			c.broadcast(Notification{Kind: StateChanged, State: s})
		},
		WindowChange: func() {
			c.broadcast(Notification{Kind: WindowChanged})
		},
	}

	c.mgr = connection.NewManager(connCfg, c.win, dial, hooks, c.logger.With("component", "connection"))
	return c
}

// Start begins connecting. The context bounds in-flight dial attempts; it
// does not replace Close.
func (c *Client) Start(ctx context.Context) error {
	return c.mgr.Start(ctx)
}

// Window returns the current attendance window, newest first. The returned
// slice is a copy.
func (c *Client) Window() []attend.AttendanceEvent {
	return c.win.Snapshot()
}

// Status returns the current connection state.
func (c *Client) Status() attend.ConnectionState {
	return c.mgr.State()
}

// Submit sends a user-originated attendance event. Rejected synchronously
// with ErrNotConnected while offline; a transport failure is returned to the
// caller and triggers reconnection.
func (c *Client) Submit(req attend.SubmitRequest) error {
	if req.SchoolID == "" {
		return ErrMissingSchoolID
	}
	return c.mgr.Submit(req)
}

// ForceReconnect drops any current connection and dials immediately. This is
// also the way out of the fatal retries-exhausted state.
func (c *Client) ForceReconnect() {
	c.mgr.ForceReconnect()
}

// SetAddress points the client at a different server. A changed address
// forces a reconnect.
func (c *Client) SetAddress(addr string) {
	c.mgr.SetURL(streamURL(addr, c.path))
}

// Subscribe registers for change notifications. The returned cancel func
// unregisters and closes the channel; it is safe to call more than once.
func (c *Client) Subscribe() (<-chan Notification, func()) {
	ch := make(chan Notification, 16)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextID
	c.nextID++
	c.subs[id] = ch
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Close shuts the client down: the socket is closed, pending retries are
// cancelled, and no further reconnection is attempted. Closing twice is a
// no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.mgr.Close()

	c.mu.Lock()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.mu.Unlock()

	return err
}

// broadcast fans a notification out to subscribers without blocking; slow
// consumers coalesce by re-reading current state.
func (c *Client) broadcast(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for _, ch := range c.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

func streamURL(addr, path string) string {
	return "ws://" + addr + path
}
