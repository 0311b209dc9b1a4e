package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the capability surface the manager needs from one established
// stream connection.
type Transport interface {
	// Send writes one frame. Bounded by the configured write timeout.
	Send(data []byte) error

	// Messages returns the channel of inbound frames.
	Messages() <-chan Message

	// Errors returns a channel that yields the terminal connection error.
	Errors() <-chan error

	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// Dialer opens a Transport to the given URL. The manager holds one; tests
// substitute a fake.
type Dialer func(ctx context.Context, url string) (Transport, error)

// NewDialer returns a Dialer backed by a gorilla websocket connection with
// keepalive pings and a stale-connection watchdog.
func NewDialer(cfg Config, logger *slog.Logger) Dialer {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, url string) (Transport, error) {
		dialer := websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		}

		conn, _, err := dialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, err
		}

		t := &wsTransport{
			cfg:        cfg,
			logger:     logger,
			conn:       conn,
			messages:   make(chan Message, cfg.BufferSize),
			errors:     make(chan error, 1),
			done:       make(chan struct{}),
			lastPongAt: time.Now(),
		}

		// Server-initiated pings refresh the liveness clock and get a pong back.
		conn.SetPingHandler(func(data string) error {
			t.touch()
			return conn.WriteControl(
				websocket.PongMessage,
				[]byte(data),
				time.Now().Add(time.Second),
			)
		})
		conn.SetPongHandler(func(string) error {
			t.touch()
			return nil
		})

		go t.readLoop()
		go t.heartbeatLoop()

		logger.Debug("websocket connected", "url", url)
		return t, nil
	}
}

// wsTransport adapts a gorilla connection to the Transport interface.
type wsTransport struct {
	cfg    Config
	logger *slog.Logger
	conn   *websocket.Conn

	messages chan Message
	errors   chan error
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	mu         sync.Mutex
	closed     bool
	lastPongAt time.Time
}

func (t *wsTransport) Send(data []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrNotConnected
	}
	t.mu.Unlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Messages() <-chan Message {
	return t.messages
}

func (t *wsTransport) Errors() <-chan error {
	return t.errors
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	close(t.done)

	t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return t.conn.Close()
}

func (t *wsTransport) touch() {
	t.mu.Lock()
	t.lastPongAt = time.Now()
	t.mu.Unlock()
}

func (t *wsTransport) fail(err error) {
	select {
	case t.errors <- err:
	default:
	}
}

// readLoop pumps inbound frames into the messages channel.
func (t *wsTransport) readLoop() {
	for {
		_, data, err := t.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			// Errors after Close() are expected noise.
			select {
			case <-t.done:
			default:
				t.fail(err)
			}
			return
		}

		msg := Message{Data: data, ReceivedAt: receivedAt}
		select {
		case t.messages <- msg:
		case <-t.done:
			return
		default:
			t.logger.Warn("message buffer full, dropping frame")
		}
	}
}

// heartbeatLoop sends keepalive pings and flags stale connections.
func (t *wsTransport) heartbeatLoop() {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(t.cfg.WriteTimeout)
			if err := t.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				t.logger.Debug("failed to send ping", "error", err)
			}

			t.mu.Lock()
			lastPong := t.lastPongAt
			t.mu.Unlock()

			if time.Since(lastPong) > t.cfg.PingTimeout {
				t.logger.Warn("no pong received, connection stale",
					"last_pong", lastPong,
					"timeout", t.cfg.PingTimeout,
				)
				t.fail(ErrStaleConnection)
				return
			}
		}
	}
}
