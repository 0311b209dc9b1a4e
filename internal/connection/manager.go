package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/libtrack/attendstream/internal/backoff"
	"github.com/libtrack/attendstream/internal/metrics"
	"github.com/libtrack/attendstream/internal/window"
	"github.com/libtrack/attendstream/pkg/attend"
)

// Manager owns the socket lifecycle and the connection state machine. The
// attendance window and the connection state are mutated only through its
// serialized entry points.
type Manager struct {
	cfg    Config
	policy backoff.Policy
	dial   Dialer
	win    *window.Window
	hooks  Hooks
	logger *slog.Logger

	mu        sync.Mutex
	url       string
	state     attend.ConnectionState
	transport Transport
	retry     *time.Timer
	gen       int // connection generation; bumps invalidate older goroutines
	attempts  int // consecutive failed attempts
	started   bool
	closed    bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewManager creates a Connection Manager. A nil dialer gets the real
// websocket dialer; tests pass a fake.
func NewManager(cfg Config, win *window.Window, dial Dialer, hooks Hooks, logger *slog.Logger) *Manager {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if dial == nil {
		dial = NewDialer(cfg, logger)
	}

	return &Manager{
		cfg: cfg,
		policy: backoff.Policy{
			Initial:    cfg.InitialBackoff,
			Max:        cfg.MaxBackoff,
			MaxRetries: cfg.MaxRetries,
		},
		dial:   dial,
		win:    win,
		hooks:  hooks,
		logger: logger,
		url:    cfg.URL,
		state:  attend.ConnectionState{Phase: attend.Disconnected},
	}
}

// Start begins connecting. Idempotent; returns ErrClosed after Close.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	m.connect()
	return nil
}

// State returns a copy of the current connection state.
func (m *Manager) State() attend.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetURL changes the connection target. A changed address forces an
// immediate reconnect.
func (m *Manager) SetURL(url string) {
	m.mu.Lock()
	if url == m.url {
		m.mu.Unlock()
		return
	}
	m.url = url
	m.mu.Unlock()

	m.ForceReconnect()
}

// ForceReconnect closes any open socket and dials immediately, from any
// state. It also clears a fatal give-up, starting a fresh retry budget.
func (m *Manager) ForceReconnect() {
	m.mu.Lock()
	if m.closed || !m.started {
		m.mu.Unlock()
		return
	}
	m.stopRetryLocked()
	m.attempts = 0
	m.mu.Unlock()

	m.connect()
}

// Submit sends a user-originated attendance event. Only honored while
// connected: otherwise it rejects synchronously with ErrNotConnected, with
// no queuing and no state change. A transport-level send failure moves the
// manager to Reconnecting, as if the connection had closed.
func (m *Manager) Submit(req attend.SubmitRequest) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state.Phase != attend.Connected || m.transport == nil {
		m.mu.Unlock()
		metrics.SubmissionsTotal.WithLabelValues(metrics.SubmitRejected).Inc()
		return ErrNotConnected
	}
	t := m.transport
	gen := m.gen
	m.mu.Unlock()

	data, err := json.Marshal(outboundEnvelope{
		Type: outboundTypeNewAttendance,
		Data: req,
	})
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}

	if err := t.Send(data); err != nil {
		metrics.SubmissionsTotal.WithLabelValues(metrics.SubmitFailed).Inc()
		m.handleDisconnect(gen, err)
		return fmt.Errorf("send submission: %w", err)
	}

	metrics.SubmissionsTotal.WithLabelValues(metrics.SubmitOK).Inc()
	return nil
}

// Close tears everything down: the pending retry timer, any in-flight dial,
// and the open socket. No further reconnection is scheduled. Closing twice
// is a no-op.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.stopRetryLocked()
	m.gen++
	if m.cancel != nil {
		m.cancel()
	}
	t := m.transport
	m.transport = nil
	m.state = attend.ConnectionState{Phase: attend.Disconnected}
	m.mu.Unlock()

	if t != nil {
		t.Close()
	}
	m.wg.Wait()

	metrics.ConnectionUp.Set(0)
	m.logger.Info("connection manager closed")
	return nil
}

// connect moves to Connecting and dials on a fresh goroutine.
func (m *Manager) connect() {
	m.mu.Lock()
	if m.closed || !m.started {
		m.mu.Unlock()
		return
	}
	m.stopRetryLocked()
	if m.transport != nil {
		m.transport.Close()
		m.transport = nil
	}
	m.gen++
	gen := m.gen
	ctx := m.ctx
	url := m.url
	st := attend.ConnectionState{Phase: attend.Connecting, Attempt: m.attempts}
	m.state = st
	m.mu.Unlock()

	m.notifyState(st)
	m.logger.Info("connecting", "url", url, "attempt", st.Attempt)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		t, err := m.dial(ctx, url)

		m.mu.Lock()
		if m.closed || gen != m.gen {
			m.mu.Unlock()
			if err == nil {
				t.Close()
			}
			return
		}
		if err != nil {
			m.mu.Unlock()
			m.logger.Warn("connect failed", "url", url, "error", err)
			m.handleDisconnect(gen, err)
			return
		}

		m.transport = t
		m.attempts = 0
		st := attend.ConnectionState{Phase: attend.Connected}
		m.state = st
		m.mu.Unlock()

		metrics.ConnectsTotal.Inc()
		metrics.ConnectionUp.Set(1)
		m.notifyState(st)
		m.logger.Info("connected", "url", url)

		m.wg.Add(1)
		go m.readLoop(gen, t)
	}()
}

// readLoop pumps one transport's frames and errors until the connection dies
// or the manager shuts down.
func (m *Manager) readLoop(gen int, t Transport) {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return

		case err := <-t.Errors():
			m.logger.Warn("connection lost", "error", err)
			m.handleDisconnect(gen, err)
			return

		case msg, ok := <-t.Messages():
			if !ok {
				m.handleDisconnect(gen, ErrConnectionLost)
				return
			}
			m.dispatch(msg)
		}
	}
}

// dispatch routes one inbound frame. Malformed or unrecognized frames are
// dropped with a warning; they never alter connection state.
func (m *Manager) dispatch(msg Message) {
	var env inboundEnvelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		metrics.FramesDroppedTotal.Inc()
		m.logger.Warn("malformed frame dropped", "error", err, "size", len(msg.Data))
		return
	}

	switch {
	case env.AttendanceList != nil:
		metrics.FramesTotal.WithLabelValues(metrics.FrameList).Inc()
		m.win.ReplaceAll(*env.AttendanceList, msg.ReceivedAt)
		m.logger.Debug("attendance list synced", "count", len(*env.AttendanceList))
		m.notifyWindow()

	case env.NewAttendance != nil:
		metrics.FramesTotal.WithLabelValues(metrics.FrameEvent).Inc()
		ev, inserted := m.win.Insert(*env.NewAttendance, msg.ReceivedAt)
		if !inserted {
			m.logger.Debug("duplicate attendance dropped", "id", ev.ID)
			return
		}
		m.logger.Debug("attendance recorded",
			"id", ev.ID,
			"school_id", ev.SchoolID,
		)
		m.notifyWindow()

	case env.Error != nil:
		metrics.FramesTotal.WithLabelValues(metrics.FrameError).Inc()
		m.logger.Warn("server reported error", "detail", string(env.Error))

	default:
		metrics.FramesDroppedTotal.Inc()
		m.logger.Warn("unrecognized frame dropped", "size", len(msg.Data))
	}
}

// handleDisconnect is the single failure path: it schedules a retry per the
// backoff policy or, once the budget is spent, parks in the terminal fatal
// state until an explicit ForceReconnect.
func (m *Manager) handleDisconnect(gen int, cause error) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	if m.transport != nil {
		m.transport.Close()
		m.transport = nil
	}
	metrics.ConnectionUp.Set(0)

	delay, ok := m.policy.Next(m.attempts)
	if !ok {
		st := attend.ConnectionState{
			Phase:   attend.Disconnected,
			Attempt: m.attempts,
			Fatal:   true,
		}
		m.state = st
		m.mu.Unlock()

		m.notifyState(st)
		m.logger.Error("retries exhausted, giving up",
			"attempts", m.attempts,
			"cause", cause,
		)
		return
	}

	m.attempts++
	st := attend.ConnectionState{
		Phase:       attend.Reconnecting,
		Attempt:     m.attempts,
		NextRetryAt: time.Now().Add(delay),
	}
	m.state = st

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		if m.closed || m.retry != timer {
			m.mu.Unlock()
			return
		}
		m.retry = nil
		m.mu.Unlock()
		m.connect()
	})
	m.retry = timer
	m.mu.Unlock()

	metrics.ReconnectsTotal.Inc()
	m.notifyState(st)
	m.logger.Warn("reconnecting",
		"attempt", st.Attempt,
		"delay", delay,
		"cause", cause,
	)
}

// stopRetryLocked cancels a pending retry timer. Caller holds m.mu.
func (m *Manager) stopRetryLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

func (m *Manager) notifyState(s attend.ConnectionState) {
	if m.hooks.StateChange != nil {
		m.hooks.StateChange(s)
	}
}

func (m *Manager) notifyWindow() {
	metrics.WindowSize.Set(float64(m.win.Len()))
	if m.hooks.WindowChange != nil {
		m.hooks.WindowChange()
	}
}
