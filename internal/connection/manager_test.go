package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/libtrack/attendstream/internal/window"
	"github.com/libtrack/attendstream/pkg/attend"
)

// fakeTransport is an in-memory Transport; tests push frames and errors.
type fakeTransport struct {
	messages chan Message
	errs     chan error

	mu      sync.Mutex
	sent    [][]byte
	sendErr error
	closed  bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		messages: make(chan Message, 16),
		errs:     make(chan error, 1),
	}
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeTransport) Messages() <-chan Message { return f.messages }
func (f *fakeTransport) Errors() <-chan error     { return f.errs }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) push(t *testing.T, frame string) {
	t.Helper()
	select {
	case f.messages <- Message{Data: []byte(frame), ReceivedAt: time.Now()}:
	case <-time.After(time.Second):
		t.Fatal("push timed out")
	}
}

func (f *fakeTransport) failWith(err error) {
	select {
	case f.errs <- err:
	default:
	}
}

func (f *fakeTransport) sentFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

// fakeDialer hands out fakeTransports, optionally failing the first attempts.
type fakeDialer struct {
	mu         sync.Mutex
	transports []*fakeTransport
	failFirst  int
	dials      int
}

func (d *fakeDialer) dial(ctx context.Context, url string) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dials <= d.failFirst {
		return nil, errors.New("dial refused")
	}
	ft := newFakeTransport()
	d.transports = append(d.transports, ft)
	return ft, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) current(t *testing.T) *fakeTransport {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		t.Fatal("no transport dialed yet")
	}
	return d.transports[len(d.transports)-1]
}

func testConfig() Config {
	return Config{
		URL:            "ws://test.invalid/ws",
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
		MaxRetries:     3,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startManager(t *testing.T, cfg Config, hooks Hooks) (*Manager, *fakeDialer, *window.Window) {
	t.Helper()
	d := &fakeDialer{}
	win := window.New(100)
	m := NewManager(cfg, win, d.dial, hooks, nil)
	t.Cleanup(func() { m.Close() })

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return m, d, win
}

func TestManager_ConnectsAndDispatchesEvents(t *testing.T) {
	m, d, win := startManager(t, testConfig(), Hooks{})

	waitFor(t, "connected", func() bool { return m.State().Phase == attend.Connected })

	ft := d.current(t)
	ft.push(t, `{"NewAttendance":{"id":"a1","school_id":"S-1","full_name":"Maria Santos","time_in_date":"2025-03-14T09:26:53Z","classification":"Senior"}}`)

	waitFor(t, "window insert", func() bool { return win.Len() == 1 })

	ev := win.Snapshot()[0]
	if ev.ID != "a1" || ev.SchoolID != "S-1" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if got := m.State(); got.Attempt != 0 {
		t.Errorf("Attempt = %d after clean connect, want 0", got.Attempt)
	}
}

func TestManager_FullListSync(t *testing.T) {
	m, d, win := startManager(t, testConfig(), Hooks{})
	waitFor(t, "connected", func() bool { return m.State().Phase == attend.Connected })

	ft := d.current(t)
	ft.push(t, `{"AttendanceList":[{"id":"a1","school_id":"S-1"},{"id":"a2","school_id":"S-2"}]}`)

	waitFor(t, "list sync", func() bool { return win.Len() == 2 })

	snap := win.Snapshot()
	if snap[0].ID != "a1" || snap[1].ID != "a2" {
		t.Errorf("list order not preserved: %q, %q", snap[0].ID, snap[1].ID)
	}
}

func TestManager_MalformedFrameIsDropped(t *testing.T) {
	m, d, win := startManager(t, testConfig(), Hooks{})
	waitFor(t, "connected", func() bool { return m.State().Phase == attend.Connected })

	ft := d.current(t)
	ft.push(t, `this is not json`)
	ft.push(t, `{"SomethingElse":{"id":"x"}}`)
	ft.push(t, `{"Error":{"DatabaseError":"locked"}}`)

	// A subsequent valid frame proves the loop survived.
	ft.push(t, `{"NewAttendance":{"id":"ok"}}`)
	waitFor(t, "valid frame after garbage", func() bool { return win.Len() == 1 })

	if got := m.State().Phase; got != attend.Connected {
		t.Errorf("phase = %v after protocol garbage, want connected", got)
	}
	if win.Snapshot()[0].ID != "ok" {
		t.Errorf("garbage frames reached the window: %+v", win.Snapshot())
	}
}

func TestManager_SubmitWhileDisconnected(t *testing.T) {
	d := &fakeDialer{}
	win := window.New(100)
	m := NewManager(testConfig(), win, d.dial, Hooks{}, nil)
	defer m.Close()

	// Not started: state is Disconnected.
	err := m.Submit(attend.SubmitRequest{SchoolID: "S-1", FullName: "Maria"})
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Submit while disconnected = %v, want ErrNotConnected", err)
	}
	if win.Len() != 0 {
		t.Error("rejected submit touched the window")
	}
	if got := m.State().Phase; got != attend.Disconnected {
		t.Errorf("phase = %v, want disconnected", got)
	}
}

func TestManager_SubmitSendsEnvelope(t *testing.T) {
	m, d, _ := startManager(t, testConfig(), Hooks{})
	waitFor(t, "connected", func() bool { return m.State().Phase == attend.Connected })

	req := attend.SubmitRequest{SchoolID: "S-7", FullName: "Juan Cruz", PurposeLabel: "Research"}
	if err := m.Submit(req); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	frames := d.current(t).sentFrames()
	if len(frames) != 1 {
		t.Fatalf("sent %d frames, want 1", len(frames))
	}

	var got struct {
		Type string               `json:"type"`
		Data attend.SubmitRequest `json:"data"`
	}
	if err := json.Unmarshal(frames[0], &got); err != nil {
		t.Fatalf("sent frame not json: %v", err)
	}
	if got.Type != "NewAttendance" || got.Data != req {
		t.Errorf("sent envelope = %+v", got)
	}
}

func TestManager_SubmitOmitsEmptyOptionals(t *testing.T) {
	m, d, _ := startManager(t, testConfig(), Hooks{})
	waitFor(t, "connected", func() bool { return m.State().Phase == attend.Connected })

	if err := m.Submit(attend.SubmitRequest{SchoolID: "S-7", FullName: "Juan Cruz"}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	frame := string(d.current(t).sentFrames()[0])
	for _, field := range []string{"classification", "purpose_label"} {
		if strings.Contains(frame, field) {
			t.Errorf("empty optional %q serialized: %s", field, frame)
		}
	}
}

func TestManager_AbnormalCloseTriggersReconnect(t *testing.T) {
	m, d, _ := startManager(t, testConfig(), Hooks{})
	waitFor(t, "connected", func() bool { return m.State().Phase == attend.Connected })

	d.current(t).failWith(errors.New("connection reset"))

	waitFor(t, "reconnecting", func() bool {
		s := m.State()
		return s.Phase == attend.Reconnecting || s.Phase == attend.Connecting || s.Phase == attend.Connected
	})

	// First failure schedules retry number one and eventually redials.
	waitFor(t, "second dial", func() bool { return d.dialCount() >= 2 })
	waitFor(t, "reconnected", func() bool { return m.State().Phase == attend.Connected })

	if got := m.State().Attempt; got != 0 {
		t.Errorf("Attempt = %d after successful reconnect, want 0", got)
	}
}

func TestManager_ReconnectingStateCarriesAttempt(t *testing.T) {
	cfg := testConfig()
	cfg.InitialBackoff = 200 * time.Millisecond // long enough to observe
	cfg.MaxBackoff = 400 * time.Millisecond

	var mu sync.Mutex
	var states []attend.ConnectionState
	hooks := Hooks{StateChange: func(s attend.ConnectionState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}}

	m, d, _ := startManager(t, cfg, hooks)
	waitFor(t, "connected", func() bool { return m.State().Phase == attend.Connected })

	d.current(t).failWith(errors.New("connection reset"))
	waitFor(t, "reconnecting observed", func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, s := range states {
			if s.Phase == attend.Reconnecting {
				return true
			}
		}
		return false
	})

	mu.Lock()
	defer mu.Unlock()
	for _, s := range states {
		if s.Phase == attend.Reconnecting {
			if s.Attempt != 1 {
				t.Errorf("first Reconnecting Attempt = %d, want 1", s.Attempt)
			}
			if s.NextRetryAt.IsZero() {
				t.Error("Reconnecting state missing NextRetryAt")
			}
			break
		}
	}
}

func TestManager_SendFailureTriggersReconnect(t *testing.T) {
	m, d, _ := startManager(t, testConfig(), Hooks{})
	waitFor(t, "connected", func() bool { return m.State().Phase == attend.Connected })

	ft := d.current(t)
	ft.mu.Lock()
	ft.sendErr = errors.New("broken pipe")
	ft.mu.Unlock()

	err := m.Submit(attend.SubmitRequest{SchoolID: "S-1", FullName: "Maria"})
	if err == nil {
		t.Fatal("Submit succeeded over a broken transport")
	}

	waitFor(t, "failover", func() bool { return d.dialCount() >= 2 })
}

func TestManager_GivesUpAfterMaxRetries(t *testing.T) {
	cfg := testConfig()
	d := &fakeDialer{failFirst: 1 << 30} // never connects
	win := window.New(100)
	m := NewManager(cfg, win, d.dial, Hooks{}, nil)
	defer m.Close()

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, "fatal state", func() bool {
		s := m.State()
		return s.Phase == attend.Disconnected && s.Fatal
	})

	// 1 initial attempt + MaxRetries retries, then parked.
	if got, want := d.dialCount(), 1+cfg.MaxRetries; got != want {
		t.Errorf("dial count = %d, want %d", got, want)
	}

	dials := d.dialCount()
	time.Sleep(5 * cfg.MaxBackoff)
	if d.dialCount() != dials {
		t.Error("manager kept dialing after giving up")
	}

	if err := m.Submit(attend.SubmitRequest{SchoolID: "S-1"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Submit in fatal state = %v, want ErrNotConnected", err)
	}
}

func TestManager_ForceReconnectResumesAfterFatal(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1
	d := &fakeDialer{failFirst: 2} // initial attempt and the single retry fail
	win := window.New(100)
	m := NewManager(cfg, win, d.dial, Hooks{}, nil)
	defer m.Close()

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "fatal state", func() bool { return m.State().Fatal })

	m.ForceReconnect()
	waitFor(t, "connected after manual reconnect", func() bool {
		return m.State().Phase == attend.Connected
	})
}

func TestManager_WindowEvictionAtCapacity(t *testing.T) {
	m, d, win := startManager(t, testConfig(), Hooks{})
	waitFor(t, "connected", func() bool { return m.State().Phase == attend.Connected })

	ft := d.current(t)
	for i := 0; i < 100; i++ {
		ft.push(t, fmt.Sprintf(`{"NewAttendance":{"id":"e%d","school_id":"S-%d"}}`, i, i))
	}
	waitFor(t, "window full", func() bool { return win.Len() == 100 })

	ft.push(t, `{"NewAttendance":{"id":"e100","school_id":"S-100"}}`)
	waitFor(t, "101st processed", func() bool { return win.Contains("e100") })

	if win.Len() != 100 {
		t.Errorf("window size = %d after 101 events, want 100", win.Len())
	}
	snap := win.Snapshot()
	if snap[0].ID != "e100" {
		t.Errorf("newest = %q, want e100", snap[0].ID)
	}
	if win.Contains("e0") {
		t.Error("oldest event e0 not evicted")
	}
}

func TestManager_SetURLForcesReconnect(t *testing.T) {
	m, d, _ := startManager(t, testConfig(), Hooks{})
	waitFor(t, "connected", func() bool { return m.State().Phase == attend.Connected })

	first := d.current(t)
	m.SetURL("ws://other.invalid/ws")

	waitFor(t, "redial", func() bool { return d.dialCount() >= 2 })
	waitFor(t, "old transport closed", func() bool {
		first.mu.Lock()
		defer first.mu.Unlock()
		return first.closed
	})

	// Same URL again is a no-op.
	dials := d.dialCount()
	m.SetURL("ws://other.invalid/ws")
	time.Sleep(20 * time.Millisecond)
	if d.dialCount() != dials {
		t.Error("unchanged URL forced a reconnect")
	}
}

func TestManager_CloseStopsReconnection(t *testing.T) {
	cfg := testConfig()
	cfg.InitialBackoff = 50 * time.Millisecond
	d := &fakeDialer{failFirst: 1 << 30}
	m := NewManager(cfg, window.New(100), d.dial, Hooks{}, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "first dial", func() bool { return d.dialCount() >= 1 })

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	dials := d.dialCount()
	time.Sleep(4 * cfg.InitialBackoff)
	if d.dialCount() != dials {
		t.Error("pending retry survived Close")
	}

	// Closing twice is a no-op.
	if err := m.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if err := m.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after Close = %v, want ErrClosed", err)
	}
}
