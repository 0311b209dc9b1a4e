package window

import (
	"sync"
	"time"

	"github.com/libtrack/attendstream/pkg/attend"
)

// DefaultCapacity matches the server's recent-attendance list length.
const DefaultCapacity = 100

// Window is a thread-safe, capacity-bounded, deduplicated collection of
// attendance events ordered newest-first by receipt. Mutations flow only
// through the connection manager; readers get immutable snapshots.
type Window struct {
	mu       sync.Mutex
	capacity int
	events   []attend.AttendanceEvent // index 0 is newest
	index    map[string]struct{}      // ids currently held

	// Stats
	inserted   int64
	duplicates int64
	evicted    int64
}

// New creates a window. Capacities below 1 fall back to DefaultCapacity.
func New(capacity int) *Window {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Window{
		capacity: capacity,
		events:   make([]attend.AttendanceEvent, 0, capacity),
		index:    make(map[string]struct{}, capacity),
	}
}

// ReplaceAll discards the current contents and rebuilds the window from the
// given raw records in the order given (the server sends newest first).
// Records past capacity and later duplicates of an id are dropped. Used for
// the full-list sync on connect.
func (w *Window) ReplaceAll(raws []attend.Record, receivedAt time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.events = w.events[:0]
	w.index = make(map[string]struct{}, w.capacity)

	for _, raw := range raws {
		if len(w.events) >= w.capacity {
			break
		}
		ev := attend.Normalize(raw, receivedAt)
		if _, dup := w.index[ev.ID]; dup {
			w.duplicates++
			continue
		}
		w.events = append(w.events, ev)
		w.index[ev.ID] = struct{}{}
	}
}

// Insert normalizes the record and prepends it. A duplicate id is a no-op:
// the existing entry keeps its position and content. Entries past capacity
// are evicted from the tail. Returns the normalized event and whether it was
// actually inserted.
func (w *Window) Insert(raw attend.Record, receivedAt time.Time) (attend.AttendanceEvent, bool) {
	ev := attend.Normalize(raw, receivedAt)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, dup := w.index[ev.ID]; dup {
		w.duplicates++
		return ev, false
	}

	w.events = append(w.events, attend.AttendanceEvent{})
	copy(w.events[1:], w.events)
	w.events[0] = ev
	w.index[ev.ID] = struct{}{}
	w.inserted++

	for len(w.events) > w.capacity {
		oldest := w.events[len(w.events)-1]
		delete(w.index, oldest.ID)
		w.events = w.events[:len(w.events)-1]
		w.evicted++
	}

	return ev, true
}

// Snapshot returns a copy of the current contents, newest first. Mutating the
// returned slice has no effect on the window.
func (w *Window) Snapshot() []attend.AttendanceEvent {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]attend.AttendanceEvent, len(w.events))
	copy(out, w.events)
	return out
}

// Len returns the current number of events held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.events)
}

// Contains reports whether an event with the given id is currently held.
func (w *Window) Contains(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.index[id]
	return ok
}

// Stats returns cumulative activity counters.
func (w *Window) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		Size:       len(w.events),
		Capacity:   w.capacity,
		Inserted:   w.inserted,
		Duplicates: w.duplicates,
		Evicted:    w.evicted,
	}
}

// Stats describes window activity.
type Stats struct {
	Size       int
	Capacity   int
	Inserted   int64
	Duplicates int64
	Evicted    int64
}
