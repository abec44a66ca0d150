package inbox

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Op is a change to a dropped file.
type Op int

const (
	// OpWrite covers create and write events.
	OpWrite Op = iota
	// OpRemove covers remove and rename-away events.
	OpRemove
)

// Event is one filesystem change under the inbox.
type Event struct {
	Path string
	Op   Op
}

// Debouncer holds events until a path has been quiet for the window, so a
// file still being copied is registered once, after the copy finishes.
// A write followed by a remove cancels out; a remove followed by a write
// is a write.
type Debouncer struct {
	window  time.Duration
	pending map[string]Op
	mu      sync.Mutex
	output  chan []Event
	timer   *time.Timer
	stopped bool
}

// NewDebouncer returns a Debouncer flushing after window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]Op),
		output:  make(chan []Event, 16),
	}
}

// Add records an event and restarts the quiet window.
func (d *Debouncer) Add(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	prev, seen := d.pending[ev.Path]
	switch {
	case seen && prev == OpWrite && ev.Op == OpRemove:
		delete(d.pending, ev.Path)
	default:
		d.pending[ev.Path] = ev.Op
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	events := make([]Event, 0, len(d.pending))
	for p, op := range d.pending {
		events = append(events, Event{Path: p, Op: op})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })
	d.pending = make(map[string]Op)

	select {
	case d.output <- events:
	default:
		slog.Warn("inbox_debouncer_output_full", slog.Int("batch_size", len(events)))
	}
}

// Output delivers batches of settled events, sorted by path.
func (d *Debouncer) Output() <-chan []Event {
	return d.output
}

// Stop discards pending events and closes Output. Safe to call twice.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
