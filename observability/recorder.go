package observability

import (
	"context"
	"slices"
	"sync"
)

// Recorder keeps the most recent events in a fixed-size ring. It backs the
// REPL's diagnostics listing and is the capture observer used in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	next   int
	full   bool
}

// NewRecorder creates a Recorder holding up to capacity events. A capacity
// below one is raised to one.
func NewRecorder(capacity int) *Recorder {
	return &Recorder{events: make([]Event, max(capacity, 1))}
}

func (r *Recorder) OnEvent(ctx context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[r.next] = event
	r.next = (r.next + 1) % len(r.events)
	if r.next == 0 {
		r.full = true
	}
}

// Events returns the retained events, oldest first.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		return slices.Clone(r.events[:r.next])
	}
	return append(slices.Clone(r.events[r.next:]), r.events[:r.next]...)
}

// Count returns how many retained events have the given type.
func (r *Recorder) Count(typ EventType) int {
	n := 0
	for _, e := range r.Events() {
		if e.Type == typ {
			n++
		}
	}
	return n
}

// Reset discards all retained events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.events)
	r.next = 0
	r.full = false
}
