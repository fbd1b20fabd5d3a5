package otel

import (
	"maps"
	"sync"
)

// DefaultRingSize is the capacity used when NewRingBuffer gets a size <= 0.
const DefaultRingSize = 1024

// RingBuffer keeps the most recent events in memory for the viewer's event
// panel and for tests. Goroutine-safe.
type RingBuffer struct {
	mu     sync.Mutex
	events []Event // grows to cap, then wraps
	next   int     // oldest slot once full
	total  uint64
}

// NewRingBuffer creates a buffer holding up to size events.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &RingBuffer{events: make([]Event, 0, size)}
}

// Push adds e, overwriting the oldest event when full. Extra is copied so
// later changes by the emitter do not show through.
func (r *RingBuffer) Push(e Event) {
	if e.Extra != nil {
		e.Extra = maps.Clone(e.Extra)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total++
	if len(r.events) < cap(r.events) {
		r.events = append(r.events, e)
		return
	}
	r.events[r.next] = e
	r.next = (r.next + 1) % len(r.events)
}

// ordered returns the buffered events oldest first. Callers hold mu.
func (r *RingBuffer) ordered() []Event {
	out := make([]Event, len(r.events))
	n := copy(out, r.events[r.next:])
	copy(out[n:], r.events[:r.next])
	return out
}

// Snapshot returns every buffered event, oldest first.
func (r *RingBuffer) Snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.ordered()
}

// Last returns the n most recent events, oldest first.
func (r *RingBuffer) Last(n int) []Event {
	if n <= 0 {
		return nil
	}
	all := r.Snapshot()
	if n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Len returns the number of buffered events.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Cap returns the buffer capacity.
func (r *RingBuffer) Cap() int { return cap(r.events) }

// Total returns the number of events ever pushed, including overwritten ones.
func (r *RingBuffer) Total() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// Stats counts the buffered events by kind.
func (r *RingBuffer) Stats() map[EventKind]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[EventKind]int)
	for _, e := range r.events {
		counts[e.Kind]++
	}
	return counts
}

// Kind returns the buffered events of one kind, oldest first.
func (r *RingBuffer) Kind(kind EventKind) []Event {
	return r.filter(func(e Event) bool { return e.Kind == kind })
}

// Ranking returns the buffered events about one ranking, oldest first.
func (r *RingBuffer) Ranking(id int) []Event {
	return r.filter(func(e Event) bool { return e.Ranking == id })
}

func (r *RingBuffer) filter(keep func(Event) bool) []Event {
	var out []Event
	for _, e := range r.Snapshot() {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
