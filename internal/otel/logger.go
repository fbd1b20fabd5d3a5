package otel

import (
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/abelbrown/lineup/internal/logging"
)

// queueSize bounds the events waiting for the writer goroutine.
const queueSize = 4096

type entry struct {
	line []byte
	ev   Event // kept unencoded so Dur survives into the ring buffer
}

// Logger writes events as JSONL from a background goroutine. Emit never
// blocks: when the queue is full or the logger is closed the event is
// counted as dropped. Only the writer goroutine touches w; mu guards ring.
type Logger struct {
	session string
	queue   chan entry
	w       io.Writer
	stopped chan struct{}

	mu   sync.Mutex
	ring *RingBuffer

	dropped atomic.Uint64
	closing atomic.Bool
	once    sync.Once
}

// NewLogger starts a logger writing to w. Close flushes and stops it.
func NewLogger(w io.Writer) *Logger {
	l := &Logger{
		session: uuid.NewString(),
		queue:   make(chan entry, queueSize),
		w:       w,
		stopped: make(chan struct{}),
	}
	go l.run()
	return l
}

// NewNullLogger returns a logger that discards events. It still feeds an
// attached ring buffer.
func NewNullLogger() *Logger {
	return NewLogger(io.Discard)
}

func (l *Logger) run() {
	defer close(l.stopped)
	for e := range l.queue {
		if _, err := l.w.Write(e.line); err != nil {
			l.dropped.Add(1)
		}
		if ring := l.ringBuffer(); ring != nil {
			ring.Push(e.ev)
		}
	}
}

func (l *Logger) ringBuffer() *RingBuffer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ring
}

// Emit stamps e with the session id, and the current time when unset, and
// queues it. A nil Logger discards events.
func (l *Logger) Emit(e Event) {
	if l == nil {
		return
	}
	if l.closing.Load() {
		l.dropped.Add(1)
		return
	}
	// Close may close the queue between the check above and the send.
	defer func() {
		if recover() != nil {
			l.dropped.Add(1)
		}
	}()

	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	e.SessionID = l.session

	line, err := json.Marshal(e)
	if err != nil {
		l.dropped.Add(1)
		return
	}
	select {
	case l.queue <- entry{line: append(line, '\n'), ev: e}:
	default:
		l.dropped.Add(1)
	}
}

// Scope returns an emitter that stamps comp and provider on its events.
func (l *Logger) Scope(comp, provider string) Scope {
	return Scope{l: l, comp: comp, provider: provider}
}

// SessionID returns the id stamped on every event of this process.
func (l *Logger) SessionID() string { return l.session }

// SetRingBuffer attaches a ring buffer that receives every written event.
func (l *Logger) SetRingBuffer(buf *RingBuffer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ring = buf
}

// Dropped returns the number of events lost so far.
func (l *Logger) Dropped() uint64 {
	return l.dropped.Load()
}

// Close writes out queued events and stops the writer. Later Emit calls
// are dropped.
func (l *Logger) Close() {
	l.once.Do(func() {
		l.closing.Store(true)
		close(l.queue)
		<-l.stopped
		if d := l.dropped.Load(); d > 0 {
			logging.Warn("Events dropped", "count", d, "session", l.session)
		}
	})
}

// Scope emits events on behalf of one component and provider instance.
// The zero Scope discards events.
type Scope struct {
	l        *Logger
	comp     string
	provider string
}

// Emit fills in Comp and Provider when unset and forwards e.
func (s Scope) Emit(e Event) {
	if e.Comp == "" {
		e.Comp = s.comp
	}
	if e.Provider == "" {
		e.Provider = s.provider
	}
	s.l.Emit(e)
}

// Err emits an error-level event of kind for ranking.
func (s Scope) Err(kind EventKind, ranking int, err error) {
	e := Event{Level: LevelError, Kind: kind, Ranking: ranking}
	if err != nil {
		e.Err = err.Error()
	}
	s.Emit(e)
}
