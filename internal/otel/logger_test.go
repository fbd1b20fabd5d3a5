package otel

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// decodeLines parses every JSONL line written by a closed logger.
func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func TestLoggerWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)
	l.Emit(Event{Level: LevelInfo, Kind: KindSortStart, Comp: "local", Ranking: 2, Seq: 7})
	l.Emit(Event{Kind: KindSortComplete, Dur: 1500 * time.Millisecond, Count: 40, Groups: 3})
	l.Close()

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	first, second := lines[0], lines[1]
	if first["kind"] != "sort.start" || first["level"] != "info" || first["comp"] != "local" {
		t.Errorf("first line = %v", first)
	}
	if first["ranking"] != float64(2) || first["seq"] != float64(7) {
		t.Errorf("first line ranking/seq = %v/%v", first["ranking"], first["seq"])
	}
	if second["dur_ms"] != float64(1500) {
		t.Errorf("dur_ms = %v, want 1500", second["dur_ms"])
	}
	if second["count"] != float64(40) || second["groups"] != float64(3) {
		t.Errorf("second line = %v", second)
	}
}

func TestLoggerStampsTimeAndSession(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)
	before := time.Now()
	l.Emit(Event{Kind: KindStartup})
	fixed := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	l.Emit(Event{Kind: KindShutdown, Time: fixed})
	l.Close()

	sc := bufio.NewScanner(&buf)
	var events []Event
	for sc.Scan() {
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatal(err)
		}
		events = append(events, e)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events", len(events))
	}
	if events[0].Time.Before(before) {
		t.Errorf("time %v earlier than emit", events[0].Time)
	}
	if !events[1].Time.Equal(fixed) {
		t.Errorf("explicit time overwritten: %v", events[1].Time)
	}
	for _, e := range events {
		if e.SessionID != l.SessionID() {
			t.Errorf("session = %q, want %q", e.SessionID, l.SessionID())
		}
	}
	if _, err := uuid.Parse(l.SessionID()); err != nil {
		t.Errorf("session id %q: %v", l.SessionID(), err)
	}
	other := NewNullLogger()
	defer other.Close()
	if other.SessionID() == l.SessionID() {
		t.Error("two loggers share a session id")
	}
}

func TestLoggerOmitsEmptyFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)
	l.Emit(Event{Kind: KindStartup})
	l.Close()

	line := buf.String()
	for _, field := range []string{"dur_ms", "count", "groups", "ranking", "seq", "provider", "executor", "err", "msg", "extra", "comp"} {
		if strings.Contains(line, `"`+field+`"`) {
			t.Errorf("%q present in %s", field, line)
		}
	}
}

func TestLoggerConcurrentEmit(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				l.Emit(Event{Kind: KindViewStart, Ranking: g + 1, Count: i})
			}
		}(g)
	}
	wg.Wait()
	l.Close()

	if got := len(decodeLines(t, &buf)) + int(l.Dropped()); got != 400 {
		t.Errorf("written + dropped = %d, want 400", got)
	}
}

type stallWriter struct{ release chan struct{} }

func (w stallWriter) Write(p []byte) (int, error) {
	<-w.release
	return len(p), nil
}

func TestLoggerDropsWhenQueueFull(t *testing.T) {
	w := stallWriter{release: make(chan struct{})}
	l := NewLogger(w)
	for i := 0; i < queueSize+100; i++ {
		l.Emit(Event{Kind: KindCacheEvict})
	}
	if l.Dropped() == 0 {
		t.Error("no drops with a stalled writer")
	}
	close(w.release)
	l.Close()
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestLoggerCountsWriteFailures(t *testing.T) {
	l := NewLogger(failWriter{})
	l.Emit(Event{Kind: KindError})
	l.Close()
	if l.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", l.Dropped())
	}
}

func TestLoggerCloseIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)
	l.Emit(Event{Kind: KindStartup})
	l.Close()
	l.Close()

	l.Emit(Event{Kind: KindShutdown})
	if l.Dropped() != 1 {
		t.Errorf("emit after close: Dropped = %d, want 1", l.Dropped())
	}
	if n := len(decodeLines(t, &buf)); n != 1 {
		t.Errorf("got %d lines after close, want 1", n)
	}
}

func TestNilLoggerAndZeroScope(t *testing.T) {
	var l *Logger
	l.Emit(Event{Kind: KindStartup})

	var s Scope
	s.Emit(Event{Kind: KindStartup})
	s.Err(KindSortError, 1, errors.New("boom"))
	l.Scope("local", "p1").Emit(Event{Kind: KindViewStart})
}

func TestScopeStampsComponentAndProvider(t *testing.T) {
	ring := NewRingBuffer(10)
	l := NewNullLogger()
	l.SetRingBuffer(ring)
	s := l.Scope("local", "local-1")

	s.Emit(Event{Kind: KindSortStart, Ranking: 1})
	s.Emit(Event{Kind: KindRemoteRetry, Comp: "client"})
	s.Err(KindViewError, 3, errors.New("index out of range"))
	s.Err(KindSortError, 4, nil)
	l.Close()

	got := ring.Snapshot()
	if len(got) != 4 {
		t.Fatalf("ring holds %d events, want 4", len(got))
	}
	if got[0].Comp != "local" || got[0].Provider != "local-1" {
		t.Errorf("scope stamp = %q/%q", got[0].Comp, got[0].Provider)
	}
	if got[1].Comp != "client" {
		t.Errorf("explicit comp overwritten: %q", got[1].Comp)
	}
	if got[2].Level != LevelError || got[2].Ranking != 3 || got[2].Err != "index out of range" {
		t.Errorf("Err event = %+v", got[2])
	}
	if got[3].Err != "" {
		t.Errorf("nil error recorded as %q", got[3].Err)
	}
	if got[0].SessionID != l.SessionID() {
		t.Error("ring event lacks session id")
	}
}

func TestRingKeepsDuration(t *testing.T) {
	ring := NewRingBuffer(4)
	l := NewNullLogger()
	l.SetRingBuffer(ring)
	l.Emit(Event{Kind: KindSortComplete, Dur: 25 * time.Millisecond})
	l.Close()

	got := ring.Last(1)
	if len(got) != 1 || got[0].Dur != 25*time.Millisecond {
		t.Errorf("ring event = %+v", got)
	}
}
