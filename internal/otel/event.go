// Package otel records what the providers do as structured events.
//
// Events are typed structs serialized as JSONL lines. The Logger writes
// events asynchronously via a buffered channel and background drain goroutine.
// An optional RingBuffer keeps the latest events in memory for the viewer
// and for tests.
package otel

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EventKind identifies the category of an event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// Sort events
	KindSortStart      EventKind = "sort.start"
	KindSortComplete   EventKind = "sort.complete"
	KindSortSuperseded EventKind = "sort.superseded"
	KindSortError      EventKind = "sort.error"

	// View events
	KindViewStart    EventKind = "view.start"
	KindViewComplete EventKind = "view.complete"
	KindViewError    EventKind = "view.error"

	// Ranking lifecycle
	KindRankingAdded   EventKind = "ranking.added"
	KindRankingRemoved EventKind = "ranking.removed"
	KindRankingRestore EventKind = "ranking.restore"

	// Cache
	KindCacheEvict EventKind = "cache.evict"

	// Remote transport
	KindRemoteRetry EventKind = "remote.retry"

	// System events
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
	KindError    EventKind = "sys.error"
)

// Event is the universal record. Every field except Kind and Time is
// optional. Serialized as a single JSONL line.
type Event struct {
	Time      time.Time      `json:"t"`
	Level     Level          `json:"level,omitempty"`
	Kind      EventKind      `json:"kind"`
	Comp      string         `json:"comp,omitempty"`       // component: "local", "remote", "server", "main"
	SessionID string         `json:"session_id,omitempty"` // same for the entire process run
	Provider  string         `json:"provider,omitempty"`   // provider instance id
	Ranking   int            `json:"ranking,omitempty"`
	Seq       uint64         `json:"seq,omitempty"` // sort sequence number
	Executor  string         `json:"executor,omitempty"`
	Dur       time.Duration  `json:"-"`
	DurMs     float64        `json:"dur_ms,omitempty"` // computed from Dur at marshal time
	Count     int            `json:"count,omitempty"`
	Groups    int            `json:"groups,omitempty"`
	Err       string         `json:"err,omitempty"`
	Msg       string         `json:"msg,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}
