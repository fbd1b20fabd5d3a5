package provider

import (
	"github.com/abelbrown/lineup/internal/logging"
	"github.com/abelbrown/lineup/internal/model"
)

// EventKind names what changed.
type EventKind string

const (
	EventOrderChanged     EventKind = "orderChanged"
	EventAggregate        EventKind = "aggregate"
	EventSelectionChanged EventKind = "selectionChanged"
	EventRankingAdded     EventKind = "rankingAdded"
	EventRankingRemoved   EventKind = "rankingRemoved"
	EventDirtyOrder       EventKind = "dirtyOrder" // criteria or filters changed; the order is stale
)

// Event is delivered to subscribers after the provider has changed state.
type Event struct {
	Kind    EventKind
	Ranking *model.Ranking

	Order      []int  // orderChanged
	Group      string // aggregate
	Aggregated bool   // aggregate
	Selection  []int  // selectionChanged
}

// Subscribe returns a channel that receives provider events. Slow
// subscribers lose events rather than block the provider.
func (b *base) Subscribe() <-chan Event {
	ch := make(chan Event, 64)
	b.subsMu.Lock()
	b.subs = append(b.subs, ch)
	b.subsMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (b *base) Unsubscribe(ch <-chan Event) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	for i, sub := range b.subs {
		if sub == ch {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(sub)
			return
		}
	}
}

func (b *base) notify(ev Event) {
	b.subsMu.RLock()
	defer b.subsMu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			logging.Debug("Provider event dropped (subscriber full)", "provider", b.id, "kind", ev.Kind)
		}
	}
}
