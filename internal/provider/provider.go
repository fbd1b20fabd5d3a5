// Package provider owns rankings over a row set and recomputes their order.
//
// A Local provider keeps the rows in memory and sorts them through a
// pluggable work.Executor. A Remote provider holds only the column model
// and delegates sorting and row materialization to a Server.
//
// # Supersession
//
// Every Sort call takes a sequence number from its ranking before any work
// starts. The result is applied only if no later Sort on the same ranking
// has begun, so a slow, stale sort can never overwrite a newer order. Stale
// results are still returned to their caller but are not applied and fire
// no event.
//
// # Thread Safety
//
// Providers are safe for concurrent use. Sorts on different rankings run in
// parallel. The column tree is read under the provider lock while a sort
// plan is built; callers that mutate columns directly must not do so while
// a Sort or Restore on the same provider is in progress.
package provider

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/abelbrown/lineup/internal/config"
	"github.com/abelbrown/lineup/internal/lru"
	"github.com/abelbrown/lineup/internal/model"
	"github.com/abelbrown/lineup/internal/otel"
	"github.com/abelbrown/lineup/internal/ranking"
	"github.com/abelbrown/lineup/internal/work"
)

var (
	// ErrUnknownRanking is returned for a ranking that is not registered
	// with the provider.
	ErrUnknownRanking = errors.New("ranking not owned by provider")
	// ErrUnknownGroup is returned by Summary for a group name that is not
	// part of the ranking's current order.
	ErrUnknownGroup = errors.New("unknown group")
	// ErrRowIndex is returned by View for an index outside the row set.
	ErrRowIndex = errors.New("row index out of range")
	// ErrNotNumeric is returned by Summary for a column without numeric values.
	ErrNotNumeric = errors.New("column has no numeric value")
)

// DataProvider is the contract shared by local and remote providers.
type DataProvider interface {
	ID() string

	// PushRanking registers a new ranking. With a non-nil existing ranking
	// the new one is a clone that starts in the same order.
	PushRanking(existing *model.Ranking) (*model.Ranking, error)
	// RemoveRanking unregisters r and drops its cached values. It returns
	// false if r is not registered.
	RemoveRanking(r *model.Ranking) bool
	Rankings() []*model.Ranking

	Create(d model.Desc) (model.Column, error)
	Sort(ctx context.Context, r *model.Ranking) ([]int, error)
	View(ctx context.Context, indices []int) ([]model.Row, error)
	ColumnLayout(r *model.Ranking) []model.Column
	Restore(d model.RankingDump) (*model.Ranking, error)

	Subscribe() <-chan Event
	Unsubscribe(ch <-chan Event)

	SetSelection(indices []int)
	Selection() []int
	SetAggregated(r *model.Ranking, group string, aggregated bool) bool
	IsAggregated(r *model.Ranking, group string) bool
}

// CacheKey tags an entry in the shared value cache. Every entry carries the
// provider and ranking it was derived for so that removing a ranking can
// evict exactly its entries.
type CacheKey struct {
	Provider string
	Ranking  int
	Column   string
	Group    string
}

// Options configures a provider. The zero value is usable.
type Options struct {
	// Executor runs local sorts. Nil means work.Direct.
	Executor work.Executor
	// Cache is shared between providers. Nil means a private cache of
	// CacheCapacity entries.
	Cache         *lru.Cache[CacheKey, any]
	CacheCapacity int
	// MaxSortCriteria is applied to every new ranking; 0 is unlimited.
	MaxSortCriteria int
	Nulls           ranking.NullsOrder
	// Events receives sort and lifecycle events. Nil discards them.
	Events *otel.Logger
}

// OptionsFromConfig translates the provider section of the configuration.
// A scheduled executor runs on pool, which the caller starts and stops.
func OptionsFromConfig(cfg config.ProviderConfig, pool *work.Pool) (Options, error) {
	opts := Options{
		CacheCapacity:   cfg.CacheCapacity,
		MaxSortCriteria: cfg.MaxSortCriteria,
	}
	if cfg.NullsFirst {
		opts.Nulls = ranking.NullsFirst
	}
	switch cfg.Executor {
	case "", config.ExecutorDirect:
		opts.Executor = work.Direct{}
	case config.ExecutorScheduled:
		if pool == nil {
			return Options{}, fmt.Errorf("provider: scheduled executor needs a work pool")
		}
		opts.Executor = work.NewScheduled(pool)
	default:
		return Options{}, fmt.Errorf("provider: unknown executor %q", cfg.Executor)
	}
	return opts, nil
}

const defaultCacheCapacity = 1024

type aggKey struct {
	ranking int
	group   string
}

// base holds the state common to local and remote providers.
type base struct {
	id string

	mu          sync.Mutex
	tree        *model.Tree
	rankings    []*model.Ranking
	nextRanking int
	maxSort     int
	nulls       ranking.NullsOrder

	cacheMu sync.Mutex
	cache   *lru.Cache[CacheKey, any]

	selMu      sync.Mutex
	selection  []int
	aggregated map[aggKey]bool

	subsMu sync.RWMutex
	subs   []chan Event

	events otel.Scope
}

func newBase(comp string, opts Options) (*base, error) {
	cache := opts.Cache
	if cache == nil {
		capacity := opts.CacheCapacity
		if capacity == 0 {
			capacity = defaultCacheCapacity
		}
		var err error
		if cache, err = lru.New[CacheKey, any](capacity); err != nil {
			return nil, fmt.Errorf("provider cache: %w", err)
		}
	}
	id := uuid.NewString()
	return &base{
		id:         id,
		tree:       model.NewTree(),
		maxSort:    opts.MaxSortCriteria,
		nulls:      opts.Nulls,
		cache:      cache,
		aggregated: make(map[aggKey]bool),
		events:     opts.Events.Scope(comp, id),
	}, nil
}

// ID returns the provider instance id.
func (b *base) ID() string { return b.id }

// Tree returns the provider's column arena.
func (b *base) Tree() *model.Tree { return b.tree }

// Create builds a detached column that can be pushed into any of the
// provider's rankings.
func (b *base) Create(d model.Desc) (model.Column, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tree.Create(d)
}

func (b *base) PushRanking(existing *model.Ranking) (*model.Ranking, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextRanking
	var (
		r   *model.Ranking
		err error
	)
	if existing != nil {
		if !b.ownsLocked(existing) {
			return nil, ErrUnknownRanking
		}
		r, err = b.tree.CloneRanking(id, existing)
	} else {
		r, err = b.tree.NewRanking(id)
		if err == nil && b.maxSort > 0 {
			r.SetMaxSortCriteria(b.maxSort)
		}
	}
	if err != nil {
		return nil, err
	}
	b.nextRanking++
	b.watch(r)
	b.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindRankingAdded, Ranking: id})
	b.notify(Event{Kind: EventRankingAdded, Ranking: r})
	return r, nil
}

// watch registers r and forwards its resort requests to subscribers.
// Caller must hold b.mu.
func (b *base) watch(r *model.Ranking) {
	b.rankings = append(b.rankings, r)
	r.OnDirty(func(r *model.Ranking) {
		b.notify(Event{Kind: EventDirtyOrder, Ranking: r})
	})
}

// Restore rebuilds a ranking from a dump and registers it.
func (b *base) Restore(d model.RankingDump) (*model.Ranking, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextRanking
	r, err := b.tree.Restore(id, d)
	if err != nil {
		b.events.Err(otel.KindRankingRestore, id, err)
		return nil, err
	}
	b.nextRanking++
	b.watch(r)
	b.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindRankingRestore, Ranking: id, Count: len(d.Columns)})
	b.notify(Event{Kind: EventRankingAdded, Ranking: r})
	return r, nil
}

func (b *base) RemoveRanking(r *model.Ranking) bool {
	b.mu.Lock()
	i := slices.Index(b.rankings, r)
	if i < 0 {
		b.mu.Unlock()
		return false
	}
	b.rankings = slices.Delete(b.rankings, i, i+1)
	b.tree.Release(r)
	b.mu.Unlock()

	evicted := b.evict(r.ID())

	b.selMu.Lock()
	for k := range b.aggregated {
		if k.ranking == r.ID() {
			delete(b.aggregated, k)
		}
	}
	b.selMu.Unlock()

	b.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindRankingRemoved, Ranking: r.ID(), Count: evicted})
	b.notify(Event{Kind: EventRankingRemoved, Ranking: r})
	return true
}

// evict drops every cache entry derived for ranking id and returns how
// many were removed.
func (b *base) evict(id int) int {
	b.cacheMu.Lock()
	n := b.cache.DeleteFunc(func(k CacheKey) bool {
		return k.Provider == b.id && k.Ranking == id
	})
	b.cacheMu.Unlock()
	if n > 0 {
		b.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindCacheEvict, Ranking: id, Count: n})
	}
	return n
}

func (b *base) Rankings() []*model.Ranking {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.rankings)
}

// ColumnLayout returns the flattened column list of r, with non-collapsed
// stacks expanded in place. It is nil for a foreign ranking.
func (b *base) ColumnLayout(r *model.Ranking) []model.Column {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ownsLocked(r) {
		return nil
	}
	return r.Flatten()
}

func (b *base) owns(r *model.Ranking) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ownsLocked(r)
}

func (b *base) ownsLocked(r *model.Ranking) bool {
	return r != nil && slices.Contains(b.rankings, r)
}

// SetSelection replaces the selected row indices.
func (b *base) SetSelection(indices []int) {
	sel := slices.Clone(indices)
	slices.Sort(sel)
	sel = slices.Compact(sel)

	b.selMu.Lock()
	changed := !slices.Equal(sel, b.selection)
	b.selection = sel
	b.selMu.Unlock()

	if changed {
		b.notify(Event{Kind: EventSelectionChanged, Selection: slices.Clone(sel)})
	}
}

// Selection returns the selected row indices in ascending order.
func (b *base) Selection() []int {
	b.selMu.Lock()
	defer b.selMu.Unlock()
	return slices.Clone(b.selection)
}

// IsSelected reports whether the row with the given index is selected.
func (b *base) IsSelected(index int) bool {
	b.selMu.Lock()
	defer b.selMu.Unlock()
	_, found := slices.BinarySearch(b.selection, index)
	return found
}

// SetAggregated collapses or expands a group of r. It returns false for a
// foreign ranking.
func (b *base) SetAggregated(r *model.Ranking, group string, aggregated bool) bool {
	if !b.owns(r) {
		return false
	}
	k := aggKey{ranking: r.ID(), group: group}
	b.selMu.Lock()
	changed := b.aggregated[k] != aggregated
	if aggregated {
		b.aggregated[k] = true
	} else {
		delete(b.aggregated, k)
	}
	b.selMu.Unlock()

	if changed {
		b.notify(Event{Kind: EventAggregate, Ranking: r, Group: group, Aggregated: aggregated})
	}
	return true
}

func (b *base) IsAggregated(r *model.Ranking, group string) bool {
	if r == nil {
		return false
	}
	b.selMu.Lock()
	defer b.selMu.Unlock()
	return b.aggregated[aggKey{ranking: r.ID(), group: group}]
}

// applyResult stores res on r if seq is still current. Applied results
// evict the ranking's cached group values and fire orderChanged.
func (b *base) applyResult(r *model.Ranking, seq uint64, res *ranking.Result, ev otel.Event) bool {
	if !r.ApplyOrder(seq, res.Order, res.Groups) {
		ev.Kind = otel.KindSortSuperseded
		ev.Level = otel.LevelDebug
		b.events.Emit(ev)
		return false
	}
	b.evict(r.ID())
	ev.Kind = otel.KindSortComplete
	ev.Level = otel.LevelInfo
	ev.Count = len(res.Order)
	ev.Groups = len(res.Groups)
	b.events.Emit(ev)
	b.notify(Event{Kind: EventOrderChanged, Ranking: r, Order: slices.Clone(res.Order)})
	return true
}
