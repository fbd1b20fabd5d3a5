package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/abelbrown/lineup/internal/config"
	"github.com/abelbrown/lineup/internal/lru"
	"github.com/abelbrown/lineup/internal/model"
	"github.com/abelbrown/lineup/internal/otel"
	"github.com/abelbrown/lineup/internal/ranking"
	"github.com/abelbrown/lineup/internal/work"
)

var cats = []string{"c1", "c2", "c3"}

func testRows(n int) []model.Row {
	records := make([]map[string]any, n)
	for i := range records {
		records[i] = map[string]any{
			"name":  fmt.Sprintf("Row %d", i),
			"score": float64((i * 7) % 11),
			"kind":  cats[i%len(cats)],
		}
	}
	return model.NewRows(records)
}

type columns struct {
	name  model.Column
	kind  model.Column
	score model.Column
}

// setupRanking pushes a ranking with name, kind and score columns.
func setupRanking(t *testing.T, p DataProvider) (*model.Ranking, columns) {
	t.Helper()
	r, err := p.PushRanking(nil)
	if err != nil {
		t.Fatalf("PushRanking: %v", err)
	}
	var cols columns
	descs := []struct {
		dst  *model.Column
		desc model.Desc
	}{
		{&cols.name, model.Desc{Type: model.TypeString, Column: "name"}},
		{&cols.kind, model.Desc{Type: model.TypeCategorical, Column: "kind", Categories: cats}},
		{&cols.score, model.Desc{Type: model.TypeNumber, Column: "score", Domain: []float64{0, 10}}},
	}
	for _, d := range descs {
		c, err := p.Create(d.desc)
		if err != nil {
			t.Fatalf("Create(%s): %v", d.desc.Type, err)
		}
		if !r.Push(c) {
			t.Fatalf("Push(%s) failed", c.ID())
		}
		*d.dst = c
	}
	return r, cols
}

func newLocal(t *testing.T, rows []model.Row, opts Options) *Local {
	t.Helper()
	p, err := NewLocal(rows, opts)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return p
}

func scoreOf(p *Local, idx int) float64 { return p.Rows()[idx].Get("score").(float64) }

func TestLocalSortGroupedDescending(t *testing.T) {
	p := newLocal(t, testRows(30), Options{})
	r, cols := setupRanking(t, p)
	r.GroupBy(cols.kind)
	r.SortBy(cols.score, false)

	order, err := p.Sort(context.Background(), r)
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}
	if len(order) != 30 {
		t.Fatalf("order has %d rows, want 30", len(order))
	}
	groups := r.FlatGroups()
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
	for _, g := range groups {
		for i := 1; i < len(g.Order); i++ {
			if scoreOf(p, g.Order[i-1]) < scoreOf(p, g.Order[i]) {
				t.Errorf("group %s not descending at %d", g.Name, i)
			}
		}
	}
	if !slices.Equal(r.Order(), order) {
		t.Error("returned order was not applied")
	}
	if pos, ok := r.Rank(order[0]); !ok || pos != 0 {
		t.Errorf("Rank(first) = %d, %v", pos, ok)
	}
}

func TestSortForeignRanking(t *testing.T) {
	p := newLocal(t, testRows(5), Options{})
	other := newLocal(t, testRows(5), Options{})
	r, _ := setupRanking(t, other)

	if _, err := p.Sort(context.Background(), r); !errors.Is(err, ErrUnknownRanking) {
		t.Errorf("Sort(foreign) = %v, want ErrUnknownRanking", err)
	}
	if _, err := p.PushRanking(r); !errors.Is(err, ErrUnknownRanking) {
		t.Errorf("PushRanking(foreign) = %v, want ErrUnknownRanking", err)
	}
	if p.RemoveRanking(r) {
		t.Error("RemoveRanking(foreign) should fail")
	}
	if p.ColumnLayout(r) != nil {
		t.Error("ColumnLayout(foreign) should be nil")
	}
}

func TestRankingIDsMonotonic(t *testing.T) {
	p := newLocal(t, testRows(3), Options{})
	var ids []int
	for i := 0; i < 3; i++ {
		r, err := p.PushRanking(nil)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, r.ID())
	}
	p.RemoveRanking(p.Rankings()[2])
	r, _ := p.PushRanking(nil)
	ids = append(ids, r.ID())
	if !slices.Equal(ids, []int{0, 1, 2, 3}) {
		t.Errorf("ids = %v, want [0 1 2 3]", ids)
	}
	if len(p.Rankings()) != 3 {
		t.Errorf("Rankings() = %d, want 3", len(p.Rankings()))
	}
}

func TestPushRankingCloneKeepsOrder(t *testing.T) {
	p := newLocal(t, testRows(20), Options{})
	r, cols := setupRanking(t, p)
	r.SortBy(cols.score, true)
	if _, err := p.Sort(context.Background(), r); err != nil {
		t.Fatal(err)
	}

	clone, err := p.PushRanking(r)
	if err != nil {
		t.Fatalf("PushRanking(clone): %v", err)
	}
	if clone.ID() == r.ID() {
		t.Error("clone reuses the source id")
	}
	if !slices.Equal(clone.Order(), r.Order()) {
		t.Error("clone does not start in the source order")
	}
	if len(p.ColumnLayout(clone)) != len(p.ColumnLayout(r)) {
		t.Error("clone has a different column layout")
	}
}

// TestDumpRestoreEquivalence restores a grouped, sorted ranking on a fresh
// provider over the same rows.
func TestDumpRestoreEquivalence(t *testing.T) {
	rows := testRows(40)
	p1 := newLocal(t, rows, Options{})
	r1, cols := setupRanking(t, p1)
	r1.GroupBy(cols.kind)
	r1.SortBy(cols.score, false)
	if _, err := p1.Sort(context.Background(), r1); err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(r1.Dump())
	if err != nil {
		t.Fatal(err)
	}
	var d model.RankingDump
	if err := json.Unmarshal(data, &d); err != nil {
		t.Fatal(err)
	}

	p2 := newLocal(t, rows, Options{})
	r2, err := p2.Restore(d)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if _, err := p2.Sort(context.Background(), r2); err != nil {
		t.Fatal(err)
	}

	if !slices.Equal(r1.Order(), r2.Order()) {
		t.Errorf("order differs:\n%v\n%v", r1.Order(), r2.Order())
	}
	g1, g2 := r1.FlatGroups(), r2.FlatGroups()
	if len(g1) != len(g2) {
		t.Fatalf("groups: %d vs %d", len(g1), len(g2))
	}
	for i := range g1 {
		if g1[i].Name != g2[i].Name || !slices.Equal(g1[i].Order, g2[i].Order) {
			t.Errorf("group %d differs: %s %v vs %s %v", i, g1[i].Name, g1[i].Order, g2[i].Name, g2[i].Order)
		}
	}
}

func TestRestoreFailureRegistersNothing(t *testing.T) {
	p := newLocal(t, testRows(3), Options{})
	bad := model.RankingDump{Columns: []model.ColumnDump{{ID: "x", Desc: model.Desc{Type: "nope"}}}}
	if _, err := p.Restore(bad); err == nil {
		t.Fatal("Restore of an unknown column type should fail")
	}
	if len(p.Rankings()) != 0 {
		t.Error("failed Restore registered a ranking")
	}
}

// gated runs the first job only after release is closed. entered is
// closed once that job has started.
type gated struct {
	inner   work.Executor
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGated(inner work.Executor) *gated {
	return &gated{inner: inner, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gated) Name() string { return "gated-" + g.inner.Name() }

func (g *gated) Run(ctx context.Context, typ work.Type, desc string, fn func(context.Context) error) error {
	first := false
	g.once.Do(func() { first = true })
	return g.inner.Run(ctx, typ, desc, func(ctx context.Context) error {
		if first {
			close(g.entered)
			<-g.release
		}
		return fn(ctx)
	})
}

func TestSupersededSortNotApplied(t *testing.T) {
	pool := work.NewPool(2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	executors := map[string]work.Executor{
		"direct":    work.Direct{},
		"scheduled": work.NewScheduled(pool),
	}
	for name, inner := range executors {
		t.Run(name, func(t *testing.T) {
			exec := newGated(inner)
			p := newLocal(t, testRows(25), Options{Executor: exec})
			r, cols := setupRanking(t, p)
			r.SortBy(cols.score, true)
			events := p.Subscribe()
			defer p.Unsubscribe(events)

			stale := make(chan []int, 1)
			go func() {
				order, err := p.Sort(context.Background(), r)
				if err != nil {
					t.Errorf("stale Sort: %v", err)
				}
				stale <- order
			}()
			<-exec.entered

			r.SortBy(cols.score, false)
			fresh, err := p.Sort(context.Background(), r)
			if err != nil {
				t.Fatalf("fresh Sort: %v", err)
			}
			close(exec.release)
			staleOrder := <-stale

			if slices.Equal(staleOrder, fresh) {
				t.Fatal("test needs the two sorts to disagree")
			}
			if !slices.Equal(r.Order(), fresh) {
				t.Error("stale result overwrote the newer order")
			}

			var changed int
			for {
				select {
				case ev := <-events:
					if ev.Kind == EventOrderChanged {
						changed++
					}
					continue
				case <-time.After(50 * time.Millisecond):
				}
				break
			}
			if changed != 1 {
				t.Errorf("orderChanged fired %d times, want 1", changed)
			}
		})
	}
}

func TestSortCancelledLeavesOrder(t *testing.T) {
	p := newLocal(t, testRows(10), Options{})
	r, _ := setupRanking(t, p)
	if _, err := p.Sort(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	before := r.Order()
	if r.Dirty() {
		t.Fatal("ranking dirty after a completed sort")
	}
	col, _ := r.SortColumn()
	r.ToggleSort(col)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Sort(ctx, r); !errors.Is(err, context.Canceled) {
		t.Errorf("Sort(cancelled) = %v, want context.Canceled", err)
	}
	if !slices.Equal(r.Order(), before) {
		t.Error("cancelled sort changed the order")
	}
	if !r.Dirty() {
		t.Error("cancelled sort marked the stale order clean")
	}
}

func TestSortAll(t *testing.T) {
	p := newLocal(t, testRows(50), Options{})
	for i := 0; i < 4; i++ {
		setupRanking(t, p)
	}
	if err := p.SortAll(context.Background()); err != nil {
		t.Fatalf("SortAll: %v", err)
	}
	for _, r := range p.Rankings() {
		if len(r.Order()) != 50 {
			t.Errorf("%s has %d rows", r.Label(), len(r.Order()))
		}
	}
}

func TestLocalView(t *testing.T) {
	p := newLocal(t, testRows(10), Options{})
	rows, err := p.View(context.Background(), []int{9, 0, 4})
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []int{9, 0, 4} {
		if rows[i].Index != want {
			t.Errorf("rows[%d].Index = %d, want %d", i, rows[i].Index, want)
		}
	}
	if _, err := p.View(context.Background(), []int{10}); !errors.Is(err, ErrRowIndex) {
		t.Errorf("View(out of range) = %v, want ErrRowIndex", err)
	}
}

func TestNewLocalRejectsBadIndices(t *testing.T) {
	rows := []model.Row{{Index: 1}}
	if _, err := NewLocal(rows, Options{}); err == nil {
		t.Error("NewLocal should reject rows whose index does not match their position")
	}
}

func TestCacheCapacityError(t *testing.T) {
	if _, err := NewLocal(nil, Options{CacheCapacity: -1}); !errors.Is(err, lru.ErrCapacity) {
		t.Errorf("NewLocal(capacity -1) = %v, want lru.ErrCapacity", err)
	}
}

func TestSummaryCachedAndEvicted(t *testing.T) {
	cache, err := lru.New[CacheKey, any](64)
	if err != nil {
		t.Fatal(err)
	}
	p := newLocal(t, testRows(30), Options{Cache: cache})
	r1, c1 := setupRanking(t, p)
	r2, c2 := setupRanking(t, p)
	for _, rc := range []struct {
		r *model.Ranking
		c columns
	}{{r1, c1}, {r2, c2}} {
		rc.r.GroupBy(rc.c.kind)
		if _, err := p.Sort(context.Background(), rc.r); err != nil {
			t.Fatal(err)
		}
		for _, g := range cats {
			bp, err := p.Summary(rc.r, g, rc.c.score)
			if err != nil {
				t.Fatalf("Summary(%s): %v", g, err)
			}
			if bp.Count != 10 {
				t.Errorf("group %s count = %d, want 10", g, bp.Count)
			}
		}
	}
	if cache.Len() != 6 {
		t.Fatalf("cache holds %d entries, want 6", cache.Len())
	}

	if _, err := p.Summary(r1, "c1", c1.name); !errors.Is(err, ErrNotNumeric) {
		t.Errorf("Summary(string column) = %v, want ErrNotNumeric", err)
	}
	if _, err := p.Summary(r1, "nope", c1.score); !errors.Is(err, ErrUnknownGroup) {
		t.Errorf("Summary(unknown group) = %v, want ErrUnknownGroup", err)
	}
	if _, err := p.Summary(r1, "c1", c2.score); !errors.Is(err, ErrUnknownRanking) {
		t.Errorf("Summary(foreign column) = %v, want ErrUnknownRanking", err)
	}

	if !p.RemoveRanking(r1) {
		t.Fatal("RemoveRanking failed")
	}
	for _, k := range cache.Keys() {
		if k.Ranking == r1.ID() {
			t.Errorf("entry %+v survived RemoveRanking", k)
		}
	}
	if cache.Len() != 3 {
		t.Errorf("cache holds %d entries, want 3", cache.Len())
	}
	if p.Tree().Get(c1.score.ID()) != nil {
		t.Error("removed ranking's columns are still in the tree")
	}
}

func TestResortEvictsSummaries(t *testing.T) {
	cache, _ := lru.New[CacheKey, any](16)
	p := newLocal(t, testRows(12), Options{Cache: cache})
	r, cols := setupRanking(t, p)
	if _, err := p.Sort(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Summary(r, model.DefaultGroupName, cols.score); err != nil {
		t.Fatal(err)
	}
	if cache.Len() != 1 {
		t.Fatalf("cache holds %d entries, want 1", cache.Len())
	}
	if _, err := p.Sort(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	if cache.Len() != 0 {
		t.Errorf("resort left %d cached summaries", cache.Len())
	}
}

func TestSummaryFromSupersededOrderNotCached(t *testing.T) {
	cache, _ := lru.New[CacheKey, any](16)
	p := newLocal(t, testRows(12), Options{Cache: cache})
	r, cols := setupRanking(t, p)
	if _, err := p.Sort(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	read := r.AppliedSeq()
	key := CacheKey{Provider: p.id, Ranking: r.ID(), Column: cols.score.ID(), Group: model.DefaultGroupName}

	// a sort lands between reading the groups and caching the result.
	if _, err := p.Sort(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	if p.storeSummary(r, read, key, ranking.BoxPlot{}) {
		t.Error("box plot of a replaced order was cached")
	}
	if cache.Len() != 0 {
		t.Errorf("cache holds %d entries, want 0", cache.Len())
	}
	if !p.storeSummary(r, r.AppliedSeq(), key, ranking.BoxPlot{}) {
		t.Error("box plot of the current order was not cached")
	}
}

func TestSelectionAndAggregation(t *testing.T) {
	p := newLocal(t, testRows(10), Options{})
	r, _ := setupRanking(t, p)
	events := p.Subscribe()
	defer p.Unsubscribe(events)

	p.SetSelection([]int{4, 1, 4})
	if got := p.Selection(); !slices.Equal(got, []int{1, 4}) {
		t.Errorf("Selection = %v, want [1 4]", got)
	}
	if !p.IsSelected(4) || p.IsSelected(2) {
		t.Error("IsSelected disagrees with Selection")
	}
	if ev := <-events; ev.Kind != EventSelectionChanged {
		t.Errorf("event = %s, want selectionChanged", ev.Kind)
	}

	if !p.SetAggregated(r, "c1", true) {
		t.Fatal("SetAggregated failed")
	}
	if !p.IsAggregated(r, "c1") || p.IsAggregated(r, "c2") {
		t.Error("IsAggregated disagrees with SetAggregated")
	}
	if ev := <-events; ev.Kind != EventAggregate || ev.Group != "c1" || !ev.Aggregated {
		t.Errorf("event = %+v, want aggregate c1", ev)
	}

	other := newLocal(t, testRows(1), Options{})
	foreign, _ := other.PushRanking(nil)
	if p.SetAggregated(foreign, "c1", true) {
		t.Error("SetAggregated on a foreign ranking should fail")
	}

	p.RemoveRanking(r)
	if p.IsAggregated(r, "c1") {
		t.Error("aggregation state survived RemoveRanking")
	}
}

func TestDirtyOrderEvent(t *testing.T) {
	p := newLocal(t, testRows(10), Options{})
	r, cols := setupRanking(t, p)
	if _, err := p.Sort(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	events := p.Subscribe()
	defer p.Unsubscribe(events)

	if err := cols.score.(*model.NumberColumn).SetFilter(2, 8); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-events:
		if ev.Kind != EventDirtyOrder || ev.Ranking != r {
			t.Errorf("event = %s for %v, want dirtyOrder for %s", ev.Kind, ev.Ranking, r.Label())
		}
	case <-time.After(time.Second):
		t.Fatal("no dirtyOrder event after a filter change")
	}

	restored, err := p.Restore(r.Dump())
	if err != nil {
		t.Fatal(err)
	}
	for len(events) > 0 {
		<-events
	}
	restored.ToggleSort(restored.Columns()[0])
	select {
	case ev := <-events:
		if ev.Kind != EventDirtyOrder || ev.Ranking != restored {
			t.Errorf("event = %s, want dirtyOrder for the restored ranking", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("restored ranking does not report dirty order")
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig().Provider
	opts, err := OptionsFromConfig(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Executor.Name() != "direct" {
		t.Errorf("executor = %s, want direct", opts.Executor.Name())
	}

	cfg.Executor = config.ExecutorScheduled
	if _, err := OptionsFromConfig(cfg, nil); err == nil {
		t.Error("scheduled executor without a pool should fail")
	}
	cfg.NullsFirst = true
	opts, err = OptionsFromConfig(cfg, work.NewPool(1))
	if err != nil {
		t.Fatal(err)
	}
	if opts.Executor.Name() != "scheduled" || opts.Nulls != ranking.NullsFirst {
		t.Errorf("opts = %+v", opts)
	}

	cfg.Executor = "threads"
	if _, err := OptionsFromConfig(cfg, nil); err == nil {
		t.Error("unknown executor should fail")
	}
}

func TestEventsEmitted(t *testing.T) {
	events := otel.NewLogger(discard{})
	buf := otel.NewRingBuffer(64)
	events.SetRingBuffer(buf)

	p := newLocal(t, testRows(8), Options{Events: events})
	r, _ := setupRanking(t, p)
	if _, err := p.Sort(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	p.RemoveRanking(r)
	events.Close()

	for _, kind := range []otel.EventKind{otel.KindRankingAdded, otel.KindSortStart, otel.KindSortComplete, otel.KindRankingRemoved} {
		if len(buf.Kind(kind)) == 0 {
			t.Errorf("no %s event", kind)
		}
	}
	done := buf.Kind(otel.KindSortComplete)[0]
	if done.Count != 8 || done.Executor != "direct" || done.Provider != p.ID() {
		t.Errorf("sort.complete = %+v", done)
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
