package provider

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/lineup/internal/model"
	"github.com/abelbrown/lineup/internal/otel"
	"github.com/abelbrown/lineup/internal/ranking"
	"github.com/abelbrown/lineup/internal/work"
)

// Local keeps every row in memory.
type Local struct {
	*base
	rows []model.Row
	exec work.Executor
}

var _ DataProvider = (*Local)(nil)

// NewLocal creates a provider over rows. Row i must carry Index i; use
// model.NewRows to build them from raw records.
func NewLocal(rows []model.Row, opts Options) (*Local, error) {
	for i, r := range rows {
		if r.Index != i {
			return nil, fmt.Errorf("provider: row %d has index %d", i, r.Index)
		}
	}
	b, err := newBase("local", opts)
	if err != nil {
		return nil, err
	}
	exec := opts.Executor
	if exec == nil {
		exec = work.Direct{}
	}
	return &Local{base: b, rows: rows, exec: exec}, nil
}

// Rows returns the shared row set. Callers must not modify it.
func (p *Local) Rows() []model.Row { return p.rows }

// RowCount returns the number of rows.
func (p *Local) RowCount() int { return len(p.rows) }

// Executor returns the executor that runs sorts.
func (p *Local) Executor() work.Executor { return p.exec }

// Sort recomputes the order of r and returns it. The result is applied to
// r unless a newer Sort on r has begun in the meantime.
func (p *Local) Sort(ctx context.Context, r *model.Ranking) ([]int, error) {
	p.mu.Lock()
	if !p.ownsLocked(r) {
		p.mu.Unlock()
		return nil, ErrUnknownRanking
	}
	seq := r.BeginSort()
	plan, err := ranking.Build(r, p.rows, ranking.Options{Nulls: p.nulls})
	p.mu.Unlock()

	ev := otel.Event{Ranking: r.ID(), Seq: seq, Executor: p.exec.Name()}
	if err != nil {
		ev.Level, ev.Kind, ev.Err = otel.LevelError, otel.KindSortError, err.Error()
		p.events.Emit(ev)
		return nil, err
	}

	start := time.Now()
	ev.Level, ev.Kind, ev.Count = otel.LevelDebug, otel.KindSortStart, plan.Len()
	p.events.Emit(ev)

	var res *ranking.Result
	err = p.exec.Run(ctx, work.TypeSort, fmt.Sprintf("sort %s", r.Label()), func(ctx context.Context) error {
		out, err := plan.Execute(ctx)
		if err != nil {
			return err
		}
		res = out
		return nil
	})
	ev.Dur = time.Since(start)
	if err != nil {
		ev.Level, ev.Kind, ev.Err = otel.LevelError, otel.KindSortError, err.Error()
		p.events.Emit(ev)
		return nil, err
	}

	p.applyResult(r, seq, res, ev)
	return res.Order, nil
}

// SortAll sorts every registered ranking concurrently and returns the
// first error.
func (p *Local) SortAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, r := range p.Rankings() {
		g.Go(func() error {
			_, err := p.Sort(ctx, r)
			return err
		})
	}
	return g.Wait()
}

// View returns the rows with the given indices, in order.
func (p *Local) View(ctx context.Context, indices []int) ([]model.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]model.Row, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(p.rows) {
			err := fmt.Errorf("%w: %d", ErrRowIndex, idx)
			p.events.Err(otel.KindViewError, 0, err)
			return nil, err
		}
		out[i] = p.rows[idx]
	}
	return out, nil
}

// Summary returns the box plot of col over the rows of one group in the
// last applied order of r. Results are cached until r is re-sorted or
// removed.
func (p *Local) Summary(r *model.Ranking, group string, col model.Column) (ranking.BoxPlot, error) {
	num, ok := col.(model.NumericLike)
	if !ok {
		return ranking.BoxPlot{}, fmt.Errorf("%w: %s", ErrNotNumeric, col.ID())
	}
	p.mu.Lock()
	owned := p.ownsLocked(r) && r.Owns(col)
	p.mu.Unlock()
	if !owned {
		return ranking.BoxPlot{}, fmt.Errorf("%w: column %s", ErrUnknownRanking, col.ID())
	}

	key := CacheKey{Provider: p.id, Ranking: r.ID(), Column: col.ID(), Group: group}
	p.cacheMu.Lock()
	if v, ok := p.cache.Get(key); ok {
		p.cacheMu.Unlock()
		return v.(ranking.BoxPlot), nil
	}
	p.cacheMu.Unlock()

	seq := r.AppliedSeq()
	var indices []int
	found := false
	for _, g := range r.FlatGroups() {
		if g.Name == group {
			indices, found = g.Order, true
			break
		}
	}
	if !found {
		return ranking.BoxPlot{}, fmt.Errorf("%w: %q", ErrUnknownGroup, group)
	}

	p.mu.Lock()
	bp := ranking.SummarizeColumn(num, p.rows, indices)
	p.mu.Unlock()

	p.storeSummary(r, seq, key, bp)
	return bp, nil
}

// storeSummary caches bp only while r still holds the order of seq. A
// sort applied after the groups were read evicts before or after this
// check, so a stale box plot never stays cached.
func (p *Local) storeSummary(r *model.Ranking, seq uint64, key CacheKey, bp ranking.BoxPlot) bool {
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()
	if r.AppliedSeq() != seq {
		return false
	}
	p.cache.Set(key, bp)
	return true
}
