package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/abelbrown/lineup/internal/model"
	"github.com/abelbrown/lineup/internal/otel"
	"github.com/abelbrown/lineup/internal/ranking"
)

// Server is the remote side of a Remote provider.
type Server interface {
	// Sort orders the server's rows by the described ranking.
	Sort(ctx context.Context, d model.RankingDump) (*ranking.Result, error)
	// View returns the raw values of the rows with the given indices, in
	// the same order. The values do not carry the index.
	View(ctx context.Context, indices []int) ([]map[string]any, error)
}

// Remote delegates sorting and row access to a Server. Server errors are
// returned to the caller unchanged and never replaced by a stale order.
type Remote struct {
	*base
	server   Server
	rowCount int
}

var _ DataProvider = (*Remote)(nil)

// NewRemote creates a provider for a server holding rowCount rows.
func NewRemote(server Server, rowCount int, opts Options) (*Remote, error) {
	b, err := newBase("remote", opts)
	if err != nil {
		return nil, err
	}
	return &Remote{base: b, server: server, rowCount: rowCount}, nil
}

// RowCount returns the number of rows on the server.
func (p *Remote) RowCount() int { return p.rowCount }

// Sort sends the dump of r to the server and applies the returned order
// unless a newer Sort on r has begun.
func (p *Remote) Sort(ctx context.Context, r *model.Ranking) ([]int, error) {
	p.mu.Lock()
	if !p.ownsLocked(r) {
		p.mu.Unlock()
		return nil, ErrUnknownRanking
	}
	seq := r.BeginSort()
	d := r.Dump()
	p.mu.Unlock()

	ev := otel.Event{Ranking: r.ID(), Seq: seq, Executor: "remote"}
	ev.Level, ev.Kind = otel.LevelDebug, otel.KindSortStart
	p.events.Emit(ev)

	start := time.Now()
	res, err := p.server.Sort(ctx, d)
	ev.Dur = time.Since(start)
	if err != nil {
		ev.Level, ev.Kind, ev.Err = otel.LevelError, otel.KindSortError, err.Error()
		p.events.Emit(ev)
		return nil, err
	}
	if res == nil {
		res = &ranking.Result{}
	}

	p.applyResult(r, seq, res, ev)
	return res.Order, nil
}

// View fetches rows from the server and tags each with the index it was
// requested by.
func (p *Remote) View(ctx context.Context, indices []int) ([]model.Row, error) {
	start := time.Now()
	values, err := p.server.View(ctx, indices)
	if err != nil {
		p.events.Err(otel.KindViewError, 0, err)
		return nil, err
	}
	if len(values) != len(indices) {
		return nil, fmt.Errorf("provider: server returned %d rows for %d indices", len(values), len(indices))
	}
	rows := make([]model.Row, len(values))
	for i, v := range values {
		rows[i] = model.Row{Index: indices[i], Values: v}
	}
	p.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindViewComplete, Count: len(rows), Dur: time.Since(start)})
	return rows, nil
}
