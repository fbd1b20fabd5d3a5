package provider

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/abelbrown/lineup/internal/model"
	"github.com/abelbrown/lineup/internal/ranking"
)

// memServer answers like a real backend: it restores the dump onto a
// fresh tree and sorts its own copy of the rows.
type memServer struct {
	rows []model.Row

	mu       sync.Mutex
	sortErr  error
	viewErr  error
	gate     chan struct{} // when set, the next Sort waits on it
	entered  chan struct{}
	requests []model.RankingDump
}

func (s *memServer) Sort(ctx context.Context, d model.RankingDump) (*ranking.Result, error) {
	s.mu.Lock()
	s.requests = append(s.requests, d)
	err := s.sortErr
	gate, entered := s.gate, s.entered
	s.gate, s.entered = nil, nil
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	tree := model.NewTree()
	r, err := tree.Restore(0, d)
	if err != nil {
		return nil, err
	}
	plan, err := ranking.Build(r, s.rows, ranking.Options{})
	if err != nil {
		return nil, err
	}
	if gate != nil {
		close(entered)
		<-gate
	}
	return plan.Execute(ctx)
}

func (s *memServer) View(ctx context.Context, indices []int) ([]map[string]any, error) {
	if s.viewErr != nil {
		return nil, s.viewErr
	}
	out := make([]map[string]any, len(indices))
	for i, idx := range indices {
		out[i] = s.rows[idx].Values
	}
	return out, nil
}

func newRemote(t *testing.T, srv Server, n int) *Remote {
	t.Helper()
	p, err := NewRemote(srv, n, Options{})
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	return p
}

func TestRemoteSortMatchesLocal(t *testing.T) {
	rows := testRows(33)
	local := newLocal(t, rows, Options{})
	remote := newRemote(t, &memServer{rows: rows}, len(rows))

	var orders [][]int
	for _, p := range []DataProvider{local, remote} {
		r, cols := setupRanking(t, p)
		r.GroupBy(cols.kind)
		r.SortBy(cols.score, false)
		if _, err := p.Sort(context.Background(), r); err != nil {
			t.Fatalf("%T Sort: %v", p, err)
		}
		orders = append(orders, r.Order())
	}
	if !slices.Equal(orders[0], orders[1]) {
		t.Errorf("remote order differs from local:\n%v\n%v", orders[1], orders[0])
	}
	if remote.RowCount() != 33 {
		t.Errorf("RowCount = %d", remote.RowCount())
	}
}

func TestRemoteSortErrorPassesThrough(t *testing.T) {
	boom := errors.New("backend exploded")
	srv := &memServer{rows: testRows(5)}
	p := newRemote(t, srv, 5)
	r, _ := setupRanking(t, p)

	if _, err := p.Sort(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	before := r.Order()

	srv.sortErr = boom
	order, err := p.Sort(context.Background(), r)
	if err != boom {
		t.Errorf("Sort error = %v, want the server's error unchanged", err)
	}
	if order != nil {
		t.Errorf("failed Sort returned order %v", order)
	}
	if !slices.Equal(r.Order(), before) {
		t.Error("failed Sort changed the applied order")
	}
}

func TestRemoteSortSendsDump(t *testing.T) {
	srv := &memServer{rows: testRows(5)}
	p := newRemote(t, srv, 5)
	r, cols := setupRanking(t, p)
	r.SortBy(cols.score, false)
	if _, err := p.Sort(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	if len(srv.requests) != 1 {
		t.Fatalf("server saw %d requests", len(srv.requests))
	}
	d := srv.requests[0]
	if len(d.Columns) != 3 {
		t.Errorf("dump has %d columns, want 3", len(d.Columns))
	}
	want := []model.SortCriterion{{Column: cols.score.ID(), Asc: false}}
	if !slices.Equal(d.Sort, want) {
		t.Errorf("dump sort = %v, want %v", d.Sort, want)
	}
}

func TestRemoteViewTagsIndices(t *testing.T) {
	rows := testRows(10)
	p := newRemote(t, &memServer{rows: rows}, len(rows))

	got, err := p.View(context.Background(), []int{8, 3, 5})
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []int{8, 3, 5} {
		if got[i].Index != want {
			t.Errorf("row %d tagged %d, want %d", i, got[i].Index, want)
		}
		if got[i].Get("name") != rows[want].Get("name") {
			t.Errorf("row %d has name %v", i, got[i].Get("name"))
		}
	}
}

func TestRemoteViewErrorPassesThrough(t *testing.T) {
	boom := errors.New("view failed")
	p := newRemote(t, &memServer{viewErr: boom}, 3)
	if _, err := p.View(context.Background(), []int{0}); err != boom {
		t.Errorf("View error = %v, want the server's error unchanged", err)
	}
}

func TestRemoteSupersession(t *testing.T) {
	gate, entered := make(chan struct{}), make(chan struct{})
	srv := &memServer{rows: testRows(20), gate: gate, entered: entered}
	p := newRemote(t, srv, 20)
	r, cols := setupRanking(t, p)
	r.SortBy(cols.score, true)

	stale := make(chan []int, 1)
	go func() {
		order, _ := p.Sort(context.Background(), r)
		stale <- order
	}()
	<-entered

	r.SortBy(cols.score, false)
	fresh, err := p.Sort(context.Background(), r)
	if err != nil {
		t.Fatal(err)
	}
	close(gate)
	if slices.Equal(<-stale, fresh) {
		t.Fatal("test needs the two sorts to disagree")
	}
	if !slices.Equal(r.Order(), fresh) {
		t.Error("stale remote result overwrote the newer order")
	}
}
