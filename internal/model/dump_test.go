package model

import (
	"encoding/json"
	"slices"
	"testing"
	"time"
)

func TestDumpRestoreRoundTrip(t *testing.T) {
	f := newFixture(t)
	if err := f.score.SetFilter(10, 90); err != nil {
		t.Fatal(err)
	}
	f.name.SetFilter("ann")
	_ = f.kind.SetFilter([]string{"b"})
	f.score.SetLabel("Score!")
	f.r.SetSortCriteria([]SortCriterion{{Column: f.inner.ID()}, {Column: f.name.ID(), Asc: true}})
	f.r.GroupBy(f.kind)
	f.r.SetGroupSortCriteria([]SortCriterion{{Column: "", Asc: true}})

	date := mustCreate(t, f.tree, Desc{Type: TypeDate, Column: "when"}).(*DateColumn)
	_ = date.SetGrouper(DateGrouper{Granularity: Month, Circular: true})
	from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = date.SetFilter(DateFilter{From: from})
	f.r.Push(date)

	raw, err := json.Marshal(f.r.Dump())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var dump RankingDump
	if err := json.Unmarshal(raw, &dump); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	other := NewTree()
	r, err := other.Restore(7, dump)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}

	cols := r.Columns()
	if len(cols) != 5 {
		t.Fatalf("restored %d columns, want 5", len(cols))
	}
	score := cols[1].(*NumberColumn)
	if score.Label() != "Score!" {
		t.Errorf("label = %q", score.Label())
	}
	if nf := score.NumberFilter(); nf.Min != 10 || nf.Max != 90 {
		t.Errorf("number filter = %+v", nf)
	}
	if cols[0].(*StringColumn).FilterText() != "ann" {
		t.Error("string filter lost")
	}
	if cats := cols[2].(*CategoricalColumn).FilterCategories(); !slices.Equal(cats, []string{"b"}) {
		t.Errorf("categorical filter = %v", cats)
	}
	rd := cols[4].(*DateColumn)
	if g := rd.Grouper(); g.Granularity != Month || !g.Circular {
		t.Errorf("grouper = %+v", g)
	}
	if !rd.DateFilter().From.Equal(from) {
		t.Errorf("date filter = %+v", rd.DateFilter())
	}

	stack := cols[3].(*StackColumn)
	inner := stack.Children()[0]
	crit := r.SortCriteria()
	if len(crit) != 2 || crit[0].Column != inner.ID() || crit[1].Column != cols[0].ID() || !crit[1].Asc {
		t.Errorf("sort criteria not remapped: %v", crit)
	}
	if g := r.GroupCriteria(); len(g) != 1 || g[0] != cols[2] {
		t.Errorf("group criteria = %v", g)
	}
	if gs := r.GroupSortCriteria(); len(gs) != 1 || gs[0].Column != "" || !gs[0].Asc {
		t.Errorf("group sort = %v", gs)
	}
}

func TestRestoreFailureLeavesTreeClean(t *testing.T) {
	tree := NewTree()
	dump := RankingDump{
		Columns: []ColumnDump{{ID: "a", Desc: Desc{Type: TypeNumber, Column: "x"}}},
		Sort:    []SortCriterion{{Column: "missing"}},
	}
	if _, err := tree.Restore(0, dump); err == nil {
		t.Fatal("Restore with dangling sort column should fail")
	}
	if tree.Len() != 0 {
		t.Errorf("tree has %d columns after failed restore", tree.Len())
	}
	// the id can be reused afterwards
	if _, err := tree.Restore(0, RankingDump{}); err != nil {
		t.Errorf("Restore after failure: %v", err)
	}
}

func TestCloneRankingKeepsOrder(t *testing.T) {
	f := newFixture(t)
	seq := f.r.BeginSort()
	f.r.ApplyOrder(seq, []int{3, 1, 2}, []Group{{Name: DefaultGroupName, Order: []int{3, 1, 2}}})

	clone, err := f.tree.CloneRanking(1, f.r)
	if err != nil {
		t.Fatalf("CloneRanking: %v", err)
	}
	if !slices.Equal(clone.Order(), []int{3, 1, 2}) {
		t.Errorf("clone order = %v", clone.Order())
	}
	if clone.Dirty() {
		t.Error("clone starts in the copied order and should not need a resort")
	}
	if clone.Columns()[0].ID() == f.r.Columns()[0].ID() {
		t.Error("clone should own fresh columns")
	}
}
