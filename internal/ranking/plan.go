// Package ranking orders the rows of a model.Ranking.
//
// Sorting happens in two steps. Build walks the column tree on the caller's
// goroutine and materializes a Plan: plain records holding the row index,
// its sort keys and its group keys, plus the per-group aggregates needed to
// order groups. A Plan holds no references into the model, so Execute may
// run anywhere, including a worker goroutine.
package ranking

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/abelbrown/lineup/internal/model"
)

// NullsOrder places missing keys relative to present ones. It is applied
// independently of the sort direction.
type NullsOrder int

const (
	NullsLast NullsOrder = iota
	NullsFirst
)

func (n NullsOrder) String() string {
	if n == NullsFirst {
		return "first"
	}
	return "last"
}

// Options tunes plan building.
type Options struct {
	Nulls NullsOrder
}

type record struct {
	index  int
	keys   []model.SortKey
	groups []model.GroupKey
}

type groupInfo struct {
	id   string
	name string
	keys []model.GroupKey
	agg  []model.SortKey // one per group sort criterion; unused for key criteria
}

// Plan is a self-contained sort job.
type Plan struct {
	RankingID int

	records   []record
	asc       []bool
	groupAsc  []bool
	byKey     []bool // group sort criterion orders by the group key
	groups    map[string]*groupInfo
	grouped   bool
	nulls     NullsOrder
	totalRows int
}

// Len returns the number of rows that passed the filters.
func (p *Plan) Len() int { return len(p.records) }

// Total returns the number of rows considered before filtering.
func (p *Plan) Total() int { return p.totalRows }

// Build snapshots everything needed to order r over rows. Rows rejected by
// any column filter are left out.
func Build(r *model.Ranking, rows []model.Row, opts Options) (*Plan, error) {
	tree := r.Tree()
	crit := r.SortCriteria()
	sortCols := make([]model.Column, len(crit))
	p := &Plan{
		RankingID: r.ID(),
		asc:       make([]bool, len(crit)),
		groups:    make(map[string]*groupInfo),
		nulls:     opts.Nulls,
		totalRows: len(rows),
	}
	for i, c := range crit {
		col := tree.Get(c.Column)
		if col == nil {
			return nil, fmt.Errorf("ranking %d: sort column %s not found", r.ID(), c.Column)
		}
		sortCols[i] = col
		p.asc[i] = c.Asc
	}

	var groupers []model.Grouper
	for _, col := range r.GroupCriteria() {
		g, ok := col.(model.Grouper)
		if !ok {
			return nil, fmt.Errorf("ranking %d: column %s cannot group", r.ID(), col.ID())
		}
		groupers = append(groupers, g)
	}
	p.grouped = len(groupers) > 0

	members := make(map[string][]model.Row)
	for _, row := range rows {
		if !r.Filter(row) {
			continue
		}
		rec := record{index: row.Index, keys: make([]model.SortKey, len(sortCols))}
		for i, col := range sortCols {
			rec.keys[i] = col.SortKey(row)
		}
		if p.grouped {
			rec.groups = make([]model.GroupKey, len(groupers))
			for i, g := range groupers {
				rec.groups[i] = g.GroupKey(row)
			}
		}
		id := groupID(rec.groups)
		if _, ok := p.groups[id]; !ok {
			p.groups[id] = &groupInfo{id: id, name: groupName(rec.groups), keys: rec.groups}
		}
		members[id] = append(members[id], row)
		p.records = append(p.records, rec)
	}

	gcrit := r.GroupSortCriteria()
	p.groupAsc = make([]bool, len(gcrit))
	p.byKey = make([]bool, len(gcrit))
	aggCols := make([]model.Column, len(gcrit))
	for i, c := range gcrit {
		p.groupAsc[i] = c.Asc
		if c.Column == "" {
			p.byKey[i] = true
			continue
		}
		col := tree.Get(c.Column)
		if col == nil {
			return nil, fmt.Errorf("ranking %d: group sort column %s not found", r.ID(), c.Column)
		}
		aggCols[i] = col
	}
	for id, g := range p.groups {
		g.agg = make([]model.SortKey, len(gcrit))
		for i, col := range aggCols {
			if col != nil {
				g.agg[i] = col.GroupValue(members[id])
			}
		}
	}
	return p, nil
}

// groupID identifies a group key tuple. Keys with equal Value and Name
// belong to the same group.
func groupID(keys []model.GroupKey) string {
	if len(keys) == 0 {
		return ""
	}
	var b strings.Builder
	for _, k := range keys {
		if k.Missing {
			b.WriteString("\x00missing")
		} else {
			b.WriteString(strconv.FormatFloat(k.Value, 'g', -1, 64))
			b.WriteByte(0)
			b.WriteString(k.Name)
		}
		b.WriteByte(1)
	}
	return b.String()
}

func groupName(keys []model.GroupKey) string {
	if len(keys) == 0 {
		return model.DefaultGroupName
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.Name
	}
	return strings.Join(names, model.GroupSeparator)
}
