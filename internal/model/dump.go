package model

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// RankingDump is the serializable state of a ranking: its column tree with
// per-column settings and the sort, group and group-sort criteria. Criteria
// refer to columns by their dumped ids.
type RankingDump struct {
	Columns         []ColumnDump    `json:"columns"`
	Sort            []SortCriterion `json:"sort,omitempty"`
	GroupBy         []string        `json:"groupBy,omitempty"`
	GroupSort       []SortCriterion `json:"groupSort,omitempty"`
	MaxSortCriteria int             `json:"maxSortCriteria,omitempty"`
}

// ColumnDump is one column and, for stacks, its weighted children.
type ColumnDump struct {
	ID        string       `json:"id"`
	Desc      Desc         `json:"desc"`
	Label     string       `json:"label,omitempty"`
	Width     float64      `json:"width"`
	Filter    *FilterDump  `json:"filter,omitempty"`
	Mapping   []float64    `json:"mapping,omitempty"`
	Grouper   *DateGrouper `json:"grouper,omitempty"`
	Collapsed bool         `json:"collapsed,omitempty"`
	Children  []ChildDump  `json:"children,omitempty"`
}

// ChildDump is a stack child with its relative weight.
type ChildDump struct {
	Weight float64    `json:"weight"`
	Column ColumnDump `json:"column"`
}

// FilterDump holds whichever filter fields apply to the column type. Nil
// bounds are open.
type FilterDump struct {
	Min           *float64   `json:"min,omitempty"`
	Max           *float64   `json:"max,omitempty"`
	FilterMissing bool       `json:"filterMissing,omitempty"`
	Text          string     `json:"text,omitempty"`
	Pattern       string     `json:"pattern,omitempty"`
	Categories    []string   `json:"categories,omitempty"`
	From          *time.Time `json:"from,omitempty"`
	To            *time.Time `json:"to,omitempty"`
}

// Dump captures the ranking's state.
func (r *Ranking) Dump() RankingDump {
	d := RankingDump{
		Sort:            r.SortCriteria(),
		GroupBy:         slices.Clone(r.root.groups),
		GroupSort:       r.GroupSortCriteria(),
		MaxSortCriteria: r.root.maxSort,
	}
	for _, c := range r.Columns() {
		d.Columns = append(d.Columns, dumpColumn(c))
	}
	return d
}

func dumpColumn(c Column) ColumnDump {
	cd := ColumnDump{ID: c.ID(), Desc: c.Desc(), Label: c.Label(), Width: c.Width()}
	switch x := c.(type) {
	case *NumberColumn:
		cd.Mapping = []float64{x.scale.Domain[0], x.scale.Domain[1]}
		if f := x.filter; f.IsSet() {
			fd := &FilterDump{FilterMissing: f.FilterMissing}
			if !math.IsInf(f.Min, -1) {
				fd.Min = &f.Min
			}
			if !math.IsInf(f.Max, 1) {
				fd.Max = &f.Max
			}
			cd.Filter = fd
		}
	case *StringColumn:
		if x.IsFiltered() {
			cd.Filter = &FilterDump{Text: x.FilterText(), Pattern: x.FilterPattern()}
		}
	case *CategoricalColumn:
		if x.IsFiltered() {
			cd.Filter = &FilterDump{Categories: x.FilterCategories()}
		}
	case *DateColumn:
		g := x.grouper
		cd.Grouper = &g
		if f := x.filter; f.IsSet() {
			fd := &FilterDump{FilterMissing: f.FilterMissing}
			if !f.From.IsZero() {
				fd.From = &f.From
			}
			if !f.To.IsZero() {
				fd.To = &f.To
			}
			cd.Filter = fd
		}
	case *StackColumn:
		cd.Collapsed = x.collapsed
		for _, ch := range x.children {
			cd.Children = append(cd.Children, ChildDump{
				Weight: ch.weight,
				Column: dumpColumn(x.tree.Get(ch.id)),
			})
		}
	}
	return cd
}

// Restore builds a new ranking with the given id from a dump. Columns get
// fresh ids; criteria are remapped. Nothing is left in the tree on error.
func (t *Tree) Restore(id int, d RankingDump) (*Ranking, error) {
	r, err := t.NewRanking(id)
	if err != nil {
		return nil, err
	}
	rs := &restorer{tree: t, ids: map[string]string{}}
	fail := func(err error) (*Ranking, error) {
		for _, cid := range rs.created {
			delete(t.cols, cid)
		}
		delete(t.cols, r.root.id)
		return nil, fmt.Errorf("restore ranking %d: %w", id, err)
	}

	for _, cd := range d.Columns {
		c, err := rs.column(cd)
		if err != nil {
			return fail(err)
		}
		r.Push(c)
	}

	r.SetMaxSortCriteria(d.MaxSortCriteria)
	if len(d.Sort) > 0 {
		crit, err := rs.criteria(d.Sort, false)
		if err != nil {
			return fail(err)
		}
		if !r.SetSortCriteria(crit) {
			return fail(fmt.Errorf("%w: sort criteria", ErrBadDesc))
		}
	}
	if len(d.GroupBy) > 0 {
		cols := make([]Column, 0, len(d.GroupBy))
		for _, gid := range d.GroupBy {
			c := t.Get(rs.ids[gid])
			if c == nil {
				return fail(fmt.Errorf("%w: unknown group column %q", ErrBadDesc, gid))
			}
			cols = append(cols, c)
		}
		if !r.SetGroupCriteria(cols) {
			return fail(fmt.Errorf("%w: group criteria", ErrBadDesc))
		}
	}
	if len(d.GroupSort) > 0 {
		crit, err := rs.criteria(d.GroupSort, true)
		if err != nil {
			return fail(err)
		}
		if !r.SetGroupSortCriteria(crit) {
			return fail(fmt.Errorf("%w: group sort criteria", ErrBadDesc))
		}
	}
	return r, nil
}

// CloneRanking restores a copy of src under a new id. The clone starts with
// src's current order.
func (t *Tree) CloneRanking(id int, src *Ranking) (*Ranking, error) {
	r, err := t.Restore(id, src.Dump())
	if err != nil {
		return nil, err
	}
	r.copyOrderFrom(src)
	return r, nil
}

type restorer struct {
	tree    *Tree
	ids     map[string]string // dumped id -> new id
	created []string
}

func (rs *restorer) criteria(in []SortCriterion, allowKey bool) ([]SortCriterion, error) {
	out := make([]SortCriterion, 0, len(in))
	for _, c := range in {
		if c.Column == "" && allowKey {
			out = append(out, c)
			continue
		}
		nid, ok := rs.ids[c.Column]
		if !ok {
			return nil, fmt.Errorf("%w: unknown sort column %q", ErrBadDesc, c.Column)
		}
		out = append(out, SortCriterion{Column: nid, Asc: c.Asc})
	}
	return out, nil
}

func (rs *restorer) column(cd ColumnDump) (Column, error) {
	c, err := rs.tree.Create(cd.Desc)
	if err != nil {
		return nil, err
	}
	rs.created = append(rs.created, c.ID())
	if cd.ID != "" {
		rs.ids[cd.ID] = c.ID()
	}
	if cd.Label != "" {
		c.SetLabel(cd.Label)
	}

	switch x := c.(type) {
	case *NumberColumn:
		if len(cd.Mapping) == 2 {
			if err := x.SetMapping(cd.Mapping[0], cd.Mapping[1]); err != nil {
				return nil, err
			}
		}
		if f := cd.Filter; f != nil {
			lo, hi := math.Inf(-1), math.Inf(1)
			if f.Min != nil {
				lo = *f.Min
			}
			if f.Max != nil {
				hi = *f.Max
			}
			if err := x.SetFilter(lo, hi); err != nil {
				return nil, err
			}
			x.SetFilterMissing(f.FilterMissing)
		}
	case *StringColumn:
		if f := cd.Filter; f != nil {
			if f.Pattern != "" {
				if err := x.SetFilterPattern(f.Pattern); err != nil {
					return nil, err
				}
			} else {
				x.SetFilter(f.Text)
			}
		}
	case *CategoricalColumn:
		if f := cd.Filter; f != nil {
			if err := x.SetFilter(f.Categories); err != nil {
				return nil, err
			}
		}
	case *DateColumn:
		if cd.Grouper != nil {
			if err := x.SetGrouper(*cd.Grouper); err != nil {
				return nil, err
			}
		}
		if f := cd.Filter; f != nil {
			df := DateFilter{FilterMissing: f.FilterMissing}
			if f.From != nil {
				df.From = *f.From
			}
			if f.To != nil {
				df.To = *f.To
			}
			if err := x.SetFilter(df); err != nil {
				return nil, err
			}
		}
	case *StackColumn:
		for _, ch := range cd.Children {
			child, err := rs.column(ch.Column)
			if err != nil {
				return nil, err
			}
			if err := x.Push(child, ch.Weight); err != nil {
				return nil, err
			}
		}
		x.collapsed = cd.Collapsed
		return x, nil
	}

	c.SetWidth(cd.Width)
	return c, nil
}
