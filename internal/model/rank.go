package model

import "slices"

// SortCriterion is one key of a sort specification. An empty Column in a
// group sort criterion means "the group key itself".
type SortCriterion struct {
	Column string `json:"column"`
	Asc    bool   `json:"asc"`
}

// RankColumn is the root of one ranking's column tree. It owns the content
// columns and the sort, group and group-sort criteria.
//
// Invariant: when children is non-empty, sort is non-empty.
type RankColumn struct {
	core
	children  []string
	sort      []SortCriterion
	groups    []string
	groupSort []SortCriterion
	maxSort   int // 0 = unlimited
	ranking   *Ranking
}

// Ranking returns the ranking this column is the root of.
func (r *RankColumn) Ranking() *Ranking { return r.ranking }

func (r *RankColumn) childIDs() []string { return slices.Clone(r.children) }

// removeChild drops a content column and every criterion that refers to it
// or to one of its descendants.
func (r *RankColumn) removeChild(id string) bool {
	idx := slices.Index(r.children, id)
	if idx < 0 {
		return false
	}
	r.children = slices.Delete(r.children, idx, idx+1)
	r.prune(id)
	return true
}

// prune drops the sort, group and group-sort criteria on id or any of its
// descendants. It must run while id is still linked below r. Losing the
// primary sort key falls back to the first remaining column.
func (r *RankColumn) prune(id string) {
	inRemoved := func(cid string) bool { return cid != "" && r.tree.isAncestor(id, cid) }
	r.sort = slices.DeleteFunc(r.sort, func(c SortCriterion) bool { return inRemoved(c.Column) })
	r.groups = slices.DeleteFunc(r.groups, inRemoved)
	r.groupSort = slices.DeleteFunc(r.groupSort, func(c SortCriterion) bool { return inRemoved(c.Column) })

	if len(r.sort) == 0 && len(r.children) > 0 {
		first := r.tree.Get(r.children[0])
		r.sort = []SortCriterion{{Column: first.ID(), Asc: defaultAsc(first)}}
	}
	r.ranking.markDirty()
}

// childChanged decides whether a mutation below this root requires a
// resort. Filter changes always do; value changes only when they touch a
// sort, group or group-sort criterion.
func (r *RankColumn) childChanged(id string, k change) {
	if k == changeFilter || r.dependsOn(id) {
		r.ranking.markDirty()
	}
}

func (r *RankColumn) dependsOn(id string) bool {
	for _, c := range r.sort {
		if r.tree.isAncestor(c.Column, id) {
			return true
		}
	}
	for _, g := range r.groups {
		if r.tree.isAncestor(g, id) {
			return true
		}
	}
	for _, c := range r.groupSort {
		if c.Column != "" && r.tree.isAncestor(c.Column, id) {
			return true
		}
	}
	return false
}

// Children returns the content columns.
func (r *RankColumn) Children() []Column {
	out := make([]Column, len(r.children))
	for i, id := range r.children {
		out[i] = r.tree.Get(id)
	}
	return out
}

// Value is unused for the rank column; ranks come from the applied order.
func (r *RankColumn) Value(row Row) any { return nil }

func (r *RankColumn) SortKey(row Row) SortKey { return MissingKey }

func (r *RankColumn) Compare(a, b Row) int { return 0 }

func (r *RankColumn) GroupValue(rows []Row) SortKey { return MissingKey }

// IsFiltered reports whether any content column filters.
func (r *RankColumn) IsFiltered() bool {
	for _, c := range r.Children() {
		if c.IsFiltered() {
			return true
		}
	}
	return false
}

// Filter passes rows accepted by every content column.
func (r *RankColumn) Filter(row Row) bool {
	for _, c := range r.Children() {
		if !c.Filter(row) {
			return false
		}
	}
	return true
}

// defaultAsc is the initial direction for a column: numbers rank high
// values first, everything else sorts ascending.
func defaultAsc(c Column) bool {
	_, numeric := c.(NumericLike)
	return !numeric
}
