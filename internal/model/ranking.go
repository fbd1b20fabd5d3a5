package model

import (
	"fmt"
	"slices"
	"sync"
)

// Ranking is one sortable, groupable view over the shared rows. It owns a
// RankColumn and, through it, a tree of content columns.
type Ranking struct {
	id   int
	tree *Tree
	root *RankColumn

	mu        sync.Mutex
	dirty     bool
	changes   uint64 // bumped by every markDirty
	sortedAt  uint64 // changes as of the latest BeginSort
	seq       uint64
	applied   uint64 // seq of the order currently held
	order     []int
	groups    []Group
	ranks     map[int]int // row index -> position in order
	listeners []func(*Ranking)
}

// ID returns the provider-assigned ranking id.
func (r *Ranking) ID() int { return r.id }

// Root returns the rank column.
func (r *Ranking) Root() *RankColumn { return r.root }

// Tree returns the arena the ranking lives in.
func (r *Ranking) Tree() *Tree { return r.tree }

// Label returns a display label.
func (r *Ranking) Label() string { return fmt.Sprintf("Ranking %d", r.id) }

// Columns returns the content columns in order.
func (r *Ranking) Columns() []Column { return r.root.Children() }

// Owns reports whether c belongs to this ranking's column tree.
func (r *Ranking) Owns(c Column) bool {
	return c != nil && r.tree.Get(c.ID()) == c && r.tree.Ranker(c.ID()) == r.root
}

// Find returns the owned column with id, or nil.
func (r *Ranking) Find(id string) Column {
	c := r.tree.Get(id)
	if c == nil || !r.Owns(c) {
		return nil
	}
	return c
}

// Push appends c. The first column pushed into an empty ranking becomes
// the sort key.
func (r *Ranking) Push(c Column) bool {
	return r.Insert(c, len(r.root.children))
}

// Insert places c at index among the content columns. Columns attached
// elsewhere are moved.
func (r *Ranking) Insert(c Column, index int) bool {
	if c == nil || r.tree.Get(c.ID()) != c {
		return false
	}
	if _, isRank := c.(*RankColumn); isRank {
		return false
	}
	r.tree.attach(c, r.root.id)
	if index < 0 || index > len(r.root.children) {
		index = len(r.root.children)
	}
	r.root.children = slices.Insert(r.root.children, index, c.ID())
	if len(r.root.sort) == 0 {
		r.root.sort = []SortCriterion{{Column: c.ID(), Asc: defaultAsc(c)}}
	}
	r.markDirty()
	return true
}

// Remove detaches a content column. The column stays in the tree and may
// be pushed again.
func (r *Ranking) Remove(c Column) bool {
	if c == nil || c.Parent() != r.root.id {
		return false
	}
	r.tree.detach(c)
	return true
}

// SortBy makes c the only sort key. It fails without side effects when c
// does not belong to this ranking. Setting the current key and direction
// again is a no-op.
func (r *Ranking) SortBy(c Column, asc bool) bool {
	if !r.Owns(c) {
		return false
	}
	want := []SortCriterion{{Column: c.ID(), Asc: asc}}
	if slices.Equal(r.root.sort, want) {
		return true
	}
	r.root.sort = want
	r.markDirty()
	return true
}

// ToggleSort flips the direction if c is the primary key, otherwise sorts
// by c in its default direction.
func (r *Ranking) ToggleSort(c Column) bool {
	if len(r.root.sort) > 0 && c != nil && r.root.sort[0].Column == c.ID() {
		return r.SortBy(c, !r.root.sort[0].Asc)
	}
	if c == nil {
		return false
	}
	return r.SortBy(c, defaultAsc(c))
}

// SortCriteria returns the nested sort criteria, primary first.
func (r *Ranking) SortCriteria() []SortCriterion { return slices.Clone(r.root.sort) }

// SortColumn returns the primary sort column and direction.
func (r *Ranking) SortColumn() (Column, bool) {
	if len(r.root.sort) == 0 {
		return nil, false
	}
	return r.tree.Get(r.root.sort[0].Column), r.root.sort[0].Asc
}

// SetMaxSortCriteria caps the number of sort criteria (0 = unlimited) and
// truncates the current list when needed.
func (r *Ranking) SetMaxSortCriteria(n int) {
	if n < 0 {
		n = 0
	}
	r.root.maxSort = n
	if n > 0 && len(r.root.sort) > n {
		r.root.sort = r.root.sort[:n]
		r.markDirty()
	}
}

// MaxSortCriteria returns the criteria cap, 0 if unlimited.
func (r *Ranking) MaxSortCriteria() int { return r.root.maxSort }

// SetSortCriteria replaces the nested sort criteria. Every column must be
// owned by the ranking; later duplicates are dropped and the list is cut to
// the configured maximum. An empty list is rejected while the ranking has
// columns.
func (r *Ranking) SetSortCriteria(crit []SortCriterion) bool {
	next := make([]SortCriterion, 0, len(crit))
	seen := map[string]bool{}
	for _, c := range crit {
		if r.Find(c.Column) == nil {
			return false
		}
		if seen[c.Column] {
			continue
		}
		seen[c.Column] = true
		next = append(next, c)
	}
	if len(next) == 0 && len(r.root.children) > 0 {
		return false
	}
	if r.root.maxSort > 0 && len(next) > r.root.maxSort {
		next = next[:r.root.maxSort]
	}
	if slices.Equal(next, r.root.sort) {
		return true
	}
	r.root.sort = next
	r.markDirty()
	return true
}

// GroupBy groups by a single column; nil clears the grouping.
func (r *Ranking) GroupBy(c Column) bool {
	if c == nil {
		return r.SetGroupCriteria(nil)
	}
	return r.SetGroupCriteria([]Column{c})
}

// SetGroupCriteria groups by the given columns, outermost first. Each must
// be owned and able to group rows.
func (r *Ranking) SetGroupCriteria(cols []Column) bool {
	ids := make([]string, 0, len(cols))
	for _, c := range cols {
		if _, ok := c.(Grouper); !ok || !r.Owns(c) {
			return false
		}
		if !slices.Contains(ids, c.ID()) {
			ids = append(ids, c.ID())
		}
	}
	if slices.Equal(ids, r.root.groups) {
		return true
	}
	r.root.groups = ids
	r.markDirty()
	return true
}

// GroupCriteria returns the grouping columns.
func (r *Ranking) GroupCriteria() []Column {
	out := make([]Column, len(r.root.groups))
	for i, id := range r.root.groups {
		out[i] = r.tree.Get(id)
	}
	return out
}

// SetGroupSortCriteria orders groups independently of the rows inside them.
// A criterion with an empty Column sorts by the group key.
func (r *Ranking) SetGroupSortCriteria(crit []SortCriterion) bool {
	for _, c := range crit {
		if c.Column != "" && r.Find(c.Column) == nil {
			return false
		}
	}
	next := slices.Clone(crit)
	if slices.Equal(next, r.root.groupSort) {
		return true
	}
	r.root.groupSort = next
	r.markDirty()
	return true
}

// GroupSortCriteria returns the group sort criteria.
func (r *Ranking) GroupSortCriteria() []SortCriterion { return slices.Clone(r.root.groupSort) }

// Flatten lists the columns as laid out: stacks are followed by their
// children unless collapsed.
func (r *Ranking) Flatten() []Column {
	var out []Column
	var walk func(c Column)
	walk = func(c Column) {
		out = append(out, c)
		if s, ok := c.(*StackColumn); ok && !s.Collapsed() {
			for _, child := range s.Children() {
				walk(child)
			}
		}
	}
	for _, c := range r.Columns() {
		walk(c)
	}
	return out
}

// Filter reports whether row passes every column filter.
func (r *Ranking) Filter(row Row) bool { return r.root.Filter(row) }

// OnDirty registers fn to run whenever the ranking needs a resort.
func (r *Ranking) OnDirty(fn func(*Ranking)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Dirty reports whether criteria or filters changed since the order held
// was computed. A sort that fails or is superseded leaves it set.
func (r *Ranking) Dirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dirty
}

func (r *Ranking) markDirty() {
	r.mu.Lock()
	r.dirty = true
	r.changes++
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()
	for _, fn := range listeners {
		fn(r)
	}
}

// BeginSort starts a sort and returns its sequence number.
func (r *Ranking) BeginSort() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.sortedAt = r.changes
	return r.seq
}

// ApplyOrder stores the result of the sort started with seq. It is applied
// only if no newer sort has begun since; stale results are dropped and
// false is returned. The ranking turns clean unless it changed after the
// sort began.
func (r *Ranking) ApplyOrder(seq uint64, order []int, groups []Group) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if seq != r.seq {
		return false
	}
	r.applied = seq
	if r.changes == r.sortedAt {
		r.dirty = false
	}
	r.order = order
	r.groups = groups
	r.ranks = make(map[int]int, len(order))
	for pos, idx := range order {
		r.ranks[idx] = pos
	}
	return true
}

// AppliedSeq returns the sequence number of the order currently held, or
// 0 before the first ApplyOrder.
func (r *Ranking) AppliedSeq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applied
}

// Order returns the last applied order.
func (r *Ranking) Order() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.order)
}

// FlatGroups returns the groups of the last applied order.
func (r *Ranking) FlatGroups() []Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Group, len(r.groups))
	for i, g := range r.groups {
		out[i] = Group{Name: g.Name, Keys: slices.Clone(g.Keys), Order: slices.Clone(g.Order)}
	}
	return out
}

// Rank returns the position of a row in the applied order.
func (r *Ranking) Rank(rowIndex int) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.ranks[rowIndex]
	return pos, ok
}

// copyOrderFrom seeds the order state from another ranking so a clone
// starts in the same order without sorting.
func (r *Ranking) copyOrderFrom(src *Ranking) {
	order := src.Order()
	groups := src.FlatGroups()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirty = false
	r.order = order
	r.groups = groups
	r.ranks = make(map[int]int, len(order))
	for pos, idx := range order {
		r.ranks[idx] = pos
	}
}
