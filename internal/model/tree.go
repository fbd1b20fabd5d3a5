package model

import (
	"fmt"
)

// Tree is the arena that owns every column of a provider. Column ids are
// unique within a tree and safe to use as CSS class names.
type Tree struct {
	cols   map[string]Column
	nextID int
}

// NewTree creates an empty column arena.
func NewTree() *Tree {
	return &Tree{cols: make(map[string]Column)}
}

// Get returns the column with the given id, or nil.
func (t *Tree) Get(id string) Column {
	return t.cols[id]
}

// Len returns the number of live columns, ranking roots included.
func (t *Tree) Len() int { return len(t.cols) }

// Create builds a detached column from a descriptor. Stack columns start
// without children; rank columns are only created through NewRanking.
func (t *Tree) Create(d Desc) (Column, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	id := t.newID()
	var c Column
	switch d.Type {
	case TypeNumber:
		c = newNumberColumn(t, id, d)
	case TypeString:
		c = newStringColumn(t, id, d)
	case TypeCategorical:
		c = newCategoricalColumn(t, id, d)
	case TypeDate:
		c = newDateColumn(t, id, d)
	case TypeStack:
		c = newStackColumn(t, id, d)
	case TypeRank:
		return nil, fmt.Errorf("%w: rank columns are created with their ranking", ErrBadDesc)
	}
	t.cols[id] = c
	return c, nil
}

// NewRanking creates an empty ranking whose root column id is derived from id.
// Ranking ids must be unique per tree.
func (t *Tree) NewRanking(id int) (*Ranking, error) {
	rid := fmt.Sprintf("rank%d", id)
	if _, exists := t.cols[rid]; exists {
		return nil, fmt.Errorf("ranking %d already exists", id)
	}
	r := &Ranking{id: id, tree: t, ranks: make(map[int]int)}
	root := &RankColumn{
		core:    newCore(t, rid, Desc{Type: TypeRank, Label: "Rank", Width: 50}),
		ranking: r,
	}
	r.root = root
	t.cols[rid] = root
	return r, nil
}

// Ranker chases parent ids from id up to the owning rank column. It returns
// nil for detached columns.
func (t *Tree) Ranker(id string) *RankColumn {
	for steps := 0; steps <= len(t.cols); steps++ {
		c, ok := t.cols[id]
		if !ok {
			return nil
		}
		if rc, ok := c.(*RankColumn); ok {
			return rc
		}
		id = c.base().parent
		if id == "" {
			return nil
		}
	}
	return nil
}

// isAncestor reports whether anc is id itself or one of its ancestors.
func (t *Tree) isAncestor(anc, id string) bool {
	for steps := 0; steps <= len(t.cols); steps++ {
		if id == anc {
			return true
		}
		c, ok := t.cols[id]
		if !ok {
			return false
		}
		id = c.base().parent
		if id == "" {
			return false
		}
	}
	return false
}

// Release forgets a ranking and every column below it.
func (t *Tree) Release(r *Ranking) {
	t.forget(r.root.id)
}

func (t *Tree) forget(id string) {
	c, ok := t.cols[id]
	if !ok {
		return
	}
	if p, ok := c.(parentColumn); ok {
		for _, child := range p.childIDs() {
			t.forget(child)
		}
	}
	delete(t.cols, id)
}

func (t *Tree) newID() string {
	for {
		id := fmt.Sprintf("col%d", t.nextID)
		t.nextID++
		if _, taken := t.cols[id]; !taken {
			return id
		}
	}
}

// parentColumn is implemented by columns with children.
type parentColumn interface {
	childIDs() []string
	removeChild(id string) bool
}

// attach makes parent the parent of child, detaching it from its current
// parent first.
func (t *Tree) attach(child Column, parent string) {
	t.unlink(child, t.Ranker(parent))
	child.base().parent = parent
}

// detach removes child from its parent's child list.
func (t *Tree) detach(child Column) {
	t.unlink(child, nil)
}

// unlink removes child from its parent. When child leaves a nested
// position for a different ranking (or none), the old ranking drops its
// criteria on child first. Top-level children are pruned by the rank
// column's own removeChild.
func (t *Tree) unlink(child Column, dest *RankColumn) {
	pid := child.base().parent
	if pid == "" {
		return
	}
	if rc := t.Ranker(pid); rc != nil && rc.ID() != pid && rc != dest {
		rc.prune(child.ID())
	}
	if p, ok := t.cols[pid].(parentColumn); ok {
		p.removeChild(child.ID())
	}
	child.base().parent = ""
}

// changed propagates a column mutation to the owning rank column.
func (t *Tree) changed(id string, k change) {
	if rc := t.Ranker(id); rc != nil {
		rc.childChanged(id, k)
	}
}

// widthChanged keeps stack widths equal to the sum of their children.
func (t *Tree) widthChanged(id string) {
	c, ok := t.cols[id]
	if !ok || c.base().parent == "" {
		return
	}
	if s, ok := t.cols[c.base().parent].(*StackColumn); ok {
		s.syncWidth()
	}
}
