package model

import (
	"fmt"
	"math"
)

type stackChild struct {
	id     string
	weight float64
}

// StackColumn is a weighted composite of numeric columns. Its value is the
// weighted sum of the children's normalized values, using weights rescaled
// to sum to 1. Its width is the sum of the children's widths.
type StackColumn struct {
	core
	children  []stackChild
	collapsed bool
}

func newStackColumn(t *Tree, id string, d Desc) *StackColumn {
	s := &StackColumn{core: newCore(t, id, d)}
	s.width = 0
	return s
}

// Push appends a numeric child with a relative weight.
func (s *StackColumn) Push(child Column, weight float64) error {
	return s.Insert(child, len(s.children), weight)
}

// Insert adds a numeric child at index with a relative weight.
func (s *StackColumn) Insert(child Column, index int, weight float64) error {
	if _, ok := child.(NumericLike); !ok {
		return fmt.Errorf("%w: stack children must be numeric, got %s", ErrBadDesc, child.Desc().Type)
	}
	if weight < 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
		return fmt.Errorf("%w: weight %v", ErrBadDesc, weight)
	}
	if child.ID() == s.id || s.tree.isAncestor(child.ID(), s.id) {
		return fmt.Errorf("%w: stack cannot contain itself", ErrBadDesc)
	}
	s.tree.attach(child, s.id)
	if index < 0 || index > len(s.children) {
		index = len(s.children)
	}
	s.children = append(s.children, stackChild{})
	copy(s.children[index+1:], s.children[index:])
	s.children[index] = stackChild{id: child.ID(), weight: weight}
	s.syncWidth()
	s.notify(changeValue)
	return nil
}

// Remove detaches child from the stack.
func (s *StackColumn) Remove(child Column) bool {
	if child.Parent() != s.id {
		return false
	}
	s.tree.detach(child)
	return true
}

func (s *StackColumn) childIDs() []string {
	ids := make([]string, len(s.children))
	for i, c := range s.children {
		ids[i] = c.id
	}
	return ids
}

func (s *StackColumn) removeChild(id string) bool {
	for i, c := range s.children {
		if c.id == id {
			s.children = append(s.children[:i], s.children[i+1:]...)
			s.syncWidth()
			s.notify(changeValue)
			return true
		}
	}
	return false
}

// Children returns the child columns in order.
func (s *StackColumn) Children() []Column {
	out := make([]Column, len(s.children))
	for i, c := range s.children {
		out[i] = s.tree.Get(c.id)
	}
	return out
}

// Weights returns the stored relative weights in child order.
func (s *StackColumn) Weights() []float64 {
	ws := make([]float64, len(s.children))
	for i, c := range s.children {
		ws[i] = c.weight
	}
	return ws
}

// normalized returns the weights rescaled to sum to 1. All-zero weights
// become equal shares.
func (s *StackColumn) normalized() []float64 {
	ws := s.Weights()
	total := 0.0
	for _, w := range ws {
		total += w
	}
	for i := range ws {
		if total > 0 {
			ws[i] /= total
		} else {
			ws[i] = 1 / float64(len(ws))
		}
	}
	return ws
}

// NormalizeWeights rescales the stored weights to sum to 1. Calling it again
// without an intervening change leaves the weights as they are.
func (s *StackColumn) NormalizeWeights() {
	for i, w := range s.normalized() {
		s.children[i].weight = w
	}
}

// SetWeights replaces all weights. Values are relative.
func (s *StackColumn) SetWeights(ws []float64) error {
	if len(ws) != len(s.children) {
		return fmt.Errorf("%w: %d weights for %d children", ErrBadDesc, len(ws), len(s.children))
	}
	for _, w := range ws {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: weight %v", ErrBadDesc, w)
		}
	}
	for i, w := range ws {
		s.children[i].weight = w
	}
	s.notify(changeValue)
	return nil
}

// ChangeWeight sets the weight of one child. With autoNormalize all weights
// are rescaled to sum to 1 and every child's width is resynced to
// stackWidth × weight; otherwise only the single weight changes.
func (s *StackColumn) ChangeWeight(child Column, weight float64, autoNormalize bool) bool {
	if weight < 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
		return false
	}
	idx := -1
	for i, c := range s.children {
		if c.id == child.ID() {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	s.children[idx].weight = weight
	if autoNormalize {
		s.NormalizeWeights()
		s.distributeWidth(s.width)
	}
	s.notify(changeValue)
	return true
}

// SetWidth spreads w across the children in proportion to their weights.
func (s *StackColumn) SetWidth(w float64) {
	if w < 0 {
		w = 0
	}
	if len(s.children) == 0 {
		s.core.SetWidth(w)
		return
	}
	s.distributeWidth(w)
}

func (s *StackColumn) distributeWidth(w float64) {
	for i, share := range s.normalized() {
		s.tree.Get(s.children[i].id).base().width = w * share
	}
	s.syncWidth()
}

// syncWidth recomputes the width from the children and propagates it to an
// enclosing stack.
func (s *StackColumn) syncWidth() {
	total := 0.0
	for _, c := range s.children {
		total += s.tree.Get(c.id).Width()
	}
	if total == s.width {
		return
	}
	s.width = total
	s.tree.widthChanged(s.id)
}

// Collapsed reports whether layouts show the stack as a single column.
func (s *StackColumn) Collapsed() bool { return s.collapsed }

// SetCollapsed toggles layout compression.
func (s *StackColumn) SetCollapsed(v bool) { s.collapsed = v }

// NormalizedValue is Σ wᵢ·vᵢ over children with a value. Missing children
// contribute nothing; the stack is missing only when all children are.
func (s *StackColumn) NormalizedValue(row Row) float64 {
	if len(s.children) == 0 {
		return math.NaN()
	}
	sum, present := 0.0, false
	for i, w := range s.normalized() {
		v := s.tree.Get(s.children[i].id).(NumericLike).NormalizedValue(row)
		if math.IsNaN(v) {
			continue
		}
		sum += w * v
		present = true
	}
	if !present {
		return math.NaN()
	}
	return sum
}

// RawValue equals the normalized value for composites.
func (s *StackColumn) RawValue(row Row) float64 { return s.NormalizedValue(row) }

func (s *StackColumn) Value(row Row) any { return s.NormalizedValue(row) }

func (s *StackColumn) SortKey(row Row) SortKey { return NumKey(s.NormalizedValue(row)) }

func (s *StackColumn) Compare(a, b Row) int {
	return CompareKeys(s.SortKey(a), s.SortKey(b))
}

func (s *StackColumn) IsFiltered() bool {
	for _, c := range s.Children() {
		if c.IsFiltered() {
			return true
		}
	}
	return false
}

func (s *StackColumn) Filter(row Row) bool {
	for _, c := range s.Children() {
		if !c.Filter(row) {
			return false
		}
	}
	return true
}

func (s *StackColumn) GroupValue(rows []Row) SortKey {
	return NumKey(medianOf(rows, s.NormalizedValue))
}
