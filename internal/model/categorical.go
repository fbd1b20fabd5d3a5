package model

import (
	"fmt"
	"slices"
)

// CategoricalColumn maps values onto a fixed ordered set of categories.
// Values outside the set fall into the missing bucket.
type CategoricalColumn struct {
	core
	categories []string
	index      map[string]int
	allowed    map[string]bool // nil = no filter
}

func newCategoricalColumn(t *Tree, id string, d Desc) *CategoricalColumn {
	index := make(map[string]int, len(d.Categories))
	for i, cat := range d.Categories {
		index[cat] = i
	}
	return &CategoricalColumn{
		core:       newCore(t, id, d),
		categories: slices.Clone(d.Categories),
		index:      index,
	}
}

// Categories returns the ordered category labels.
func (c *CategoricalColumn) Categories() []string { return slices.Clone(c.categories) }

// Category returns the category position of the row, false if missing.
func (c *CategoricalColumn) Category(row Row) (int, bool) {
	i, ok := c.index[toString(row.Get(c.desc.Column))]
	return i, ok
}

// Value returns the category label, "" when missing.
func (c *CategoricalColumn) Value(row Row) any {
	if i, ok := c.Category(row); ok {
		return c.categories[i]
	}
	return ""
}

func (c *CategoricalColumn) SortKey(row Row) SortKey {
	if i, ok := c.Category(row); ok {
		return SortKey{Num: float64(i)}
	}
	return MissingKey
}

func (c *CategoricalColumn) Compare(a, b Row) int {
	return CompareKeys(c.SortKey(a), c.SortKey(b))
}

func (c *CategoricalColumn) GroupKey(row Row) GroupKey {
	if i, ok := c.Category(row); ok {
		return GroupKey{Value: float64(i), Name: c.categories[i]}
	}
	return GroupKey{Name: MissingGroupName, Missing: true}
}

// GroupValue is the most frequent category of the group, ties resolved
// towards the earlier category.
func (c *CategoricalColumn) GroupValue(rows []Row) SortKey {
	counts := make([]int, len(c.categories))
	for _, r := range rows {
		if i, ok := c.Category(r); ok {
			counts[i]++
		}
	}
	best := -1
	for i, n := range counts {
		if n > 0 && (best < 0 || n > counts[best]) {
			best = i
		}
	}
	if best < 0 {
		return MissingKey
	}
	return SortKey{Num: float64(best)}
}

// FilterCategories returns the allowed categories, nil if unfiltered.
func (c *CategoricalColumn) FilterCategories() []string {
	if c.allowed == nil {
		return nil
	}
	var out []string
	for _, cat := range c.categories {
		if c.allowed[cat] {
			out = append(out, cat)
		}
	}
	return out
}

func (c *CategoricalColumn) IsFiltered() bool { return c.allowed != nil }

// Filter passes rows in an allowed category. Missing rows only pass an
// unfiltered column.
func (c *CategoricalColumn) Filter(row Row) bool {
	if c.allowed == nil {
		return true
	}
	i, ok := c.Category(row)
	return ok && c.allowed[c.categories[i]]
}

// SetFilter restricts rows to the given categories. An empty list clears
// the filter.
func (c *CategoricalColumn) SetFilter(cats []string) error {
	if len(cats) == 0 {
		if c.allowed != nil {
			c.allowed = nil
			c.notify(changeFilter)
		}
		return nil
	}
	allowed := make(map[string]bool, len(cats))
	for _, cat := range cats {
		if _, ok := c.index[cat]; !ok {
			return fmt.Errorf("%w: unknown category %q", ErrBadFilter, cat)
		}
		allowed[cat] = true
	}
	c.allowed = allowed
	c.notify(changeFilter)
	return nil
}
