package model

// Column is a node of the column tree.
//
// Compare must be a strict weak ordering consistent with SortKey: it returns
// a negative number when a sorts before b, and missing values sort first.
type Column interface {
	ID() string
	Desc() Desc
	Label() string
	SetLabel(label string)
	Color() string
	Width() float64
	SetWidth(w float64)
	// Parent returns the id of the parent column, "" for detached columns
	// and ranking roots.
	Parent() string

	Value(row Row) any
	SortKey(row Row) SortKey
	Compare(a, b Row) int
	IsFiltered() bool
	Filter(row Row) bool
	// GroupValue aggregates rows of one group into a key used to order groups.
	GroupValue(rows []Row) SortKey

	base() *core
}

// NumericLike is implemented by columns with a normalized [0,1] value.
type NumericLike interface {
	Column
	RawValue(row Row) float64
	NormalizedValue(row Row) float64
}

// Grouper is implemented by columns that can partition rows.
type Grouper interface {
	Column
	GroupKey(row Row) GroupKey
}

// change classifies a column mutation for resort propagation.
type change int

const (
	changeValue  change = iota // value or ordering of the column changed
	changeFilter               // the set of passing rows changed
)

// core holds the attributes shared by every column type.
type core struct {
	id     string
	desc   Desc
	label  string
	color  string
	width  float64
	parent string
	tree   *Tree
}

func newCore(t *Tree, id string, d Desc) core {
	return core{
		id:    id,
		desc:  d,
		label: d.label(),
		color: d.Color,
		width: d.width(),
		tree:  t,
	}
}

func (c *core) ID() string            { return c.id }
func (c *core) Desc() Desc            { return c.desc }
func (c *core) Label() string         { return c.label }
func (c *core) SetLabel(label string) { c.label = label }
func (c *core) Color() string         { return c.color }
func (c *core) Width() float64        { return c.width }
func (c *core) Parent() string        { return c.parent }
func (c *core) base() *core           { return c }

// SetWidth sets the pixel width; negative widths are clamped to zero.
func (c *core) SetWidth(w float64) {
	if w < 0 {
		w = 0
	}
	if w == c.width {
		return
	}
	c.width = w
	c.tree.widthChanged(c.id)
}

func (c *core) notify(k change) {
	c.tree.changed(c.id, k)
}
