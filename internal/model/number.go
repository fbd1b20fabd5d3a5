package model

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/aclements/go-moremath/stats"
)

// ErrBadFilter is returned for an inconsistent filter.
var ErrBadFilter = errors.New("invalid filter")

// Scale maps a numeric domain linearly onto [0,1]. Values outside the
// domain are clamped. A reversed domain inverts the mapping.
type Scale struct {
	Domain [2]float64
}

// Apply maps v into [0,1]. NaN stays NaN.
func (s Scale) Apply(v float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	t := (v - s.Domain[0]) / (s.Domain[1] - s.Domain[0])
	return math.Max(0, math.Min(1, t))
}

// Invert maps a normalized value back into the domain.
func (s Scale) Invert(t float64) float64 {
	return s.Domain[0] + t*(s.Domain[1]-s.Domain[0])
}

// NumberFilter keeps rows whose raw value lies in [Min, Max]. Both bounds
// are inclusive; ±Inf means unbounded.
type NumberFilter struct {
	Min           float64
	Max           float64
	FilterMissing bool // drop rows without a value
}

// NoNumberFilter is the unset filter.
func NoNumberFilter() NumberFilter {
	return NumberFilter{Min: math.Inf(-1), Max: math.Inf(1)}
}

// IsSet reports whether the filter removes any rows.
func (f NumberFilter) IsSet() bool {
	return !math.IsInf(f.Min, -1) || !math.IsInf(f.Max, 1) || f.FilterMissing
}

// NumberColumn extracts a number and normalizes it through a Scale.
type NumberColumn struct {
	core
	scale   Scale
	missing float64
	filter  NumberFilter
}

func newNumberColumn(t *Tree, id string, d Desc) *NumberColumn {
	domain := [2]float64{0, 1}
	if len(d.Domain) == 2 {
		domain = [2]float64{d.Domain[0], d.Domain[1]}
	}
	missing := math.NaN()
	if d.Missing != nil {
		missing = *d.Missing
	}
	return &NumberColumn{
		core:    newCore(t, id, d),
		scale:   Scale{Domain: domain},
		missing: missing,
		filter:  NoNumberFilter(),
	}
}

// RawValue returns the unnormalized value. NaN, "", "NA" and anything not
// numeric become the column's missing value (NaN unless configured).
func (c *NumberColumn) RawValue(row Row) float64 {
	v, ok := toFloat(row.Get(c.desc.Column))
	if !ok {
		return c.missing
	}
	return v
}

// NormalizedValue returns the raw value mapped into [0,1], NaN if missing.
func (c *NumberColumn) NormalizedValue(row Row) float64 {
	return c.scale.Apply(c.RawValue(row))
}

// Value returns the normalized value.
func (c *NumberColumn) Value(row Row) any { return c.NormalizedValue(row) }

func (c *NumberColumn) SortKey(row Row) SortKey { return NumKey(c.NormalizedValue(row)) }

func (c *NumberColumn) Compare(a, b Row) int {
	return CompareKeys(c.SortKey(a), c.SortKey(b))
}

// Scale returns the current normalization.
func (c *NumberColumn) Scale() Scale { return c.scale }

// SetMapping replaces the normalization domain.
func (c *NumberColumn) SetMapping(lo, hi float64) error {
	d := Desc{Type: TypeNumber, Column: c.desc.Column, Domain: []float64{lo, hi}}
	if err := d.Validate(); err != nil {
		return err
	}
	if c.scale.Domain == [2]float64{lo, hi} {
		return nil
	}
	c.scale = Scale{Domain: [2]float64{lo, hi}}
	c.notify(changeValue)
	return nil
}

// NumberFilter returns the current filter.
func (c *NumberColumn) NumberFilter() NumberFilter { return c.filter }

func (c *NumberColumn) IsFiltered() bool { return c.filter.IsSet() }

func (c *NumberColumn) Filter(row Row) bool {
	v := c.RawValue(row)
	if math.IsNaN(v) {
		return !c.filter.FilterMissing
	}
	return v >= c.filter.Min && v <= c.filter.Max
}

// SetFilter restricts rows to raw values in [min, max]. NaN bounds are
// treated as unbounded. It fails when min > max.
func (c *NumberColumn) SetFilter(min, max float64) error {
	if math.IsNaN(min) {
		min = math.Inf(-1)
	}
	if math.IsNaN(max) {
		max = math.Inf(1)
	}
	if min > max {
		return fmt.Errorf("%w: min %v > max %v", ErrBadFilter, min, max)
	}
	return c.setFilter(NumberFilter{Min: min, Max: max, FilterMissing: c.filter.FilterMissing})
}

// SetFilterMissing toggles dropping rows without a value.
func (c *NumberColumn) SetFilterMissing(drop bool) {
	f := c.filter
	f.FilterMissing = drop
	_ = c.setFilter(f)
}

// ClearFilter removes the filter.
func (c *NumberColumn) ClearFilter() {
	_ = c.setFilter(NoNumberFilter())
}

func (c *NumberColumn) setFilter(f NumberFilter) error {
	if f == c.filter {
		return nil
	}
	c.filter = f
	c.notify(changeFilter)
	return nil
}

// GroupValue is the median normalized value of the group.
func (c *NumberColumn) GroupValue(rows []Row) SortKey {
	return NumKey(medianOf(rows, c.NormalizedValue))
}

// medianOf returns the interpolated median of the present values.
func medianOf(rows []Row, value func(Row) float64) float64 {
	xs := make([]float64, 0, len(rows))
	for _, r := range rows {
		if v := value(r); !math.IsNaN(v) {
			xs = append(xs, v)
		}
	}
	if len(xs) == 0 {
		return math.NaN()
	}
	sort.Float64s(xs)
	return stats.Sample{Xs: xs, Sorted: true}.Quantile(0.5)
}
