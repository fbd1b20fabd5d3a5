package model

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// DateFilter keeps rows dated within [From, To]. Zero bounds are open.
type DateFilter struct {
	From          time.Time
	To            time.Time
	FilterMissing bool
}

// IsSet reports whether the filter removes any rows.
func (f DateFilter) IsSet() bool {
	return !f.From.IsZero() || !f.To.IsZero() || f.FilterMissing
}

// DateColumn holds timestamps. Raw values may be time.Time, unix
// milliseconds or date strings in any common layout.
type DateColumn struct {
	core
	grouper DateGrouper
	filter  DateFilter
}

func newDateColumn(t *Tree, id string, d Desc) *DateColumn {
	g := DateGrouper{Granularity: Year, Circular: d.Circular}
	if d.Granularity != "" {
		g.Granularity = Granularity(d.Granularity)
	}
	return &DateColumn{core: newCore(t, id, d), grouper: g}
}

// toTime converts a raw value to a UTC timestamp.
func toTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return time.Time{}, false
		}
		return x.UTC(), true
	case string:
		if isMissingString(x) {
			return time.Time{}, false
		}
		t, err := dateparse.ParseIn(strings.TrimSpace(x), time.UTC)
		if err != nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	default:
		ms, ok := toFloat(v)
		if !ok || math.IsInf(ms, 0) {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(ms)).UTC(), true
	}
}

// DateValue returns the timestamp of the row, false if missing.
func (c *DateColumn) DateValue(row Row) (time.Time, bool) {
	return toTime(row.Get(c.desc.Column))
}

// Value returns a time.Time, or nil when missing.
func (c *DateColumn) Value(row Row) any {
	if t, ok := c.DateValue(row); ok {
		return t
	}
	return nil
}

func (c *DateColumn) SortKey(row Row) SortKey {
	if t, ok := c.DateValue(row); ok {
		return SortKey{Num: float64(t.UnixMilli())}
	}
	return MissingKey
}

func (c *DateColumn) Compare(a, b Row) int {
	return CompareKeys(c.SortKey(a), c.SortKey(b))
}

// Grouper returns the grouping configuration.
func (c *DateColumn) Grouper() DateGrouper { return c.grouper }

// SetGrouper changes how rows are bucketed when grouping by this column.
func (c *DateColumn) SetGrouper(g DateGrouper) error {
	if _, ok := ParseGranularity(string(g.Granularity)); !ok {
		return fmt.Errorf("%w: unknown granularity %q", ErrBadDesc, g.Granularity)
	}
	if g == c.grouper {
		return nil
	}
	c.grouper = g
	c.notify(changeValue)
	return nil
}

func (c *DateColumn) GroupKey(row Row) GroupKey {
	t, ok := c.DateValue(row)
	if !ok {
		return GroupKey{Name: MissingGroupName, Missing: true}
	}
	return ToDateGroup(c.grouper, t)
}

// Median returns the true median of the group's dates: the middle element
// after sorting, the lower one of the two middles for even sizes. It never
// interpolates between two dates.
func (c *DateColumn) Median(rows []Row) (time.Time, bool) {
	ts := make([]time.Time, 0, len(rows))
	for _, r := range rows {
		if t, ok := c.DateValue(r); ok {
			ts = append(ts, t)
		}
	}
	if len(ts) == 0 {
		return time.Time{}, false
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
	return ts[(len(ts)-1)/2], true
}

// GroupValue is the median date of the group.
func (c *DateColumn) GroupValue(rows []Row) SortKey {
	if t, ok := c.Median(rows); ok {
		return SortKey{Num: float64(t.UnixMilli())}
	}
	return MissingKey
}

// DateFilter returns the current filter.
func (c *DateColumn) DateFilter() DateFilter { return c.filter }

func (c *DateColumn) IsFiltered() bool { return c.filter.IsSet() }

func (c *DateColumn) Filter(row Row) bool {
	t, ok := c.DateValue(row)
	if !ok {
		return !c.filter.FilterMissing
	}
	if !c.filter.From.IsZero() && t.Before(c.filter.From) {
		return false
	}
	if !c.filter.To.IsZero() && t.After(c.filter.To) {
		return false
	}
	return true
}

// SetFilter restricts rows to [from, to]; zero times leave a side open.
func (c *DateColumn) SetFilter(f DateFilter) error {
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return fmt.Errorf("%w: from %s after to %s", ErrBadFilter, f.From, f.To)
	}
	if f.From.Equal(c.filter.From) && f.To.Equal(c.filter.To) && f.FilterMissing == c.filter.FilterMissing {
		return nil
	}
	c.filter = f
	c.notify(changeFilter)
	return nil
}
