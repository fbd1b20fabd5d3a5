package model

import (
	"fmt"
	"time"
)

// Granularity is the bucket size used to group dates.
type Granularity string

const (
	Century    Granularity = "century"
	Decade     Granularity = "decade"
	Year       Granularity = "year"
	Month      Granularity = "month"
	Week       Granularity = "week"
	DayOfWeek  Granularity = "day_of_week"
	DayOfMonth Granularity = "day_of_month"
	DayOfYear  Granularity = "day_of_year"
	Hour       Granularity = "hour"
	Minute     Granularity = "minute"
	Second     Granularity = "second"
)

var granularities = []Granularity{
	Century, Decade, Year, Month, Week, DayOfWeek, DayOfMonth, DayOfYear, Hour, Minute, Second,
}

// ParseGranularity validates a granularity name.
func ParseGranularity(s string) (Granularity, bool) {
	for _, g := range granularities {
		if string(g) == s {
			return g, true
		}
	}
	return "", false
}

// DateGrouper configures date grouping. A circular grouper buckets by the
// position inside the enclosing cycle (month of year, hour of day, ...);
// its labels replace the dropped absolute parts with "x" placeholders.
type DateGrouper struct {
	Granularity Granularity `json:"granularity"`
	Circular    bool        `json:"circular,omitempty"`
}

// ToDateGroup returns the bucket of t. Value orders buckets; Name labels
// them. All computations are in UTC.
func ToDateGroup(g DateGrouper, t time.Time) GroupKey {
	t = t.UTC()
	y, m, d := t.Date()
	ms := func(at time.Time) float64 { return float64(at.UnixMilli()) }
	date := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

	if g.Circular {
		switch g.Granularity {
		case Decade:
			pos := floorMod(floorDiv(y, 10), 10)
			return GroupKey{Value: float64(pos), Name: fmt.Sprintf("xx%d0s", pos)}
		case Year:
			pos := floorMod(y, 10)
			return GroupKey{Value: float64(pos), Name: fmt.Sprintf("xxx%d", pos)}
		case Month:
			return GroupKey{Value: float64(m - 1), Name: m.String()}
		case Week:
			_, w := t.ISOWeek()
			return GroupKey{Value: float64(w), Name: fmt.Sprintf("W%02d", w)}
		case DayOfWeek:
			wd := mondayIndex(t.Weekday())
			return GroupKey{Value: float64(wd), Name: t.Weekday().String()}
		case DayOfMonth:
			return GroupKey{Value: float64(d), Name: fmt.Sprintf("xxxx-xx-%02d", d)}
		case DayOfYear:
			return GroupKey{Value: float64(int(m)*100 + d), Name: fmt.Sprintf("xxxx-%02d-%02d", int(m), d)}
		case Hour:
			return GroupKey{Value: float64(t.Hour()), Name: fmt.Sprintf("%02d:00", t.Hour())}
		case Minute:
			return GroupKey{Value: float64(t.Minute()), Name: fmt.Sprintf("xx:%02d", t.Minute())}
		case Second:
			return GroupKey{Value: float64(t.Second()), Name: fmt.Sprintf("xx:xx:%02d", t.Second())}
		}
		// centuries have no enclosing cycle; fall through to absolute buckets
	}

	switch g.Granularity {
	case Century:
		c := floorDiv(y, 100) * 100
		return GroupKey{Value: ms(date(c, 1, 1)), Name: fmt.Sprintf("%d-%d", c, c+99)}
	case Decade:
		dec := floorDiv(y, 10) * 10
		return GroupKey{Value: ms(date(dec, 1, 1)), Name: fmt.Sprintf("%ds", dec)}
	case Month:
		start := date(y, m, 1)
		return GroupKey{Value: ms(start), Name: start.Format("Jan 2006")}
	case Week:
		start := date(y, m, d-mondayIndex(t.Weekday()))
		wy, w := t.ISOWeek()
		return GroupKey{Value: ms(start), Name: fmt.Sprintf("%d W%02d", wy, w)}
	case DayOfWeek, DayOfMonth, DayOfYear:
		start := date(y, m, d)
		return GroupKey{Value: ms(start), Name: start.Format("2006-01-02")}
	case Hour:
		start := t.Truncate(time.Hour)
		return GroupKey{Value: ms(start), Name: start.Format("2006-01-02 15:00")}
	case Minute:
		start := t.Truncate(time.Minute)
		return GroupKey{Value: ms(start), Name: start.Format("2006-01-02 15:04")}
	case Second:
		start := t.Truncate(time.Second)
		return GroupKey{Value: ms(start), Name: start.Format("2006-01-02 15:04:05")}
	default: // Year
		return GroupKey{Value: ms(date(y, 1, 1)), Name: fmt.Sprintf("%d", y)}
	}
}

// mondayIndex returns 0 for Monday through 6 for Sunday.
func mondayIndex(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	return a - floorDiv(a, b)*b
}
