// Package model is the column/ranking data model.
//
// Columns live in a Tree (an arena keyed by column id). A column stores the
// id of its parent rather than a pointer, and the owning ranking is found by
// chasing parent ids up to a RankColumn. Rankings are built from a Tree and
// hold the sort, group and group-sort criteria together with the last
// applied order.
//
// # Thread Safety
//
// Tree and column mutation is single-threaded: the caller owns it. The
// order state of a Ranking (BeginSort, ApplyOrder, Order, FlatGroups, Rank)
// is guarded by a mutex so that sort results may land from other goroutines.
package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Row is one immutable data record with a stable index.
type Row struct {
	Index  int            `json:"index"`
	Values map[string]any `json:"values"`
}

// NewRows wraps raw records, assigning indices in slice order.
func NewRows(records []map[string]any) []Row {
	rows := make([]Row, len(records))
	for i, rec := range records {
		rows[i] = Row{Index: i, Values: rec}
	}
	return rows
}

// Get resolves field against the row. Dotted fields ("a.b") descend into
// nested maps when no top-level key with the full name exists.
func (r Row) Get(field string) any {
	if r.Values == nil {
		return nil
	}
	if v, ok := r.Values[field]; ok {
		return v
	}
	if !strings.Contains(field, ".") {
		return nil
	}
	var cur any = r.Values
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

// isMissingString reports the textual missing markers: empty, NA, na.
func isMissingString(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "na") || strings.EqualFold(s, "nan")
}

// toFloat converts a raw accessor result to a number. ok is false for
// missing markers and values that are not numeric.
func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case nil:
		return math.NaN(), false
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case int32:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint64:
		f = float64(x)
	case json.Number:
		p, err := x.Float64()
		if err != nil {
			return math.NaN(), false
		}
		f = p
	case string:
		if isMissingString(x) {
			return math.NaN(), false
		}
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return math.NaN(), false
		}
		f = p
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case time.Time:
		if x.IsZero() {
			return math.NaN(), false
		}
		f = float64(x.UnixMilli())
	default:
		return math.NaN(), false
	}
	if math.IsNaN(f) {
		return f, false
	}
	return f, true
}

// toString renders a raw accessor result as text. Missing values become "".
func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
