package model

import (
	"math"
	"strings"
)

// SortKey is the comparable projection of one column value. It carries no
// references back into the model so it can be handed to another goroutine.
type SortKey struct {
	Num     float64 `json:"num,omitempty"`
	Str     string  `json:"str,omitempty"`
	Missing bool    `json:"missing,omitempty"`
}

// MissingKey is the key of a missing value.
var MissingKey = SortKey{Missing: true}

// NumKey returns the key for a number, treating NaN as missing.
func NumKey(v float64) SortKey {
	if math.IsNaN(v) {
		return MissingKey
	}
	return SortKey{Num: v}
}

// CompareKeys orders a before b when negative. Missing sorts first, then
// keys compare by Num and finally by Str.
func CompareKeys(a, b SortKey) int {
	switch {
	case a.Missing && b.Missing:
		return 0
	case a.Missing:
		return -1
	case b.Missing:
		return 1
	}
	switch {
	case a.Num < b.Num:
		return -1
	case a.Num > b.Num:
		return 1
	}
	return strings.Compare(a.Str, b.Str)
}

// GroupKey identifies the group of a row under one grouping column.
// Value orders groups; Name labels them.
type GroupKey struct {
	Value   float64 `json:"value"`
	Name    string  `json:"name"`
	Missing bool    `json:"missing,omitempty"`
}

// MissingGroupName labels the bucket of rows without a group value.
const MissingGroupName = "Missing values"

// CompareGroupKeys orders group keys by Value, then Name. Missing groups
// sort last.
func CompareGroupKeys(a, b GroupKey) int {
	switch {
	case a.Missing && b.Missing:
		return 0
	case a.Missing:
		return 1
	case b.Missing:
		return -1
	}
	switch {
	case a.Value < b.Value:
		return -1
	case a.Value > b.Value:
		return 1
	}
	return strings.Compare(a.Name, b.Name)
}

// DefaultGroupName is the single group of an ungrouped ranking.
const DefaultGroupName = "Default"

// GroupSeparator joins the labels of multi-column group keys.
const GroupSeparator = " ∩ "

// Group is one partition of a ranking's order.
type Group struct {
	Name  string     `json:"name"`
	Keys  []GroupKey `json:"keys,omitempty"`
	Order []int      `json:"order"`
}
