package model

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// Column type tags.
const (
	TypeString      = "string"
	TypeNumber      = "number"
	TypeCategorical = "categorical"
	TypeDate        = "date"
	TypeStack       = "stack"
	TypeRank        = "rank"
)

// DefaultWidth is used when a descriptor leaves Width unset.
const DefaultWidth = 100

// maxDerivedCategories is the largest number of distinct strings for which
// DeriveDescs proposes a categorical column.
const maxDerivedCategories = 10

var (
	// ErrUnknownType is returned for a descriptor with an unrecognized type tag.
	ErrUnknownType = errors.New("unknown column type")
	// ErrBadDomain is returned for a malformed numeric domain.
	ErrBadDomain = errors.New("malformed domain")
	// ErrBadDesc is returned for any other invalid descriptor field.
	ErrBadDesc = errors.New("invalid column descriptor")
)

// Desc is the immutable configuration of a column.
type Desc struct {
	Type        string    `json:"type"`
	Column      string    `json:"column,omitempty"` // accessor field
	Label       string    `json:"label,omitempty"`
	Color       string    `json:"color,omitempty"`
	Width       float64   `json:"width,omitempty"`
	Domain      []float64 `json:"domain,omitempty"`      // number: [min, max]
	Categories  []string  `json:"categories,omitempty"`  // categorical
	Missing     *float64  `json:"missing,omitempty"`     // number: raw replacement for missing values
	Granularity string    `json:"granularity,omitempty"` // date grouping
	Circular    bool      `json:"circular,omitempty"`    // date grouping
}

// Validate checks the descriptor and returns a wrapped sentinel error.
func (d Desc) Validate() error {
	switch d.Type {
	case TypeString, TypeNumber, TypeCategorical, TypeDate:
		if d.Column == "" {
			return fmt.Errorf("%w: %s column needs an accessor field", ErrBadDesc, d.Type)
		}
	case TypeStack, TypeRank:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, d.Type)
	}

	if d.Width < 0 || math.IsNaN(d.Width) {
		return fmt.Errorf("%w: negative width %v", ErrBadDesc, d.Width)
	}

	switch d.Type {
	case TypeNumber:
		if d.Domain != nil {
			if len(d.Domain) != 2 {
				return fmt.Errorf("%w: want 2 bounds, got %d", ErrBadDomain, len(d.Domain))
			}
			lo, hi := d.Domain[0], d.Domain[1]
			if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
				return fmt.Errorf("%w: bounds must be finite", ErrBadDomain)
			}
			if lo == hi {
				return fmt.Errorf("%w: empty range [%v, %v]", ErrBadDomain, lo, hi)
			}
		}
	case TypeCategorical:
		if len(d.Categories) == 0 {
			return fmt.Errorf("%w: categorical column needs categories", ErrBadDesc)
		}
		seen := make(map[string]bool, len(d.Categories))
		for _, c := range d.Categories {
			if c == "" {
				return fmt.Errorf("%w: empty category label", ErrBadDesc)
			}
			if seen[c] {
				return fmt.Errorf("%w: duplicate category %q", ErrBadDesc, c)
			}
			seen[c] = true
		}
	case TypeDate:
		if d.Granularity != "" {
			if _, ok := ParseGranularity(d.Granularity); !ok {
				return fmt.Errorf("%w: unknown granularity %q", ErrBadDesc, d.Granularity)
			}
		}
	}
	return nil
}

func (d Desc) width() float64 {
	if d.Width == 0 {
		return DefaultWidth
	}
	return d.Width
}

func (d Desc) label() string {
	if d.Label != "" {
		return d.Label
	}
	if d.Column != "" {
		return d.Column
	}
	return d.Type
}

// DeriveDescs proposes a descriptor for every top-level field found in rows.
// Fields are returned in name order.
func DeriveDescs(rows []Row) []Desc {
	fields := map[string]bool{}
	for _, r := range rows {
		for k := range r.Values {
			fields[k] = true
		}
	}
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)

	descs := make([]Desc, 0, len(names))
	for _, name := range names {
		descs = append(descs, deriveDesc(name, rows))
	}
	return descs
}

func deriveDesc(field string, rows []Row) Desc {
	numeric, dates := true, true
	present := 0
	lo, hi := math.Inf(1), math.Inf(-1)
	distinct := map[string]bool{}

	for _, r := range rows {
		v := r.Values[field]
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && isMissingString(s) {
			continue
		}
		present++

		_, isTime := v.(time.Time)
		if f, ok := toFloat(v); ok && !isTime {
			lo, hi = math.Min(lo, f), math.Max(hi, f)
		} else {
			numeric = false
		}
		if _, ok := toTime(v); !ok {
			dates = false
		}
		distinct[toString(v)] = true
	}

	switch {
	case present == 0:
		return Desc{Type: TypeString, Column: field}
	case numeric:
		if lo == hi {
			hi = lo + 1
		}
		return Desc{Type: TypeNumber, Column: field, Domain: []float64{lo, hi}}
	case dates:
		return Desc{Type: TypeDate, Column: field}
	case len(distinct) <= maxDerivedCategories && len(distinct) < present:
		cats := make([]string, 0, len(distinct))
		for c := range distinct {
			cats = append(cats, c)
		}
		sort.Strings(cats)
		return Desc{Type: TypeCategorical, Column: field, Categories: cats}
	default:
		return Desc{Type: TypeString, Column: field}
	}
}
