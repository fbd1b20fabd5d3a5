package model

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// StringColumn extracts text. Ordering is locale-aware (English collation).
type StringColumn struct {
	core

	mu       sync.Mutex // guards collator and buf
	collator *collate.Collator
	buf      collate.Buffer

	filter  string
	pattern *regexp.Regexp
}

func newStringColumn(t *Tree, id string, d Desc) *StringColumn {
	return &StringColumn{
		core:     newCore(t, id, d),
		collator: collate.New(language.English),
	}
}

// StringValue returns the text, "" when missing.
func (c *StringColumn) StringValue(row Row) string {
	v := row.Get(c.desc.Column)
	if s, ok := v.(string); ok {
		return s
	}
	return toString(v)
}

func (c *StringColumn) Value(row Row) any { return c.StringValue(row) }

// SortKey returns the collation key of the text; empty text is missing.
func (c *StringColumn) SortKey(row Row) SortKey {
	s := c.StringValue(row)
	if s == "" {
		return MissingKey
	}
	c.mu.Lock()
	key := string(c.collator.KeyFromString(&c.buf, s))
	c.buf.Reset()
	c.mu.Unlock()
	return SortKey{Str: key}
}

func (c *StringColumn) Compare(a, b Row) int {
	return CompareKeys(c.SortKey(a), c.SortKey(b))
}

// FilterText returns the substring filter, "" if unset.
func (c *StringColumn) FilterText() string { return c.filter }

// FilterPattern returns the regular expression filter source, "" if unset.
func (c *StringColumn) FilterPattern() string {
	if c.pattern == nil {
		return ""
	}
	return c.pattern.String()
}

func (c *StringColumn) IsFiltered() bool { return c.filter != "" || c.pattern != nil }

func (c *StringColumn) Filter(row Row) bool {
	if !c.IsFiltered() {
		return true
	}
	s := c.StringValue(row)
	if c.pattern != nil {
		return c.pattern.MatchString(s)
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(c.filter))
}

// SetFilter keeps rows whose text contains sub, ignoring case. It replaces
// any pattern filter. An empty sub clears the filter.
func (c *StringColumn) SetFilter(sub string) {
	sub = strings.TrimSpace(sub)
	if sub == c.filter && c.pattern == nil {
		return
	}
	c.filter = sub
	c.pattern = nil
	c.notify(changeFilter)
}

// SetFilterPattern keeps rows whose text matches expr.
func (c *StringColumn) SetFilterPattern(expr string) error {
	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadFilter, err)
	}
	if c.pattern != nil && c.pattern.String() == expr {
		return nil
	}
	c.filter = ""
	c.pattern = re
	c.notify(changeFilter)
	return nil
}

// GroupKey groups rows by their exact text.
func (c *StringColumn) GroupKey(row Row) GroupKey {
	s := c.StringValue(row)
	if s == "" {
		return GroupKey{Name: MissingGroupName, Missing: true}
	}
	return GroupKey{Name: s}
}

// GroupValue is the smallest key of the group.
func (c *StringColumn) GroupValue(rows []Row) SortKey {
	best := MissingKey
	for _, r := range rows {
		k := c.SortKey(r)
		if k.Missing {
			continue
		}
		if best.Missing || CompareKeys(k, best) < 0 {
			best = k
		}
	}
	return best
}
