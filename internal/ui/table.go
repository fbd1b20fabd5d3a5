package ui

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/table"

	"github.com/abelbrown/lineup/internal/model"
)

// line is one table row: a group header (index -1) or a data row.
type line struct {
	group string
	index int

	// group headers only
	size      int
	collapsed bool
}

func (l line) header() bool { return l.index < 0 }

// buildLines lays out groups with their rows, omitting the rows of
// aggregated groups. An ungrouped ranking gets no header.
func buildLines(groups []model.Group, aggregated func(group string) bool) []line {
	var lines []line
	showHeaders := len(groups) > 1 || (len(groups) == 1 && groups[0].Name != model.DefaultGroupName)
	for _, g := range groups {
		collapsed := aggregated(g.Name)
		if showHeaders || collapsed {
			lines = append(lines, line{group: g.Name, index: -1, size: len(g.Order), collapsed: collapsed})
		}
		if collapsed {
			continue
		}
		for _, idx := range g.Order {
			lines = append(lines, line{group: g.Name, index: idx})
		}
	}
	return lines
}

// columnWidth maps a model width in pixels to terminal cells.
func columnWidth(c model.Column) int {
	w := int(c.Width() / 8)
	return max(6, min(w, 30))
}

func tableColumns(layout []model.Column, sort []model.SortCriterion, cursor int) []table.Column {
	cols := []table.Column{{Title: "#", Width: 5}}
	for i, c := range layout {
		title := c.Label()
		if len(sort) > 0 && sort[0].Column == c.ID() {
			if sort[0].Asc {
				title += " ▲"
			} else {
				title += " ▼"
			}
		}
		if i == cursor {
			title = "[" + title + "]"
		}
		cols = append(cols, table.Column{Title: title, Width: columnWidth(c)})
	}
	return cols
}

func tableRows(lines []line, layout []model.Column, rows map[int]model.Row, rank func(int) (int, bool), selected func(int) bool) []table.Row {
	out := make([]table.Row, len(lines))
	for i, l := range lines {
		cells := make(table.Row, len(layout)+1)
		if l.header() {
			mark := "▾"
			if l.collapsed {
				mark = "▸"
			}
			cells[0] = mark
			if len(layout) > 0 {
				cells[1] = fmt.Sprintf("%s (%d)", l.group, l.size)
			}
			out[i] = cells
			continue
		}
		if pos, ok := rank(l.index); ok {
			cells[0] = strconv.Itoa(pos + 1)
		}
		if selected(l.index) {
			cells[0] += "*"
		}
		row, ok := rows[l.index]
		for j, c := range layout {
			if ok {
				cells[j+1] = formatCell(c, row)
			}
		}
		out[i] = cells
	}
	return out
}

// formatCell renders the display value of c for row.
func formatCell(c model.Column, row model.Row) string {
	switch col := c.(type) {
	case *model.StringColumn:
		return col.StringValue(row)
	case model.NumericLike:
		v := col.RawValue(row)
		if math.IsNaN(v) {
			return "NA"
		}
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
	switch v := c.Value(row).(type) {
	case nil:
		return "NA"
	case time.Time:
		return v.Format("2006-01-02")
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// truncateRunes shortens s to at most n runes, adding "..." when cut.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 3 {
		return strings.Repeat(".", n)
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}
