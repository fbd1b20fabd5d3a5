package ui

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/lineup/internal/model"
	"github.com/abelbrown/lineup/internal/otel"
	"github.com/abelbrown/lineup/internal/provider"
)

// App is the root Bubble Tea model. It shows one ranking of a provider.
// Sorting and row access run as commands; results arrive as messages.
// Ranking criteria are only changed while no sort is in flight. A stale
// order reported by the provider triggers a resort.
type App struct {
	provider provider.DataProvider
	ranking  *model.Ranking
	ring     *otel.RingBuffer
	events   <-chan provider.Event

	table  table.Model
	layout []model.Column
	groups []model.Group
	rows   map[int]model.Row
	lines  []line
	column int // column cursor into layout

	err     error
	width   int
	height  int
	ready   bool
	loading bool
	debug   bool
}

// NewApp creates a viewer for r. ring may be nil, which disables the
// event overlay.
func NewApp(p provider.DataProvider, r *model.Ranking, ring *otel.RingBuffer) App {
	t := table.New(table.WithFocused(true))
	t.SetStyles(tableStyles())
	a := App{
		provider: p,
		ranking:  r,
		ring:     ring,
		events:   p.Subscribe(),
		table:    t,
		rows:     make(map[int]model.Row),
	}
	a.layout = p.ColumnLayout(r)
	a.refreshTable()
	return a
}

// Init starts the first sort and listens for provider events.
func (a App) Init() tea.Cmd {
	return tea.Batch(a.sortCmd(), a.listenCmd())
}

// Close stops provider event delivery.
func (a App) Close() {
	a.provider.Unsubscribe(a.events)
}

// listenCmd waits for the next provider event. It yields nil once the
// subscription is closed.
func (a App) listenCmd() tea.Cmd {
	events := a.events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return providerEvent(ev)
	}
}

func (a App) sortCmd() tea.Cmd {
	p, r := a.provider, a.ranking
	return func() tea.Msg {
		order, err := p.Sort(context.Background(), r)
		return SortDone{Order: order, Groups: r.FlatGroups(), Err: err}
	}
}

func (a App) viewCmd(indices []int) tea.Cmd {
	p := a.provider
	return func() tea.Msg {
		rows, err := p.View(context.Background(), indices)
		return RowsLoaded{Rows: rows, Err: err}
	}
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		a.table.SetWidth(msg.Width)
		a.table.SetHeight(max(msg.Height-3, 1))
		return a, nil

	case SortDone:
		if msg.Err != nil {
			a.loading = false
			a.err = msg.Err
			return a, nil
		}
		a.err = nil
		a.groups = msg.Groups
		a.layout = a.provider.ColumnLayout(a.ranking)
		a.rebuild()
		if a.ranking.Dirty() {
			// changed while sorting
			return a.resort()
		}
		if missing := a.missingRows(); len(missing) > 0 {
			return a, a.viewCmd(missing)
		}
		a.loading = false
		return a, nil

	case RowsLoaded:
		a.loading = false
		if msg.Err != nil {
			a.err = msg.Err
			return a, nil
		}
		for _, row := range msg.Rows {
			a.rows[row.Index] = row
		}
		a.refreshTable()
		return a, nil

	case providerEvent:
		listen := a.listenCmd()
		if msg.Kind != provider.EventDirtyOrder || msg.Ranking != a.ranking || a.loading || !a.ranking.Dirty() {
			return a, listen
		}
		m, sort := a.resort()
		return m, tea.Batch(sort, listen)
	}

	var cmd tea.Cmd
	a.table, cmd = a.table.Update(msg)
	return a, cmd
}

// handleKeyMsg processes keyboard input.
func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Clear any existing error on key press
	if a.err != nil {
		a.err = nil
	}

	switch {
	case key.Matches(msg, keys.Quit):
		return a, tea.Quit

	case key.Matches(msg, keys.Debug):
		a.debug = !a.debug
		return a, nil

	case key.Matches(msg, keys.Left):
		if a.column > 0 {
			a.column--
			a.refreshTable()
		}
		return a, nil

	case key.Matches(msg, keys.Right):
		if a.column < len(a.layout)-1 {
			a.column++
			a.refreshTable()
		}
		return a, nil

	case key.Matches(msg, keys.Sort):
		if c := a.currentColumn(); c != nil && !a.loading && a.ranking.ToggleSort(c) {
			return a.resort()
		}
		return a, nil

	case key.Matches(msg, keys.Group):
		c := a.currentColumn()
		if c == nil || a.loading {
			return a, nil
		}
		cur := a.ranking.GroupCriteria()
		if len(cur) == 1 && cur[0] == c {
			c = nil
		}
		if a.ranking.GroupBy(c) {
			return a.resort()
		}
		a.err = fmt.Errorf("cannot group by %s", a.currentColumn().Label())
		return a, nil

	case key.Matches(msg, keys.Aggregate):
		if l, ok := a.currentLine(); ok {
			a.provider.SetAggregated(a.ranking, l.group, !a.provider.IsAggregated(a.ranking, l.group))
			a.rebuild()
		}
		return a, nil

	case key.Matches(msg, keys.Select):
		if l, ok := a.currentLine(); ok && !l.header() {
			sel := a.provider.Selection()
			if i := slices.Index(sel, l.index); i >= 0 {
				sel = append(sel[:i], sel[i+1:]...)
			} else {
				sel = append(sel, l.index)
			}
			a.provider.SetSelection(sel)
			a.refreshTable()
		}
		return a, nil

	case key.Matches(msg, keys.Refresh):
		if a.loading {
			return a, nil
		}
		return a.resort()
	}

	var cmd tea.Cmd
	a.table, cmd = a.table.Update(msg)
	return a, cmd
}

func (a App) resort() (tea.Model, tea.Cmd) {
	a.loading = true
	return a, a.sortCmd()
}

func (a App) currentColumn() model.Column {
	if a.column < 0 || a.column >= len(a.layout) {
		return nil
	}
	return a.layout[a.column]
}

func (a App) currentLine() (line, bool) {
	i := a.table.Cursor()
	if i < 0 || i >= len(a.lines) {
		return line{}, false
	}
	return a.lines[i], true
}

// missingRows lists the row indices of the current order not yet viewed.
func (a App) missingRows() []int {
	var out []int
	for _, g := range a.groups {
		for _, idx := range g.Order {
			if _, ok := a.rows[idx]; !ok {
				out = append(out, idx)
			}
		}
	}
	return out
}

// rebuild recomputes the line layout and the table.
func (a *App) rebuild() {
	a.lines = buildLines(a.groups, func(g string) bool {
		return a.provider.IsAggregated(a.ranking, g)
	})
	a.column = min(a.column, max(len(a.layout)-1, 0))
	a.refreshTable()
}

func (a *App) refreshTable() {
	selected := make(map[int]bool)
	for _, idx := range a.provider.Selection() {
		selected[idx] = true
	}
	cursor := a.table.Cursor()
	// clear rows first so they never disagree with the new columns
	a.table.SetRows(nil)
	a.table.SetColumns(tableColumns(a.layout, a.ranking.SortCriteria(), a.column))
	a.table.SetRows(tableRows(a.lines, a.layout, a.rows, a.ranking.Rank, func(i int) bool { return selected[i] }))
	a.table.SetCursor(min(cursor, max(len(a.lines)-1, 0)))
}

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}
	if a.debug {
		return lipgloss.JoinVertical(lipgloss.Left,
			debugOverlay(a.ring, a.width, a.height-1),
			debugStatusBar(a.width))
	}

	header := Title.Render(a.ranking.Label()) + Criteria.Render(a.criteria())
	parts := []string{header}
	if len(a.lines) == 0 && !a.loading {
		parts = append(parts, HelpStyle.Render("No rows to display. Press 'r' to resort."))
	} else {
		parts = append(parts, a.table.View())
	}
	if a.err != nil {
		parts = append(parts, ErrorStyle.Width(a.width).Render("Error: "+a.err.Error()+" (press any key to dismiss)"))
	}
	parts = append(parts, a.statusBar())
	return strings.Join(parts, "\n")
}

func (a App) criteria() string {
	var b strings.Builder
	for i, c := range a.ranking.SortCriteria() {
		if i == 0 {
			b.WriteString("sort ")
		} else {
			b.WriteString(", ")
		}
		label := c.Column
		if col := a.ranking.Find(c.Column); col != nil {
			label = col.Label()
		}
		dir := "desc"
		if c.Asc {
			dir = "asc"
		}
		fmt.Fprintf(&b, "%s %s", label, dir)
	}
	if groups := a.ranking.GroupCriteria(); len(groups) > 0 {
		names := make([]string, len(groups))
		for i, g := range groups {
			names[i] = g.Label()
		}
		fmt.Fprintf(&b, "  group %s", strings.Join(names, model.GroupSeparator))
	}
	return "  " + b.String()
}

func (a App) statusBar() string {
	var hints []string
	for _, k := range keys.hints() {
		h := k.Help()
		hints = append(hints, StatusBarKey.Render(h.Key)+StatusBarText.Render(":"+h.Desc))
	}
	status := fmt.Sprintf("%d rows  %d groups", len(a.ranking.Order()), len(a.groups))
	if a.loading {
		status = "sorting..."
	}
	return StatusBar.Width(a.width).Render(status + "  " + strings.Join(hints, " "))
}

// Lines returns the number of table lines (for testing).
func (a App) Lines() int { return len(a.lines) }

// Loading reports whether a sort or view is in flight (for testing).
func (a App) Loading() bool { return a.loading }
