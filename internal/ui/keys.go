package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Quit      key.Binding
	Left      key.Binding
	Right     key.Binding
	Sort      key.Binding
	Group     key.Binding
	Aggregate key.Binding
	Select    key.Binding
	Refresh   key.Binding
	Debug     key.Binding
}

var keys = keyMap{
	Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Left:      key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "column")),
	Right:     key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "column")),
	Sort:      key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sort")),
	Group:     key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "group")),
	Aggregate: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "collapse")),
	Select:    key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "select")),
	Refresh:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "resort")),
	Debug:     key.NewBinding(key.WithKeys("D"), key.WithHelp("D", "events")),
}

func (k keyMap) hints() []key.Binding {
	return []key.Binding{k.Left, k.Sort, k.Group, k.Aggregate, k.Select, k.Refresh, k.Debug, k.Quit}
}
