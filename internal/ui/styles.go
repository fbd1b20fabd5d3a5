package ui

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// Palette (256-color codes).
var (
	accent   = lipgloss.Color("212")
	frame    = lipgloss.Color("62")
	dim      = lipgloss.Color("241")
	dimmer   = lipgloss.Color("240")
	barFg    = lipgloss.Color("255")
	barBg    = lipgloss.Color("236")
	errorRed = lipgloss.Color("196")
)

// Exported styles are shared with the demo command's plain output.
var (
	Title       = lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(0, 1)
	Criteria    = lipgloss.NewStyle().Foreground(dim)
	GroupHeader = lipgloss.NewStyle().Bold(true).Foreground(accent).MarginTop(1).Padding(0, 1)
	GroupCount  = lipgloss.NewStyle().Foreground(dimmer)

	StatusBar     = lipgloss.NewStyle().Foreground(barFg).Background(barBg).Padding(0, 1)
	StatusBarKey  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	StatusBarText = lipgloss.NewStyle().Foreground(dim)

	ErrorStyle = lipgloss.NewStyle().Foreground(errorRed).Bold(true).Padding(0, 1)
	HelpStyle  = lipgloss.NewStyle().Foreground(dimmer).Padding(1, 2)

	DebugPanel       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(frame).Padding(1, 2)
	DebugHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
)

// tableStyles adapts the bubbles table defaults to the palette.
func tableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(dimmer).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(barFg).
		Background(frame).
		Bold(false)
	return s
}
