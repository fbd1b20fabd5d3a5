// Package ui provides the Bubble Tea table viewer for a ranking.
package ui

import (
	"github.com/abelbrown/lineup/internal/model"
	"github.com/abelbrown/lineup/internal/provider"
)

// SortDone is sent when a provider sort finishes.
type SortDone struct {
	Order  []int
	Groups []model.Group
	Err    error
}

// RowsLoaded is sent when the rows of the current order have been viewed.
type RowsLoaded struct {
	Rows []model.Row
	Err  error
}

// providerEvent wraps an event from the provider subscription.
type providerEvent provider.Event
