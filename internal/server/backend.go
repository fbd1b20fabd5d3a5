// Package server exposes a row store over HTTP so that a Remote provider
// can sort and view rows it does not hold.
//
// Backend does the work: it rebuilds a ranking from the dump it is sent and
// orders its rows with the same engine a Local provider uses. Handler maps
// Backend onto HTTP and Client is the matching provider.Server that talks
// to it, with rate limiting and retries on transient failures.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/abelbrown/lineup/internal/model"
	"github.com/abelbrown/lineup/internal/provider"
	"github.com/abelbrown/lineup/internal/ranking"
	"github.com/abelbrown/lineup/internal/store"
)

// ErrBadDump is returned for a dump that cannot be turned into a ranking.
var ErrBadDump = errors.New("invalid ranking dump")

// Backend answers sort and view requests from a store.
type Backend struct {
	store *store.Store
	opts  ranking.Options

	mu   sync.RWMutex
	rows []model.Row
}

var _ provider.Server = (*Backend)(nil)

// NewBackend loads every row of st into memory.
func NewBackend(st *store.Store, opts ranking.Options) (*Backend, error) {
	b := &Backend{store: st, opts: opts}
	if err := b.Reload(); err != nil {
		return nil, err
	}
	return b, nil
}

// Reload rereads the rows from the store.
func (b *Backend) Reload() error {
	rows, err := b.store.Rows()
	if err != nil {
		return fmt.Errorf("load rows: %w", err)
	}
	b.mu.Lock()
	b.rows = rows
	b.mu.Unlock()
	return nil
}

// Count returns the number of rows served.
func (b *Backend) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rows)
}

// Store returns the backing store.
func (b *Backend) Store() *store.Store { return b.store }

// Sort restores d onto a private tree and orders the rows by it.
func (b *Backend) Sort(ctx context.Context, d model.RankingDump) (*ranking.Result, error) {
	tree := model.NewTree()
	r, err := tree.Restore(0, d)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDump, err)
	}
	b.mu.RLock()
	rows := b.rows
	b.mu.RUnlock()
	return ranking.Sort(ctx, r, rows, b.opts)
}

// View returns the values of the rows with the given indices, in order.
func (b *Backend) View(ctx context.Context, indices []int) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := b.store.RowsByIndex(indices)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = r.Values
	}
	return out, nil
}
