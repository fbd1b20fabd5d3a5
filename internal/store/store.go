// Package store provides SQLite persistence for rows and ranking dumps.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/abelbrown/lineup/internal/logging"
	"github.com/abelbrown/lineup/internal/model"
)

// ErrNotFound is returned when a row index or dump name does not exist.
var ErrNotFound = errors.New("not found")

// Store keeps rows and named ranking dumps in one SQLite file. Methods are
// safe for concurrent use.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// DumpInfo describes a saved ranking dump.
type DumpInfo struct {
	Name    string
	SavedAt time.Time
}

// Open opens or creates the database at dbPath. ":memory:" gives a private
// in-memory store. File databases run in WAL mode.
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// a private in-memory database per Store; one connection so every
		// query sees it
		connStr = "file::memory:"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	logging.Debug("Store opened", "path", dbPath)
	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rows (
		idx INTEGER PRIMARY KEY,
		data TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS dumps (
		name TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		saved_at DATETIME NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SaveRows stores rows keyed by their index, replacing existing ones.
// It returns the number of rows written.
func (s *Store) SaveRows(rows []model.Row) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO rows (idx, data) VALUES (?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, r := range rows {
		data, err := json.Marshal(r.Values)
		if err != nil {
			return 0, fmt.Errorf("encode row %d: %w", r.Index, err)
		}
		if _, err := stmt.Exec(r.Index, string(data)); err != nil {
			return 0, fmt.Errorf("insert row %d: %w", r.Index, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(rows), nil
}

// Rows returns every stored row in index order.
func (s *Store) Rows() ([]model.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryRows(`SELECT idx, data FROM rows ORDER BY idx`)
}

// maxQueryVars bounds the bound parameters of one statement, well below
// SQLite's variable limit.
const maxQueryVars = 1000

// RowsByIndex returns the rows with the given indices, in the order
// requested. A missing index is an ErrNotFound.
func (s *Store) RowsByIndex(indices []int) ([]model.Row, error) {
	if len(indices) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	byIndex := make(map[int]model.Row, len(indices))
	for chunk := range slices.Chunk(indices, maxQueryVars) {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, idx := range chunk {
			args[i] = idx
		}
		found, err := s.queryRows(`SELECT idx, data FROM rows WHERE idx IN (`+placeholders+`)`, args...)
		if err != nil {
			return nil, err
		}
		for _, r := range found {
			byIndex[r.Index] = r
		}
	}
	out := make([]model.Row, len(indices))
	for i, idx := range indices {
		r, ok := byIndex[idx]
		if !ok {
			return nil, fmt.Errorf("row %d: %w", idx, ErrNotFound)
		}
		out[i] = r
	}
	return out, nil
}

// Count returns the number of stored rows.
func (s *Store) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM rows`).Scan(&n)
	return n, err
}

// queryRows executes a query and decodes the results.
// Caller must hold s.mu (read lock is sufficient).
func (s *Store) queryRows(query string, args ...any) ([]model.Row, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Row
	for rows.Next() {
		var (
			idx  int
			data string
		)
		if err := rows.Scan(&idx, &data); err != nil {
			return nil, err
		}
		var values map[string]any
		if err := json.Unmarshal([]byte(data), &values); err != nil {
			return nil, fmt.Errorf("decode row %d: %w", idx, err)
		}
		out = append(out, model.Row{Index: idx, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveDump stores a ranking dump under name, replacing any previous one.
func (s *Store) SaveDump(name string, d model.RankingDump) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode dump %q: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`INSERT OR REPLACE INTO dumps (name, data, saved_at) VALUES (?, ?, ?)`,
		name, string(data), time.Now().UTC())
	return err
}

// LoadDump returns the dump saved under name.
func (s *Store) LoadDump(name string) (model.RankingDump, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRow(`SELECT data FROM dumps WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RankingDump{}, fmt.Errorf("dump %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return model.RankingDump{}, err
	}
	var d model.RankingDump
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return model.RankingDump{}, fmt.Errorf("decode dump %q: %w", name, err)
	}
	return d, nil
}

// Dumps lists saved dumps, most recent first.
func (s *Store) Dumps() ([]DumpInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT name, saved_at FROM dumps ORDER BY saved_at DESC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DumpInfo
	for rows.Next() {
		var info DumpInfo
		if err := rows.Scan(&info.Name, &info.SavedAt); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}
