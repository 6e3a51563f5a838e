// Package memory provides an in-memory grid table store used for tests and
// ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"markercompare/internal/persistence/core"
)

var _ core.Store = (*Store)(nil)

type table struct {
	info core.Table
	rows []core.Row
}

// Store implements core.Store backed by process memory.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table
	order  []string
	nextID int64
}

// New returns an empty in-memory table store.
func New() *Store {
	return &Store{tables: make(map[string]*table)}
}

// Driver returns the store driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// ListTables returns table names in creation order.
func (s *Store) ListTables(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out, nil
}

// CreateTable adds an empty table; errors if the name exists.
func (s *Store) CreateTable(_ context.Context, name string) (core.Table, error) {
	if name == "" {
		return core.Table{}, fmt.Errorf("table name required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tables[name]; exists {
		return core.Table{}, fmt.Errorf("create %s: %w", name, core.ErrTableExists)
	}
	s.nextID++
	t := &table{info: core.Table{ID: s.nextID, Name: name, CreatedAt: time.Now().UTC()}}
	s.tables[name] = t
	s.order = append(s.order, name)
	return t.info, nil
}

// GetRows returns copies of the rows selected by rng.
func (s *Store) GetRows(_ context.Context, name string, rng core.Range) ([]core.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("get rows %s: %w", name, core.ErrTableNotFound)
	}
	lo, hi := rng.Window(len(t.rows))
	out := make([]core.Row, 0, hi-lo)
	for _, row := range t.rows[lo:hi] {
		out = append(out, cloneRow(rng.Project(row)))
	}
	return out, nil
}

// AppendRows adds trimmed copies of rows to the end of the table.
func (s *Store) AppendRows(_ context.Context, name string, rows []core.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	if !ok {
		return fmt.Errorf("append rows %s: %w", name, core.ErrTableNotFound)
	}
	for _, row := range rows {
		t.rows = append(t.rows, core.TrimRow(row))
	}
	return nil
}

// DeleteRowRange removes count rows starting at start.
func (s *Store) DeleteRowRange(_ context.Context, name string, start, count int) error {
	if start < 0 || count < 0 {
		return core.ErrInvalidRange
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	if !ok {
		return fmt.Errorf("delete rows %s: %w", name, core.ErrTableNotFound)
	}
	if start >= len(t.rows) || count == 0 {
		return nil
	}
	end := start + count
	if end > len(t.rows) {
		end = len(t.rows)
	}
	t.rows = append(t.rows[:start:start], t.rows[end:]...)
	return nil
}

func cloneRow(row core.Row) core.Row {
	out := make(core.Row, len(row))
	copy(out, row)
	return out
}
