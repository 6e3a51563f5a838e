// Package sqlite persists grid tables to an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"markercompare/internal/persistence/core"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ core.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS grid_tables (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS grid_rows (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	table_id INTEGER NOT NULL REFERENCES grid_tables(id) ON DELETE CASCADE,
	cells TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_grid_rows_table ON grid_rows(table_id, id);
`

// Store keeps every table row as a JSON-encoded cell array. Row order is the
// insertion order of the autoincrement key, so deleting a range needs no
// renumbering.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (creating when needed) the SQLite file at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "markercompare.db"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serialises writers
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Driver returns the store driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverSQLite }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

// ListTables returns table names in creation order.
func (s *Store) ListTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM grid_tables ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// CreateTable inserts a new table record.
func (s *Store) CreateTable(ctx context.Context, name string) (core.Table, error) {
	if name == "" {
		return core.Table{}, fmt.Errorf("table name required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.tableID(ctx, name); err == nil {
		return core.Table{}, fmt.Errorf("create %s: %w", name, core.ErrTableExists)
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `INSERT INTO grid_tables(name, created_at) VALUES(?, ?)`, name, now.Format(time.RFC3339Nano))
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return core.Table{}, fmt.Errorf("create %s: %w", name, core.ErrTableExists)
		}
		return core.Table{}, fmt.Errorf("create %s: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Table{}, err
	}
	return core.Table{ID: id, Name: name, CreatedAt: now}, nil
}

// GetRows returns the rows selected by rng in table order.
func (s *Store) GetRows(ctx context.Context, name string, rng core.Range) ([]core.Row, error) {
	id, err := s.tableID(ctx, name)
	if err != nil {
		return nil, err
	}
	limit := -1
	if rng.Count > 0 {
		limit = rng.Count
	}
	offset := rng.Start
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT cells FROM grid_rows WHERE table_id = ? ORDER BY id LIMIT ? OFFSET ?`, id, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("get rows %s: %w", name, err)
	}
	defer func() { _ = rows.Close() }()
	var out []core.Row
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		var row core.Row
		if err := json.Unmarshal([]byte(payload), &row); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, rng.Project(row))
	}
	return out, rows.Err()
}

// AppendRows inserts rows after the current last row in one transaction.
func (s *Store) AppendRows(ctx context.Context, name string, rows []core.Row) (retErr error) {
	id, err := s.tableID(ctx, name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, row := range rows {
		payload, err := json.Marshal(core.TrimRow(row))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO grid_rows(table_id, cells) VALUES(?, ?)`, id, string(payload)); err != nil {
			return fmt.Errorf("append rows %s: %w", name, err)
		}
	}
	return tx.Commit()
}

// DeleteRowRange removes count rows starting at the 0-based row start.
func (s *Store) DeleteRowRange(ctx context.Context, name string, start, count int) error {
	if start < 0 || count < 0 {
		return core.ErrInvalidRange
	}
	id, err := s.tableID(ctx, name)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `DELETE FROM grid_rows WHERE id IN (
		SELECT id FROM grid_rows WHERE table_id = ? ORDER BY id LIMIT ? OFFSET ?
	)`, id, count, start)
	if err != nil {
		return fmt.Errorf("delete rows %s: %w", name, err)
	}
	return nil
}

func (s *Store) tableID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM grid_tables WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("table %s: %w", name, core.ErrTableNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup table %s: %w", name, err)
	}
	return id, nil
}
