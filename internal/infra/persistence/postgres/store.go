// Package postgres provides a Postgres-backed grid table store with the same
// row semantics as the in-memory and SQLite drivers.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"markercompare/internal/persistence/core"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ core.Store = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/markercompare?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var ddl = []string{
	`CREATE TABLE IF NOT EXISTS grid_tables (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS grid_rows (
		id BIGSERIAL PRIMARY KEY,
		table_id BIGINT NOT NULL REFERENCES grid_tables(id) ON DELETE CASCADE,
		cells JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_grid_rows_table ON grid_rows(table_id, id)`,
}

// Store persists grid rows to Postgres.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	dsn string
}

// NewStore opens a Postgres-backed store using dsn (falls back to defaultDSN),
// verifies connectivity and applies the schema.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("execute ddl: %w", err)
		}
	}
	return &Store{db: db, dsn: dsn}, nil
}

// Driver returns the store driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverPostgres }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the connection pool.
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

// CreateTable inserts a table record, reporting ErrTableExists on conflict.
func (s *Store) CreateTable(ctx context.Context, name string) (core.Table, error) {
	if name == "" {
		return core.Table{}, fmt.Errorf("table name required")
	}
	now := time.Now().UTC()
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO grid_tables(name, created_at) VALUES($1, $2) ON CONFLICT (name) DO NOTHING RETURNING id`,
		name, now).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Table{}, fmt.Errorf("create %s: %w", name, core.ErrTableExists)
	}
	if err != nil {
		return core.Table{}, fmt.Errorf("create %s: %w", name, err)
	}
	return core.Table{ID: id, Name: name, CreatedAt: now}, nil
}

// GetRows returns the rows selected by rng in table order.
func (s *Store) GetRows(ctx context.Context, name string, rng core.Range) ([]core.Row, error) {
	id, err := s.tableID(ctx, name)
	if err != nil {
		return nil, err
	}
	offset := rng.Start
	if offset < 0 {
		offset = 0
	}
	query := `SELECT cells FROM grid_rows WHERE table_id = $1 ORDER BY id OFFSET $2`
	args := []any{id, offset}
	if rng.Count > 0 {
		query += ` LIMIT $3`
		args = append(args, rng.Count)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get rows %s: %w", name, err)
	}
	defer func() { _ = rows.Close() }()
	var out []core.Row
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		var row core.Row
		if err := json.Unmarshal(payload, &row); err != nil {
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
		return fmt.Errorf("begin tx: %w", err)
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
		if _, err := tx.ExecContext(ctx, `INSERT INTO grid_rows(table_id, cells) VALUES($1, $2)`, id, string(payload)); err != nil {
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
		SELECT id FROM grid_rows WHERE table_id = $1 ORDER BY id OFFSET $2 LIMIT $3
	)`, id, start, count)
	if err != nil {
		return fmt.Errorf("delete rows %s: %w", name, err)
	}
	return nil
}

func (s *Store) tableID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM grid_tables WHERE name = $1`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("table %s: %w", name, core.ErrTableNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup table %s: %w", name, err)
	}
	return id, nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
