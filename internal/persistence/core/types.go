// Package core defines the grid table store abstraction implemented by the
// concrete persistence backends.
package core

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Driver identifies a concrete table store implementation.
type Driver string

const (
	// DriverMemory keeps tables in process memory (tests, ephemeral runs).
	DriverMemory Driver = "memory"
	// DriverSQLite persists tables to an embedded SQLite file.
	DriverSQLite Driver = "sqlite"
	// DriverPostgres persists tables to a PostgreSQL server.
	DriverPostgres Driver = "postgres"
)

// Row is an ordered list of cell values.
type Row = []string

// Range selects rows of a table. Start is 0-based; Count <= 0 reads to the
// end; Columns <= 0 returns every column, otherwise rows are cut to the first
// Columns cells.
type Range struct {
	Start   int
	Count   int
	Columns int
}

// All selects every row and column.
var All = Range{}

// FirstColumn selects the leading cell of every row.
var FirstColumn = Range{Columns: 1}

// Table describes one named table.
type Table struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the grid-oriented table store consumed by the case repository.
// Implementations trim trailing empty cells on write, so an all-blank row
// reads back with zero cells.
type Store interface {
	// ListTables returns table names in creation order.
	ListTables(ctx context.Context) ([]string, error)
	// GetRows returns the rows selected by rng. A missing table is ErrTableNotFound.
	GetRows(ctx context.Context, table string, rng Range) ([]Row, error)
	// AppendRows adds rows after the last row of table.
	AppendRows(ctx context.Context, table string, rows []Row) error
	// DeleteRowRange removes count rows starting at the 0-based row start;
	// later rows shift up.
	DeleteRowRange(ctx context.Context, table string, start, count int) error
	// CreateTable adds an empty table. Names are unique; a duplicate is ErrTableExists.
	CreateTable(ctx context.Context, name string) (Table, error)
	// Driver returns the backend identifier.
	Driver() Driver
	// Close releases backend resources.
	Close() error
}

var (
	// ErrTableNotFound is returned for operations on an unknown table.
	ErrTableNotFound = errors.New("tablestore: table not found")
	// ErrTableExists is returned when creating a duplicate table.
	ErrTableExists = errors.New("tablestore: table already exists")
	// ErrInvalidRange is returned for negative offsets or counts.
	ErrInvalidRange = errors.New("tablestore: invalid row range")
)

// TrimRow drops trailing empty cells, mirroring how spreadsheet backends
// report row extents.
func TrimRow(row Row) Row {
	end := len(row)
	for end > 0 && strings.TrimSpace(row[end-1]) == "" {
		end--
	}
	out := make(Row, end)
	copy(out, row[:end])
	return out
}

// Project applies the column limit of rng to row.
func (r Range) Project(row Row) Row {
	if r.Columns > 0 && len(row) > r.Columns {
		return row[:r.Columns]
	}
	return row
}

// Window converts the range into slice bounds over total rows.
func (r Range) Window(total int) (lo, hi int) {
	lo = r.Start
	if lo < 0 {
		lo = 0
	}
	if lo > total {
		lo = total
	}
	hi = total
	if r.Count > 0 && lo+r.Count < total {
		hi = lo + r.Count
	}
	return lo, hi
}
