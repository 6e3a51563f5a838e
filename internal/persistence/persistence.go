// Package persistence selects and opens the grid table store backing the case
// repository. Concrete drivers live under internal/infra/persistence and are
// only imported here.
package persistence

import (
	"context"
	"fmt"
	"os"

	"markercompare/internal/infra/persistence/memory"
	"markercompare/internal/infra/persistence/postgres"
	"markercompare/internal/infra/persistence/sqlite"
	"markercompare/internal/persistence/core"
)

type (
	// Store is the grid table store contract.
	Store = core.Store
	// Row is one grid row.
	Row = core.Row
	// Range selects rows of a table.
	Range = core.Range
	// Table describes a stored table.
	Table = core.Table
	// Driver names a backend.
	Driver = core.Driver
)

const (
	DriverMemory   = core.DriverMemory   // in-memory only (tests / ephemeral)
	DriverSQLite   = core.DriverSQLite   // embedded sqlite file
	DriverPostgres = core.DriverPostgres // PostgreSQL server
)

// Default sqlite database path.
const DefaultSQLitePath = "./markercompare.db"

// Environment variables read by ConfigFromEnv.
const (
	EnvDriver      = "MARKERCOMPARE_STORAGE_DRIVER"
	EnvSQLitePath  = "MARKERCOMPARE_SQLITE_PATH"
	EnvPostgresDSN = "MARKERCOMPARE_POSTGRES_DSN"
)

// Config selects a backend and its connection parameters.
type Config struct {
	Driver      Driver `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// ConfigFromEnv reads the storage selection from environment variables.
// Defaults to sqlite when unset.
//
//	MARKERCOMPARE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	MARKERCOMPARE_SQLITE_PATH: path to sqlite file (default ./markercompare.db)
//	MARKERCOMPARE_POSTGRES_DSN: postgres DSN when driver=postgres
func ConfigFromEnv() Config {
	cfg := Config{
		Driver:      Driver(os.Getenv(EnvDriver)),
		SQLitePath:  os.Getenv(EnvSQLitePath),
		PostgresDSN: os.Getenv(EnvPostgresDSN),
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}
	return cfg
}

// Open constructs the store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverMemory:
		return memory.New(), nil
	case DriverSQLite, "":
		path := cfg.SQLitePath
		if path == "" {
			path = DefaultSQLitePath
		}
		return sqlite.NewStore(path)
	case DriverPostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() Store { return memory.New() }

var (
	// All selects every row and column.
	All = core.All
	// FirstColumn selects the leading cell of every row.
	FirstColumn = core.FirstColumn
)

var (
	ErrTableNotFound = core.ErrTableNotFound
	ErrTableExists   = core.ErrTableExists
	ErrInvalidRange  = core.ErrInvalidRange
)
