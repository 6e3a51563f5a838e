// Package testutil serves an in-process copy of the postgres grid schema
// through database/sql, so the postgres store runs its own SQL in unit tests.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

// Stage names a driver call that can be made to fail.
type Stage string

const (
	StagePing   Stage = "ping"
	StageDDL    Stage = "ddl"
	StageBegin  Stage = "begin"
	StageCommit Stage = "commit"
)

// GridDB holds grid_tables and grid_rows in memory. Row payloads are the JSON
// cell arrays the store writes.
type GridDB struct {
	mu       sync.Mutex
	nextID   int64
	names    []string
	ids      map[string]int64
	rows     map[int64][]string
	snapshot map[int64][]string
	fail     map[Stage]bool
	ddl      []string
}

var seq atomic.Int64

// Open registers a fresh GridDB under a unique driver name and opens it.
func Open() (*sql.DB, *GridDB) {
	g := &GridDB{ids: map[string]int64{}, rows: map[int64][]string{}, fail: map[Stage]bool{}}
	name := fmt.Sprintf("griddb%d", seq.Add(1))
	sql.Register(name, gridDriver{g})
	db, err := sql.Open(name, "")
	if err != nil {
		panic(err)
	}
	return db, g
}

// Fail makes every later call at stage return an error.
func (g *GridDB) Fail(stage Stage) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail[stage] = true
}

// DDL returns the schema statements executed so far.
func (g *GridDB) DDL() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.ddl...)
}

// Cells decodes the stored rows of table, or nil when it does not exist.
func (g *GridDB) Cells(table string) [][]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.ids[table]
	if !ok {
		return nil
	}
	out := make([][]string, 0, len(g.rows[id]))
	for _, payload := range g.rows[id] {
		var cells []string
		if err := json.Unmarshal([]byte(payload), &cells); err != nil {
			panic(err)
		}
		out = append(out, cells)
	}
	return out
}

func (g *GridDB) failing(stage Stage) error {
	if g.fail[stage] {
		return fmt.Errorf("griddb: %s failed", stage)
	}
	return nil
}

func (g *GridDB) exec(query string, args []driver.NamedValue) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	q := strings.TrimSpace(query)
	switch {
	case strings.HasPrefix(q, "CREATE"):
		if err := g.failing(StageDDL); err != nil {
			return err
		}
		g.ddl = append(g.ddl, q)
	case strings.HasPrefix(q, "INSERT INTO grid_rows"):
		id := argInt(args, 0)
		g.rows[id] = append(g.rows[id], argString(args, 1))
	case strings.HasPrefix(q, "DELETE FROM grid_rows"):
		id, start, count := argInt(args, 0), int(argInt(args, 1)), int(argInt(args, 2))
		rows := g.rows[id]
		if start >= len(rows) {
			return nil
		}
		end := min(start+count, len(rows))
		g.rows[id] = append(rows[:start:start], rows[end:]...)
	default:
		return fmt.Errorf("griddb: unsupported exec %q", q)
	}
	return nil
}

func (g *GridDB) query(query string, args []driver.NamedValue) (*result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	q := strings.TrimSpace(query)
	switch {
	case strings.HasPrefix(q, "SELECT name FROM grid_tables"):
		res := &result{cols: []string{"name"}}
		for _, n := range g.names {
			res.rows = append(res.rows, []driver.Value{n})
		}
		return res, nil
	case strings.HasPrefix(q, "SELECT id FROM grid_tables"):
		res := &result{cols: []string{"id"}}
		if id, ok := g.ids[argString(args, 0)]; ok {
			res.rows = append(res.rows, []driver.Value{id})
		}
		return res, nil
	case strings.HasPrefix(q, "INSERT INTO grid_tables"):
		res := &result{cols: []string{"id"}}
		name := argString(args, 0)
		if _, exists := g.ids[name]; !exists {
			g.nextID++
			g.ids[name] = g.nextID
			g.names = append(g.names, name)
			res.rows = append(res.rows, []driver.Value{g.nextID})
		}
		return res, nil
	case strings.HasPrefix(q, "SELECT cells FROM grid_rows"):
		rows := g.rows[argInt(args, 0)]
		lo := min(int(argInt(args, 1)), len(rows))
		hi := len(rows)
		if len(args) > 2 {
			hi = min(lo+int(argInt(args, 2)), hi)
		}
		res := &result{cols: []string{"cells"}}
		for _, payload := range rows[lo:hi] {
			res.rows = append(res.rows, []driver.Value{[]byte(payload)})
		}
		return res, nil
	}
	return nil, fmt.Errorf("griddb: unsupported query %q", q)
}

func (g *GridDB) begin() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failing(StageBegin); err != nil {
		return err
	}
	g.snapshot = make(map[int64][]string, len(g.rows))
	for id, rows := range g.rows {
		g.snapshot[id] = append([]string(nil), rows...)
	}
	return nil
}

func (g *GridDB) end(commit bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var err error
	if commit {
		err = g.failing(StageCommit)
	}
	if (!commit || err != nil) && g.snapshot != nil {
		g.rows = g.snapshot
	}
	g.snapshot = nil
	return err
}

func argInt(args []driver.NamedValue, i int) int64 {
	switch v := args[i].Value.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	}
	panic(fmt.Sprintf("griddb: arg %d is %T", i, args[i].Value))
}

func argString(args []driver.NamedValue, i int) string {
	switch v := args[i].Value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	panic(fmt.Sprintf("griddb: arg %d is %T", i, args[i].Value))
}

type gridDriver struct{ g *GridDB }

func (d gridDriver) Open(string) (driver.Conn, error) { return &conn{g: d.g}, nil }

type conn struct{ g *GridDB }

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("griddb: prepare unsupported: %s", query)
}

func (c *conn) Close() error { return nil }

func (c *conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *conn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if err := c.g.begin(); err != nil {
		return nil, err
	}
	return tx{g: c.g}, nil
}

func (c *conn) Ping(context.Context) error {
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	return c.g.failing(StagePing)
}

func (c *conn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if err := c.g.exec(query, args); err != nil {
		return nil, err
	}
	return driver.RowsAffected(1), nil
}

func (c *conn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	return c.g.query(query, args)
}

type tx struct{ g *GridDB }

func (t tx) Commit() error   { return t.g.end(true) }
func (t tx) Rollback() error { return t.g.end(false) }

type result struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *result) Columns() []string { return r.cols }
func (r *result) Close() error      { return nil }

func (r *result) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
