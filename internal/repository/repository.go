// Package repository stores cases in date-bucket tables of the grid store and
// aggregates them back for the comparison engine.
package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"markercompare/internal/grid"
	"markercompare/internal/logging"
	"markercompare/internal/metrics"
	"markercompare/internal/persistence"
	"markercompare/pkg/domain"
)

// DefaultSkipTables lists placeholder tables that never hold cases.
var DefaultSkipTables = []string{"Sheet1"}

// DefaultConcurrency bounds parallel table reads during aggregation.
const DefaultConcurrency = 4

// Options configures a Repository.
type Options struct {
	Codec   *grid.Codec
	Logger  *zap.Logger
	Metrics metrics.Recorder
	// SkipTables are ignored by aggregation. Nil selects DefaultSkipTables;
	// an empty non-nil slice skips nothing.
	SkipTables  []string
	Concurrency int
}

// Repository is the case facade over a grid table store.
type Repository struct {
	store   persistence.Store
	codec   *grid.Codec
	log     *zap.Logger
	metrics metrics.Recorder
	skip    map[string]struct{}
	limit   int

	// tableMu serialises find-or-create so concurrent uploads into a new
	// bucket create it once.
	tableMu sync.Mutex
}

// Location addresses one stored case block.
type Location struct {
	Table    string `json:"table"`
	StartRow int    `json:"startRow"`
	RowCount int    `json:"rowCount"`
}

// ReplaceIncompleteError reports that an existing case was deleted but its
// replacement could not be appended. The case is absent from Table until the
// upload is retried.
type ReplaceIncompleteError struct {
	Table    string
	BaseCode string
	Err      error
}

func (e *ReplaceIncompleteError) Error() string {
	return fmt.Sprintf("replace case %s in %s: deleted but append failed: %v", e.BaseCode, e.Table, e.Err)
}

func (e *ReplaceIncompleteError) Unwrap() error { return e.Err }

// New constructs a Repository over store.
func New(store persistence.Store, opts Options) *Repository {
	r := &Repository{
		store:   store,
		codec:   opts.Codec,
		log:     logging.OrNop(opts.Logger),
		metrics: opts.Metrics,
		limit:   opts.Concurrency,
	}
	if r.codec == nil {
		r.codec = grid.New(grid.Options{})
	}
	if r.metrics == nil {
		r.metrics = metrics.Noop{}
	}
	if r.limit <= 0 {
		r.limit = DefaultConcurrency
	}
	skip := opts.SkipTables
	if skip == nil {
		skip = DefaultSkipTables
	}
	r.skip = make(map[string]struct{}, len(skip))
	for _, name := range skip {
		r.skip[strings.ToLower(name)] = struct{}{}
	}
	return r
}

// Codec returns the grid codec used for reads and writes.
func (r *Repository) Codec() *grid.Codec { return r.codec }

// Store returns the backing table store.
func (r *Repository) Store() persistence.Store { return r.store }

// FindTable resolves name case-insensitively to the stored table name.
func (r *Repository) FindTable(ctx context.Context, name string) (string, bool, error) {
	tables, err := r.store.ListTables(ctx)
	if err != nil {
		return "", false, fmt.Errorf("list tables: %w", err)
	}
	for _, t := range tables {
		if t == name {
			return t, true, nil
		}
	}
	for _, t := range tables {
		if strings.EqualFold(t, name) {
			return t, true, nil
		}
	}
	return "", false, nil
}

// FindOrCreateTable returns the stored name of the bucket table, creating it
// when absent.
func (r *Repository) FindOrCreateTable(ctx context.Context, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", domain.ErrInvalidInput{Reason: "table name required"}
	}
	r.tableMu.Lock()
	defer r.tableMu.Unlock()
	if found, ok, err := r.FindTable(ctx, name); err != nil || ok {
		return found, err
	}
	if _, err := r.store.CreateTable(ctx, name); err != nil {
		if errors.Is(err, persistence.ErrTableExists) {
			return name, nil
		}
		return "", fmt.Errorf("create table %s: %w", name, err)
	}
	r.log.Info("created table", zap.String("table", name))
	return name, nil
}

// Tables lists the stored tables aggregation reads, in creation order.
func (r *Repository) Tables(ctx context.Context) ([]string, error) {
	all, err := r.store.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	out := make([]string, 0, len(all))
	for _, t := range all {
		if _, skip := r.skip[strings.ToLower(t)]; skip {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// FindExistingCase locates the first block of baseCode in table. The block
// runs from its case-start row up to the next case-start row or the end of
// the table, so trailing filler rows are included.
func (r *Repository) FindExistingCase(ctx context.Context, table, baseCode string) (Location, bool, error) {
	rows, err := r.store.GetRows(ctx, table, persistence.FirstColumn)
	if err != nil {
		return Location{}, false, fmt.Errorf("scan %s: %w", table, err)
	}
	start := -1
	for i, row := range rows {
		if !r.codec.IsCaseStart(row) {
			continue
		}
		if start >= 0 {
			return Location{Table: table, StartRow: start, RowCount: i - start}, true, nil
		}
		if domain.BaseCode(row[0]) == baseCode {
			start = i
		}
	}
	if start < 0 {
		return Location{}, false, nil
	}
	return Location{Table: table, StartRow: start, RowCount: len(rows) - start}, true, nil
}

// CheckCase reports whether baseCode is stored in the bucket table. A missing
// table means the case does not exist; it is not created.
func (r *Repository) CheckCase(ctx context.Context, bucket, baseCode string) (exists bool, err error) {
	defer metrics.Track(ctx, r.metrics, "repository.check_case")(&err)
	table, ok, err := r.FindTable(ctx, bucket)
	if err != nil || !ok {
		return false, err
	}
	_, found, err := r.FindExistingCase(ctx, table, domain.BaseCode(baseCode))
	return found, err
}

// DeleteCase removes the rows addressed by loc.
func (r *Repository) DeleteCase(ctx context.Context, loc Location) error {
	if err := r.store.DeleteRowRange(ctx, loc.Table, loc.StartRow, loc.RowCount); err != nil {
		return fmt.Errorf("delete case rows %s[%d:+%d]: %w", loc.Table, loc.StartRow, loc.RowCount, err)
	}
	return nil
}

// AppendCase encodes c and appends its block to table. Every sample must
// carry the case base code and the block must open with a recognised code.
func (r *Repository) AppendCase(ctx context.Context, table string, c domain.Case) error {
	if err := r.validateCase(c); err != nil {
		return err
	}
	rows := r.codec.Encode(c.Samples)
	if err := r.store.AppendRows(ctx, table, rows); err != nil {
		return fmt.Errorf("append case %s to %s: %w", c.BaseCode, table, err)
	}
	return nil
}

// validateCase rejects blocks Decode could not read back whole.
func (r *Repository) validateCase(c domain.Case) error {
	if len(c.Samples) == 0 {
		return domain.ErrInvalidInput{Reason: "case " + c.BaseCode + " has no samples"}
	}
	for _, s := range c.Samples {
		if s.BaseCode() != c.BaseCode {
			return domain.ErrInvalidInput{Reason: "sample " + s.Code + " does not belong to case " + c.BaseCode}
		}
		if !r.codec.IsCaseStart(grid.Row{s.Header()}) {
			return domain.ErrInvalidInput{Reason: "sample code " + s.Code + " is not recognised"}
		}
	}
	return nil
}

// UploadCases writes cases into the bucket table, replacing any block already
// stored under the same base code. Cases are written in code order and the
// samples of each case in role order.
func (r *Repository) UploadCases(ctx context.Context, bucket string, cases []domain.Case) (err error) {
	defer metrics.Track(ctx, r.metrics, "repository.upload_cases")(&err)
	table, err := r.FindOrCreateTable(ctx, bucket)
	if err != nil {
		return err
	}
	ordered := SortCases(cases)
	for _, c := range ordered {
		if err := r.replaceCase(ctx, table, c); err != nil {
			return err
		}
	}
	r.log.Info("uploaded cases", zap.String("table", table), zap.Int("cases", len(ordered)))
	return nil
}

func (r *Repository) replaceCase(ctx context.Context, table string, c domain.Case) error {
	if c.BaseCode == "" && len(c.Samples) > 0 {
		c.BaseCode = c.Samples[0].BaseCode()
	}
	base := c.BaseCode
	if err := r.validateCase(c); err != nil {
		return err
	}
	deleted := false
	for {
		loc, found, err := r.FindExistingCase(ctx, table, base)
		if err != nil {
			return err
		}
		if !found {
			break
		}
		if err := r.DeleteCase(ctx, loc); err != nil {
			return err
		}
		deleted = true
		r.log.Info("removed existing case", zap.String("table", table), zap.String("base_code", base), zap.Int("rows", loc.RowCount))
	}
	if err := r.AppendCase(ctx, table, c); err != nil {
		if deleted {
			return &ReplaceIncompleteError{Table: table, BaseCode: base, Err: err}
		}
		return err
	}
	return nil
}

// TableCases decodes every case stored in table.
func (r *Repository) TableCases(ctx context.Context, table string) ([]domain.Case, error) {
	rows, err := r.store.GetRows(ctx, table, persistence.All)
	if err != nil {
		if errors.Is(err, persistence.ErrTableNotFound) {
			return nil, domain.ErrNotFound{Entity: domain.EntityTable, ID: table}
		}
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	cases := r.codec.Decode(rows)
	for _, c := range cases {
		if c.SingleSample() {
			r.log.Warn("case has a single sample", zap.String("table", table), zap.String("base_code", c.BaseCode))
		}
	}
	return cases, nil
}

// AllCases aggregates the cases of every non-skipped table. Tables are read
// concurrently; the result keeps table order, then row order.
func (r *Repository) AllCases(ctx context.Context) (cases []domain.Case, err error) {
	defer metrics.Track(ctx, r.metrics, "repository.all_cases")(&err)
	tables, err := r.Tables(ctx)
	if err != nil {
		return nil, err
	}
	perTable := make([][]domain.Case, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit)
	for i, table := range tables {
		g.Go(func() error {
			got, err := r.TableCases(gctx, table)
			if err != nil {
				return err
			}
			perTable[i] = got
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, c := range perTable {
		cases = append(cases, c...)
	}
	r.log.Debug("aggregated cases", zap.Int("tables", len(tables)), zap.Int("cases", len(cases)))
	return cases, nil
}

// SortCases returns a copy of cases ordered by prefix letter, year and
// sequence, with each case's samples ordered by role letter. Both sorts are
// stable.
func SortCases(cases []domain.Case) []domain.Case {
	out := make([]domain.Case, len(cases))
	for i, c := range cases {
		samples := make([]domain.Sample, len(c.Samples))
		copy(samples, c.Samples)
		sort.SliceStable(samples, func(a, b int) bool { return samples[a].Role() < samples[b].Role() })
		out[i] = domain.Case{BaseCode: c.BaseCode, Samples: samples}
	}
	sort.SliceStable(out, func(a, b int) bool {
		ka, kb := codeKey(out[a].BaseCode), codeKey(out[b].BaseCode)
		if ka.letter != kb.letter {
			return ka.letter < kb.letter
		}
		if ka.year != kb.year {
			return ka.year < kb.year
		}
		return ka.seq < kb.seq
	})
	return out
}

type sortKey struct {
	letter byte
	year   int
	seq    int
}

func codeKey(base string) sortKey {
	var k sortKey
	if base == "" {
		return k
	}
	k.letter = base[0]
	if len(base) >= 3 {
		k.year, _ = strconv.Atoi(base[1:3])
	}
	if len(base) >= 5 {
		k.seq, _ = strconv.Atoi(base[3:5])
	}
	return k
}
