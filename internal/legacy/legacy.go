// Package legacy imports worksheets of old case workbooks (.xls or .xlsx) into
// the grid table store, one table per worksheet.
package legacy

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"markercompare/internal/logging"
	"markercompare/internal/persistence"
)

// Charset used to decode workbook strings.
const Charset = "utf-8"

// Sheet is one worksheet copied cell by cell.
type Sheet struct {
	Name string
	Rows []persistence.Row
}

// Summary lists the outcome of an import.
type Summary struct {
	Imported map[string]int `json:"imported"`
	Skipped  []string       `json:"skipped,omitempty"`
}

// Importer writes worksheets into a table store.
type Importer struct {
	store persistence.Store
	log   *zap.Logger
}

// NewImporter constructs an Importer over store.
func NewImporter(store persistence.Store, logger *zap.Logger) *Importer {
	return &Importer{store: store, log: logging.OrNop(logger)}
}

// ReadWorkbook loads every worksheet of the workbook at path. The reader is
// chosen by extension: .xls for the binary format, .xlsx and .xlsm for the
// XML format.
func ReadWorkbook(path string) ([]Sheet, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xls":
		return readXLS(path)
	case ".xlsx", ".xlsm":
		return readXLSX(path)
	default:
		return nil, fmt.Errorf("open workbook %s: unsupported format", path)
	}
}

func readXLSX(path string) (sheets []Sheet, err error) {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer func() {
		if cerr := wb.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close workbook %s: %w", path, cerr)
		}
	}()
	for _, name := range wb.GetSheetList() {
		rows, err := wb.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read worksheet %s: %w", name, err)
		}
		sheet := Sheet{Name: name, Rows: make([]persistence.Row, 0, len(rows))}
		for _, row := range rows {
			if row == nil {
				row = persistence.Row{}
			}
			sheet.Rows = append(sheet.Rows, row)
		}
		sheets = append(sheets, sheet)
	}
	return sheets, nil
}

func readXLS(path string) ([]Sheet, error) {
	wb, err := xls.Open(path, Charset)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	var sheets []Sheet
	for i := 0; i < wb.NumSheets(); i++ {
		ws := wb.GetSheet(i)
		if ws == nil {
			continue
		}
		sheet := Sheet{Name: ws.Name}
		for r := 0; r <= int(ws.MaxRow); r++ {
			row := ws.Row(r)
			if row == nil {
				sheet.Rows = append(sheet.Rows, persistence.Row{})
				continue
			}
			cells := make(persistence.Row, 0, row.LastCol()+1)
			for c := 0; c <= row.LastCol(); c++ {
				cells = append(cells, row.Col(c))
			}
			sheet.Rows = append(sheet.Rows, cells)
		}
		sheets = append(sheets, sheet)
	}
	return sheets, nil
}

// ImportFile reads the workbook at path and imports its worksheets.
func (im *Importer) ImportFile(ctx context.Context, path string) (Summary, error) {
	sheets, err := ReadWorkbook(path)
	if err != nil {
		return Summary{}, err
	}
	return im.Import(ctx, sheets)
}

// Import creates one table per sheet and copies its rows verbatim. Sheets
// whose table already exists are left untouched and reported as skipped.
func (im *Importer) Import(ctx context.Context, sheets []Sheet) (Summary, error) {
	sum := Summary{Imported: map[string]int{}}
	for _, sh := range sheets {
		if sh.Name == "" {
			continue
		}
		if _, err := im.store.CreateTable(ctx, sh.Name); err != nil {
			if errors.Is(err, persistence.ErrTableExists) {
				im.log.Warn("table exists, skipping worksheet", zap.String("table", sh.Name))
				sum.Skipped = append(sum.Skipped, sh.Name)
				continue
			}
			return sum, fmt.Errorf("create table %s: %w", sh.Name, err)
		}
		if len(sh.Rows) > 0 {
			if err := im.store.AppendRows(ctx, sh.Name, sh.Rows); err != nil {
				return sum, fmt.Errorf("copy worksheet %s: %w", sh.Name, err)
			}
		}
		sum.Imported[sh.Name] = len(sh.Rows)
		im.log.Info("imported worksheet", zap.String("table", sh.Name), zap.Int("rows", len(sh.Rows)))
	}
	return sum, nil
}
