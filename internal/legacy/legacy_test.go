package legacy

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"markercompare/internal/grid"
	"markercompare/internal/persistence"
	"markercompare/pkg/domain"
)

// spacedSheet is a worksheet in the old writer layout: one blank column
// between samples.
func spacedSheet(name string) Sheet {
	return Sheet{Name: name, Rows: []persistence.Row{
		{"V2301A Mother", "", "", "", "V2301B Child", "", ""},
		{"Marker", "Allele 1", "Allele 2", "", "Marker", "Allele 1", "Allele 2"},
		{"vWA", "16", "17", "", "vWA", "17", "18"},
		{"TPOX", "8", "", "", "TPOX", "8", "11"},
		{},
		{},
	}}
}

func TestImportCopiesRowsAndDecodes(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemoryStore()
	im := NewImporter(store, nil)

	sum, err := im.Import(ctx, []Sheet{spacedSheet("01-02-2023"), {Name: ""}})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"01-02-2023": 6}, sum.Imported)

	rows, err := store.GetRows(ctx, "01-02-2023", persistence.All)
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, persistence.Row{"TPOX", "8", "", "", "TPOX", "8", "11"}, rows[3])

	cases := grid.New(grid.Options{}).Decode(rows)
	require.Len(t, cases, 1)
	assert.Equal(t, domain.AllelePair{"8", ""}, cases[0].Samples[0].Markers["TPOX"])
	assert.Equal(t, domain.AllelePair{"17", "18"}, cases[0].Samples[1].Markers["vWA"])
}

func TestImportSkipsExistingTables(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemoryStore()
	_, err := store.CreateTable(ctx, "01-02-2023")
	require.NoError(t, err)

	sum, err := NewImporter(store, nil).Import(ctx, []Sheet{spacedSheet("01-02-2023"), spacedSheet("02-02-2023")})
	require.NoError(t, err)
	assert.Equal(t, []string{"01-02-2023"}, sum.Skipped)
	assert.Contains(t, sum.Imported, "02-02-2023")

	rows, err := store.GetRows(ctx, "01-02-2023", persistence.All)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestImportFileMissing(t *testing.T) {
	_, err := NewImporter(persistence.NewMemoryStore(), nil).ImportFile(context.Background(), filepath.Join(t.TempDir(), "none.xls"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open workbook")
}

// writeWorkbook saves sheets as an .xlsx file, leaving blank cells unset the
// way spreadsheet writers do.
func writeWorkbook(t *testing.T, path string, sheets ...Sheet) {
	t.Helper()
	wb := excelize.NewFile()
	defer func() { _ = wb.Close() }()
	for i, sh := range sheets {
		if i == 0 {
			require.NoError(t, wb.SetSheetName("Sheet1", sh.Name))
		} else {
			_, err := wb.NewSheet(sh.Name)
			require.NoError(t, err)
		}
		for r, row := range sh.Rows {
			for c, v := range row {
				if v == "" {
					continue
				}
				cell, err := excelize.CoordinatesToCellName(c+1, r+1)
				require.NoError(t, err)
				require.NoError(t, wb.SetCellStr(sh.Name, cell, v))
			}
		}
	}
	require.NoError(t, wb.SaveAs(path))
}

func TestImportFileReadsXLSXWorkbook(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "marker_database.xlsx")
	second := spacedSheet("02-02-2023")
	second.Rows = append(second.Rows,
		persistence.Row{"V2302A Solo", "", "", ""},
		persistence.Row{"Marker", "Allele 1", "Allele 2", ""},
		persistence.Row{"FGA", "20", "22", ""},
	)
	writeWorkbook(t, path, spacedSheet("01-02-2023"), second)

	sheets, err := ReadWorkbook(path)
	require.NoError(t, err)
	require.Len(t, sheets, 2)
	assert.Equal(t, "01-02-2023", sheets[0].Name)
	assert.Equal(t, persistence.Row{"V2301A Mother", "", "", "", "V2301B Child"}, sheets[0].Rows[0])

	store := persistence.NewMemoryStore()
	sum, err := NewImporter(store, nil).ImportFile(ctx, path)
	require.NoError(t, err)
	assert.Len(t, sum.Imported, 2)

	codec := grid.New(grid.Options{})
	rows, err := store.GetRows(ctx, "01-02-2023", persistence.All)
	require.NoError(t, err)
	cases := codec.Decode(rows)
	require.Len(t, cases, 1)
	assert.Equal(t, []string{"V2301A", "V2301B"}, cases[0].Codes())
	assert.Equal(t, "Child", cases[0].Samples[1].Name)
	assert.Equal(t, domain.AllelePair{"8", ""}, cases[0].Samples[0].Markers["TPOX"])
	assert.Equal(t, domain.AllelePair{"8", "11"}, cases[0].Samples[1].Markers["TPOX"])

	rows, err = store.GetRows(ctx, "02-02-2023", persistence.All)
	require.NoError(t, err)
	cases = codec.Decode(rows)
	require.Len(t, cases, 2)
	assert.Equal(t, "V2302", cases[1].BaseCode)
	assert.Equal(t, domain.AllelePair{"20", "22"}, cases[1].Samples[0].Markers["FGA"])
}

func TestReadWorkbookRejectsUnknownFormat(t *testing.T) {
	_, err := ReadWorkbook(filepath.Join(t.TempDir(), "cases.ods"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}
