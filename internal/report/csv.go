package report

import (
	"io"
	"strings"

	"github.com/gocarina/gocsv"

	"markercompare/pkg/domain"
)

// ResultRow is the CSV form of one comparison result.
type ResultRow struct {
	Sample1Code string `csv:"sample1_code"`
	Sample1Name string `csv:"sample1_name"`
	Sample2Code string `csv:"sample2_code"`
	Sample2Name string `csv:"sample2_name"`
	Matches     int    `csv:"matches"`
	Mismatches  int    `csv:"mismatches"`
	Mismatched  string `csv:"mismatched_markers"`
	Conclusion  string `csv:"conclusion"`
}

// Rows flattens results into CSV rows, keeping their order.
func Rows(results []domain.ComparisonResult) []*ResultRow {
	out := make([]*ResultRow, 0, len(results))
	for _, r := range results {
		out = append(out, &ResultRow{
			Sample1Code: r.Sample1.Code,
			Sample1Name: r.Sample1.Name,
			Sample2Code: r.Sample2.Code,
			Sample2Name: r.Sample2.Name,
			Matches:     len(r.Matches),
			Mismatches:  len(r.Mismatches),
			Mismatched:  strings.Join(r.Mismatches, ";"),
			Conclusion:  string(r.Conclusion),
		})
	}
	return out
}

// WriteCSV writes results as CSV with a header row.
func WriteCSV(w io.Writer, results []domain.ComparisonResult) error {
	return gocsv.Marshal(Rows(results), w)
}

// ReadCSV parses rows previously written by WriteCSV.
func ReadCSV(r io.Reader) ([]*ResultRow, error) {
	var rows []*ResultRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
