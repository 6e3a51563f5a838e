// Package grid converts cases to and from the spreadsheet-shaped row layout
// stored in each intake table.
//
// One case block is laid out as:
//
//	row 0      "<code> <name>", "", ""            (per sample)
//	row 1      "Marker", "Allele 1", "Allele 2"   (per sample)
//	rows 2..   marker, allele 1, allele 2         (per sample, catalog order)
//	trailer    FillerRows blank rows
//
// Decoding does not assume this geometry: sample columns are discovered from
// the header row of every block, so legacy layouts with spacer columns decode
// the same way.
package grid

import (
	"regexp"
	"strconv"
	"strings"

	"markercompare/pkg/domain"
)

// Row is one grid row of cell strings.
type Row = []string

// Header labels written under every sample name.
const (
	LabelMarker  = "Marker"
	LabelAllele1 = "Allele 1"
	LabelAllele2 = "Allele 2"
)

// ColumnsPerSample is the number of cells each sample occupies.
const ColumnsPerSample = 3

// DefaultFillerRows separates consecutive case blocks.
const DefaultFillerRows = 2

// textPrefix forces spreadsheet backends to keep a value as text.
const textPrefix = "'"

// Options configures a Codec. Zero values select the defaults.
type Options struct {
	// Catalog defines marker rows and their order.
	Catalog domain.Catalog
	// CodePattern recognises case-start cells.
	CodePattern *regexp.Regexp
	// Spacer inserts one blank column between samples (legacy writer layout).
	Spacer bool
	// FillerRows is the number of blank rows closing a block.
	FillerRows int
	// QuoteNumeric prefixes numeric-looking alleles with ' on encode and
	// strips the prefix on decode.
	QuoteNumeric bool
}

// Codec encodes and decodes case blocks. It holds no mutable state and is
// safe for concurrent use.
type Codec struct {
	catalog      domain.Catalog
	pattern      *regexp.Regexp
	spacer       bool
	fillerRows   int
	quoteNumeric bool
}

// New constructs a codec from opts.
func New(opts Options) *Codec {
	c := &Codec{
		catalog:      opts.Catalog,
		pattern:      opts.CodePattern,
		spacer:       opts.Spacer,
		fillerRows:   opts.FillerRows,
		quoteNumeric: opts.QuoteNumeric,
	}
	if len(c.catalog) == 0 {
		c.catalog = domain.DefaultCatalog()
	}
	if c.pattern == nil {
		c.pattern = domain.DefaultCodePattern
	}
	if c.fillerRows <= 0 {
		c.fillerRows = DefaultFillerRows
	}
	return c
}

// Catalog returns the marker catalog the codec lays rows out with.
func (c *Codec) Catalog() domain.Catalog { return c.catalog.Order() }

// BlockHeight is the number of rows Encode emits for one case.
func (c *Codec) BlockHeight() int { return 2 + len(c.catalog) + c.fillerRows }

// IsCaseStart reports whether row opens a case block.
func (c *Codec) IsCaseStart(row Row) bool {
	return len(row) > 0 && c.pattern.MatchString(row[0])
}

// Encode lays out the samples of one case as grid rows.
func (c *Codec) Encode(samples []domain.Sample) []Row {
	n := len(samples)
	if n == 0 {
		return nil
	}
	width := n * ColumnsPerSample
	if c.spacer {
		width += n - 1
	}
	rows := make([]Row, 0, c.BlockHeight())

	names := make(Row, 0, width)
	labels := make(Row, 0, width)
	for i, s := range samples {
		names = append(names, s.Header(), "", "")
		labels = append(labels, LabelMarker, LabelAllele1, LabelAllele2)
		if c.spacer && i < n-1 {
			names = append(names, "")
			labels = append(labels, "")
		}
	}
	rows = append(rows, names, labels)

	for _, marker := range c.catalog {
		row := make(Row, 0, width)
		for i, s := range samples {
			p := s.Alleles(marker)
			row = append(row, marker, c.encodeValue(p[0]), c.encodeValue(p[1]))
			if c.spacer && i < n-1 {
				row = append(row, "")
			}
		}
		rows = append(rows, row)
	}
	for i := 0; i < c.fillerRows; i++ {
		rows = append(rows, make(Row, width))
	}
	return rows
}

func (c *Codec) encodeValue(v string) string {
	if c.quoteNumeric && looksNumeric(v) {
		return textPrefix + v
	}
	return v
}

func (c *Codec) decodeValue(v string) string {
	if c.quoteNumeric && strings.HasPrefix(v, textPrefix) && looksNumeric(v[len(textPrefix):]) {
		return v[len(textPrefix):]
	}
	return v
}

func looksNumeric(v string) bool {
	if v == "" {
		return false
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return err == nil
}
