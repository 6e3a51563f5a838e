package grid

import (
	"strings"

	"markercompare/pkg/domain"
)

// anchor ties a discovered sample to the header column its alleles follow.
type anchor struct {
	sample int
	column int
}

type block struct {
	baseCode string
	samples  []domain.Sample
	anchors  []anchor
}

// Decode recovers every case block found in rows. It never fails: rows or
// cells it cannot interpret contribute nothing. Blocks without a single
// recorded marker are dropped.
func (c *Codec) Decode(rows []Row) []domain.Case {
	var (
		cases []domain.Case
		open  *block
		start int
	)
	closeBlock := func() {
		if open != nil {
			if cs, ok := open.finish(); ok {
				cases = append(cases, cs)
			}
		}
		open = nil
	}

	for i, row := range rows {
		switch {
		case isBlank(row):
			closeBlock()
		case c.IsCaseStart(row):
			closeBlock()
			open = c.openBlock(row)
			start = i
		case open != nil && i >= start+2:
			c.readMarkerRow(open, row)
		}
	}
	closeBlock()
	return cases
}

func (c *Codec) openBlock(header Row) *block {
	b := &block{baseCode: domain.BaseCode(header[0])}
	for col, cell := range header {
		if cell == "" || !strings.HasPrefix(cell, b.baseCode) {
			continue
		}
		code, name := domain.SplitHeader(cell)
		b.anchors = append(b.anchors, anchor{sample: len(b.samples), column: col})
		b.samples = append(b.samples, domain.Sample{
			Code:    code,
			Name:    name,
			Markers: make(map[string]domain.AllelePair),
		})
	}
	return b
}

func (c *Codec) readMarkerRow(b *block, row Row) {
	marker := row[0]
	if marker == "" || marker == LabelMarker {
		return
	}
	for _, a := range b.anchors {
		a1 := c.decodeValue(cell(row, a.column+1))
		a2 := c.decodeValue(cell(row, a.column+2))
		if a1 == "" && a2 == "" {
			continue
		}
		b.samples[a.sample].Markers[marker] = domain.AllelePair{a1, a2}
	}
}

func (b *block) finish() (domain.Case, bool) {
	for _, s := range b.samples {
		if len(s.Markers) > 0 {
			return domain.Case{BaseCode: b.baseCode, Samples: b.samples}, true
		}
	}
	return domain.Case{}, false
}

func cell(row Row, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// isBlank treats a row without cells, or with only empty cells, as a block
// separator.
func isBlank(row Row) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
