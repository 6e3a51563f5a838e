// Package intake turns raw instrument marker reports into samples and feeds
// uploaded batches to the case repository.
package intake

import (
	"bytes"
	"strings"

	"github.com/csimplestring/go-csv/detector"

	"markercompare/pkg/domain"
)

// Report column positions.
const (
	colHeader  = 1
	colMarker  = 2
	colAllele1 = 3
	colAllele2 = 4
)

// Parse reads one tab-delimited marker report. The first non-blank line is a
// header and is skipped. Parse never fails: blank input yields a sample with
// empty code and name and an empty marker map.
func Parse(raw string) domain.Sample {
	return ParseDelimited(raw, '\t')
}

// ParseDelimited is Parse with an explicit column delimiter.
//
// Two-allele lines are applied first, so a full call always beats a
// single-allele call for the same marker regardless of line order. A marker
// with only its first allele recorded is stored homozygous.
func ParseDelimited(raw string, delim rune) domain.Sample {
	s := domain.Sample{Markers: make(map[string]domain.AllelePair)}
	lines := dataLines(raw)
	sep := string(delim)

	rows := make([][]string, 0, len(lines))
	for _, line := range lines {
		rows = append(rows, strings.Split(line, sep))
	}

	for _, parts := range rows {
		if s.Code == "" {
			if header := strings.TrimSpace(field(parts, colHeader)); header != "" {
				s.Code, s.Name = domain.SplitHeader(header)
			}
		}
		marker := strings.TrimSpace(field(parts, colMarker))
		a1 := strings.TrimSpace(field(parts, colAllele1))
		a2 := strings.TrimSpace(field(parts, colAllele2))
		if marker == "" || a1 == "" || a2 == "" {
			continue
		}
		if _, seen := s.Markers[marker]; !seen {
			s.Markers[marker] = domain.AllelePair{a1, a2}
		}
	}

	for _, parts := range rows {
		marker := strings.TrimSpace(field(parts, colMarker))
		a1 := strings.TrimSpace(field(parts, colAllele1))
		a2 := strings.TrimSpace(field(parts, colAllele2))
		if marker == "" || a1 == "" || a2 != "" {
			continue
		}
		if _, seen := s.Markers[marker]; !seen {
			s.Markers[marker] = domain.AllelePair{a1, a1}
		}
	}
	return s
}

// DetectDelimiter guesses the column delimiter of raw, defaulting to tab.
func DetectDelimiter(raw string) rune {
	if strings.Contains(raw, "\t") {
		return '\t'
	}
	found := detector.New().DetectDelimiter(bytes.NewBufferString(raw), '"')
	if len(found) > 0 && found[0] != "" {
		return rune(found[0][0])
	}
	return '\t'
}

// dataLines returns the non-blank lines after the header line.
func dataLines(raw string) []string {
	var out []string
	header := true
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if header {
			header = false
			continue
		}
		out = append(out, line)
	}
	return out
}

func field(parts []string, idx int) string {
	if idx < len(parts) {
		return parts[idx]
	}
	return ""
}
