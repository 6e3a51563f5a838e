package domain

import (
	"regexp"
	"strings"
)

// BaseCodeLength is the number of leading code characters shared by every
// sample of one case.
const BaseCodeLength = 5

// ReferenceRole is the role suffix of the reference sample of a case.
const ReferenceRole = 'A'

// DefaultCodePattern matches a sample code at the start of a cell: one letter,
// two year digits, two sequence digits and a role letter (e.g. V2445A).
var DefaultCodePattern = regexp.MustCompile(`^[A-Z]\d{4}[A-Z]`)

// Sample is one tested individual: its lab code, display name and the allele
// pairs recorded per marker. Markers missing from the source are absent from
// the map.
type Sample struct {
	Code    string                `json:"code"`
	Name    string                `json:"name"`
	Markers map[string]AllelePair `json:"markers"`
}

// BaseCode returns the case base code of the sample.
func (s Sample) BaseCode() string { return BaseCode(s.Code) }

// Role returns the trailing role letter of the sample code, or 0 when empty.
func (s Sample) Role() byte { return Role(s.Code) }

// IsReference reports whether the sample is the reference (role A) of its case.
func (s Sample) IsReference() bool { return s.Role() == ReferenceRole }

// Alleles returns the pair recorded for marker, defaulting to two empty values.
func (s Sample) Alleles(marker string) AllelePair {
	if p, ok := s.Markers[marker]; ok {
		return p
	}
	return AllelePair{}
}

// Header renders the "<code> <name>" cell used in grid header rows.
func (s Sample) Header() string {
	if s.Name == "" {
		return s.Code
	}
	return s.Code + " " + s.Name
}

// Clone returns a deep copy of the sample.
func (s Sample) Clone() Sample {
	out := Sample{Code: s.Code, Name: s.Name}
	if s.Markers != nil {
		out.Markers = make(map[string]AllelePair, len(s.Markers))
		for k, v := range s.Markers {
			out.Markers[k] = v
		}
	}
	return out
}

// Case groups the samples submitted together under one base code.
type Case struct {
	BaseCode string   `json:"baseCode"`
	Samples  []Sample `json:"samples"`
}

// SingleSample reports whether the case holds exactly one sample. A complete
// case has a reference plus at least one comparison sample.
func (c Case) SingleSample() bool { return len(c.Samples) == 1 }

// Reference returns the role A sample of the case.
func (c Case) Reference() (Sample, bool) {
	for _, s := range c.Samples {
		if s.IsReference() {
			return s, true
		}
	}
	return Sample{}, false
}

// Sample looks up a sample by exact code.
func (c Case) Sample(code string) (Sample, bool) {
	for _, s := range c.Samples {
		if s.Code == code {
			return s, true
		}
	}
	return Sample{}, false
}

// Codes lists the sample codes in case order.
func (c Case) Codes() []string {
	out := make([]string, len(c.Samples))
	for i, s := range c.Samples {
		out[i] = s.Code
	}
	return out
}

// BaseCode returns the first BaseCodeLength characters of code.
func BaseCode(code string) string {
	if len(code) <= BaseCodeLength {
		return code
	}
	return code[:BaseCodeLength]
}

// Role returns the trailing letter of code, or 0 when code is empty.
func Role(code string) byte {
	if code == "" {
		return 0
	}
	return code[len(code)-1]
}

// SplitHeader splits a "<code> <name...>" cell on its first space.
func SplitHeader(cell string) (code, name string) {
	code, name, _ = strings.Cut(cell, " ")
	return code, name
}
