// Package domain defines the sample, case and comparison value types shared by
// the codec, repository and comparison services of markercompare.
package domain

// Catalog is an ordered list of marker names. The order defines the grid row
// layout and the order in which comparison results report markers.
type Catalog []string

var defaultMarkers = [...]string{
	"D3S1358", "vWA", "D16S539", "CSF1PO", "D6S1043",
	"Yindel", "AMEL", "D8S1179", "D21S11", "D18S51",
	"D5S818", "D2S441", "D19S433", "FGA", "D10S1248",
	"D22S1045", "D1S1656", "D13S317", "D7S820", "Penta E",
	"Penta D", "TH01", "D12S391", "D2S1338", "TPOX",
}

// DefaultCatalog returns a fresh copy of the 25-marker panel used by the lab.
func DefaultCatalog() Catalog {
	out := make(Catalog, len(defaultMarkers))
	copy(out, defaultMarkers[:])
	return out
}

// Order returns a copy of the marker names in catalog order.
func (c Catalog) Order() []string {
	out := make([]string, len(c))
	copy(out, c)
	return out
}

// Index returns the position of marker in the catalog or -1.
func (c Catalog) Index(marker string) int {
	for i, m := range c {
		if m == marker {
			return i
		}
	}
	return -1
}

// Len reports the number of markers.
func (c Catalog) Len() int { return len(c) }

// AllelePair holds the two allele calls observed at one marker. An empty
// string means no value was recorded.
type AllelePair [2]string

// Empty reports whether neither allele carries a value.
func (p AllelePair) Empty() bool { return p[0] == "" && p[1] == "" }

// Shares reports whether the two pairs have at least one value in common.
// Comparison is exact string equality; order and duplicates are irrelevant.
func (p AllelePair) Shares(other AllelePair) bool {
	for _, a := range p {
		for _, b := range other {
			if a == b {
				return true
			}
		}
	}
	return false
}
