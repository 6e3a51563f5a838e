package intake

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markercompare/pkg/domain"
)

func report(lines ...string) string {
	return strings.Join(lines, "\n")
}

func TestParseReadsHeaderAndMarkers(t *testing.T) {
	raw := report(
		"Sample File\tSample Name\tMarker\tAllele 1\tAllele 2",
		"f1.fsa\tV2445A Nguyen Van A\tD3S1358\t14\t15",
		"f1.fsa\tV2445A Nguyen Van A\tvWA\t16\t17",
	)
	s := Parse(raw)
	assert.Equal(t, "V2445A", s.Code)
	assert.Equal(t, "Nguyen Van A", s.Name)
	assert.Equal(t, map[string]domain.AllelePair{
		"D3S1358": {"14", "15"},
		"vWA":     {"16", "17"},
	}, s.Markers)
}

func TestParseTwoAlleleLineBeatsEarlierSingleAllele(t *testing.T) {
	raw := report(
		"header",
		"f\tV2445B B\tTPOX\t8\t",
		"f\tV2445B B\tTPOX\t8\t11",
	)
	assert.Equal(t, domain.AllelePair{"8", "11"}, Parse(raw).Markers["TPOX"])
}

func TestParseSingleAlleleIsHomozygous(t *testing.T) {
	raw := report(
		"header",
		"f\tV2445B B\tTH01\t9.3",
	)
	assert.Equal(t, domain.AllelePair{"9.3", "9.3"}, Parse(raw).Markers["TH01"])
}

func TestParseFirstOccurrenceWins(t *testing.T) {
	raw := report(
		"header",
		"f\tV2445B B\tFGA\t20\t22",
		"f\tV2445B B\tFGA\t21\t23",
		"f\tV2445B B\tCSF1PO\t10\t",
		"f\tV2445B B\tCSF1PO\t12\t",
	)
	s := Parse(raw)
	assert.Equal(t, domain.AllelePair{"20", "22"}, s.Markers["FGA"])
	assert.Equal(t, domain.AllelePair{"10", "10"}, s.Markers["CSF1PO"])
}

func TestParseSkipsIncompleteLines(t *testing.T) {
	raw := report(
		"header",
		"f\tV2445B B\t\t8\t9",
		"f\tV2445B B\tD5S818",
		"f\tV2445B B\tD7S820\t\t10",
		"short",
	)
	s := Parse(raw)
	assert.Empty(t, s.Markers)
	assert.Equal(t, "V2445B", s.Code)
}

func TestParseBlankInput(t *testing.T) {
	for _, raw := range []string{"", "\n\n", "only a header"} {
		s := Parse(raw)
		assert.Empty(t, s.Code)
		assert.Empty(t, s.Name)
		require.NotNil(t, s.Markers)
		assert.Empty(t, s.Markers)
	}
}

func TestParseHeaderTakenFromFirstNonEmptyCell(t *testing.T) {
	raw := report(
		"header",
		"f\t\tAMEL\tX\tY",
		"f\tT2501C\tD8S1179\t13\t14",
		"f\tT2501D Other\tD21S11\t30\t31",
	)
	s := Parse(raw)
	assert.Equal(t, "T2501C", s.Code)
	assert.Empty(t, s.Name)
	assert.Len(t, s.Markers, 3)
}

func TestParseHandlesCRLFAndPadding(t *testing.T) {
	raw := "header\r\n\r\nf\t V2445A  A \t Penta E \t 12 \t 14 \r\n"
	s := Parse(raw)
	assert.Equal(t, "V2445A", s.Code)
	assert.Equal(t, domain.AllelePair{"12", "14"}, s.Markers["Penta E"])
}

func TestParseDelimitedComma(t *testing.T) {
	raw := report(
		"file,name,marker,a1,a2",
		"f,V2445A A,D2S441,10,11",
	)
	s := ParseDelimited(raw, ',')
	assert.Equal(t, domain.AllelePair{"10", "11"}, s.Markers["D2S441"])
}

func TestDetectDelimiter(t *testing.T) {
	assert.Equal(t, '\t', DetectDelimiter("a\tb\tc\n1\t2\t3"))
	assert.Equal(t, '\t', DetectDelimiter(""))
	assert.Equal(t, ',', DetectDelimiter("file,name,marker,a1,a2\nf,V2445A,D2S441,10,11\nf,V2445A,FGA,20,21"))
}
