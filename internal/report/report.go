// Package report prepares comparison results for rendering: template fields,
// marker colour bands, the conclusion sentence and the download filename.
package report

import (
	"regexp"
	"strings"

	"markercompare/pkg/domain"
)

// Localised conclusion words used by the report template.
const (
	WordYes = "CÓ"
	WordNo  = "KHÔNG"
)

// ToleratedMarker may mismatch without hiding the confidence figure.
const ToleratedMarker = "Yindel"

// FileExtension is appended to every report filename.
const FileExtension = ".docx"

// Marker colour bands by catalog position.
const (
	ColorBlue   = "0000FF"
	ColorGreen  = "008000"
	ColorBlack  = "000000"
	ColorRed    = "FF0000"
	ColorPurple = "800080"
)

var (
	unsafeFilename = regexp.MustCompile(`[/\\?%*:|"<>]`)
	whitespace     = regexp.MustCompile(`\s+`)
)

// MarkerRow is one marker line of a rendered report.
type MarkerRow struct {
	Marker  string            `json:"marker"`
	Color   string            `json:"color"`
	Values1 domain.AllelePair `json:"values1"`
	Values2 domain.AllelePair `json:"values2"`
	Match   bool              `json:"match"`
}

// Data is everything a report template needs for one result.
type Data struct {
	Fields         map[string]string `json:"fields"`
	Markers        []MarkerRow       `json:"markers"`
	ShowPercentage bool              `json:"showPercentage"`
	Sentence       string            `json:"sentence"`
	Filename       string            `json:"filename"`
}

// MarkerColor returns the colour band of the marker at catalog index i.
func MarkerColor(i int) string {
	switch {
	case i < 5:
		return ColorBlue
	case i < 11:
		return ColorGreen
	case i < 15:
		return ColorBlack
	case i < 20:
		return ColorRed
	default:
		return ColorPurple
	}
}

// ShowPercentage reports whether the confidence figure is printed: the
// result is a blood relation and no marker other than Yindel mismatched.
func ShowPercentage(res domain.ComparisonResult) bool {
	if !res.Related() {
		return false
	}
	for _, m := range res.Mismatches {
		if m != ToleratedMarker {
			return false
		}
	}
	return true
}

// ConclusionWord returns the localised yes/no word for res.
func ConclusionWord(res domain.ComparisonResult) string {
	if res.Related() {
		return WordYes
	}
	return WordNo
}

// Sentence renders the conclusion line of the report.
func Sentence(res domain.ComparisonResult) string {
	var b strings.Builder
	b.WriteString("Kết luận: ")
	b.WriteString(ConclusionWord(res))
	if !res.Related() {
		b.WriteString(" có")
	}
	b.WriteString(" quan hệ huyết thống Cha/Mẹ - Con")
	if ShowPercentage(res) {
		b.WriteString(", với tần suất " + domain.PlaceholderConfidence + "%")
	}
	b.WriteString(".")
	return b.String()
}

// Filename names the report file. The reference sample leads when either
// sample is one; unsafe characters become "-".
func Filename(res domain.ComparisonResult) string {
	first, second := res.Sample1, res.Sample2
	if !first.IsReference() && second.IsReference() {
		first, second = second, first
	}
	name := first.Code + " " + first.Name + "_" + second.Name
	return unsafeFilename.ReplaceAllString(name, "-") + FileExtension
}

// FieldKey returns the template key of one allele cell, e.g.
// "Penta_E_values2_0" for the first allele of sample 2 at Penta E.
func FieldKey(marker string, sample, allele int) string {
	return whitespace.ReplaceAllString(marker, "_") + "_values" + string(rune('0'+sample)) + "_" + string(rune('0'+allele))
}

// Build assembles report data for res using catalog for marker order.
func Build(res domain.ComparisonResult, catalog domain.Catalog) Data {
	if len(catalog) == 0 {
		catalog = domain.DefaultCatalog()
	}
	show := ShowPercentage(res)
	fields := map[string]string{
		"sample1_name": res.Sample1.Name,
		"sample1_code": res.Sample1.Code,
		"sample2_name": res.Sample2.Name,
		"sample2_code": res.Sample2.Code,
		"Conclusion":   ConclusionWord(res),
		"percentage":   "",
	}
	if show {
		fields["percentage"] = domain.PlaceholderConfidence
	}
	mismatched := make(map[string]bool, len(res.Mismatches))
	for _, m := range res.Mismatches {
		mismatched[m] = true
	}
	rows := make([]MarkerRow, 0, len(catalog))
	for i, m := range catalog {
		v1, v2 := res.Sample1.Alleles(m), res.Sample2.Alleles(m)
		fields[FieldKey(m, 1, 0)] = v1[0]
		fields[FieldKey(m, 1, 1)] = v1[1]
		fields[FieldKey(m, 2, 0)] = v2[0]
		fields[FieldKey(m, 2, 1)] = v2[1]
		rows = append(rows, MarkerRow{
			Marker:  m,
			Color:   MarkerColor(i),
			Values1: v1,
			Values2: v2,
			Match:   !mismatched[m],
		})
	}
	return Data{
		Fields:         fields,
		Markers:        rows,
		ShowPercentage: show,
		Sentence:       Sentence(res),
		Filename:       Filename(res),
	}
}
