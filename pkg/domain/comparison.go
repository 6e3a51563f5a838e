package domain

// Conclusion is the binary outcome of a pairwise comparison.
type Conclusion string

const (
	// ConclusionBloodRelation asserts a blood relation between the samples.
	ConclusionBloodRelation Conclusion = "Blood Relation"
	// ConclusionNoBloodRelation rejects a blood relation.
	ConclusionNoBloodRelation Conclusion = "No Blood Relation"
)

// MaxToleratedMismatches is the number of mismatching markers still accepted
// as a blood relation (one mutation allowance).
const MaxToleratedMismatches = 1

// PlaceholderConfidence is the fixed probability printed on positive reports.
const PlaceholderConfidence = "99.99999999999999"

// ComparisonResult is the per-marker outcome of comparing two samples.
// Matches and Mismatches follow catalog order.
type ComparisonResult struct {
	Sample1    Sample     `json:"sample1"`
	Sample2    Sample     `json:"sample2"`
	Matches    []string   `json:"matches"`
	Mismatches []string   `json:"mismatches"`
	Conclusion Conclusion `json:"conclusion"`
}

// Related reports whether the result concludes a blood relation.
func (r ComparisonResult) Related() bool { return r.Conclusion == ConclusionBloodRelation }

// ConclusionFor applies the mismatch threshold.
func ConclusionFor(mismatches int) Conclusion {
	if mismatches <= MaxToleratedMismatches {
		return ConclusionBloodRelation
	}
	return ConclusionNoBloodRelation
}
