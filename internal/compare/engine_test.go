package compare

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markercompare/internal/metrics"
	"markercompare/pkg/domain"
)

type staticSource struct {
	cases []domain.Case
	err   error
	calls int
}

func (s *staticSource) AllCases(context.Context) ([]domain.Case, error) {
	s.calls++
	return s.cases, s.err
}

// full returns a sample with every catalog marker set to pair, except the
// overrides.
func full(code string, pair domain.AllelePair, overrides map[string]domain.AllelePair) domain.Sample {
	markers := map[string]domain.AllelePair{}
	for _, m := range domain.DefaultCatalog() {
		markers[m] = pair
	}
	for m, p := range overrides {
		markers[m] = p
	}
	return domain.Sample{Code: code, Name: "N " + code, Markers: markers}
}

func fixture() *staticSource {
	return &staticSource{cases: []domain.Case{
		{BaseCode: "V2445", Samples: []domain.Sample{
			full("V2445A", domain.AllelePair{"10", "11"}, nil),
			full("V2445B", domain.AllelePair{"11", "12"}, map[string]domain.AllelePair{"FGA": {"30", "31"}}),
		}},
		{BaseCode: "V2446", Samples: []domain.Sample{
			full("V2446A", domain.AllelePair{"20", "21"}, nil),
			full("V2446B", domain.AllelePair{"10", "12"}, nil),
		}},
		{BaseCode: "T2401", Samples: []domain.Sample{
			full("T2401B", domain.AllelePair{"1", "2"}, nil),
		}},
	}}
}

func TestHasMatchIsSymmetric(t *testing.T) {
	pairs := []domain.AllelePair{
		{"10", "11"}, {"11", "12"}, {"", ""}, {"10", ""}, {"X", "Y"}, {"12", "12"},
	}
	for _, a := range pairs {
		for _, b := range pairs {
			assert.Equal(t, HasMatch(a, b), HasMatch(b, a), "%v %v", a, b)
		}
	}
	assert.True(t, HasMatch(domain.AllelePair{"9.3", "10"}, domain.AllelePair{"10", "7"}))
	assert.False(t, HasMatch(domain.AllelePair{"9.3", "10"}, domain.AllelePair{"9", "11"}))
}

func TestCompareTwoSamplesThreshold(t *testing.T) {
	e := New(nil, Options{})
	a := full("V2401A", domain.AllelePair{"10", "11"}, nil)

	one := full("V2401B", domain.AllelePair{"11", "12"}, map[string]domain.AllelePair{"TPOX": {"5", "6"}})
	res, err := e.CompareTwoSamples(&a, &one)
	require.NoError(t, err)
	assert.Equal(t, []string{"TPOX"}, res.Mismatches)
	assert.Len(t, res.Matches, 24)
	assert.Equal(t, domain.ConclusionBloodRelation, res.Conclusion)

	two := full("V2401C", domain.AllelePair{"11", "12"}, map[string]domain.AllelePair{"TPOX": {"5", "6"}, "vWA": {"1", "2"}})
	res, err = e.CompareTwoSamples(&a, &two)
	require.NoError(t, err)
	assert.Equal(t, []string{"vWA", "TPOX"}, res.Mismatches, "catalog order")
	assert.Equal(t, domain.ConclusionNoBloodRelation, res.Conclusion)
}

func TestCompareTwoSamplesAbsentMarkers(t *testing.T) {
	a := domain.Sample{Code: "V2401A", Markers: map[string]domain.AllelePair{"vWA": {"16", "17"}}}
	b := domain.Sample{Code: "V2401B", Markers: map[string]domain.AllelePair{"vWA": {"17", "18"}}}

	res, err := New(nil, Options{}).CompareTwoSamples(&a, &b)
	require.NoError(t, err)
	assert.Len(t, res.Matches, 25)
	assert.Empty(t, res.Mismatches)
	assert.NotNil(t, res.Mismatches)

	res, err = New(nil, Options{SkipUncalled: true}).CompareTwoSamples(&a, &b)
	require.NoError(t, err)
	assert.Equal(t, []string{"vWA"}, res.Matches)
	assert.Empty(t, res.Mismatches)

	c := domain.Sample{Code: "V2401C", Markers: map[string]domain.AllelePair{}}
	res, err = New(nil, Options{SkipUncalled: true}).CompareTwoSamples(&a, &c)
	require.NoError(t, err)
	assert.Equal(t, []string{"vWA"}, res.Mismatches)
}

func TestCompareTwoSamplesInvalidInput(t *testing.T) {
	e := New(nil, Options{})
	ok := domain.Sample{Code: "V2401A", Markers: map[string]domain.AllelePair{}}
	noMarkers := domain.Sample{Code: "V2401B"}

	_, err := e.CompareTwoSamples(nil, &ok)
	assert.True(t, domain.IsInvalidInput(err))
	_, err = e.CompareTwoSamples(&ok, nil)
	assert.True(t, domain.IsInvalidInput(err))
	_, err = e.CompareTwoSamples(&ok, &noMarkers)
	assert.True(t, domain.IsInvalidInput(err))
}

func TestCompareTwoSamplesCustomCatalog(t *testing.T) {
	e := New(nil, Options{Catalog: domain.Catalog{"M2", "M1"}})
	a := domain.Sample{Code: "A", Markers: map[string]domain.AllelePair{"M1": {"1", "2"}, "M2": {"3", "4"}}}
	b := domain.Sample{Code: "B", Markers: map[string]domain.AllelePair{"M1": {"5", "6"}, "M2": {"7", "8"}}}
	res, err := e.CompareTwoSamples(&a, &b)
	require.NoError(t, err)
	assert.Equal(t, []string{"M2", "M1"}, res.Mismatches)
	assert.Equal(t, domain.Catalog{"M2", "M1"}, e.Catalog())
}

func TestCompareFamily(t *testing.T) {
	e := New(fixture(), Options{})
	results, err := e.CompareFamily(context.Background(), "V2445")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "V2445A", results[0].Sample1.Code)
	assert.Equal(t, "V2445B", results[0].Sample2.Code)
	assert.Equal(t, domain.ConclusionBloodRelation, results[0].Conclusion)
	assert.Equal(t, []string{"FGA"}, results[0].Mismatches)
}

func TestCompareFamilyNotFound(t *testing.T) {
	e := New(fixture(), Options{})
	_, err := e.CompareFamily(context.Background(), "V9999")
	var nf domain.ErrNotFound
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, domain.EntityCase, nf.Entity)

	_, err = e.CompareFamily(context.Background(), "T2401")
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, domain.EntityReference, nf.Entity)
}

func TestCompareSameDayExcludesOwnCase(t *testing.T) {
	e := New(fixture(), Options{})
	results, err := e.CompareSameDay(context.Background(), "V2445A")
	require.NoError(t, err)
	var others []string
	for _, r := range results {
		assert.Equal(t, "V2445A", r.Sample1.Code)
		others = append(others, r.Sample2.Code)
	}
	// V2446B shares an allele at every marker, the rest share none
	assert.Equal(t, []string{"V2446B", "V2446A", "T2401B"}, others)
	assert.True(t, results[0].Related())
	assert.False(t, results[1].Related())
}

func TestCompareAllDatabaseIncludesOwnCase(t *testing.T) {
	e := New(fixture(), Options{})
	results, err := e.CompareAllDatabase(context.Background(), "V2445A")
	require.NoError(t, err)
	var others []string
	for _, r := range results {
		others = append(others, r.Sample2.Code)
	}
	assert.Equal(t, []string{"V2445B", "V2446B", "V2446A", "T2401B"}, others)
}

func TestCompareSamples(t *testing.T) {
	e := New(fixture(), Options{})
	results, err := e.CompareSamples(context.Background(), "V2445A", "V2446B")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Related())

	_, err = e.CompareSamples(context.Background(), "V2445A", "X9999Z")
	var nf domain.ErrNotFound
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, domain.ErrNotFound{Entity: domain.EntitySample, ID: "X9999Z"}, nf)
}

func TestStrategiesUnknownSample(t *testing.T) {
	e := New(fixture(), Options{})
	_, err := e.CompareSameDay(context.Background(), "V2445")
	assert.True(t, domain.IsNotFound(err))
	_, err = e.CompareAllDatabase(context.Background(), "Z0000Z")
	assert.True(t, domain.IsNotFound(err))
}

func TestStrategiesPropagateSourceErrors(t *testing.T) {
	boom := errors.New("store offline")
	e := New(&staticSource{err: boom}, Options{})
	ctx := context.Background()
	_, err := e.CompareFamily(ctx, "V2445")
	assert.ErrorIs(t, err, boom)
	_, err = e.CompareSameDay(ctx, "V2445A")
	assert.ErrorIs(t, err, boom)
	_, err = e.CompareAllDatabase(ctx, "V2445A")
	assert.ErrorIs(t, err, boom)
	_, err = e.CompareSamples(ctx, "V2445A", "V2445B")
	assert.ErrorIs(t, err, boom)
}

func TestSortRelatedFirstIsStable(t *testing.T) {
	mk := func(code string, c domain.Conclusion) domain.ComparisonResult {
		return domain.ComparisonResult{Sample2: domain.Sample{Code: code}, Conclusion: c}
	}
	results := []domain.ComparisonResult{
		mk("a", domain.ConclusionNoBloodRelation),
		mk("b", domain.ConclusionBloodRelation),
		mk("c", domain.ConclusionNoBloodRelation),
		mk("d", domain.ConclusionBloodRelation),
	}
	SortRelatedFirst(results)
	var got []string
	for _, r := range results {
		got = append(got, r.Sample2.Code)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, got)
}

func TestEngineRecordsMetrics(t *testing.T) {
	rec := metrics.NewPrometheus("")
	e := New(fixture(), Options{Metrics: rec})
	_, err := e.CompareFamily(context.Background(), "V2445")
	require.NoError(t, err)
	_, err = e.CompareFamily(context.Background(), "V0000")
	require.Error(t, err)

	count, err := testutil.GatherAndCount(rec.Registry(), "markercompare_comparisons_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	count, err = testutil.GatherAndCount(rec.Registry(), "markercompare_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
