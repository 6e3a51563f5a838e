// Package compare implements the allele matching rule and the comparison
// strategies run over the aggregated case set.
package compare

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"markercompare/internal/logging"
	"markercompare/internal/metrics"
	"markercompare/pkg/domain"
)

// CaseSource supplies the aggregated case set, in table then row order.
type CaseSource interface {
	AllCases(ctx context.Context) ([]domain.Case, error)
}

// Options configures an Engine.
type Options struct {
	Catalog domain.Catalog
	// SkipUncalled leaves markers with no value in either sample out of both
	// the match and mismatch lists. By default such markers count as matches.
	SkipUncalled bool
	Logger       *zap.Logger
	Metrics      metrics.Recorder
}

// Engine compares samples drawn from a CaseSource.
type Engine struct {
	source       CaseSource
	catalog      domain.Catalog
	skipUncalled bool
	log          *zap.Logger
	metrics      metrics.Recorder
}

// New constructs an Engine reading cases from source.
func New(source CaseSource, opts Options) *Engine {
	e := &Engine{
		source:       source,
		catalog:      opts.Catalog,
		skipUncalled: opts.SkipUncalled,
		log:          logging.OrNop(opts.Logger),
		metrics:      opts.Metrics,
	}
	if len(e.catalog) == 0 {
		e.catalog = domain.DefaultCatalog()
	}
	if e.metrics == nil {
		e.metrics = metrics.Noop{}
	}
	return e
}

// Catalog returns a copy of the marker order used for results.
func (e *Engine) Catalog() domain.Catalog { return e.catalog.Order() }

// HasMatch reports whether two allele pairs share at least one value.
func HasMatch(a, b domain.AllelePair) bool { return a.Shares(b) }

// CompareTwoSamples compares two samples marker by marker in catalog order.
// A nil sample or a sample without a marker map is ErrInvalidInput.
func (e *Engine) CompareTwoSamples(s1, s2 *domain.Sample) (domain.ComparisonResult, error) {
	if s1 == nil || s2 == nil {
		return domain.ComparisonResult{}, domain.ErrInvalidInput{Reason: "sample missing"}
	}
	if s1.Markers == nil || s2.Markers == nil {
		return domain.ComparisonResult{}, domain.ErrInvalidInput{Reason: "marker data missing for " + s1.Code + " or " + s2.Code}
	}
	res := domain.ComparisonResult{
		Sample1:    *s1,
		Sample2:    *s2,
		Matches:    []string{},
		Mismatches: []string{},
	}
	for _, m := range e.catalog {
		v1, v2 := s1.Alleles(m), s2.Alleles(m)
		if e.skipUncalled && v1.Empty() && v2.Empty() {
			continue
		}
		if HasMatch(v1, v2) {
			res.Matches = append(res.Matches, m)
		} else {
			res.Mismatches = append(res.Mismatches, m)
		}
	}
	res.Conclusion = domain.ConclusionFor(len(res.Mismatches))
	if obs, ok := e.metrics.(metrics.ConclusionObserver); ok {
		obs.ObserveConclusion(string(res.Conclusion))
	}
	e.log.Debug("compared samples",
		zap.String("sample", s1.Code),
		zap.String("other", s2.Code),
		zap.Int("matches", len(res.Matches)),
		zap.Int("mismatches", len(res.Mismatches)))
	return res, nil
}

// CompareFamily compares the reference sample of the case baseCode with every
// other sample of that case, in case order.
func (e *Engine) CompareFamily(ctx context.Context, baseCode string) (results []domain.ComparisonResult, err error) {
	defer metrics.Track(ctx, e.metrics, "compare.family")(&err)
	cases, err := e.source.AllCases(ctx)
	if err != nil {
		return nil, err
	}
	var target *domain.Case
	for i := range cases {
		if cases[i].BaseCode == baseCode {
			target = &cases[i]
			break
		}
	}
	if target == nil {
		return nil, domain.ErrNotFound{Entity: domain.EntityCase, ID: baseCode}
	}
	ref, ok := target.Reference()
	if !ok {
		return nil, domain.ErrNotFound{Entity: domain.EntityReference, ID: baseCode}
	}
	results = []domain.ComparisonResult{}
	for i := range target.Samples {
		other := &target.Samples[i]
		if other.Code == ref.Code {
			continue
		}
		res, err := e.CompareTwoSamples(&ref, other)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

// CompareSameDay compares sampleCode with every sample outside its own case.
// Blood relations sort first; the order is otherwise stable.
func (e *Engine) CompareSameDay(ctx context.Context, sampleCode string) (results []domain.ComparisonResult, err error) {
	defer metrics.Track(ctx, e.metrics, "compare.same_day")(&err)
	return e.compareAgainst(ctx, sampleCode, func(target, other domain.Sample) bool {
		return other.BaseCode() != target.BaseCode()
	})
}

// CompareAllDatabase compares sampleCode with every other stored sample,
// including the rest of its own case.
func (e *Engine) CompareAllDatabase(ctx context.Context, sampleCode string) (results []domain.ComparisonResult, err error) {
	defer metrics.Track(ctx, e.metrics, "compare.all")(&err)
	return e.compareAgainst(ctx, sampleCode, func(target, other domain.Sample) bool {
		return other.Code != target.Code
	})
}

// CompareSamples compares two samples looked up by exact code.
func (e *Engine) CompareSamples(ctx context.Context, code1, code2 string) (results []domain.ComparisonResult, err error) {
	defer metrics.Track(ctx, e.metrics, "compare.two")(&err)
	cases, err := e.source.AllCases(ctx)
	if err != nil {
		return nil, err
	}
	s1, ok := findSample(cases, code1)
	if !ok {
		return nil, domain.ErrNotFound{Entity: domain.EntitySample, ID: code1}
	}
	s2, ok := findSample(cases, code2)
	if !ok {
		return nil, domain.ErrNotFound{Entity: domain.EntitySample, ID: code2}
	}
	res, err := e.CompareTwoSamples(&s1, &s2)
	if err != nil {
		return nil, err
	}
	return []domain.ComparisonResult{res}, nil
}

func (e *Engine) compareAgainst(ctx context.Context, sampleCode string, include func(target, other domain.Sample) bool) ([]domain.ComparisonResult, error) {
	cases, err := e.source.AllCases(ctx)
	if err != nil {
		return nil, err
	}
	target, ok := findSample(cases, sampleCode)
	if !ok {
		return nil, domain.ErrNotFound{Entity: domain.EntitySample, ID: sampleCode}
	}
	results := []domain.ComparisonResult{}
	for _, c := range cases {
		for i := range c.Samples {
			other := &c.Samples[i]
			if !include(target, *other) {
				continue
			}
			res, err := e.CompareTwoSamples(&target, other)
			if err != nil {
				return nil, err
			}
			results = append(results, res)
		}
	}
	SortRelatedFirst(results)
	return results, nil
}

// SortRelatedFirst moves blood-relation results ahead of the rest, keeping
// the relative order within each group.
func SortRelatedFirst(results []domain.ComparisonResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Related() && !results[j].Related()
	})
}

// findSample returns the first sample with exact code in table order.
func findSample(cases []domain.Case, code string) (domain.Sample, bool) {
	for _, c := range cases {
		if s, ok := c.Sample(code); ok {
			return s, true
		}
	}
	return domain.Sample{}, false
}
