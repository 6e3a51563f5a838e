// Package metrics records operation outcomes for the ingest, repository and
// comparison services.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder observes the outcome and duration of a named operation.
type Recorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Noop discards every observation.
type Noop struct{}

// Observe implements Recorder.
func (Noop) Observe(context.Context, string, bool, time.Duration) {}

// Prometheus publishes operation metrics on its own registry.
type Prometheus struct {
	registry    *prometheus.Registry
	durations   *prometheus.HistogramVec
	results     *prometheus.CounterVec
	conclusions *prometheus.CounterVec
}

// NewPrometheus builds a recorder whose collectors live on a fresh registry
// under the given namespace (default "markercompare").
func NewPrometheus(namespace string) *Prometheus {
	if namespace == "" {
		namespace = "markercompare"
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Prometheus{
		registry: reg,
		durations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of service operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		results: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Service operations by outcome.",
		}, []string{"operation", "status"}),
		conclusions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comparisons_total",
			Help:      "Pairwise comparisons by conclusion.",
		}, []string{"conclusion"}),
	}
}

// Observe implements Recorder.
func (p *Prometheus) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	p.durations.WithLabelValues(operation).Observe(duration.Seconds())
	p.results.WithLabelValues(operation, status).Inc()
}

// ObserveConclusion counts one pairwise comparison outcome.
func (p *Prometheus) ObserveConclusion(conclusion string) {
	p.conclusions.WithLabelValues(conclusion).Inc()
}

// Registry exposes the underlying registry for tests and extra collectors.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// ConclusionObserver is implemented by recorders that also count comparison
// conclusions.
type ConclusionObserver interface {
	ObserveConclusion(conclusion string)
}

// Track returns a func that records operation with the elapsed time since
// Track was called. Pass a pointer to the named error result.
//
//	defer metrics.Track(ctx, rec, "compare.family")(&err)
func Track(ctx context.Context, rec Recorder, operation string) func(*error) {
	start := time.Now()
	return func(errp *error) {
		if rec == nil {
			return
		}
		ok := errp == nil || *errp == nil
		rec.Observe(ctx, operation, ok, time.Since(start))
	}
}
