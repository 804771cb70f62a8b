// Package telemetry exports Prometheus metrics for fabric evaluation.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"intertexe/backend/internal/fabric"
)

// Metrics holds the evaluation counters and histograms.
type Metrics struct {
	registry *prometheus.Registry

	Evaluations        *prometheus.CounterVec
	Classifications    *prometheus.CounterVec
	UnparsedSegments   prometheus.Counter
	EvaluationDuration prometheus.Histogram
	ReevaluationJobs   *prometheus.CounterVec
	ProductsImported   *prometheus.CounterVec
}

// New registers the metrics on a fresh registry so tests can create as many as they need.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fabric_evaluations_total",
			Help: "Compositions evaluated, by verdict",
		}, []string{"verdict"}),
		Classifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fabric_fiber_classifications_total",
			Help: "Fiber entries classified, by category",
		}, []string{"category"}),
		UnparsedSegments: factory.NewCounter(prometheus.CounterOpts{
			Name: "fabric_unparsed_segments_total",
			Help: "Composition text segments dropped by the parser",
		}),
		EvaluationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fabric_evaluation_duration_seconds",
			Help:    "Time to parse and evaluate one composition",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		ReevaluationJobs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_reevaluation_jobs_total",
			Help: "Catalog re-evaluation jobs, by final status",
		}, []string{"status"}),
		ProductsImported: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_products_imported_total",
			Help: "CSV rows processed during imports, by outcome",
		}, []string{"outcome"}),
	}
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordEvaluation counts a verdict together with the categories of its entries.
func (m *Metrics) RecordEvaluation(table *fabric.Table, c fabric.Composition, e fabric.Evaluation, took time.Duration) {
	if m == nil {
		return
	}
	verdict := "rejected"
	if e.Approved {
		verdict = "approved"
	}
	m.Evaluations.WithLabelValues(verdict).Inc()
	for _, entry := range c.Compositions {
		m.Classifications.WithLabelValues(string(table.Classify(entry.Fiber))).Inc()
	}
	m.EvaluationDuration.Observe(took.Seconds())
}

// RecordUnparsed counts segments dropped by the parser.
func (m *Metrics) RecordUnparsed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.UnparsedSegments.Add(float64(n))
}

// RecordJob counts a finished re-evaluation job.
func (m *Metrics) RecordJob(status string) {
	if m == nil {
		return
	}
	m.ReevaluationJobs.WithLabelValues(status).Inc()
}

// RecordImport counts processed CSV rows.
func (m *Metrics) RecordImport(imported, skipped int) {
	if m == nil {
		return
	}
	m.ProductsImported.WithLabelValues("imported").Add(float64(imported))
	m.ProductsImported.WithLabelValues("skipped").Add(float64(skipped))
}
