// Package metrics exposes Prometheus instruments for the import pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// rowsParsed tracks raw rows produced by each format parser.
	rowsParsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_import_rows_parsed_total",
		Help: "Total number of raw rows parsed by source format",
	}, []string{"format"})

	// rowErrors tracks row-local failures by pipeline stage.
	rowErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_import_row_errors_total",
		Help: "Total number of row-local errors by stage",
	}, []string{"stage"}) // stage: parse, normalize, validate, reconcile

	// classifications tracks reconciliation outcomes.
	classifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_import_classifications_total",
		Help: "Total number of reconciled products by classification",
	}, []string{"kind"}) // kind: new, update, conflict, error, unchanged

	// coercionWarnings tracks numeric cells that failed to parse and defaulted.
	coercionWarnings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_import_coercion_warnings_total",
		Help: "Total number of numeric fields defaulted after a failed parse",
	}, []string{"field"})

	// importDuration tracks end-to-end import analysis time.
	importDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_import_duration_seconds",
		Help:    "Time taken to analyze one import by format",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"format"})

	// importsFailed tracks batch-fatal import failures.
	importsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_import_failures_total",
		Help: "Total number of imports rejected as a whole by format",
	}, []string{"format"})

	// scrapeFetches tracks product page downloads.
	scrapeFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_import_scrape_fetches_total",
		Help: "Total number of product page fetches by outcome",
	}, []string{"outcome"}) // outcome: ok, error
)

// Recorder records pipeline metrics. The zero value is ready to use.
type Recorder struct{}

// NewRecorder creates a new metrics recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordRowsParsed records rows produced by a parser.
func (r *Recorder) RecordRowsParsed(format string, n int) {
	rowsParsed.WithLabelValues(format).Add(float64(n))
}

// RecordRowErrors records row-local errors for a stage.
func (r *Recorder) RecordRowErrors(stage string, n int) {
	if n > 0 {
		rowErrors.WithLabelValues(stage).Add(float64(n))
	}
}

// RecordClassifications records the counts of one preview.
func (r *Recorder) RecordClassifications(newCount, updates, conflicts, errs, unchanged int) {
	classifications.WithLabelValues("new").Add(float64(newCount))
	classifications.WithLabelValues("update").Add(float64(updates))
	classifications.WithLabelValues("conflict").Add(float64(conflicts))
	classifications.WithLabelValues("error").Add(float64(errs))
	classifications.WithLabelValues("unchanged").Add(float64(unchanged))
}

// RecordCoercionWarning records a defaulted numeric field.
func (r *Recorder) RecordCoercionWarning(field string) {
	coercionWarnings.WithLabelValues(field).Inc()
}

// RecordImport records the outcome and duration of an import analysis.
func (r *Recorder) RecordImport(format string, duration time.Duration, success bool) {
	importDuration.WithLabelValues(format).Observe(duration.Seconds())
	if !success {
		importsFailed.WithLabelValues(format).Inc()
	}
}

// RecordScrapeFetch records a product page download.
func (r *Recorder) RecordScrapeFetch(success bool) {
	outcome := "ok"
	if !success {
		outcome = "error"
	}
	scrapeFetches.WithLabelValues(outcome).Inc()
}
