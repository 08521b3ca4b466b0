// Package metrics exposes Prometheus instruments for the import pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "statement_import"

// Metrics groups the pipeline instruments. A nil *Metrics records nothing.
type Metrics struct {
	documents     *prometheus.CounterVec
	droppedRows   *prometheus.CounterVec
	ingestedRows  *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	gatherer      prometheus.Gatherer
}

// New registers the instruments on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Documents processed, by last stage reached and outcome.",
		}, []string{"stage", "outcome"}),
		droppedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_rows_total",
			Help:      "Rows dropped before persistence, by reason.",
		}, []string{"reason"}),
		ingestedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_rows_total",
			Help:      "Classified rows handed to the store, by result.",
		}, []string{"result"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent per pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"stage"}),
		gatherer: reg,
	}
	reg.MustRegister(m.documents, m.droppedRows, m.ingestedRows, m.stageDuration)
	return m
}

// Document counts one finished document.
func (m *Metrics) Document(stage, outcome string) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(stage, outcome).Inc()
}

// Dropped adds n dropped rows.
func (m *Metrics) Dropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.droppedRows.WithLabelValues(reason).Add(float64(n))
}

// Ingested records the outcome of one batch.
func (m *Metrics) Ingested(inserted, duplicates int) {
	if m == nil {
		return
	}
	m.ingestedRows.WithLabelValues("new").Add(float64(inserted))
	m.ingestedRows.WithLabelValues("duplicate").Add(float64(duplicates))
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
