package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := New()

	m.Document("ingest", "ok")
	m.Document("detect", "failed")
	m.Dropped("parse", 3)
	m.Dropped("parse", 0)
	m.Ingested(4, 1)
	m.ObserveStage("extract", 20*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.documents.WithLabelValues("ingest", "ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.droppedRows.WithLabelValues("parse")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ingestedRows.WithLabelValues("new")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ingestedRows.WithLabelValues("duplicate")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "statement_import_stage_duration_seconds")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Document("detect", "ok")
		m.Dropped("parse", 1)
		m.Ingested(1, 1)
		m.ObserveStage("detect", time.Second)
	})
}
