package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordIngest(t *testing.T) {
	m := New()
	m.RecordIngest(2, 1)
	m.RecordIngest(3, 0)

	assert.InDelta(t, 2.0, testutil.ToFloat64(m.UploadsIngested), 0.001)
	assert.InDelta(t, 5.0, testutil.ToFloat64(m.RowsAccepted), 0.001)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.RowsRejected), 0.001)
}

func TestRecordProcess(t *testing.T) {
	m := New()
	m.RecordProcess("completed", 20*time.Millisecond)
	m.RecordProcess("rejected", 0)

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.ProcessRuns.WithLabelValues("completed")), 0.001)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.ProcessRuns.WithLabelValues("rejected")), 0.001)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordIngest(1, 1)
	m.RecordProcess("failed", time.Second)
	m.RecordClientScored()
	m.RecordCache(true)
	m.RecordHTTP("GET", "/health", "200", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.RecordCache(false)
	m.RecordHTTP("POST", "/api/uploads", "201", 5*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "analyzer_export_cache_misses_total 1")
	assert.Contains(t, string(body), `http_requests_total{method="POST",route="/api/uploads",status="201"} 1`)
}

func TestNewIsolatedRegistries(t *testing.T) {
	// Each instance owns its registry, so constructing twice must not panic.
	a, b := New(), New()
	a.RecordClientScored()
	assert.InDelta(t, 0.0, testutil.ToFloat64(b.ClientsScored), 0.001)
}
