package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPipeline(reg)

	m.ItemsFetched.WithLabelValues("congress").Add(3)
	m.ThreadsPublished.WithLabelValues("congress").Inc()
	m.ThreadFailures.WithLabelValues("congress", "publish").Inc()
	m.RunDuration.WithLabelValues("congress").Observe(2.5)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.ItemsFetched.WithLabelValues("congress")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ThreadFailures.WithLabelValues("congress", "publish")))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `brinet_threads_published_total{source="congress"} 1`)
	assert.Contains(t, string(body), `brinet_run_duration_seconds_count{source="congress"} 1`)
}
