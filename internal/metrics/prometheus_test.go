package metrics

import (
	"bytes"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorderCounts(t *testing.T) {
	pr := NewPrometheusRecorder(prom.NewRegistry())

	pr.ObserveRender(2, false, 5*time.Millisecond, nil)
	pr.ObserveRender(1, true, time.Millisecond, errors.New("boom"))
	pr.IncServe(ServeRendered)
	pr.IncServe(ServeNotModified)
	pr.IncServe(ServeNotModified)
	pr.IncRebuild(nil)
	pr.ObservePublish(6, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(pr.renderResults.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pr.renderResults.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(pr.serveResults.WithLabelValues(string(ServeNotModified))))
	assert.Equal(t, 1.0, testutil.ToFloat64(pr.rebuildResults.WithLabelValues("success")))
	assert.Equal(t, 6.0, testutil.ToFloat64(pr.publishedAssets))
}

func TestPrometheusHandler(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	pr.IncServe(ServeDelegated)

	rec := httptest.NewRecorder()
	pr.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "svgrender_serve_results_total")
}

func TestOrNoop(t *testing.T) {
	assert.Equal(t, NoopRecorder{}, OrNoop(nil))
	pr := NewPrometheusRecorder(nil)
	assert.Same(t, pr, OrNoop(pr))
}

func TestWriteText(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	pr.ObservePublish(3, 10*time.Millisecond)

	var buf bytes.Buffer
	require.NoError(t, pr.WriteText(&buf))
	assert.Contains(t, buf.String(), "svgrender_published_artifacts_total 3")
	assert.Contains(t, buf.String(), "# TYPE svgrender_publish_duration_seconds histogram")
}
