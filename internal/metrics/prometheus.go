package metrics

import (
	"io"
	"net/http"
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg             *prom.Registry
	renderDuration  *prom.HistogramVec
	renderResults   *prom.CounterVec
	serveResults    *prom.CounterVec
	rebuildResults  *prom.CounterVec
	publishDuration prom.Histogram
	publishedAssets prom.Counter
}

// NewPrometheusRecorder constructs the collectors and registers them on reg.
// A nil reg gets a fresh registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		reg: reg,
		renderDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "svgrender",
			Name:      "render_duration_seconds",
			Help:      "Duration of SVG to PNG renders",
			Buckets:   prom.DefBuckets,
		}, []string{"scale", "optimized"}),
		renderResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "svgrender",
			Name:      "render_results_total",
			Help:      "Render results by outcome",
		}, []string{"result"}),
		serveResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "svgrender",
			Name:      "serve_results_total",
			Help:      "Dev asset requests by outcome",
		}, []string{"outcome"}),
		rebuildResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "svgrender",
			Name:      "catalog_rebuilds_total",
			Help:      "Catalog rebuilds triggered by file changes",
		}, []string{"result"}),
		publishDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "svgrender",
			Name:      "publish_duration_seconds",
			Help:      "Duration of the publish step",
			Buckets:   prom.DefBuckets,
		}),
		publishedAssets: prom.NewCounter(prom.CounterOpts{
			Namespace: "svgrender",
			Name:      "published_artifacts_total",
			Help:      "Artifacts emitted by the publish step",
		}),
	}
	reg.MustRegister(pr.renderDuration, pr.renderResults, pr.serveResults,
		pr.rebuildResults, pr.publishDuration, pr.publishedAssets)
	return pr
}

func resultLabel(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}

func (p *PrometheusRecorder) ObserveRender(scale int, optimized bool, d time.Duration, err error) {
	p.renderDuration.WithLabelValues(strconv.Itoa(scale), strconv.FormatBool(optimized)).Observe(d.Seconds())
	p.renderResults.WithLabelValues(resultLabel(err)).Inc()
}

func (p *PrometheusRecorder) IncServe(outcome ServeOutcome) {
	p.serveResults.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncRebuild(err error) {
	p.rebuildResults.WithLabelValues(resultLabel(err)).Inc()
}

func (p *PrometheusRecorder) ObservePublish(artifacts int, d time.Duration) {
	p.publishDuration.Observe(d.Seconds())
	p.publishedAssets.Add(float64(artifacts))
}

// Handler serves the recorder's registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// WriteText writes the current values in the text exposition format.
func (p *PrometheusRecorder) WriteText(w io.Writer) error {
	families, err := p.reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
