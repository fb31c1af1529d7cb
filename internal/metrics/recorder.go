// Package metrics records render, serve, rebuild and publish activity.
//
// Components receive a Recorder through their constructor and default to
// NoopRecorder, so nothing needs a nil check. PrometheusRecorder is swapped
// in by the serve and build commands when metrics are enabled.
package metrics

import "time"

// ServeOutcome labels how the dev asset handler finished a request.
type ServeOutcome string

const (
	ServeRendered    ServeOutcome = "rendered"
	ServeOriginal    ServeOutcome = "original"
	ServeNotModified ServeOutcome = "not_modified"
	ServeDelegated   ServeOutcome = "delegated"
	ServeFailed      ServeOutcome = "failed"
)

// Recorder defines observability hooks for the asset pipeline.
type Recorder interface {
	ObserveRender(scale int, optimized bool, d time.Duration, err error)
	IncServe(outcome ServeOutcome)
	IncRebuild(err error)
	ObservePublish(artifacts int, d time.Duration)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveRender(int, bool, time.Duration, error) {}
func (NoopRecorder) IncServe(ServeOutcome) {}
func (NoopRecorder) IncRebuild(error) {}
func (NoopRecorder) ObservePublish(int, time.Duration) {}

// OrNoop returns r, or NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
