// Package metrics records build and editor activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "blog"

// Outcome labels a finished build.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// Recorder holds the metrics of one process. A nil Recorder records nothing.
type Recorder struct {
	reg           *prom.Registry
	buildDuration prom.Histogram
	builds        *prom.CounterVec
	pages         prom.Counter
	cmsActions    *prom.CounterVec
}

// NewRecorder constructs the metrics and registers them with reg. A nil reg
// gets a fresh registry.
func NewRecorder(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &Recorder{
		reg: reg,
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		}),
		builds: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "builds_total",
			Help:      "Builds by outcome",
		}, []string{"outcome"}),
		pages: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "pages_rendered_total",
			Help:      "Pages written to the output directory",
		}),
		cmsActions: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cms_actions_total",
			Help:      "Content editor writes by action",
		}, []string{"action"}),
	}
	reg.MustRegister(r.buildDuration, r.builds, r.pages, r.cmsActions)
	return r
}

// Registry returns the registry the metrics live in.
func (r *Recorder) Registry() *prom.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// ObserveBuild records one finished build.
func (r *Recorder) ObserveBuild(d time.Duration, outcome Outcome) {
	if r == nil {
		return
	}
	r.buildDuration.Observe(d.Seconds())
	r.builds.WithLabelValues(string(outcome)).Inc()
}

// AddPages counts rendered pages.
func (r *Recorder) AddPages(n int) {
	if r == nil {
		return
	}
	r.pages.Add(float64(n))
}

// IncCMSAction counts an editor write such as "save", "publish" or "delete".
func (r *Recorder) IncCMSAction(action string) {
	if r == nil {
		return
	}
	r.cmsActions.WithLabelValues(action).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.Registry(), promhttp.HandlerOpts{EnableOpenMetrics: true})
}
