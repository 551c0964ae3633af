package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	r := NewRecorder(reg)

	r.ObserveBuild(150*time.Millisecond, OutcomeSuccess)
	r.ObserveBuild(20*time.Millisecond, OutcomeFailed)
	r.ObserveBuild(30*time.Millisecond, OutcomeSuccess)
	r.AddPages(7)
	r.IncCMSAction("publish")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	families := make(map[string]*dto.MetricFamily, len(mfs))
	for _, mf := range mfs {
		families[mf.GetName()] = mf
	}

	builds := families["blog_builds_total"]
	require.NotNil(t, builds)
	byOutcome := map[string]float64{}
	for _, m := range builds.GetMetric() {
		byOutcome[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{"success": 2, "failed": 1}, byOutcome)

	require.NotNil(t, families["blog_pages_rendered_total"])
	assert.Equal(t, 7.0, families["blog_pages_rendered_total"].GetMetric()[0].GetCounter().GetValue())

	require.NotNil(t, families["blog_build_duration_seconds"])
	assert.Equal(t, uint64(3), families["blog_build_duration_seconds"].GetMetric()[0].GetHistogram().GetSampleCount())

	require.NotNil(t, families["blog_cms_actions_total"])
	assert.Equal(t, 1.0, families["blog_cms_actions_total"].GetMetric()[0].GetCounter().GetValue())
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveBuild(time.Second, OutcomeSuccess)
		r.AddPages(1)
		r.IncCMSAction("save")
	})
	assert.Nil(t, r.Registry())
}

func TestHandler(t *testing.T) {
	r := NewRecorder(nil)
	r.AddPages(3)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "blog_pages_rendered_total 3"))
}
