package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type classified struct{}

func (classified) Error() string         { return "rate limited" }
func (classified) MetricOutcome() string { return "rate_limited" }

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "error", Outcome(errors.New("boom")))
	assert.Equal(t, "rate_limited", Outcome(classified{}))
}

func TestRecorderCounts(t *testing.T) {
	r := NewRecorder()
	r.RecordProviderAttempt("espn", 20*time.Millisecond, nil)
	r.RecordProviderAttempt("espn", 10*time.Millisecond, classified{})
	r.RecordRun("ok")
	r.AddPredictions("nfl", 12)
	r.SetWSClients(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.providerRequests.WithLabelValues("espn", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.providerRequests.WithLabelValues("espn", "rate_limited")))
	assert.Equal(t, 12.0, testutil.ToFloat64(r.predictions.WithLabelValues("nfl")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.wsClients))
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.RecordProviderAttempt("x", time.Second, nil)
	r.ObserveStage("schedule", time.Second)
	r.RecordRun("failed")
	r.AddPredictions("nba", 1)
	r.SetWSClients(1)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := NewRecorder()
	r.ObserveStage("weather", 2*time.Second)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "pythia_pipeline_stage_seconds"))
}
