package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns the pythia Prometheus registry. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	providerRequests *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	stageDuration    *prometheus.HistogramVec
	runs             *prometheus.CounterVec
	predictions      *prometheus.CounterVec
	wsClients        prometheus.Gauge
}

// NewRecorder registers all collectors on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pythia",
			Name:      "provider_requests_total",
			Help:      "Upstream HTTP attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pythia",
			Name:      "provider_request_seconds",
			Help:      "Upstream HTTP attempt latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pythia",
			Name:      "pipeline_stage_seconds",
			Help:      "Pipeline stage wall time.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pythia",
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by final status.",
		}, []string{"status"}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pythia",
			Name:      "predictions_total",
			Help:      "Predictions generated by league.",
		}, []string{"sport"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pythia",
			Name:      "ws_clients",
			Help:      "Connected WebSocket clients.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.providerRequests, r.providerLatency, r.stageDuration,
		r.runs, r.predictions, r.wsClients,
	)
	return r
}

// Outcome classifies an attempt error into a low-cardinality label.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var classifier interface{ MetricOutcome() string }
	if errors.As(err, &classifier) {
		return classifier.MetricOutcome()
	}
	return "error"
}

// RecordProviderAttempt counts one upstream attempt.
func (r *Recorder) RecordProviderAttempt(provider string, d time.Duration, err error) {
	if r == nil {
		return
	}
	r.providerRequests.WithLabelValues(provider, Outcome(err)).Inc()
	r.providerLatency.WithLabelValues(provider).Observe(d.Seconds())
}

// ObserveStage records a pipeline stage duration.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordRun counts a finished pipeline run.
func (r *Recorder) RecordRun(status string) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(status).Inc()
}

// AddPredictions counts generated predictions for a league.
func (r *Recorder) AddPredictions(sport string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.predictions.WithLabelValues(sport).Add(float64(n))
}

// SetWSClients reports the connected WebSocket client count.
func (r *Recorder) SetWSClients(n int) {
	if r == nil {
		return
	}
	r.wsClients.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
