package pipeline

import (
	"errors"
	"time"

	"github.com/fortuna/pythia/internal/store"
)

// Stage names, in run order.
const (
	StageSchedule  = "schedule"
	StageLines     = "lines"
	StageFavorites = "favorites"
	StageVenues    = "venues"
	StageWeather   = "weather"
	StageInjuries  = "injuries"
	StageReferees  = "referees"
	StagePredict   = "predict"
	StagePublish   = "publish"
)

// Stage and run statuses.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// ErrRunInProgress is returned when a run is triggered while another is active.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// StageReport is one stage's outcome.
type StageReport struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	DurationMs int64  `json:"duration_ms"`
	Count      int    `json:"count"`
	Error      string `json:"error,omitempty"`
}

// Report summarizes one run.
type Report struct {
	RunID       string         `json:"run_id"`
	Status      string         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Leagues     []string       `json:"leagues"`
	Stages      []*StageReport `json:"stages"`
	Games       int            `json:"games"`
	Predictions int            `json:"predictions"`
}

// Stage returns the named stage report, or nil.
func (r *Report) Stage(name string) *StageReport {
	for _, s := range r.Stages {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// finish derives the run status: failed when scheduling failed, partial when
// any stage failed or degraded.
func (r *Report) finish(at time.Time) {
	r.FinishedAt = at
	r.Status = StatusOK
	for _, s := range r.Stages {
		switch {
		case s.Name == StageSchedule && s.Status == StatusFailed:
			r.Status = StatusFailed
			return
		case s.Status == StatusFailed || s.Status == StatusPartial:
			r.Status = StatusPartial
		}
	}
}

// Slate is the output of the latest run.
type Slate struct {
	Report        *Report              `json:"report"`
	Games         []*store.Game        `json:"games"`
	Predictions   []*store.Prediction  `json:"predictions"`
	RefereeTrends []store.RefereeTrend `json:"referee_trends,omitempty"`
}

// Prediction returns the prediction for gameID, or nil.
func (s *Slate) Prediction(gameID string) *store.Prediction {
	if s == nil {
		return nil
	}
	for _, p := range s.Predictions {
		if p.GameID == gameID {
			return p
		}
	}
	return nil
}
