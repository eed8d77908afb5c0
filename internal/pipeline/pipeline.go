// Package pipeline runs the slate end to end: schedule, lines, favorites,
// venues, weather, injuries, referees, predictions and publishing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fortuna/pythia/internal/ingest/espn"
	"github.com/fortuna/pythia/internal/ingest/odds"
	"github.com/fortuna/pythia/internal/ingest/weather"
	"github.com/fortuna/pythia/internal/league"
	"github.com/fortuna/pythia/internal/logging"
	"github.com/fortuna/pythia/internal/metrics"
	"github.com/fortuna/pythia/internal/predict"
	"github.com/fortuna/pythia/internal/reconciliation"
	"github.com/fortuna/pythia/internal/referee"
	"github.com/fortuna/pythia/internal/snapshot"
	"github.com/fortuna/pythia/internal/store"
	"github.com/fortuna/pythia/internal/venue"
)

// ScheduleSource fetches the upcoming slate.
type ScheduleSource interface {
	FetchSlate(ctx context.Context, leagues []league.League, now time.Time) *espn.Slate
}

// LineSource fetches market lines.
type LineSource interface {
	Enabled() bool
	FetchLines(ctx context.Context, leagues []league.League) ([]odds.Line, map[string]error)
}

// Geocoder fills missing venue coordinates.
type Geocoder interface {
	Enrich(ctx context.Context, games []*store.Game) (int, error)
}

// WeatherEnricher attaches forecasts to games.
type WeatherEnricher interface {
	Enrich(ctx context.Context, games []*store.Game) (weather.Stats, error)
}

// InjurySource collects injury reports per league.
type InjurySource interface {
	Collect(ctx context.Context, leagues []league.League) (map[string][]store.InjuryReport, map[string]error)
}

// ResultLister supplies the historical results behind referee trends.
type ResultLister interface {
	ListAll(ctx context.Context) ([]*store.Result, error)
}

// GameStore persists games.
type GameStore interface {
	UpsertAll(ctx context.Context, games []*store.Game) error
}

// PredictionStore persists predictions.
type PredictionStore interface {
	Upsert(ctx context.Context, p *store.Prediction) error
}

// SnapshotWriter writes JSON snapshots.
type SnapshotWriter interface {
	Write(name string, data any) (bool, error)
}

// StreamPublisher publishes to Redis streams.
type StreamPublisher interface {
	PublishPredictions(ctx context.Context, sport string, preds []*store.Prediction) error
	PublishRunReport(ctx context.Context, report any) error
}

// Observer is notified after every completed run.
type Observer interface {
	OnRun(ctx context.Context, report *Report, slate *Slate)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, report *Report, slate *Slate)

// OnRun calls f.
func (f ObserverFunc) OnRun(ctx context.Context, report *Report, slate *Slate) { f(ctx, report, slate) }

// Deps wires the pipeline. Schedule, Reconciler, Venues and Engine are
// required; a nil optional dependency skips its stage or sink.
type Deps struct {
	Schedule   ScheduleSource
	Lines      LineSource
	Reconciler *reconciliation.Engine
	Venues     *venue.Resolver
	Geocoder   Geocoder
	Weather    WeatherEnricher
	Injuries   InjurySource
	History    ResultLister
	Engine     *predict.Engine

	Games       GameStore
	Predictions PredictionStore
	Snapshots   SnapshotWriter
	Streams     StreamPublisher
	Metrics     *metrics.Recorder
}

// Pipeline runs the stages in order. Runs never overlap.
type Pipeline struct {
	deps            Deps
	leagues         []league.League
	minRefereeGames int
	logger          *zap.SugaredLogger
	now             func() time.Time

	running sync.Mutex

	mu        sync.RWMutex
	latest    *Slate
	observers []Observer
}

// New creates a pipeline for the given leagues.
func New(deps Deps, leagues []league.League, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		deps:            deps,
		leagues:         leagues,
		minRefereeGames: referee.DefaultMinGames,
		logger:          logging.OrNop(logger).Named("pipeline").Sugar(),
		now:             time.Now,
	}
}

// AddObserver registers o for future runs.
func (p *Pipeline) AddObserver(o Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, o)
}

// Latest returns the slate of the last completed run, or nil.
func (p *Pipeline) Latest() *Slate {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// Leagues returns the configured leagues.
func (p *Pipeline) Leagues() []league.League { return p.leagues }

// Run executes one full pass. Stage failures are recorded in the report; the
// returned error is non-nil only when the run could not start or the
// schedule stage produced nothing.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	if !p.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer p.running.Unlock()

	r := &run{
		p:      p,
		ctx:    ctx,
		logger: p.logger,
		report: &Report{
			RunID:     uuid.NewString(),
			StartedAt: p.now().UTC(),
		},
	}
	for _, lg := range p.leagues {
		r.report.Leagues = append(r.report.Leagues, lg.Key)
	}

	p.logger.Infof("═══ Pipeline run %s starting (%d leagues) ═══", r.report.RunID, len(p.leagues))

	r.stage(StageSchedule, r.schedule)
	if r.report.Stage(StageSchedule).Status != StatusFailed {
		r.stage(StageLines, r.lines)
		r.stage(StageFavorites, r.favorites)
		r.stage(StageVenues, r.venues)
		r.stage(StageWeather, r.weather)
		r.stage(StageInjuries, r.injuries)
		r.stage(StageReferees, r.referees)
		r.stage(StagePredict, r.predict)
		r.stage(StagePublish, r.publish)
	}

	r.report.Games = len(r.games)
	r.report.Predictions = len(r.preds)
	r.report.finish(p.now().UTC())
	r.publishReport()
	p.deps.Metrics.RecordRun(r.report.Status)

	slate := &Slate{
		Report:        r.report,
		Games:         r.games,
		Predictions:   r.preds,
		RefereeTrends: r.trends,
	}

	p.mu.Lock()
	if r.report.Status != StatusFailed {
		p.latest = slate
	}
	observers := append([]Observer(nil), p.observers...)
	p.mu.Unlock()

	for _, o := range observers {
		o.OnRun(ctx, r.report, slate)
	}

	p.logger.Infof("═══ Pipeline run %s %s: %d games, %d predictions in %s ═══",
		r.report.RunID, r.report.Status, r.report.Games, r.report.Predictions,
		r.report.FinishedAt.Sub(r.report.StartedAt).Round(time.Millisecond))

	if r.report.Status == StatusFailed {
		return r.report, fmt.Errorf("pipeline run %s: %s", r.report.RunID, r.report.Stage(StageSchedule).Error)
	}
	return r.report, nil
}

// errSkipped marks a stage that did not run; the message says why.
type errSkipped string

func (e errSkipped) Error() string { return string(e) }

// partialError marks a stage that produced output despite failures.
type partialError struct{ err error }

func (e *partialError) Error() string { return e.err.Error() }
func (e *partialError) Unwrap() error { return e.err }

func partial(err error) error {
	if err == nil {
		return nil
	}
	return &partialError{err: err}
}

// run is the state of one pass.
type run struct {
	p      *Pipeline
	ctx    context.Context
	logger *zap.SugaredLogger
	report *Report

	games         []*store.Game
	byLeague      map[string][]*store.Game
	preds         []*store.Prediction
	trends        []store.RefereeTrend
	injuryReports map[string][]store.InjuryReport
}

func (r *run) stage(name string, fn func() (int, error)) {
	start := time.Now()
	count, err := fn()
	elapsed := time.Since(start)

	s := &StageReport{Name: name, Status: StatusOK, DurationMs: elapsed.Milliseconds(), Count: count}
	var (
		skipped errSkipped
		part    *partialError
	)
	switch {
	case err == nil:
		r.logger.Infof("✓ %s: %d (%s)", name, count, elapsed.Round(time.Millisecond))
	case errors.As(err, &skipped):
		s.Status, s.Error = StatusSkipped, err.Error()
		r.logger.Infof("↷ %s skipped: %v", name, err)
	case errors.As(err, &part):
		s.Status, s.Error = StatusPartial, err.Error()
		r.logger.Warnf("⚠️  %s partial: %v", name, err)
	default:
		s.Status, s.Error = StatusFailed, err.Error()
		r.logger.Errorf("❌ %s failed: %v", name, err)
	}
	r.report.Stages = append(r.report.Stages, s)
	if s.Status != StatusSkipped {
		r.p.deps.Metrics.ObserveStage(name, elapsed)
	}
}

func (r *run) publishReport() {
	deps := r.p.deps
	if deps.Snapshots != nil {
		if _, err := deps.Snapshots.Write(snapshot.RunReport, r.report); err != nil {
			r.logger.Warnf("⚠️  run report snapshot: %v", err)
		}
	}
	if deps.Streams != nil {
		if err := deps.Streams.PublishRunReport(r.ctx, r.report); err != nil {
			r.logger.Warnf("⚠️  run report stream: %v", err)
		}
	}
}
