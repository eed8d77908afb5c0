package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fortuna/pythia/internal/favorite"
	"github.com/fortuna/pythia/internal/ingest/injuries"
	"github.com/fortuna/pythia/internal/referee"
	"github.com/fortuna/pythia/internal/snapshot"
	"github.com/fortuna/pythia/internal/store"
)

func (r *run) schedule() (int, error) {
	slate := r.p.deps.Schedule.FetchSlate(r.ctx, r.p.leagues, r.p.now())
	r.games = slate.Games
	r.byLeague = slate.ByLeague

	if len(slate.Errors) == 0 {
		return len(r.games), nil
	}
	err := joinLeagueErrors(slate.Errors)
	if len(r.games) == 0 {
		return 0, err
	}
	return len(r.games), partial(err)
}

func (r *run) lines() (int, error) {
	src := r.p.deps.Lines
	if src == nil || !src.Enabled() {
		return 0, errSkipped("no odds API key configured")
	}

	lines, errs := src.FetchLines(r.ctx, r.p.leagues)
	rec := r.p.deps.Reconciler
	rec.ResetMetrics()
	m := rec.Reconcile(r.games, lines)

	if len(errs) == 0 {
		return m.Matched, nil
	}
	err := joinLeagueErrors(errs)
	if len(lines) == 0 {
		return 0, err
	}
	return m.Matched, partial(err)
}

func (r *run) favorites() (int, error) {
	n := 0
	for _, g := range r.games {
		g.Line = favorite.Derive(g)
		if g.Line.HasFavorite() {
			n++
		}
	}
	return n, nil
}

func (r *run) venues() (int, error) {
	counts := r.p.deps.Venues.ResolveAll(r.games)
	r.logger.Debugf("indoor sources: %v", counts)

	if r.p.deps.Geocoder == nil {
		return len(r.games), nil
	}
	filled, err := r.p.deps.Geocoder.Enrich(r.ctx, r.games)
	if filled > 0 {
		r.logger.Infof("✓ geocoded %d venues", filled)
	}
	return len(r.games), partial(err)
}

func (r *run) weather() (int, error) {
	if r.p.deps.Weather == nil {
		return 0, errSkipped("no weather providers configured")
	}
	stats, err := r.p.deps.Weather.Enrich(r.ctx, r.games)
	r.logger.Infof("weather: %d fetched, %d indoor, %d without coordinates, %d failed",
		stats.Fetched, stats.Indoor, stats.NoCoords, stats.Failed)
	if err != nil {
		if stats.Fetched == 0 {
			return 0, err
		}
		return stats.Fetched, partial(err)
	}
	if stats.Failed > 0 {
		return stats.Fetched, partial(fmt.Errorf("%d forecasts failed", stats.Failed))
	}
	return stats.Fetched, nil
}

func (r *run) injuries() (int, error) {
	if r.p.deps.Injuries == nil {
		return 0, errSkipped("no injury sources configured")
	}
	reports, errs := r.p.deps.Injuries.Collect(r.ctx, r.p.leagues)
	r.injuryReports = reports

	byLeague := make(map[string]map[string]store.InjurySummary, len(reports))
	for key, list := range reports {
		byLeague[key] = injuries.Summarize(list)
	}
	matched := injuries.Attach(r.games, byLeague)

	if len(errs) == 0 {
		return matched, nil
	}
	err := joinLeagueErrors(errs)
	if len(reports) == 0 {
		return 0, err
	}
	return matched, partial(err)
}

func (r *run) referees() (int, error) {
	if r.p.deps.History == nil {
		return 0, errSkipped("no result history configured")
	}
	results, err := r.p.deps.History.ListAll(r.ctx)
	if err != nil {
		return 0, err
	}
	r.trends = referee.BuildTrends(results)
	return len(r.trends), nil
}

func (r *run) predict() (int, error) {
	biasFor := func(g *store.Game) *referee.Bias {
		if len(r.trends) == 0 {
			return nil
		}
		return referee.CrewBias(r.trends, g.Referees(), r.p.minRefereeGames)
	}
	r.preds = r.p.deps.Engine.PredictAll(r.games, r.p.now(), biasFor)

	perSport := make(map[string]int)
	for _, pred := range r.preds {
		perSport[pred.Sport]++
	}
	for sport, n := range perSport {
		r.p.deps.Metrics.AddPredictions(sport, n)
	}
	return len(r.preds), nil
}

// publish persists and distributes the run output. Every sink is attempted;
// failures are collected.
func (r *run) publish() (int, error) {
	deps := r.p.deps
	if deps.Games == nil && deps.Predictions == nil && deps.Snapshots == nil && deps.Streams == nil {
		return 0, errSkipped("no sinks configured")
	}

	var (
		errs      []error
		attempted int
	)
	if deps.Games != nil {
		attempted++
		if err := deps.Games.UpsertAll(r.ctx, r.games); err != nil {
			errs = append(errs, fmt.Errorf("games: %w", err))
		}
	}
	if deps.Predictions != nil {
		attempted++
		var failed int
		var firstErr error
		for _, pred := range r.preds {
			if err := deps.Predictions.Upsert(r.ctx, pred); err != nil {
				failed++
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		if failed > 0 {
			errs = append(errs, fmt.Errorf("predictions: %d of %d failed: %w", failed, len(r.preds), firstErr))
		}
	}
	if deps.Snapshots != nil {
		attempted++
		if err := r.writeSnapshots(); err != nil {
			errs = append(errs, err)
		}
	}
	if deps.Streams != nil {
		attempted++
		if err := r.publishStreams(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		return len(r.preds), nil
	}
	err := errors.Join(errs...)
	if len(errs) == attempted {
		return 0, err
	}
	return len(r.preds), partial(err)
}

type snapshotFile struct {
	name string
	data any
}

func (r *run) writeSnapshots() error {
	w := r.p.deps.Snapshots

	forecasts := make(map[string]*store.Weather)
	for _, g := range r.games {
		if g.Weather != nil {
			forecasts[g.ID] = g.Weather
		}
	}

	files := []snapshotFile{
		{snapshot.Combined, r.games},
		{snapshot.Predictions, r.preds},
		{snapshot.Weather, forecasts},
	}
	if r.injuryReports != nil {
		files = append(files, snapshotFile{snapshot.Injuries, r.injuryReports})
	}
	if r.trends != nil {
		files = append(files, snapshotFile{snapshot.RefereeTrends, r.trends})
	}
	for _, lg := range r.p.leagues {
		games := r.byLeague[lg.Key]
		if games == nil {
			games = []*store.Game{}
		}
		files = append(files, snapshotFile{snapshot.LeagueLatest(lg.Key), games})
	}

	var errs []error
	for _, f := range files {
		if _, err := w.Write(f.name, f.data); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("snapshots: %w", errors.Join(errs...))
	}
	return nil
}

func (r *run) publishStreams() error {
	bySport := make(map[string][]*store.Prediction)
	for _, pred := range r.preds {
		bySport[pred.Sport] = append(bySport[pred.Sport], pred)
	}
	var errs []error
	for sport, preds := range bySport {
		if err := r.p.deps.Streams.PublishPredictions(r.ctx, sport, preds); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("streams: %w", errors.Join(errs...))
	}
	return nil
}

// joinLeagueErrors flattens per-league errors in league order.
func joinLeagueErrors(errs map[string]error) error {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	wrapped := make([]error, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, errs[k]))
		wrapped = append(wrapped, errs[k])
	}
	return &leagueErrors{msg: strings.Join(parts, "; "), errs: wrapped}
}

type leagueErrors struct {
	msg  string
	errs []error
}

func (e *leagueErrors) Error() string { return e.msg }
func (e *leagueErrors) Unwrap() []error { return e.errs }
