// Package results collects final scores from ESPN scoreboards and stores them
// with the line each game closed at.
package results

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fortuna/pythia/internal/favorite"
	"github.com/fortuna/pythia/internal/ingest/espn"
	"github.com/fortuna/pythia/internal/league"
	"github.com/fortuna/pythia/internal/logging"
	"github.com/fortuna/pythia/internal/store"
)

// ScoreSource is the ESPN surface the collector reads.
type ScoreSource interface {
	Scoreboard(ctx context.Context, lg league.League, date time.Time) ([]*store.Game, error)
	Summary(ctx context.Context, lg league.League, eventID string) (*espn.SummaryInfo, error)
}

// GameStore holds the pre-game records written by the pipeline.
type GameStore interface {
	GetByID(ctx context.Context, gameID string) (*store.Game, error)
	Upsert(ctx context.Context, game *store.Game) error
}

// ResultStore persists results.
type ResultStore interface {
	Upsert(ctx context.Context, res *store.Result) error
}

// Stats counts one collection pass.
type Stats struct {
	Games     int `json:"games"`
	Collected int `json:"collected"`
	Pending   int `json:"pending"`
	Failed    int `json:"failed"`
}

// Collector turns completed scoreboard games into stored results.
type Collector struct {
	source  ScoreSource
	games   GameStore
	results ResultStore
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// NewCollector creates a collector. games may be nil, in which case lines
// come from the scoreboard odds only.
func NewCollector(source ScoreSource, games GameStore, results ResultStore, logger *zap.Logger) *Collector {
	return &Collector{
		source:  source,
		games:   games,
		results: results,
		logger:  logging.OrNop(logger).Named("results").Sugar(),
		now:     time.Now,
	}
}

// Collect stores every final game on the given dates. Re-collecting a game
// updates its result in place. A failed scoreboard is logged and counted; the
// returned error joins every failure.
func (c *Collector) Collect(ctx context.Context, leagues []league.League, dates []time.Time) (*Stats, []*store.Result, error) {
	stats := &Stats{}
	var (
		out  []*store.Result
		errs []error
	)
	for _, lg := range leagues {
		for _, date := range dates {
			if err := ctx.Err(); err != nil {
				return stats, out, err
			}
			games, err := c.source.Scoreboard(ctx, lg, date)
			if err != nil {
				c.logger.Warnf("[%s] ⚠️  scoreboard %s: %v", lg.Key, date.Format("2006-01-02"), err)
				errs = append(errs, fmt.Errorf("%s %s: %w", lg.Key, date.Format("2006-01-02"), err))
				stats.Failed++
				continue
			}
			got, err := c.collectGames(ctx, lg, games, stats)
			out = append(out, got...)
			if err != nil {
				errs = append(errs, err)
			}
		}
		c.logger.Infof("[%s] ✓ results collected", lg.Key)
	}
	c.logger.Infof("✓ %d results from %d games (%d pending, %d failed)", stats.Collected, stats.Games, stats.Pending, stats.Failed)
	return stats, out, errors.Join(errs...)
}

// CollectGame collects a single game. The stored pre-game record supplies the
// date whose scoreboard carries it.
func (c *Collector) CollectGame(ctx context.Context, lg league.League, gameID string) (*store.Result, error) {
	if c.games == nil {
		return nil, fmt.Errorf("game %s: no game store configured", gameID)
	}
	stored, err := c.games.GetByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	games, err := c.source.Scoreboard(ctx, lg, stored.StartTime)
	if err != nil {
		return nil, err
	}
	for _, g := range games {
		if g.ID != gameID {
			continue
		}
		stats := &Stats{}
		got, err := c.collectGames(ctx, lg, []*store.Game{g}, stats)
		if err != nil {
			return nil, err
		}
		if len(got) == 0 {
			return nil, fmt.Errorf("game %s is not final (%s)", gameID, g.Status)
		}
		return got[0], nil
	}
	return nil, fmt.Errorf("game %s not on the %s scoreboard: %w", gameID, stored.StartTime.Format("2006-01-02"), store.ErrNotFound)
}

func (c *Collector) collectGames(ctx context.Context, lg league.League, games []*store.Game, stats *Stats) ([]*store.Result, error) {
	var (
		out  []*store.Result
		errs []error
	)
	for _, g := range games {
		stats.Games++
		if !g.IsFinal() {
			stats.Pending++
			continue
		}
		if _, ok := g.Total(); !ok {
			stats.Pending++
			continue
		}

		res := c.build(ctx, lg, g)
		if err := c.results.Upsert(ctx, res); err != nil {
			stats.Failed++
			errs = append(errs, err)
			continue
		}
		stats.Collected++
		out = append(out, res)
	}
	return out, errors.Join(errs...)
}

// build joins a final scoreboard game with the stored pre-game line and the
// summary's officials when the scoreboard has none.
func (c *Collector) build(ctx context.Context, lg league.League, g *store.Game) *store.Result {
	merged := g
	if c.games != nil {
		if stored, err := c.games.GetByID(ctx, g.ID); err == nil {
			if stored.Odds != nil {
				merged.Odds = stored.Odds
				merged.Line = stored.Line
			}
			if len(merged.Officials) == 0 {
				merged.Officials = stored.Officials
			}
			stored.Status, stored.HomeScore, stored.AwayScore = g.Status, g.HomeScore, g.AwayScore
			stored.Officials = merged.Officials
			stored.UpdatedAt = c.now().UTC()
			if err := c.games.Upsert(ctx, stored); err != nil {
				c.logger.Warnf("[%s] ⚠️  refreshing game %s: %v", lg.Key, g.ID, err)
			}
		} else if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warnf("[%s] ⚠️  stored game %s: %v", lg.Key, g.ID, err)
		}
	}

	if len(merged.Officials) == 0 || merged.Odds == nil {
		if info, err := c.source.Summary(ctx, lg, g.ID); err == nil {
			if len(merged.Officials) == 0 {
				merged.Officials = info.Officials
			}
			if merged.Odds == nil {
				merged.Odds = info.Odds
			}
		} else {
			c.logger.Debugf("[%s] summary %s: %v", lg.Key, g.ID, err)
		}
	}

	line := merged.Line
	if line.Basis == "" || line.Basis == store.BasisNone {
		line = favorite.Derive(merged)
	}

	res := &store.Result{
		GameID:      g.ID,
		Sport:       lg.Key,
		StartTime:   g.StartTime,
		HomeTeam:    g.Home.Name,
		AwayTeam:    g.Away.Name,
		HomeScore:   *g.HomeScore,
		AwayScore:   *g.AwayScore,
		Referees:    merged.Referees(),
		CompletedAt: c.now().UTC(),
	}
	if line.HasFavorite() {
		res.FavTeam, res.DogTeam = line.FavTeam, line.DogTeam
		res.FavIsHome = line.FavIsHome
		res.FavSpread = line.FavSpread
	}
	if merged.Odds != nil {
		res.TotalLine = merged.Odds.Total
	}
	res.Label()
	return res
}

// Dates lists the days ending yesterday, oldest first.
func Dates(now time.Time, days int) []time.Time {
	if days < 1 {
		days = 1
	}
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	out := make([]time.Time, 0, days)
	for i := days; i >= 1; i-- {
		out = append(out, day.AddDate(0, 0, -i))
	}
	return out
}
