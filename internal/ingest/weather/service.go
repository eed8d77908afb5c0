package weather

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fortuna/pythia/internal/logging"
	"github.com/fortuna/pythia/internal/store"
)

// DefaultConcurrency bounds in-flight forecast lookups.
const DefaultConcurrency = 8

// Provider is one forecast source.
type Provider interface {
	Name() string
	Covers(lat, lon float64) bool
	Forecast(ctx context.Context, lat, lon float64, at time.Time) (*store.Weather, error)
}

// Stats counts Enrich outcomes.
type Stats struct {
	Fetched  int `json:"fetched"`
	Indoor   int `json:"indoor"`
	NoCoords int `json:"no_coords"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// Service attaches weather to games, trying providers in order.
type Service struct {
	providers   []Provider
	concurrency int
	logger      *zap.SugaredLogger
}

// NewService creates a service; providers are tried in the given order.
func NewService(concurrency int, logger *zap.Logger, providers ...Provider) *Service {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Service{
		providers:   providers,
		concurrency: concurrency,
		logger:      logging.OrNop(logger).Named("weather").Sugar(),
	}
}

// Enrich sets game.Weather for every game that has not finished. Indoor
// games and games without coordinates get an error code instead of a
// forecast; provider failures are recorded per game and never abort the run.
func (s *Service) Enrich(ctx context.Context, games []*store.Game) (Stats, error) {
	var (
		stats Stats
		mu    sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, game := range games {
		game := game
		switch {
		case game.Status == store.StatusFinal || game.Status == store.StatusPostponed:
			stats.Skipped++
			continue
		case game.Venue.IsIndoor():
			game.Weather = &store.Weather{Error: store.WeatherErrIndoor}
			stats.Indoor++
			continue
		case !game.Venue.HasCoords():
			game.Weather = &store.Weather{Error: store.WeatherErrNoCoords}
			stats.NoCoords++
			continue
		}

		g.Go(func() error {
			w := s.forecast(gctx, game)
			mu.Lock()
			defer mu.Unlock()
			game.Weather = w
			if w.OK() {
				stats.Fetched++
			} else {
				stats.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	s.logger.Infof("✓ weather: %d fetched, %d indoor, %d no coords, %d failed",
		stats.Fetched, stats.Indoor, stats.NoCoords, stats.Failed)
	return stats, nil
}

func (s *Service) forecast(ctx context.Context, game *store.Game) *store.Weather {
	lat, lon := *game.Venue.Lat, *game.Venue.Lon
	for _, p := range s.providers {
		if !p.Covers(lat, lon) {
			continue
		}
		w, err := p.Forecast(ctx, lat, lon, game.StartTime)
		if err != nil {
			s.logger.Warnf("[%s] ⚠️  %s %s: %v", game.Sport, p.Name(), game.Matchup(), err)
			continue
		}
		w.Risk = ScoreRisk(game.Sport, w)
		return w
	}
	return &store.Weather{Error: store.WeatherErrProvider}
}
