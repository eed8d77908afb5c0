package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fortuna/pythia/internal/pipeline"
	"github.com/fortuna/pythia/internal/store"
)

// DefaultLimit caps list queries that do not set one.
const DefaultLimit = 100

// SlateSource exposes the most recent pipeline run held in memory.
type SlateSource interface {
	Latest() *pipeline.Slate
}

// GameReader is the read side of the game repository.
type GameReader interface {
	GetByID(ctx context.Context, gameID string) (*store.Game, error)
	ListUpcoming(ctx context.Context, sport string, from time.Time, limit int) ([]*store.Game, error)
	ListByDate(ctx context.Context, sport string, date time.Time, loc *time.Location) ([]*store.Game, error)
}

// GameService answers game queries from the latest slate, falling back to
// the database for games the current process has not seen.
type GameService struct {
	games       GameReader
	predictions PredictionReader
	slate       SlateSource
	loc         *time.Location
	now         func() time.Time
}

// NewGameService creates a new game service. games, predictions and slate
// may each be nil.
func NewGameService(games GameReader, predictions PredictionReader, slate SlateSource, loc *time.Location) *GameService {
	if loc == nil {
		loc = time.UTC
	}
	return &GameService{
		games:       games,
		predictions: predictions,
		slate:       slate,
		loc:         loc,
		now:         time.Now,
	}
}

// GameQuery filters ListGames. A zero Date lists upcoming games.
type GameQuery struct {
	Sport string
	Date  time.Time
	Limit int
}

// GameSummary contains a game with its prediction, if any.
type GameSummary struct {
	Game       *store.Game       `json:"game"`
	Prediction *store.Prediction `json:"prediction,omitempty"`
}

// GetGame retrieves a game by ID with its prediction
func (s *GameService) GetGame(ctx context.Context, gameID string) (*GameSummary, error) {
	if latest := s.latest(); latest != nil {
		for _, g := range latest.Games {
			if g.ID == gameID {
				return &GameSummary{Game: g, Prediction: latest.Prediction(gameID)}, nil
			}
		}
	}
	if s.games == nil {
		return nil, fmt.Errorf("game %s: %w", gameID, store.ErrNotFound)
	}

	game, err := s.games.GetByID(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("fetching game: %w", err)
	}
	summary := &GameSummary{Game: game}
	if s.predictions != nil {
		if p, err := s.predictions.GetByGameID(ctx, gameID); err == nil {
			summary.Prediction = p
		}
	}
	return summary, nil
}

// ListGames lists games for one day, or upcoming games when no date is set.
func (s *GameService) ListGames(ctx context.Context, q GameQuery) ([]*store.Game, error) {
	q.Sport = strings.ToLower(q.Sport)
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}

	if s.games != nil {
		var (
			games []*store.Game
			err   error
		)
		if q.Date.IsZero() {
			games, err = s.games.ListUpcoming(ctx, q.Sport, s.now().Add(-6*time.Hour), q.Limit)
		} else {
			games, err = s.games.ListByDate(ctx, q.Sport, q.Date, s.loc)
		}
		if err != nil {
			return nil, fmt.Errorf("fetching games: %w", err)
		}
		return limit(games, q.Limit), nil
	}

	latest := s.latest()
	if latest == nil {
		return []*store.Game{}, nil
	}
	out := make([]*store.Game, 0, len(latest.Games))
	for _, g := range latest.Games {
		if q.Sport != "" && g.Sport != q.Sport {
			continue
		}
		if !q.Date.IsZero() && !sameDay(g.StartTime, q.Date, s.loc) {
			continue
		}
		out = append(out, g)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return limit(out, q.Limit), nil
}

func (s *GameService) latest() *pipeline.Slate {
	if s.slate == nil {
		return nil
	}
	return s.slate.Latest()
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ya, ma, da := a.In(loc).Date()
	yb, mb, db := b.In(loc).Date()
	return ya == yb && ma == mb && da == db
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
