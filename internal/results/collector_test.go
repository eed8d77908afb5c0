package results

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/pythia/internal/ingest/espn"
	"github.com/fortuna/pythia/internal/league"
	"github.com/fortuna/pythia/internal/store"
)

var gameDay = time.Date(2025, 11, 16, 0, 0, 0, 0, time.UTC)

type fakeSource struct {
	boards    map[string][]*store.Game
	summaries map[string]*espn.SummaryInfo
	fail      map[string]bool
	summaryN  int
}

func (f *fakeSource) Scoreboard(_ context.Context, lg league.League, date time.Time) ([]*store.Game, error) {
	key := lg.Key + date.Format("20060102")
	if f.fail[key] {
		return nil, errors.New("status 503")
	}
	return f.boards[key], nil
}

func (f *fakeSource) Summary(_ context.Context, _ league.League, id string) (*espn.SummaryInfo, error) {
	f.summaryN++
	if s, ok := f.summaries[id]; ok {
		return s, nil
	}
	return nil, errors.New("no summary")
}

type fakeGames struct {
	byID     map[string]*store.Game
	upserted []*store.Game
}

func (f *fakeGames) GetByID(_ context.Context, id string) (*store.Game, error) {
	if g, ok := f.byID[id]; ok {
		return g, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeGames) Upsert(_ context.Context, g *store.Game) error {
	f.upserted = append(f.upserted, g)
	return nil
}

type fakeResults struct{ byID map[string]*store.Result }

func (f *fakeResults) Upsert(_ context.Context, r *store.Result) error {
	if f.byID == nil {
		f.byID = make(map[string]*store.Result)
	}
	f.byID[r.GameID] = r
	return nil
}

func finalGame(id string, home, away int) *store.Game {
	return &store.Game{
		ID:        id,
		Sport:     "nfl",
		StartTime: gameDay.Add(18 * time.Hour),
		Status:    store.StatusFinal,
		Home:      store.Team{Name: "Kansas City Chiefs", Abbreviation: "KC"},
		Away:      store.Team{Name: "Denver Broncos", Abbreviation: "DEN"},
		HomeScore: store.Int(home),
		AwayScore: store.Int(away),
	}
}

func TestCollectUsesStoredLine(t *testing.T) {
	board := finalGame("401", 27, 20)
	board.Odds = &store.Odds{Details: "KC -3", Spread: store.Float(-3), Total: store.Float(41)}
	board.Officials = []store.Official{{Name: "Shawn Hochuli", Role: "Referee"}}

	stored := finalGame("401", 0, 0)
	stored.Status = store.StatusScheduled
	stored.HomeScore, stored.AwayScore = nil, nil
	stored.Odds = &store.Odds{Spread: store.Float(-7.5), Total: store.Float(45.5), Source: "odds_api"}
	stored.Line = store.Line{
		FavTeam: "Kansas City Chiefs", DogTeam: "Denver Broncos",
		FavSpread: store.Float(-7.5), DogSpread: store.Float(7.5),
		FavIsHome: true, Basis: store.BasisSpread,
	}

	src := &fakeSource{boards: map[string][]*store.Game{"nfl20251116": {board}}}
	games := &fakeGames{byID: map[string]*store.Game{"401": stored}}
	results := &fakeResults{}

	c := NewCollector(src, games, results, nil)
	stats, got, err := c.Collect(context.Background(), []league.League{league.MustLookup("nfl")}, []time.Time{gameDay})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, &Stats{Games: 1, Collected: 1}, stats)

	res := results.byID["401"]
	require.NotNil(t, res)
	assert.Equal(t, "Kansas City Chiefs", res.FavTeam)
	assert.Equal(t, -7.5, *res.FavSpread)
	assert.Equal(t, 45.5, *res.TotalLine)
	assert.Equal(t, []string{"Shawn Hochuli"}, res.Referees)
	assert.True(t, res.HomeWin)
	require.NotNil(t, res.FavCover)
	assert.False(t, *res.FavCover)
	require.NotNil(t, res.Over)
	assert.True(t, *res.Over)
	assert.Zero(t, src.summaryN)

	require.Len(t, games.upserted, 1)
	assert.Equal(t, store.StatusFinal, games.upserted[0].Status)
	assert.Equal(t, 27, *games.upserted[0].HomeScore)
}

func TestCollectFallsBackToScoreboardOddsAndSummary(t *testing.T) {
	board := finalGame("402", 17, 24)
	board.Odds = &store.Odds{Details: "DEN -3.5", Spread: store.Float(3.5), Total: store.Float(44)}

	src := &fakeSource{
		boards: map[string][]*store.Game{"nfl20251116": {board, {ID: "403", Status: store.StatusInProgress}}},
		summaries: map[string]*espn.SummaryInfo{
			"402": {Officials: []store.Official{{Name: "Clete Blakeman"}}},
		},
	}
	results := &fakeResults{}

	stats, _, err := NewCollector(src, nil, results, nil).Collect(context.Background(), []league.League{league.MustLookup("nfl")}, []time.Time{gameDay})
	require.NoError(t, err)
	assert.Equal(t, &Stats{Games: 2, Collected: 1, Pending: 1}, stats)

	res := results.byID["402"]
	require.NotNil(t, res)
	assert.Equal(t, "Denver Broncos", res.FavTeam)
	assert.False(t, res.FavIsHome)
	assert.Equal(t, -3.5, *res.FavSpread)
	assert.True(t, *res.FavCover)
	assert.False(t, *res.Over)
	assert.Equal(t, []string{"Clete Blakeman"}, res.Referees)
}

func TestCollectRecordsScoreboardFailures(t *testing.T) {
	src := &fakeSource{fail: map[string]bool{"nba20251116": true}}

	stats, _, err := NewCollector(src, nil, &fakeResults{}, nil).Collect(context.Background(),
		[]league.League{league.MustLookup("nba"), league.MustLookup("nhl")}, []time.Time{gameDay})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nba 2025-11-16")
	assert.Equal(t, 1, stats.Failed)
}

func TestCollectIsIdempotent(t *testing.T) {
	board := finalGame("401", 27, 20)
	src := &fakeSource{boards: map[string][]*store.Game{"nfl20251116": {board}}}
	results := &fakeResults{}
	c := NewCollector(src, nil, results, nil)

	for i := 0; i < 2; i++ {
		_, _, err := c.Collect(context.Background(), []league.League{league.MustLookup("nfl")}, []time.Time{gameDay})
		require.NoError(t, err)
	}
	assert.Len(t, results.byID, 1)
}

func TestCollectGame(t *testing.T) {
	stored := finalGame("401", 0, 0)
	src := &fakeSource{boards: map[string][]*store.Game{"nfl20251116": {finalGame("401", 10, 13)}}}
	results := &fakeResults{}
	c := NewCollector(src, &fakeGames{byID: map[string]*store.Game{"401": stored}}, results, nil)

	res, err := c.CollectGame(context.Background(), league.MustLookup("nfl"), "401")
	require.NoError(t, err)
	assert.False(t, res.HomeWin)

	_, err = c.CollectGame(context.Background(), league.MustLookup("nfl"), "999")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDates(t *testing.T) {
	now := time.Date(2025, 11, 18, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, []time.Time{
		time.Date(2025, 11, 16, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 11, 17, 0, 0, 0, 0, time.UTC),
	}, Dates(now, 2))
	assert.Len(t, Dates(now, 0), 1)
}
