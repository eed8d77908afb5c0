package odds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/pythia/internal/ingest/fetch"
	"github.com/fortuna/pythia/internal/league"
)

func f(v float64) *float64 { return &v }

func TestFormatSpread(t *testing.T) {
	assert.Equal(t, "PK", FormatSpread(0))
	assert.Equal(t, "PK", FormatSpread(-0.0000001))
	assert.Equal(t, "+3", FormatSpread(3))
	assert.Equal(t, "-6.5", FormatSpread(-6.5))
	assert.Equal(t, "+10.5", FormatSpread(10.5))
}

func TestChooseBookmaker(t *testing.T) {
	books := []Bookmaker{
		{Key: "williamhill_us", LastUpdate: "2025-09-06T12:00:00Z"},
		{Key: "bovada", LastUpdate: "2025-09-06T10:00:00Z"},
		{Key: "fanduel", LastUpdate: "2025-09-06T09:00:00Z"},
	}
	assert.Equal(t, "fanduel", ChooseBookmaker(books).Key)

	books = []Bookmaker{
		{Key: "a", LastUpdate: "2025-09-06T10:00:00Z"},
		{Key: "b", LastUpdate: "2025-09-06T12:00:00Z"},
	}
	assert.Equal(t, "b", ChooseBookmaker(books).Key)
	assert.Nil(t, ChooseBookmaker(nil))
}

func event(markets ...Market) Event {
	return Event{
		ID:           "e1",
		SportKey:     "americanfootball_nfl",
		CommenceTime: time.Date(2025, 9, 7, 20, 25, 0, 0, time.UTC),
		HomeTeam:     "Kansas City Chiefs",
		AwayTeam:     "Cincinnati Bengals",
		Bookmakers:   []Bookmaker{{Key: "draftkings", Markets: markets}},
	}
}

func TestBuildLineFromSpreads(t *testing.T) {
	ev := event(
		Market{Key: "spreads", Outcomes: []Outcome{
			{Name: "Cincinnati Bengals", Point: f(6.5), Price: f(-110)},
			{Name: "Kansas City Chiefs", Point: f(-6.5), Price: f(-110)},
		}},
		Market{Key: "h2h", Outcomes: []Outcome{
			{Name: "Cincinnati Bengals", Price: f(225)},
			{Name: "Kansas City Chiefs", Price: f(-275)},
		}},
		Market{Key: "totals", Outcomes: []Outcome{
			{Name: "Over", Point: f(47.5)},
			{Name: "Under", Point: f(47.5)},
		}},
	)

	line, ok := BuildLine(ev, time.Now())
	require.True(t, ok)
	assert.Equal(t, "Kansas City Chiefs", line.FavTeam)
	assert.Equal(t, "Cincinnati Bengals", line.DogTeam)
	assert.Equal(t, -6.5, *line.FavSpread)
	assert.Equal(t, 6.5, *line.DogSpread)
	assert.Equal(t, 47.5, *line.Total)
	assert.Equal(t, -275.0, *line.FavPrice)
	assert.Equal(t, "Kansas City Chiefs -6.5", line.Favorite)
	assert.Equal(t, "Cincinnati Bengals +6.5", line.Underdog)
	assert.Equal(t, "draftkings", line.Book)
	assert.Equal(t, -6.5, *line.HomeSpread())
	assert.Equal(t, "Cincinnati Bengals@Kansas City Chiefs", line.Matchup())
}

func TestBuildLineAwayFavoriteHomeSpread(t *testing.T) {
	ev := event(Market{Key: "spreads", Outcomes: []Outcome{
		{Name: "Kansas City Chiefs", Point: f(3)},
		{Name: "Cincinnati Bengals", Point: f(-3)},
	}})
	line, ok := BuildLine(ev, time.Now())
	require.True(t, ok)
	assert.Equal(t, "Cincinnati Bengals", line.FavTeam)
	assert.Equal(t, 3.0, *line.HomeSpread())
}

func TestBuildLineMoneylineFallback(t *testing.T) {
	ev := event(Market{Key: "h2h", Outcomes: []Outcome{
		{Name: "Alex Pereira", Price: f(-150)},
		{Name: "Magomed Ankalaev", Price: f(125)},
	}})
	line, ok := BuildLine(ev, time.Now())
	require.True(t, ok)
	assert.Equal(t, "Alex Pereira", line.FavTeam)
	assert.Equal(t, "Magomed Ankalaev", line.DogTeam)
	assert.Nil(t, line.FavSpread)
	assert.Equal(t, "Alex Pereira", line.Favorite)
}

func TestBuildLineDropsEmptyEvents(t *testing.T) {
	_, ok := BuildLine(event(), time.Now())
	assert.False(t, ok)

	ev := event()
	ev.Bookmakers = nil
	_, ok = BuildLine(ev, time.Now())
	assert.False(t, ok)

	ev = event(Market{Key: "totals", Outcomes: []Outcome{{Name: "Over", Point: f(6.5)}}})
	line, ok := BuildLine(ev, time.Now())
	require.True(t, ok)
	assert.Equal(t, 6.5, *line.Total)
	assert.Nil(t, line.HomeSpread())
}

func TestFetchLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k3y", r.URL.Query().Get("apiKey"))
		assert.Equal(t, "h2h,spreads,totals", r.URL.Query().Get("markets"))
		switch r.URL.Path {
		case "/v4/sports/americanfootball_nfl/odds":
			w.Header().Set("X-Requests-Remaining", "498")
			w.Write([]byte(`[{"id":"e1","sport_key":"americanfootball_nfl","commence_time":"2025-09-07T20:25:00Z",
				"home_team":"Kansas City Chiefs","away_team":"Cincinnati Bengals",
				"bookmakers":[{"key":"fanduel","last_update":"2025-09-06T12:00:00Z","markets":[
					{"key":"spreads","outcomes":[{"name":"Kansas City Chiefs","point":-6.5,"price":-110},{"name":"Cincinnati Bengals","point":6.5,"price":-110}]}
				]}]}]`))
		default:
			http.Error(w, `{"message":"Unknown sport"}`, http.StatusUnprocessableEntity)
		}
	}))
	defer srv.Close()

	httpClient := fetch.New("odds_api", fetch.WithBackoff(time.Millisecond), fetch.WithSecretParams("apiKey"))
	c := NewClient("k3y", srv.URL+"/v4/sports", httpClient, nil)

	lines, errs := c.FetchLines(context.Background(), []league.League{league.MustLookup("nfl"), league.MustLookup("nhl")})
	require.Len(t, lines, 1)
	assert.Equal(t, "nfl", lines[0].League)
	assert.Equal(t, "Kansas City Chiefs", lines[0].FavTeam)
	require.Contains(t, errs, "nhl")
	assert.NotContains(t, errs["nhl"].Error(), "k3y")
}

func TestFetchLinesDisabledWithoutKey(t *testing.T) {
	c := NewClient("", "", nil, nil)
	assert.False(t, c.Enabled())
	lines, errs := c.FetchLines(context.Background(), []league.League{league.MustLookup("nfl")})
	assert.Empty(t, lines)
	assert.Empty(t, errs)
}
