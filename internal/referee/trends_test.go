package referee

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/pythia/internal/store"
)

func result(home, away int, spread, total float64, refs ...string) *store.Result {
	r := &store.Result{
		HomeTeam:  "Home",
		AwayTeam:  "Away",
		FavTeam:   "Home",
		FavIsHome: true,
		FavSpread: store.Float(spread),
		TotalLine: store.Float(total),
		HomeScore: home,
		AwayScore: away,
		Referees:  refs,
	}
	r.Label()
	return r
}

func TestBuildTrends(t *testing.T) {
	// home favored each time; the second game pushes ATS and the fourth pushes the total
	results := []*store.Result{
		result(27, 20, -3, 44.5, "Shawn Hochuli", "Alex Kemp"),
		result(20, 17, -3, 40, "Shawn Hochuli"),
		result(10, 24, -6.5, 33.5, "Shawn Hochuli", "Alex Kemp"),
		result(30, 10, -7, 40, "Alex Kemp", "alex kemp"),
	}

	trends := BuildTrends(results)
	require.Len(t, trends, 2)

	kemp := trends[0]
	assert.Equal(t, "Alex Kemp", kemp.Name)
	assert.Equal(t, 3, kemp.Games)
	assert.Equal(t, 2, kemp.HomeWins)
	assert.Equal(t, 2, kemp.FavCovers)
	assert.Equal(t, 3, kemp.FavGraded)
	assert.Equal(t, 66.67, kemp.FavCoverPct)
	assert.Equal(t, 66.67, kemp.HomeWinPct)
	assert.Equal(t, 100.0, kemp.OverPct)

	hochuli := trends[1]
	assert.Equal(t, 3, hochuli.Games)
	assert.Equal(t, 1, hochuli.Pushes)
	assert.Equal(t, 2, hochuli.FavGraded)
	assert.Equal(t, 50.0, hochuli.FavCoverPct)
	assert.Equal(t, 66.67, hochuli.OverPct)
}

func TestBuildTrendsOrdersByGamesThenName(t *testing.T) {
	trends := BuildTrends([]*store.Result{
		result(1, 0, -1.5, 5.5, "Zed"),
		result(1, 0, -1.5, 5.5, "Amy"),
		result(1, 0, -1.5, 5.5, "Zed"),
	})
	require.Len(t, trends, 2)
	assert.Equal(t, []string{"Zed", "Amy"}, []string{trends[0].Name, trends[1].Name})
}

func TestCrewBias(t *testing.T) {
	trends := []store.RefereeTrend{
		{Name: "Shawn Hochuli", Games: 40, OUGraded: 38, OverPct: 60, FavGraded: 36, FavCoverPct: 45},
		{Name: "Alex Kemp", Games: 12, OUGraded: 12, OverPct: 41.5, FavGraded: 11, FavCoverPct: 55},
		{Name: "Rookie Ref", Games: 3, OUGraded: 3, OverPct: 100},
	}

	b := CrewBias(trends, []string{"shawn hochuli", "Alex Kemp", "Rookie Ref"}, DefaultMinGames)
	require.NotNil(t, b)
	assert.Equal(t, 50.75, b.OverPct)
	assert.Equal(t, 50.0, b.FavCoverPct)
	assert.Equal(t, []string{"Shawn Hochuli", "Alex Kemp"}, b.Officials)

	assert.Nil(t, CrewBias(trends, []string{"Rookie Ref"}, DefaultMinGames))
	assert.Nil(t, CrewBias(trends, nil, DefaultMinGames))
	assert.Len(t, Filter(trends, DefaultMinGames), 2)
}
