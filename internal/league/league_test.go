package league

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	l, ok := Lookup(" NFL ")
	require.True(t, ok)
	assert.Equal(t, "football/leagues/nfl", l.CorePath)
	assert.Equal(t, Football, l.Sport)

	_, ok = Lookup("cricket")
	assert.False(t, ok)
}

func TestByOddsKey(t *testing.T) {
	l, ok := ByOddsKey("basketball_ncaab")
	require.True(t, ok)
	assert.Equal(t, "ncaab", l.Key)
	assert.True(t, l.AlwaysIndoor)
}

func TestKeysSorted(t *testing.T) {
	keys := Keys()
	assert.Equal(t, []string{"mlb", "nba", "ncaab", "ncaaf", "nfl", "nhl", "ufc"}, keys)
}

func TestSeasonWindow(t *testing.T) {
	start, end := MustLookup("nfl").SeasonWindow(2024)
	assert.Equal(t, time.Date(2024, time.August, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, time.February, 15, 0, 0, 0, 0, time.UTC), end)

	start, end = MustLookup("mlb").SeasonWindow(2025)
	assert.Equal(t, 2025, start.Year())
	assert.Equal(t, 2025, end.Year())
}

func TestHasMarkets(t *testing.T) {
	assert.False(t, MustLookup("ufc").HasMarkets())
	assert.True(t, MustLookup("nhl").HasMarkets())
}
