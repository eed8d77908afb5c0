package favorite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/pythia/internal/store"
)

func game(odds *store.Odds) *store.Game {
	return &store.Game{
		ID:   "401671789",
		Home: store.Team{ID: "12", Name: "Kansas City Chiefs", Abbreviation: "KC"},
		Away: store.Team{ID: "4", Name: "Cincinnati Bengals", Abbreviation: "CIN"},
		Odds: odds,
	}
}

func TestDerive(t *testing.T) {
	tests := []struct {
		name      string
		odds      *store.Odds
		basis     string
		favTeam   string
		favIsHome bool
		favSpread *float64
		pickem    bool
	}{
		{
			name:  "no odds",
			basis: store.BasisNone,
		},
		{
			name:      "details home favorite",
			odds:      &store.Odds{Details: "KC -6.5", Spread: store.Float(-6.5)},
			basis:     store.BasisDetails,
			favTeam:   "Kansas City Chiefs",
			favIsHome: true,
			favSpread: store.Float(-6.5),
		},
		{
			name:      "details away favorite contradicts spread sign",
			odds:      &store.Odds{Details: "CIN -3", Spread: store.Float(-3)},
			basis:     store.BasisDetails,
			favTeam:   "Cincinnati Bengals",
			favSpread: store.Float(-3),
		},
		{
			name:   "details even",
			odds:   &store.Odds{Details: "EVEN"},
			basis:  store.BasisDetails,
			pickem: true,
		},
		{
			name:      "unknown abbreviation falls back to spread",
			odds:      &store.Odds{Details: "XYZ -4", Spread: store.Float(4)},
			basis:     store.BasisSpread,
			favTeam:   "Cincinnati Bengals",
			favSpread: store.Float(-4),
		},
		{
			name:      "negative home spread",
			odds:      &store.Odds{Spread: store.Float(-2.5)},
			basis:     store.BasisSpread,
			favTeam:   "Kansas City Chiefs",
			favIsHome: true,
			favSpread: store.Float(-2.5),
		},
		{
			name:   "zero spread",
			odds:   &store.Odds{Spread: store.Float(0)},
			basis:  store.BasisSpread,
			pickem: true,
		},
		{
			name:    "moneyline only",
			odds:    &store.Odds{HomeMoneyline: store.Float(140), AwayMoneyline: store.Float(-165)},
			basis:   store.BasisMoneyline,
			favTeam: "Cincinnati Bengals",
		},
		{
			name:  "total only",
			odds:  &store.Odds{Total: store.Float(47.5)},
			basis: store.BasisNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := Derive(game(tt.odds))
			assert.Equal(t, tt.basis, line.Basis)
			assert.Equal(t, tt.favTeam, line.FavTeam)
			assert.Equal(t, tt.favIsHome, line.FavIsHome)
			assert.Equal(t, tt.pickem, line.Pickem)
			if tt.favSpread == nil && !tt.pickem {
				assert.Nil(t, line.FavSpread)
				return
			}
			require.NotNil(t, line.FavSpread)
			require.NotNil(t, line.DogSpread)
			if tt.favSpread != nil {
				assert.Equal(t, *tt.favSpread, *line.FavSpread)
			}
			assert.LessOrEqual(t, *line.FavSpread, 0.0)
			assert.Equal(t, -*line.FavSpread, *line.DogSpread)
		})
	}
}

func TestDeriveSidesAreExclusive(t *testing.T) {
	for _, spread := range []float64{-14, -7, -0.5, 0.5, 3, 10.5} {
		line := Derive(game(&store.Odds{Spread: store.Float(spread)}))
		require.True(t, line.HasFavorite())
		assert.NotEqual(t, line.FavTeam, line.DogTeam)
		assert.Equal(t, spread < 0, line.FavIsHome)
	}
}

func TestDeriveMatchesFullNameInDetails(t *testing.T) {
	line := Derive(game(&store.Odds{Details: "Cincinnati Bengals -1.5"}))
	assert.Equal(t, "4", line.FavTeamID)
	assert.Equal(t, -1.5, *line.FavSpread)
}
