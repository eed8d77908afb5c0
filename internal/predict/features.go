package predict

import (
	"github.com/fortuna/pythia/internal/referee"
	"github.com/fortuna/pythia/internal/store"
)

// FeatureNames is the model column order. A model trained on another layout
// is rejected at load time.
var FeatureNames = []string{
	"spread",
	"total",
	"fav_home",
	"home_injuries",
	"away_injuries",
	"temp_f",
	"wind_mph",
	"precip_pct",
	"indoor",
	"ref_over_pct",
	"ref_fav_cover_pct",
	"home_adv",
}

// Neutral values used when an input is missing.
const (
	neutralTempF  = 60.0
	neutralRefPct = 50.0
	indoorTempF   = 70.0
)

// Features builds the model input vector for a game.
func Features(g *store.Game, bias *referee.Bias) []float64 {
	return features(newContext(g, bias), g)
}

func features(c gameContext, g *store.Game) []float64 {
	x := make([]float64, len(FeatureNames))
	x[0] = c.spread
	x[1] = c.total
	if c.favIsHome {
		x[2] = 1
	}
	x[3] = weighted(g.HomeInjuries)
	x[4] = weighted(g.AwayInjuries)

	x[5] = neutralTempF
	if !c.outdoor {
		x[5] = indoorTempF
		x[8] = 1
	}
	if w := c.weather; w != nil {
		if w.TempF != nil {
			x[5] = *w.TempF
		}
		if w.WindMph != nil {
			x[6] = *w.WindMph
		}
		if w.PrecipPct != nil {
			x[7] = *w.PrecipPct
		}
	}

	x[9], x[10] = neutralRefPct, neutralRefPct
	if c.bias != nil {
		x[9], x[10] = c.bias.OverPct, c.bias.FavCoverPct
	}
	x[11] = c.league.HomeAdvantage
	return x
}
