package weather

import (
	"math"

	"github.com/fortuna/pythia/internal/league"
	"github.com/fortuna/pythia/internal/store"
)

// Risk levels.
const (
	LevelLow      = "low"
	LevelModerate = "moderate"
	LevelHigh     = "high"
)

type weights struct{ wind, rain, temp float64 }

func sportWeights(sport string) weights {
	switch sport {
	case "soccer", "mls", "epl":
		return weights{0.30, 0.45, 0.25}
	}
	lg, _ := league.Lookup(sport)
	switch lg.Sport {
	case league.Football:
		return weights{0.45, 0.35, 0.20}
	case league.Baseball:
		return weights{0.55, 0.30, 0.15}
	default:
		return weights{0.35, 0.35, 0.30}
	}
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func windRisk(mph float64) float64 { return clamp((mph-8)*4, 0, 100) }

func rainRisk(pct float64) float64 { return clamp(pct*0.7, 0, 100) }

func tempRisk(f float64) float64 {
	switch {
	case f < 32:
		return clamp((32-f)*2.2, 0, 100)
	case f > 90:
		return clamp((f-90)*2.0, 0, 100)
	}
	return 0
}

// ScoreRisk scores a forecast from 0 (benign) to 100 for the given league.
// Missing conditions contribute nothing. It returns nil for failed forecasts.
func ScoreRisk(sport string, w *store.Weather) *store.WeatherRisk {
	if !w.OK() {
		return nil
	}
	wt := sportWeights(sport)
	risk := &store.WeatherRisk{}

	var score float64
	if w.WindMph != nil {
		mph := *w.WindMph
		score += windRisk(mph) * wt.wind
		if mph >= 20 {
			risk.Tags = append(risk.Tags, "high_wind")
		}
		if mph > 15 {
			risk.Points++
		}
		if mph > 25 {
			risk.Points++
		}
	}
	if w.PrecipPct != nil {
		pct := *w.PrecipPct
		score += rainRisk(pct) * wt.rain
		if pct >= 50 {
			risk.Tags = append(risk.Tags, "rain")
		}
	}
	if w.TempF != nil {
		t := *w.TempF
		score += tempRisk(t) * wt.temp
		if t <= 32 {
			risk.Tags = append(risk.Tags, "freezing")
		}
		if t <= 20 {
			risk.Tags = append(risk.Tags, "extreme_cold")
		}
		if t >= 90 {
			risk.Tags = append(risk.Tags, "heat")
		}
		if t < 35 {
			risk.Points++
		}
		if t < 25 {
			risk.Points++
		}
	}

	risk.Score = math.Round(clamp(score, 0, 100)*10) / 10
	switch {
	case risk.Score >= 60:
		risk.Level = LevelHigh
	case risk.Score >= 30:
		risk.Level = LevelModerate
	default:
		risk.Level = LevelLow
	}
	return risk
}
