// Package predict turns an enriched game into SU, ATS and OU picks. A rule
// baseline always runs; when a trained logistic model is loaded its
// probabilities are blended on top.
package predict

import (
	"math"

	"github.com/atgjack/prob"

	"github.com/fortuna/pythia/internal/favorite"
	"github.com/fortuna/pythia/internal/league"
	"github.com/fortuna/pythia/internal/referee"
	"github.com/fortuna/pythia/internal/store"
)

// Confidence bounds applied to every published pick.
const (
	MinConfidence = 50.0
	MaxConfidence = 95.0
)

const (
	suScale          = 24.0
	suDecay          = 6.5
	injuryWeight     = 1.5
	injuryCap        = 6.0
	injuryMarginRate = 0.5
	injuryMarginCap  = 3.0
	weatherTotalDrag = 0.07
	weatherATSPull   = 0.5
	crewBiasRate     = 0.1
)

// RuleScores are rule-based probabilities in percent. SU and ATS are on the
// reference side's scale (the favorite, or the home team without one); OU is
// on the over's scale. ATS and OU are nil when the market is absent.
type RuleScores struct {
	SU  float64
	ATS *float64
	OU  *float64

	// HomeMargin and ProjectedTotal drive the projected score.
	HomeMargin     float64
	ProjectedTotal float64
}

// gameContext is everything the rules and the features read from a game.
type gameContext struct {
	league    league.League
	line      store.Line
	favIsHome bool

	spread    float64
	hasSpread bool
	total     float64
	hasTotal  bool

	outdoor   bool
	weather   *store.Weather
	risk      float64
	favInjury float64
	dogInjury float64
	injuries  bool

	bias *referee.Bias
}

func newContext(g *store.Game, bias *referee.Bias) gameContext {
	lg, _ := league.Lookup(g.Sport)
	line := g.Line
	if line.Basis == "" {
		line = favorite.Derive(g)
	}

	c := gameContext{
		league:    lg,
		line:      line,
		favIsHome: true,
		total:     lg.BaselineTotal,
		outdoor:   !lg.AlwaysIndoor && !g.Venue.IsIndoor(),
		bias:      bias,
	}
	if line.HasFavorite() {
		c.favIsHome = line.FavIsHome
	}
	if line.FavSpread != nil {
		c.spread, c.hasSpread = math.Abs(*line.FavSpread), true
	}
	if g.Odds != nil && g.Odds.Total != nil && *g.Odds.Total > 0 {
		c.total, c.hasTotal = *g.Odds.Total, true
	}
	if c.outdoor && g.Weather.OK() {
		c.weather = g.Weather
		if g.Weather.Risk != nil {
			c.risk = g.Weather.Risk.Score / 100
		}
	}

	home, away := g.HomeInjuries, g.AwayInjuries
	c.injuries = home != nil || away != nil
	homeW, awayW := weighted(home), weighted(away)
	if c.favIsHome {
		c.favInjury, c.dogInjury = homeW, awayW
	} else {
		c.favInjury, c.dogInjury = awayW, homeW
	}
	return c
}

func weighted(s *store.InjurySummary) float64 {
	if s == nil {
		return 0
	}
	return s.Weighted
}

// RuleConfidence computes the rule baseline for a game.
func RuleConfidence(g *store.Game, bias *referee.Bias) RuleScores {
	return ruleScores(newContext(g, bias), g)
}

func ruleScores(c gameContext, g *store.Game) RuleScores {
	var out RuleScores

	injuryTerm := clamp((c.dogInjury-c.favInjury)*injuryWeight, -injuryCap, injuryCap)
	injuryMargin := clamp((c.dogInjury-c.favInjury)*injuryMarginRate, -injuryMarginCap, injuryMarginCap)

	switch {
	case c.hasSpread:
		out.SU = 50 + suScale*(1-math.Exp(-c.spread/suDecay))
	case c.line.Basis == store.BasisMoneyline && c.line.HasFavorite():
		out.SU = moneylineFavorite(g.Odds)
	default:
		out.SU = 50 + c.league.HomeAdvantage
	}
	out.SU += injuryTerm + weatherTerm(c.weather)

	homeEdge := c.league.HomeAdvantage / 2
	if !c.favIsHome {
		homeEdge = -homeEdge
	}
	margin := c.spread + homeEdge + injuryMargin

	if c.hasSpread {
		ats := 100 * coverProbability(margin-c.spread, c.league.MarginSigma)
		if c.outdoor && c.risk > 0 {
			ats = 50 + (ats-50)*(1-weatherATSPull*c.risk)
		}
		if c.bias != nil {
			ats += (c.bias.FavCoverPct - 50) * crewBiasRate
		}
		out.ATS = store.Float(ats)
	}

	out.ProjectedTotal = c.total
	if c.outdoor {
		out.ProjectedTotal = c.total * (1 - weatherTotalDrag*c.risk)
	}
	if c.hasTotal {
		ou := 100 * coverProbability(out.ProjectedTotal-c.total, c.league.TotalSigma)
		if c.bias != nil {
			ou += (c.bias.OverPct - 50) * crewBiasRate
		}
		out.OU = store.Float(ou)
	}

	out.HomeMargin = margin
	if !c.favIsHome {
		out.HomeMargin = -margin
	}
	return out
}

// coverProbability is P(X > 0) for X ~ Normal(mu, sigma).
func coverProbability(mu, sigma float64) float64 {
	if sigma <= 0 {
		return 0.5
	}
	return 1 - prob.Normal{Mu: mu, Sigma: sigma}.Cdf(0)
}

func weatherTerm(w *store.Weather) float64 {
	if w == nil {
		return 0
	}
	term := 0.0
	if w.WindMph != nil && *w.WindMph > 15 {
		term -= 2
	}
	if w.PrecipPct != nil && *w.PrecipPct >= 50 {
		term -= 1.5
	}
	if w.TempF != nil && *w.TempF <= 25 {
		term -= 1
	}
	return term
}

// moneylineFavorite is the favorite's no-vig implied win probability in percent.
func moneylineFavorite(o *store.Odds) float64 {
	if o == nil || o.HomeMoneyline == nil || o.AwayMoneyline == nil {
		return 50
	}
	home, away := implied(*o.HomeMoneyline), implied(*o.AwayMoneyline)
	if home+away == 0 {
		return 50
	}
	return 100 * math.Max(home, away) / (home + away)
}

func implied(american float64) float64 {
	switch {
	case american < 0:
		return -american / (-american + 100)
	case american > 0:
		return 100 / (american + 100)
	}
	return 0
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
