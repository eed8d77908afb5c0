package predict

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fortuna/pythia/internal/ingest/odds"
	"github.com/fortuna/pythia/internal/logging"
	"github.com/fortuna/pythia/internal/referee"
	"github.com/fortuna/pythia/internal/store"
)

// ModelWeight is the model's share of a blended probability.
const ModelWeight = 0.7

// Prediction sources.
const (
	SourceRule  = "rule"
	SourceBlend = "blend"
)

// Missing input names recorded on predictions.
const (
	MissingLine     = "line"
	MissingTotal    = "total"
	MissingWeather  = "weather"
	MissingInjuries = "injuries"
	MissingReferees = "referees"
)

// Blend mixes the rule and model percentages on the favorite/over scale. A
// nil model leaves the rule unchanged.
func Blend(rule float64, model *float64) float64 {
	if model == nil {
		return rule
	}
	return ModelWeight*(*model) + (1-ModelWeight)*rule
}

// Engine produces predictions. The model is optional and may be replaced
// while the engine is in use.
type Engine struct {
	model  atomic.Pointer[Model]
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewEngine creates an engine. Pass a nil model to run on rules alone.
func NewEngine(model *Model, logger *zap.Logger) *Engine {
	e := &Engine{
		logger: logging.OrNop(logger).Named("predict").Sugar(),
		now:    time.Now,
	}
	e.model.Store(model)
	return e
}

// SetModel swaps the model used by later predictions. nil reverts to rules.
func (e *Engine) SetModel(m *Model) {
	e.model.Store(m)
	if m != nil {
		e.logger.Infof("✓ model %s loaded (%d samples)", m.Version, m.Samples)
	}
}

// ModelVersion returns the loaded model's version, or "" without one.
func (e *Engine) ModelVersion() string {
	if m := e.model.Load(); m != nil {
		return m.Version
	}
	return ""
}

// PredictAll predicts every game that has not started by now and is not
// postponed. Started games keep the prediction made before kickoff. biasFor
// may be nil.
func (e *Engine) PredictAll(games []*store.Game, now time.Time, biasFor func(*store.Game) *referee.Bias) []*store.Prediction {
	preds := make([]*store.Prediction, 0, len(games))
	skipped := 0
	for _, g := range games {
		if g.Status == store.StatusPostponed {
			continue
		}
		if g.Started(now) {
			skipped++
			continue
		}
		var bias *referee.Bias
		if biasFor != nil {
			bias = biasFor(g)
		}
		preds = append(preds, e.Predict(g, bias))
	}
	e.logger.Infof("✓ %d predictions (source=%s, %d started games left as predicted)", len(preds), e.source(), skipped)
	return preds
}

func (e *Engine) source() string {
	if e.model.Load() != nil {
		return SourceBlend
	}
	return SourceRule
}

// Predict builds the SU, ATS and OU picks for one game.
func (e *Engine) Predict(g *store.Game, bias *referee.Bias) *store.Prediction {
	c := newContext(g, bias)
	rule := ruleScores(c, g)

	p := &store.Prediction{
		GameID:         g.ID,
		Sport:          g.Sport,
		Matchup:        g.Matchup(),
		StartTime:      g.StartTime,
		HomeTeam:       g.Home.Name,
		AwayTeam:       g.Away.Name,
		FavoriteIsHome: c.favIsHome,
		Source:         SourceRule,
		MissingInputs:  missingInputs(c, g),
		GeneratedAt:    e.now().UTC(),
	}
	if c.line.HasFavorite() {
		p.Favorite, p.Underdog = c.line.FavTeam, c.line.DogTeam
	}
	if c.hasSpread {
		p.Spread = store.Float(-c.spread)
	}
	if c.hasTotal {
		p.Total = store.Float(c.total)
	}

	favTeam, dogTeam := g.Home.Name, g.Away.Name
	if !c.favIsHome {
		favTeam, dogTeam = dogTeam, favTeam
	}

	model := e.model.Load()
	var x []float64
	if model != nil {
		x = features(c, g)
	}
	modelPct := func(market string) *float64 {
		if x == nil {
			return nil
		}
		pr, ok := model.Probability(market, x)
		if !ok {
			return nil
		}
		p.Source, p.ModelVersion = SourceBlend, model.Version
		return store.Float(100 * pr)
	}

	p.SU = sidePick(store.MarketSU, rule.SU, modelPct(store.MarketSU))
	p.SU.Selection = selectTeam(p.SU, favTeam, dogTeam) + " ML"
	p.SU.Side = side(p.SU, c.favIsHome)

	if rule.ATS != nil {
		p.ATS = sidePick(store.MarketATS, *rule.ATS, modelPct(store.MarketATS))
		spread := -c.spread
		if !favored(p.ATS) {
			spread = c.spread
		}
		p.ATS.Selection = selectTeam(p.ATS, favTeam, dogTeam) + " " + odds.FormatSpread(spread)
		p.ATS.Side = side(p.ATS, c.favIsHome)
	}

	if rule.OU != nil {
		p.OU = sidePick(store.MarketOU, *rule.OU, modelPct(store.MarketOU))
		p.OU.Side = store.SideOver
		p.OU.Selection = fmt.Sprintf("Over %g", c.total)
		if !favored(p.OU) {
			p.OU.Side = store.SideUnder
			p.OU.Selection = fmt.Sprintf("Under %g", c.total)
		}
	}

	p.ProjectedHome = round1((rule.ProjectedTotal + rule.HomeMargin) / 2)
	p.ProjectedAway = round1((rule.ProjectedTotal - rule.HomeMargin) / 2)
	return p
}

// sidePick turns favorite/over-scale percentages into a pick on whichever
// side is above 50, clamped to the published confidence range.
func sidePick(market string, rule float64, model *float64) *store.Pick {
	blended := Blend(rule, model)
	pick := &store.Pick{
		Market:      market,
		Probability: math.Round(blended*100) / 10000,
	}
	onSide := func(v float64) float64 {
		if favored(pick) {
			return v
		}
		return 100 - v
	}
	pick.Confidence = round1(clamp(onSide(blended), MinConfidence, MaxConfidence))
	pick.Rule = round1(onSide(rule))
	if model != nil {
		pick.Model = store.Float(round1(onSide(*model)))
	}
	return pick
}

// favored reports whether the pick is on the favorite (SU/ATS) or the over.
func favored(p *store.Pick) bool { return p.Probability >= 0.5 }

func selectTeam(p *store.Pick, fav, dog string) string {
	if favored(p) {
		return fav
	}
	return dog
}

func side(p *store.Pick, favIsHome bool) string {
	if favored(p) == favIsHome {
		return store.SideHome
	}
	return store.SideAway
}

func missingInputs(c gameContext, g *store.Game) []string {
	missing := []string{}
	if !c.hasSpread {
		missing = append(missing, MissingLine)
	}
	if !c.hasTotal {
		missing = append(missing, MissingTotal)
	}
	if c.outdoor && !g.Weather.OK() {
		missing = append(missing, MissingWeather)
	}
	if !c.injuries {
		missing = append(missing, MissingInjuries)
	}
	if c.bias == nil {
		missing = append(missing, MissingReferees)
	}
	return missing
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
