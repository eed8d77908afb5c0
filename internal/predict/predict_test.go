package predict

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/pythia/internal/referee"
	"github.com/fortuna/pythia/internal/store"
)

var kickoff = time.Date(2025, 11, 16, 18, 0, 0, 0, time.UTC)

func nflGame() *store.Game {
	return &store.Game{
		ID:        "401772",
		Sport:     "nfl",
		StartTime: kickoff,
		Status:    store.StatusScheduled,
		Home:      store.Team{ID: "12", Name: "Kansas City Chiefs", Abbreviation: "KC"},
		Away:      store.Team{ID: "4", Name: "Cincinnati Bengals", Abbreviation: "CIN"},
		Odds: &store.Odds{
			Details: "KC -6.5",
			Spread:  store.Float(-6.5),
			Total:   store.Float(47.5),
		},
		Venue: store.Venue{Name: "GEHA Field at Arrowhead Stadium", Indoor: store.Bool(false)},
	}
}

func newTestEngine(m *Model) *Engine {
	e := NewEngine(m, nil)
	e.now = func() time.Time { return kickoff.Add(-24 * time.Hour) }
	return e
}

func TestPredictRuleBaseline(t *testing.T) {
	p := newTestEngine(nil).Predict(nflGame(), nil)

	assert.Equal(t, "CIN@KC", p.Matchup)
	assert.Equal(t, "Kansas City Chiefs", p.Favorite)
	assert.Equal(t, "Cincinnati Bengals", p.Underdog)
	assert.True(t, p.FavoriteIsHome)
	require.NotNil(t, p.Spread)
	assert.Equal(t, -6.5, *p.Spread)
	assert.Equal(t, SourceRule, p.Source)
	assert.Empty(t, p.ModelVersion)
	assert.Equal(t, []string{MissingWeather, MissingInjuries, MissingReferees}, p.MissingInputs)

	require.NotNil(t, p.SU)
	assert.Equal(t, "Kansas City Chiefs ML", p.SU.Selection)
	assert.Equal(t, store.SideHome, p.SU.Side)
	assert.InDelta(t, 65.2, p.SU.Confidence, 0.05)
	assert.Nil(t, p.SU.Model)

	require.NotNil(t, p.ATS)
	assert.Equal(t, "Kansas City Chiefs -6.5", p.ATS.Selection)
	assert.InDelta(t, 53.0, p.ATS.Confidence, 0.05)

	require.NotNil(t, p.OU)
	assert.Equal(t, "Over 47.5", p.OU.Selection)
	assert.Equal(t, store.SideOver, p.OU.Side)
	assert.InDelta(t, 50.0, p.OU.Confidence, 0.05)

	assert.InDelta(t, 27.5, p.ProjectedHome, 0.05)
	assert.InDelta(t, 20.0, p.ProjectedAway, 0.05)
	assert.Equal(t, kickoff.Add(-24*time.Hour), p.GeneratedAt)
}

func TestPredictAwayFavoriteTakesHomeUnderdogATS(t *testing.T) {
	g := nflGame()
	g.Odds = &store.Odds{Details: "CIN -3", Spread: store.Float(3), Total: store.Float(47.5)}

	p := newTestEngine(nil).Predict(g, nil)

	assert.Equal(t, "Cincinnati Bengals", p.Favorite)
	assert.False(t, p.FavoriteIsHome)
	assert.Equal(t, "Cincinnati Bengals ML", p.SU.Selection)
	assert.Equal(t, store.SideAway, p.SU.Side)
	assert.InDelta(t, 58.9, p.SU.Confidence, 0.05)

	// the favorite gives up home advantage, so the dog covers
	assert.Equal(t, "Kansas City Chiefs +3", p.ATS.Selection)
	assert.Equal(t, store.SideHome, p.ATS.Side)
	assert.InDelta(t, 53.0, p.ATS.Confidence, 0.05)
	assert.InDelta(t, 53.0, p.ATS.Rule, 0.05)
	assert.Less(t, p.ATS.Probability, 0.5)
}

func TestPredictWeatherAdjustments(t *testing.T) {
	g := nflGame()
	g.Weather = &store.Weather{
		Source:    "nws",
		TempF:     store.Float(20),
		WindMph:   store.Float(22),
		PrecipPct: store.Float(60),
		Risk:      &store.WeatherRisk{Score: 50, Level: "moderate"},
	}

	p := newTestEngine(nil).Predict(g, nil)

	assert.Equal(t, []string{MissingInjuries, MissingReferees}, p.MissingInputs)
	assert.InDelta(t, 60.7, p.SU.Confidence, 0.05)
	assert.InDelta(t, 52.2, p.ATS.Confidence, 0.05)
	assert.Equal(t, "Under 47.5", p.OU.Selection)
	assert.Equal(t, store.SideUnder, p.OU.Side)
	assert.InDelta(t, 56.6, p.OU.Confidence, 0.05)
}

func TestPredictIndoorIgnoresWeather(t *testing.T) {
	g := nflGame()
	g.Sport = "nba"
	g.Odds = &store.Odds{Spread: store.Float(-6.5), Total: store.Float(226.5)}
	g.Weather = &store.Weather{WindMph: store.Float(30), TempF: store.Float(10)}

	p := newTestEngine(nil).Predict(g, nil)

	assert.NotContains(t, p.MissingInputs, MissingWeather)
	assert.InDelta(t, 65.2, p.SU.Confidence, 0.05)
}

func TestPredictInjuriesAndCrewBias(t *testing.T) {
	g := nflGame()
	g.HomeInjuries = &store.InjurySummary{Out: 1, Weighted: 1}
	g.AwayInjuries = &store.InjurySummary{Out: 3, Weighted: 3}
	bias := &referee.Bias{OverPct: 70, FavCoverPct: 60, Officials: []string{"Bill Vinovich"}}

	p := newTestEngine(nil).Predict(g, bias)

	assert.Equal(t, []string{MissingWeather}, p.MissingInputs)
	assert.InDelta(t, 68.2, p.SU.Confidence, 0.05)
	// injury margin +1 and crew cover bias +1
	assert.InDelta(t, 56.9, p.ATS.Confidence, 0.05)
	assert.Equal(t, "Over 47.5", p.OU.Selection)
	assert.InDelta(t, 52.0, p.OU.Confidence, 0.05)
}

func TestPredictWithoutMarket(t *testing.T) {
	g := nflGame()
	g.Odds = nil

	p := newTestEngine(nil).Predict(g, nil)

	assert.Equal(t, []string{MissingLine, MissingTotal, MissingWeather, MissingInjuries, MissingReferees}, p.MissingInputs)
	assert.Empty(t, p.Favorite)
	assert.Nil(t, p.Spread)
	assert.Nil(t, p.Total)
	assert.Nil(t, p.ATS)
	assert.Nil(t, p.OU)

	require.NotNil(t, p.SU)
	assert.Equal(t, "Kansas City Chiefs ML", p.SU.Selection)
	assert.InDelta(t, 52.0, p.SU.Confidence, 0.05)
	assert.InDelta(t, 22.5, p.ProjectedHome, 0.05)
	assert.InDelta(t, 21.5, p.ProjectedAway, 0.05)
}

func TestPredictMoneylineOnly(t *testing.T) {
	g := &store.Game{
		ID:    "600041",
		Sport: "ufc",
		Home:  store.Team{Name: "Islam Makhachev"},
		Away:  store.Team{Name: "Jack Della Maddalena"},
		Odds:  &store.Odds{HomeMoneyline: store.Float(-200), AwayMoneyline: store.Float(170)},
	}

	p := newTestEngine(nil).Predict(g, nil)

	assert.Equal(t, "Islam Makhachev", p.Favorite)
	assert.Equal(t, "Islam Makhachev ML", p.SU.Selection)
	assert.InDelta(t, 64.3, p.SU.Confidence, 0.05)
	assert.Nil(t, p.ATS)
	assert.Nil(t, p.OU)
	assert.Equal(t, []string{MissingLine, MissingTotal, MissingInjuries, MissingReferees}, p.MissingInputs)
}

func TestPredictPickemATS(t *testing.T) {
	g := nflGame()
	g.Odds = &store.Odds{Details: "EVEN", Spread: store.Float(0), Total: store.Float(41)}

	p := newTestEngine(nil).Predict(g, nil)

	assert.Empty(t, p.Favorite)
	require.NotNil(t, p.ATS)
	assert.Equal(t, "Kansas City Chiefs PK", p.ATS.Selection)
	assert.Equal(t, store.SideHome, p.ATS.Side)
}

func constantModel(suProb float64) *Model {
	n := len(FeatureNames)
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	return &Model{
		Version:  "test-v1",
		Features: append([]string(nil), FeatureNames...),
		Mean:     make([]float64, n),
		Std:      ones,
		Markets: map[string]*Coefficients{
			store.MarketSU: {Weights: make([]float64, n), Bias: logit(suProb)},
		},
	}
}

func logit(p float64) float64 { return math.Log(p / (1 - p)) }

func TestPredictBlendsModel(t *testing.T) {
	p := newTestEngine(constantModel(0.8)).Predict(nflGame(), nil)

	assert.Equal(t, SourceBlend, p.Source)
	assert.Equal(t, "test-v1", p.ModelVersion)

	require.NotNil(t, p.SU.Model)
	assert.InDelta(t, 80.0, *p.SU.Model, 0.05)
	assert.InDelta(t, 65.2, p.SU.Rule, 0.05)
	assert.InDelta(t, 75.6, p.SU.Confidence, 0.05)

	// no ATS weights in the artifact
	assert.Nil(t, p.ATS.Model)
	assert.InDelta(t, 53.0, p.ATS.Confidence, 0.05)
}

func TestEngineSetModel(t *testing.T) {
	e := newTestEngine(nil)
	assert.Empty(t, e.ModelVersion())

	e.SetModel(constantModel(0.8))
	assert.Equal(t, "test-v1", e.ModelVersion())
	assert.Equal(t, SourceBlend, e.Predict(nflGame(), nil).Source)

	e.SetModel(nil)
	assert.Equal(t, SourceRule, e.Predict(nflGame(), nil).Source)
}

func TestBlendAndClamp(t *testing.T) {
	assert.Equal(t, 60.0, Blend(60, nil))
	assert.InDelta(t, 74.0, Blend(60, store.Float(80)), 1e-9)

	high := sidePick(store.MarketSU, 99, nil)
	assert.Equal(t, MaxConfidence, high.Confidence)
	assert.True(t, favored(high))

	low := sidePick(store.MarketSU, 2, nil)
	assert.Equal(t, MaxConfidence, low.Confidence)
	assert.InDelta(t, 98.0, low.Rule, 1e-9)
	assert.False(t, favored(low))

	even := sidePick(store.MarketOU, 50, nil)
	assert.Equal(t, MinConfidence, even.Confidence)
}

func TestFeatures(t *testing.T) {
	x := Features(nflGame(), nil)
	assert.Equal(t, []float64{6.5, 47.5, 1, 0, 0, 60, 0, 0, 0, 50, 50, 2}, x)

	g := nflGame()
	g.Sport = "nhl"
	g.Odds = &store.Odds{Details: "CIN -1.5", Spread: store.Float(1.5)}
	bias := &referee.Bias{OverPct: 55, FavCoverPct: 45}
	x = Features(g, bias)
	assert.Equal(t, []float64{1.5, 6.3, 0, 0, 0, 70, 0, 0, 1, 55, 45, 0.3}, x)
}

func trainingSamples(n int) []Sample {
	samples := make([]Sample, 0, n)
	for i := 0; i < n; i++ {
		spread := float64(i % 15)
		x := Features(nflGame(), nil)
		x[0] = spread
		samples = append(samples, Sample{
			GameID:   string(rune('a' + i%26)),
			Features: x,
			SU:       store.Bool(spread >= 7),
			ATS:      store.Bool(i%2 == 0),
		})
	}
	return samples
}

func TestTrain(t *testing.T) {
	opts := DefaultTrainOptions()
	opts.Now = func() time.Time { return kickoff }

	m, err := Train(trainingSamples(150), opts)
	require.NoError(t, err)

	assert.Equal(t, "logit-20251116T1800", m.Version)
	assert.Equal(t, 150, m.Samples)
	assert.Contains(t, m.Markets, store.MarketSU)
	assert.Contains(t, m.Markets, store.MarketATS)
	assert.NotContains(t, m.Markets, store.MarketOU)
	assert.Greater(t, m.Markets[store.MarketSU].Weights[0], 0.0)
	assert.Greater(t, m.Markets[store.MarketSU].Accuracy, 0.8)

	big := Features(nflGame(), nil)
	big[0] = 14
	small := Features(nflGame(), nil)
	small[0] = 0
	pBig, ok := m.Probability(store.MarketSU, big)
	require.True(t, ok)
	pSmall, _ := m.Probability(store.MarketSU, small)
	assert.Greater(t, pBig, 0.5)
	assert.Less(t, pSmall, 0.5)

	_, ok = m.Probability(store.MarketOU, big)
	assert.False(t, ok)
}

func TestTrainInsufficientData(t *testing.T) {
	_, err := Train(trainingSamples(10), DefaultTrainOptions())
	assert.True(t, errors.Is(err, ErrInsufficientData))

	_, err = Train(nil, DefaultTrainOptions())
	assert.True(t, errors.Is(err, ErrInsufficientData))
}

func TestSampleFromResult(t *testing.T) {
	r := &store.Result{
		GameID:    "401772",
		Sport:     "nfl",
		HomeTeam:  "Kansas City Chiefs",
		AwayTeam:  "Cincinnati Bengals",
		FavTeam:   "Kansas City Chiefs",
		DogTeam:   "Cincinnati Bengals",
		FavIsHome: true,
		FavSpread: store.Float(-6.5),
		TotalLine: store.Float(47.5),
		HomeScore: 27,
		AwayScore: 20,
	}
	r.Label()

	s := SampleFromResult(r, nil)
	assert.Equal(t, 6.5, s.Features[0])
	assert.Equal(t, 47.5, s.Features[1])
	assert.Equal(t, 1.0, s.Features[2])
	require.NotNil(t, s.SU)
	assert.True(t, *s.SU)
	require.NotNil(t, s.ATS)
	assert.True(t, *s.ATS)
	require.NotNil(t, s.OU)
	assert.False(t, *s.OU)
}

func TestSamplesFromResultsCrewBias(t *testing.T) {
	result := func(id string, home, away int, refs ...string) *store.Result {
		r := &store.Result{
			GameID:    id,
			Sport:     "nfl",
			HomeTeam:  "Kansas City Chiefs",
			AwayTeam:  "Cincinnati Bengals",
			FavTeam:   "Kansas City Chiefs",
			DogTeam:   "Cincinnati Bengals",
			FavIsHome: true,
			FavSpread: store.Float(-2.5),
			TotalLine: store.Float(40.5),
			HomeScore: home,
			AwayScore: away,
			Referees:  refs,
		}
		r.Label()
		return r
	}
	results := []*store.Result{
		result("1", 27, 20, "Shawn Smith"),
		result("2", 17, 14, "Shawn Smith"),
		result("3", 24, 10),
	}

	samples := SamplesFromResults(results, 2)
	require.Len(t, samples, 3)
	assert.Equal(t, 50.0, samples[0].Features[9])
	assert.Equal(t, 100.0, samples[0].Features[10])
	assert.Equal(t, samples[0].Features[9:11], samples[1].Features[9:11])
	assert.Equal(t, []float64{50, 50}, samples[2].Features[9:11])

	// below the threshold the crew contributes nothing
	neutral := SamplesFromResults(results, referee.DefaultMinGames)
	assert.Equal(t, []float64{50, 50}, neutral[0].Features[9:11])
}

func TestSaveAndLoadModel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "models", "model.json")

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrNoModel)

	m := constantModel(0.6)
	require.NoError(t, SaveModel(m, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test-v1", loaded.Version)
	pr, ok := loaded.Probability(store.MarketSU, make([]float64, len(FeatureNames)))
	require.True(t, ok)
	assert.InDelta(t, 0.6, pr, 1e-9)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoadRejectsForeignLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"features":["spread"],"mean":[0],"std":[1]}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoModel))
}

func TestPredictAllSkipsStartedGames(t *testing.T) {
	upcoming := nflGame()

	live := nflGame()
	live.ID = "401773"
	live.Status = store.StatusInProgress

	lateStatus := nflGame()
	lateStatus.ID = "401774"
	lateStatus.StartTime = kickoff.Add(-time.Hour)

	postponed := nflGame()
	postponed.ID = "401775"
	postponed.Status = store.StatusPostponed

	e := newTestEngine(nil)
	preds := e.PredictAll([]*store.Game{upcoming, live, lateStatus, postponed}, kickoff.Add(-30*time.Minute), nil)
	require.Len(t, preds, 1)
	assert.Equal(t, upcoming.ID, preds[0].GameID)

	assert.Empty(t, e.PredictAll([]*store.Game{upcoming}, kickoff, nil))
}
