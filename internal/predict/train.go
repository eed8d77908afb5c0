package predict

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/fortuna/pythia/internal/referee"
	"github.com/fortuna/pythia/internal/store"
)

// ErrInsufficientData is returned when no market has enough labeled samples.
var ErrInsufficientData = errors.New("predict: insufficient training data")

// Sample is one labeled historical game. A nil label excludes the sample
// from that market (pushes, missing lines).
type Sample struct {
	GameID   string
	Features []float64
	SU       *bool
	ATS      *bool
	OU       *bool
}

func (s Sample) label(market string) *bool {
	switch market {
	case store.MarketSU:
		return s.SU
	case store.MarketATS:
		return s.ATS
	case store.MarketOU:
		return s.OU
	}
	return nil
}

// TrainOptions controls the gradient descent fit.
type TrainOptions struct {
	LearningRate float64
	Iterations   int
	L2           float64
	MinSamples   int
	Now          func() time.Time
}

// DefaultTrainOptions returns the standard fit settings.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		LearningRate: 0.1,
		Iterations:   500,
		L2:           1e-3,
		MinSamples:   40,
		Now:          time.Now,
	}
}

// SampleFromResult rebuilds the pre-game view of a completed game so that it
// can be featurized the same way as an upcoming one. Weather and injuries are
// not stored with results and take their neutral values.
func SampleFromResult(r *store.Result, bias *referee.Bias) Sample {
	g := &store.Game{
		ID:    r.GameID,
		Sport: r.Sport,
		Home:  store.Team{Name: r.HomeTeam},
		Away:  store.Team{Name: r.AwayTeam},
		Odds:  &store.Odds{Total: r.TotalLine},
		Line:  store.Line{Basis: store.BasisNone},
	}
	if r.FavTeam != "" {
		g.Line = store.Line{
			FavTeam:   r.FavTeam,
			DogTeam:   r.DogTeam,
			FavIsHome: r.FavIsHome,
			FavSpread: r.FavSpread,
			Basis:     store.BasisSpread,
		}
		if r.FavSpread == nil {
			g.Line.Basis = store.BasisMoneyline
		} else {
			g.Line.DogSpread = store.Float(-*r.FavSpread)
		}
	}

	s := Sample{GameID: r.GameID, Features: Features(g, bias)}
	favWon := r.HomeWin
	if r.FavTeam != "" && !r.FavIsHome {
		favWon = r.AwayScore > r.HomeScore
	}
	if r.HomeScore != r.AwayScore {
		s.SU = store.Bool(favWon)
	}
	s.ATS, s.OU = r.FavCover, r.Over
	return s
}

// SamplesFromResults featurizes every result with the crew bias of its
// officials, computed over the same result set.
func SamplesFromResults(results []*store.Result, minRefereeGames int) []Sample {
	trends := referee.BuildTrends(results)
	samples := make([]Sample, 0, len(results))
	for _, r := range results {
		samples = append(samples, SampleFromResult(r, referee.CrewBias(trends, r.Referees, minRefereeGames)))
	}
	return samples
}

// Train fits one logistic regression per market on standardized features.
// Markets with fewer than MinSamples labels are left out of the model; if
// every market is short, ErrInsufficientData is returned.
func Train(samples []Sample, opts TrainOptions) (*Model, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples: %w", ErrInsufficientData)
	}
	for _, s := range samples {
		if len(s.Features) != len(FeatureNames) {
			return nil, fmt.Errorf("sample %s has %d features, expected %d", s.GameID, len(s.Features), len(FeatureNames))
		}
	}

	mean, std := scaler(samples)
	trainedAt := opts.Now().UTC()
	m := &Model{
		Version:   "logit-" + trainedAt.Format("20060102T1504"),
		TrainedAt: trainedAt,
		Samples:   len(samples),
		Features:  append([]string(nil), FeatureNames...),
		Mean:      mean,
		Std:       std,
		Markets:   make(map[string]*Coefficients),
	}

	var short []string
	for _, market := range []string{store.MarketSU, store.MarketATS, store.MarketOU} {
		var (
			xs [][]float64
			ys []float64
		)
		for _, s := range samples {
			y := s.label(market)
			if y == nil {
				continue
			}
			xs = append(xs, m.scale(s.Features))
			if *y {
				ys = append(ys, 1)
			} else {
				ys = append(ys, 0)
			}
		}
		if len(xs) < opts.MinSamples {
			short = append(short, fmt.Sprintf("%s=%d", market, len(xs)))
			continue
		}
		m.Markets[market] = fit(xs, ys, opts)
	}

	if len(m.Markets) == 0 {
		return nil, fmt.Errorf("need %d labeled samples per market, have %v: %w", opts.MinSamples, short, ErrInsufficientData)
	}
	return m, nil
}

func scaler(samples []Sample) ([]float64, []float64) {
	n := float64(len(samples))
	mean := make([]float64, len(FeatureNames))
	std := make([]float64, len(FeatureNames))
	for _, s := range samples {
		for i, v := range s.Features {
			mean[i] += v / n
		}
	}
	for _, s := range samples {
		for i, v := range s.Features {
			d := v - mean[i]
			std[i] += d * d / n
		}
	}
	for i := range std {
		std[i] = math.Sqrt(std[i])
	}
	return mean, std
}

// fit runs batch gradient descent with L2 regularization on the weights.
func fit(xs [][]float64, ys []float64, opts TrainOptions) *Coefficients {
	n := float64(len(xs))
	w := make([]float64, len(xs[0]))
	b := 0.0
	grad := make([]float64, len(w))

	for iter := 0; iter < opts.Iterations; iter++ {
		for i := range grad {
			grad[i] = opts.L2 * w[i]
		}
		gradB := 0.0
		for k, x := range xs {
			diff := sigmoid(dot(w, x)+b) - ys[k]
			for i := range x {
				grad[i] += diff * x[i] / n
			}
			gradB += diff / n
		}
		for i := range w {
			w[i] -= opts.LearningRate * grad[i]
		}
		b -= opts.LearningRate * gradB
	}

	correct := 0
	for k, x := range xs {
		if (sigmoid(dot(w, x)+b) >= 0.5) == (ys[k] == 1) {
			correct++
		}
	}
	return &Coefficients{
		Weights:  w,
		Bias:     b,
		Samples:  len(xs),
		Accuracy: math.Round(float64(correct)/n*10000) / 10000,
	}
}
