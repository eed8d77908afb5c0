package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fortuna/pythia/internal/store"
)

// PredictionReader is the read side of the prediction repository.
type PredictionReader interface {
	GetByGameID(ctx context.Context, gameID string) (*store.Prediction, error)
	ListLatest(ctx context.Context, sport, market string, minConfidence float64, limit int) ([]*store.Prediction, error)
}

// PredictionService serves picks. The in-memory slate wins when present
// since it is at least as fresh as the database.
type PredictionService struct {
	predictions PredictionReader
	slate       SlateSource
}

// NewPredictionService creates a prediction service; either source may be nil.
func NewPredictionService(predictions PredictionReader, slate SlateSource) *PredictionService {
	return &PredictionService{predictions: predictions, slate: slate}
}

// PredictionQuery filters ListPredictions. With Market set, MinConfidence
// applies to that market's pick; otherwise to the highest pick.
type PredictionQuery struct {
	Sport         string
	Market        string
	MinConfidence float64
	Limit         int
}

func (q PredictionQuery) matches(p *store.Prediction) bool {
	if q.Sport != "" && p.Sport != q.Sport {
		return false
	}
	if q.Market == "" {
		return p.MaxConfidence() >= q.MinConfidence
	}
	for _, pk := range p.Picks() {
		if pk.Market == q.Market {
			return pk.Confidence >= q.MinConfidence
		}
	}
	return false
}

// ListPredictions returns predictions ordered by start time.
func (s *PredictionService) ListPredictions(ctx context.Context, q PredictionQuery) ([]*store.Prediction, error) {
	q.Sport = strings.ToLower(q.Sport)
	q.Market = strings.ToLower(q.Market)
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}

	if latest := s.latest(); latest != nil {
		out := make([]*store.Prediction, 0, len(latest))
		for _, p := range latest {
			if q.matches(p) {
				out = append(out, p)
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
		return limit(out, q.Limit), nil
	}

	if s.predictions == nil {
		return []*store.Prediction{}, nil
	}
	preds, err := s.predictions.ListLatest(ctx, q.Sport, q.Market, q.MinConfidence, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("fetching predictions: %w", err)
	}
	return preds, nil
}

// GetPrediction returns the prediction for one game.
func (s *PredictionService) GetPrediction(ctx context.Context, gameID string) (*store.Prediction, error) {
	for _, p := range s.latest() {
		if p.GameID == gameID {
			return p, nil
		}
	}
	if s.predictions == nil {
		return nil, fmt.Errorf("prediction %s: %w", gameID, store.ErrNotFound)
	}
	return s.predictions.GetByGameID(ctx, gameID)
}

func (s *PredictionService) latest() []*store.Prediction {
	if s.slate == nil {
		return nil
	}
	if slate := s.slate.Latest(); slate != nil {
		return slate.Predictions
	}
	return nil
}
