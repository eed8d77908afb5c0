package accuracy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fortuna/pythia/internal/logging"
	"github.com/fortuna/pythia/internal/store"
)

// PredictionStore is the part of the prediction repository the tracker uses.
type PredictionStore interface {
	ListUngraded(ctx context.Context, before time.Time) ([]*store.Prediction, error)
}

// ResultStore looks up final results.
type ResultStore interface {
	GetByGameID(ctx context.Context, gameID string) (*store.Result, error)
}

// PerformanceStore records an entry together with the predictions it graded.
// Either both are written or neither is.
type PerformanceStore interface {
	Record(ctx context.Context, entry *store.PerformanceEntry, gameIDs []string) error
}

// PerformanceLog appends entries to the performance_log.json snapshot.
type PerformanceLog interface {
	AppendPerformance(entry *store.PerformanceEntry) error
}

// Tracker grades every prediction whose game has a stored result.
type Tracker struct {
	predictions PredictionStore
	results     ResultStore
	performance PerformanceStore
	log         PerformanceLog
	logger      *zap.SugaredLogger
	now         func() time.Time
}

// NewTracker creates a tracker. log may be nil.
func NewTracker(predictions PredictionStore, results ResultStore, performance PerformanceStore, log PerformanceLog, logger *zap.Logger) *Tracker {
	return &Tracker{
		predictions: predictions,
		results:     results,
		performance: performance,
		log:         log,
		logger:      logging.OrNop(logger).Named("accuracy").Sugar(),
		now:         time.Now,
	}
}

// Run grades ungraded predictions for games that have started. Predictions
// without a collected result stay ungraded for the next run. The returned
// entry is nil when nothing was graded.
func (t *Tracker) Run(ctx context.Context) (*store.PerformanceEntry, error) {
	now := t.now().UTC()
	preds, err := t.predictions.ListUngraded(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("listing ungraded predictions: %w", err)
	}

	tally := NewTally()
	waiting := 0
	var graded []string
	for _, p := range preds {
		res, err := t.results.GetByGameID(ctx, p.GameID)
		if errors.Is(err, store.ErrNotFound) {
			waiting++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("loading result %s: %w", p.GameID, err)
		}

		tally.Add(p.Sport, Grade(p, res))
		graded = append(graded, p.GameID)
	}

	if tally.Graded() == 0 {
		t.logger.Infof("✓ nothing to grade (%d awaiting results)", waiting)
		return nil, nil
	}

	entry := tally.Entry(now)
	if err := t.performance.Record(ctx, entry, graded); err != nil {
		return nil, fmt.Errorf("recording performance: %w", err)
	}
	if t.log != nil {
		if err := t.log.AppendPerformance(entry); err != nil {
			t.logger.Warnf("⚠️  performance snapshot: %v", err)
		}
	}

	t.logger.Infof("✓ graded %d predictions: SU %d/%d (%.2f%%) ATS %d/%d (%.2f%%) OU %d/%d (%.2f%%), %d awaiting results",
		entry.Graded,
		entry.SU.Correct, entry.SU.Total, entry.SU.Pct,
		entry.ATS.Correct, entry.ATS.Total, entry.ATS.Pct,
		entry.OU.Correct, entry.OU.Total, entry.OU.Pct,
		waiting,
	)
	return entry, nil
}
