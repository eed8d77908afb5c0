package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fortuna/pythia/internal/referee"
	"github.com/fortuna/pythia/internal/snapshot"
	"github.com/fortuna/pythia/internal/store"
)

// ResultLister supplies historical results for referee trends.
type ResultLister interface {
	ListAll(ctx context.Context) ([]*store.Result, error)
}

// PerformanceReader lists performance log entries, newest first.
type PerformanceReader interface {
	ListRecent(ctx context.Context, limit int) ([]*store.PerformanceEntry, error)
}

// AnalyticsService handles referee trends and prediction accuracy
type AnalyticsService struct {
	results     ResultLister
	performance PerformanceReader
	snapshots   *snapshot.Reader
	slate       SlateSource
}

// NewAnalyticsService creates an analytics service. Without a database the
// performance log is read from the snapshot directory.
func NewAnalyticsService(results ResultLister, performance PerformanceReader, snapshots *snapshot.Reader, slate SlateSource) *AnalyticsService {
	return &AnalyticsService{
		results:     results,
		performance: performance,
		snapshots:   snapshots,
		slate:       slate,
	}
}

// RefereeTrends returns officials with at least minGames graded games.
func (s *AnalyticsService) RefereeTrends(ctx context.Context, minGames int) ([]store.RefereeTrend, error) {
	if minGames <= 0 {
		minGames = referee.DefaultMinGames
	}

	var trends []store.RefereeTrend
	switch {
	case s.results != nil:
		results, err := s.results.ListAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetching results: %w", err)
		}
		trends = referee.BuildTrends(results)
	case s.slate != nil && s.slate.Latest() != nil:
		trends = s.slate.Latest().RefereeTrends
	case s.snapshots != nil:
		if _, err := s.snapshots.Read(snapshot.RefereeTrends, &trends); err != nil && !errors.Is(err, snapshot.ErrNotExist) {
			return nil, err
		}
	}
	return referee.Filter(trends, minGames), nil
}

// Accuracy returns up to limit performance entries, newest first.
func (s *AnalyticsService) Accuracy(ctx context.Context, limit int) ([]*store.PerformanceEntry, error) {
	if limit <= 0 {
		limit = 30
	}
	if s.performance != nil {
		entries, err := s.performance.ListRecent(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("fetching performance log: %w", err)
		}
		return entries, nil
	}
	if s.snapshots == nil {
		return []*store.PerformanceEntry{}, nil
	}

	var entries []*store.PerformanceEntry
	if _, err := s.snapshots.Read(snapshot.PerformanceLog, &entries); err != nil {
		if errors.Is(err, snapshot.ErrNotExist) {
			return []*store.PerformanceEntry{}, nil
		}
		return nil, err
	}
	out := make([]*store.PerformanceEntry, 0, limit)
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}
