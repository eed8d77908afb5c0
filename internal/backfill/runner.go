package backfill

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fortuna/pythia/internal/league"
	"github.com/fortuna/pythia/internal/logging"
	"github.com/fortuna/pythia/internal/results"
	"github.com/fortuna/pythia/internal/store"
)

// Collector is the results collector surface the runner drives.
type Collector interface {
	Collect(ctx context.Context, leagues []league.League, dates []time.Time) (*results.Stats, []*store.Result, error)
	CollectGame(ctx context.Context, lg league.League, gameID string) (*store.Result, error)
}

// Runner executes backfill specs through the results collector.
type Runner struct {
	collector Collector
	logger    *zap.SugaredLogger
	now       func() time.Time
}

// NewRunner constructs a runner.
func NewRunner(collector Collector, logger *zap.Logger) *Runner {
	return &Runner{
		collector: collector,
		logger:    logging.OrNop(logger).Named("backfill").Sugar(),
		now:       time.Now,
	}
}

// Run executes the job spec, reporting progress via the Reporter if provided.
// Dates after yesterday are never collected.
func (r *Runner) Run(ctx context.Context, spec JobSpec, reporter Reporter) error {
	if reporter == nil {
		reporter = nopReporter{}
	}
	reporter.OnJobStart(spec)

	lg, ok := league.Lookup(spec.Sport)
	if !ok {
		err := fmt.Errorf("unknown sport %q", spec.Sport)
		reporter.OnJobError(err)
		return err
	}

	switch spec.Type {
	case JobTypeGame:
		if len(spec.GameIDs) == 0 {
			return fmt.Errorf("no game IDs provided for job type 'game'")
		}
		total := len(spec.GameIDs)
		for idx, gameID := range spec.GameIDs {
			if err := ctx.Err(); err != nil {
				return err
			}
			reporter.OnProgress(fmt.Sprintf("Processing game %s (%d/%d)", gameID, idx+1, total), idx, total)
			if spec.DryRun {
				continue
			}

			if _, err := r.collector.CollectGame(ctx, lg, gameID); err != nil {
				reporter.OnJobError(err)
				return err
			}
			reporter.OnGameProcessed(gameID)
			reporter.OnProgress(fmt.Sprintf("✓ Game %s complete", gameID), idx+1, total)
		}
	case JobTypeSeason, JobTypeDateRange:
		dates := enumerateDates(spec.Start, r.clampEnd(spec.End))
		if len(dates) == 0 {
			reporter.OnProgress("No dates to process", 0, 0)
			break
		}

		total := len(dates)
		for idx, date := range dates {
			if err := ctx.Err(); err != nil {
				return err
			}
			reporter.OnDateStart(date, idx, total)
			if spec.DryRun {
				continue
			}

			_, collected, err := r.collector.Collect(ctx, []league.League{lg}, []time.Time{date})
			if err != nil {
				// one bad scoreboard does not fail a season
				r.logger.Warnf("[%s] ⚠️  %s: %v", lg.Key, date.Format("2006-01-02"), err)
				reporter.OnJobError(err)
			}
			for _, res := range collected {
				reporter.OnGameProcessed(res.GameID)
			}
			reporter.OnProgress(fmt.Sprintf("Processed %s (%d results)", date.Format("Jan 2, 2006"), len(collected)), idx+1, total)
		}
	default:
		return fmt.Errorf("unsupported job type %s", spec.Type)
	}

	if spec.DryRun {
		reporter.OnProgress("Dry-run mode: no data was written", 0, 0)
	}
	reporter.OnJobComplete()
	return nil
}

func (r *Runner) clampEnd(end time.Time) time.Time {
	yesterday := truncateDate(r.now().UTC()).AddDate(0, 0, -1)
	if end.After(yesterday) {
		return yesterday
	}
	return end
}

func enumerateDates(start, end time.Time) []time.Time {
	if end.Before(start) {
		return nil
	}

	var dates []time.Time
	current := truncateDate(start)
	final := truncateDate(end)

	for !current.After(final) {
		dates = append(dates, current)
		current = current.AddDate(0, 0, 1)
	}

	return dates
}

func truncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type nopReporter struct{}

func (nopReporter) OnJobStart(JobSpec) {}
func (nopReporter) OnDateStart(time.Time, int, int) {}
func (nopReporter) OnGameProcessed(string) {}
func (nopReporter) OnProgress(string, int, int) {}
func (nopReporter) OnJobComplete() {}
func (nopReporter) OnJobError(error) {}
