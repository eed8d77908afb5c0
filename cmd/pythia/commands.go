package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fortuna/pythia/internal/snapshot"
	"github.com/fortuna/pythia/internal/store"
	"github.com/fortuna/pythia/internal/venue"
)

const exportLimit = 1000

func runCmd(opts *globalOptions) *cobra.Command {
	var noDB bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ao := appOptions{database: !noDB}
			if !noDB {
				ao.redisAttempts, ao.redisDelay = 1, 0
			}
			return withApp(opts, ao, func(ctx context.Context, a *app) error {
				p, err := a.newPipeline()
				if err != nil {
					return err
				}
				if err := attachDiscord(a, p); err != nil {
					return err
				}

				report, err := p.Run(ctx)
				if err != nil {
					return err
				}
				a.log.Infof("═══ run %s %s: %d games, %d predictions ═══", report.RunID, report.Status, report.Games, report.Predictions)
				for _, s := range report.Stages {
					if s.Error != "" {
						a.log.Warnf("  %-10s %-8s %s", s.Name, s.Status, s.Error)
					} else {
						a.log.Infof("  %-10s %-8s %d", s.Name, s.Status, s.Count)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&noDB, "no-db", false, "Write snapshots only; skip PostgreSQL and Redis")
	return cmd
}

func resultsCmd(opts *globalOptions) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Collect final scores for recent days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, appOptions{database: true}, func(ctx context.Context, a *app) error {
				stats, err := a.collectResults(ctx, days)
				if stats != nil {
					a.log.Infof("✓ results: %d games, %d collected, %d pending, %d failed",
						stats.Games, stats.Collected, stats.Pending, stats.Failed)
				}
				return err
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", resultsDays, "Days before today to collect")
	return cmd
}

func trackCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "track",
		Short: "Grade finished predictions and append to the performance log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, appOptions{database: true}, func(ctx context.Context, a *app) error {
				entry, err := a.trackAccuracy(ctx)
				if err != nil {
					return err
				}
				if entry == nil {
					a.log.Info("nothing to grade")
				}
				return nil
			})
		},
	}
}

func trainCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Fit the prediction model from stored results",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, appOptions{database: true}, func(ctx context.Context, a *app) error {
				model, err := a.trainModel(ctx)
				if err != nil {
					return err
				}
				a.log.Infof("✓ saved model %s (%d samples, markets %s) to %s",
					model.Version, model.Samples, strings.Join(marketNames(model.Markets), ","), a.cfg.ModelPath)
				return nil
			})
		},
	}
}

func exportCmd(opts *globalOptions) *cobra.Command {
	var fromSnapshots bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export predictions and accuracy history as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, appOptions{database: !fromSnapshots}, func(ctx context.Context, a *app) error {
				preds, entries, err := exportRows(ctx, a)
				if err != nil {
					return err
				}
				return a.snapshots.ExportCSV(preds, entries)
			})
		},
	}
	cmd.Flags().BoolVar(&fromSnapshots, "no-db", false, "Read the JSON snapshots instead of PostgreSQL")
	return cmd
}

func exportRows(ctx context.Context, a *app) ([]*store.Prediction, []*store.PerformanceEntry, error) {
	if a.db != nil {
		preds, err := a.predictions.ListLatest(ctx, "", "", 0, exportLimit)
		if err != nil {
			return nil, nil, fmt.Errorf("list predictions: %w", err)
		}
		entries, err := a.performance.ListRecent(ctx, exportLimit)
		if err != nil {
			return nil, nil, fmt.Errorf("list performance: %w", err)
		}
		return preds, entries, nil
	}

	reader := snapshot.NewReader(a.cfg.OutputDir)
	var (
		preds   []*store.Prediction
		entries []*store.PerformanceEntry
	)
	if _, err := reader.Read(snapshot.Predictions, &preds); err != nil && !errors.Is(err, snapshot.ErrNotExist) {
		return nil, nil, err
	}
	if _, err := reader.Read(snapshot.PerformanceLog, &entries); err != nil && !errors.Is(err, snapshot.ErrNotExist) {
		return nil, nil, err
	}
	return preds, entries, nil
}

func venuesCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "venues",
		Short: "Build the venue table for each league from ESPN teams",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, appOptions{}, func(ctx context.Context, a *app) error {
				resolver := venue.NewResolver(a.cfg.Overrides.VenueIndoor, a.cfg.Overrides.DomeNames)
				geocoder := a.newGeocoder()

				for _, lg := range a.leagues {
					teams, err := a.espn.TeamVenues(ctx, lg)
					if err != nil {
						return fmt.Errorf("%s: %w", lg.Key, err)
					}

					// resolve through the same path games take
					games := make([]*store.Game, len(teams))
					for i, tv := range teams {
						games[i] = &store.Game{Sport: lg.Key, Home: tv.Team, Venue: tv.Venue}
						resolver.Resolve(games[i])
					}
					if _, err := geocoder.Enrich(ctx, games); err != nil {
						a.log.Warnf("[%s] ⚠️  geocoding incomplete: %v", lg.Key, err)
					}
					for i := range teams {
						teams[i].Venue = games[i].Venue
					}

					if _, err := a.snapshots.Write(snapshot.LeagueVenues(lg.Key), teams); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func marketNames[V any](markets map[string]V) []string {
	names := make([]string, 0, len(markets))
	for _, m := range []string{store.MarketSU, store.MarketATS, store.MarketOU} {
		if _, ok := markets[m]; ok {
			names = append(names, m)
		}
	}
	return names
}
