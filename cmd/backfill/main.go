package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fortuna/pythia/internal/backfill"
	"github.com/fortuna/pythia/internal/cache"
	"github.com/fortuna/pythia/internal/config"
	"github.com/fortuna/pythia/internal/ingest/espn"
	"github.com/fortuna/pythia/internal/ingest/fetch"
	"github.com/fortuna/pythia/internal/logging"
	"github.com/fortuna/pythia/internal/results"
	"github.com/fortuna/pythia/internal/store"
	"github.com/fortuna/pythia/internal/store/repository"
)

const (
	appName    = "pythia-backfill"
	appVersion = "1.0.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	var (
		dsn       = flag.String("dsn", cfg.DatabaseURL, "PostgreSQL DSN")
		sport     = flag.String("sport", "nfl", "League key (nfl, ncaaf, nba, ncaab, nhl, mlb)")
		season    = flag.String("season", "", "Season to backfill (e.g., 2024 or 2024-25)")
		startDate = flag.String("start", "", "Start date (YYYY-MM-DD)")
		endDate   = flag.String("end", "", "End date (YYYY-MM-DD)")
		gameID    = flag.String("game", "", "Single ESPN game ID to backfill")
		dryRun    = flag.Bool("dry-run", false, "Dry run (do not write to DB)")
	)
	flag.Parse()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Named("main").Sugar()
	log.Infof("=== %s v%s ===", appName, appVersion)

	if *season == "" && *startDate == "" && *gameID == "" {
		log.Fatal("Specify --season, --start/--end, or --game")
	}

	req, err := buildRequest(*sport, *season, *startDate, *endDate, *gameID)
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	req.DryRun = *dryRun

	spec, err := backfill.SpecFromRequest(req)
	if err != nil {
		log.Fatalf("build spec: %v", err)
	}

	db, err := store.NewDatabase(*dsn, logger)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.RunMigrations(ctx); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	httpClient := fetch.New("espn",
		fetch.WithTimeout(cfg.HTTPTimeout),
		fetch.WithMaxRetries(cfg.HTTPMaxRetries),
		fetch.WithLogger(logger),
	)
	espnClient := espn.NewClient(httpClient, logger)
	ingester := espn.NewIngester(espnClient, espn.NewResolver(espnClient, cache.NewMemoryCache(), logger), logger)
	collector := results.NewCollector(ingester, repository.NewGameRepository(db), repository.NewResultRepository(db), logger)
	runner := backfill.NewRunner(collector, logger)

	reporter := &consoleReporter{dryRun: *dryRun, log: log}
	if err := runner.Run(ctx, spec, reporter); err != nil {
		log.Fatalf("backfill failed: %v", err)
	}

	log.Info("✓ Backfill completed successfully")
}

func buildRequest(sport, season, startStr, endStr, gameID string) (backfill.Request, error) {
	req := backfill.Request{Sport: sport, SeasonID: season}

	switch {
	case gameID != "":
		req.GameIDs = strings.Split(gameID, ",")
	case startStr != "" || endStr != "":
		if startStr == "" || endStr == "" {
			return req, fmt.Errorf("--start and --end must be used together")
		}
		start, err := time.Parse("2006-01-02", startStr)
		if err != nil {
			return req, fmt.Errorf("invalid start date: %w", err)
		}
		end, err := time.Parse("2006-01-02", endStr)
		if err != nil {
			return req, fmt.Errorf("invalid end date: %w", err)
		}
		req.StartDate, req.EndDate = &start, &end
	}

	return req, nil
}

type consoleReporter struct {
	dryRun bool
	log    *zap.SugaredLogger
}

func (c *consoleReporter) OnJobStart(spec backfill.JobSpec) {
	c.log.Infof("Starting %s %s job (dry_run=%v)", spec.Sport, spec.Type, c.dryRun)
}

func (c *consoleReporter) OnDateStart(date time.Time, index int, total int) {
	c.log.Infof("[%d/%d] %s", index+1, total, date.Format("2006-01-02"))
}

func (c *consoleReporter) OnGameProcessed(gameID string) {
	c.log.Debugf("Processed game %s", gameID)
}

func (c *consoleReporter) OnProgress(message string, current int, total int) {
	c.log.Infof("Progress: %s (%d/%d)", message, current, total)
}

func (c *consoleReporter) OnJobComplete() {
	c.log.Info("Job complete")
}

func (c *consoleReporter) OnJobError(err error) {
	c.log.Warnf("⚠️  Job error: %v", err)
}
