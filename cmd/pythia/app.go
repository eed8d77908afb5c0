package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fortuna/pythia/internal/accuracy"
	"github.com/fortuna/pythia/internal/cache"
	"github.com/fortuna/pythia/internal/config"
	"github.com/fortuna/pythia/internal/ingest/espn"
	"github.com/fortuna/pythia/internal/ingest/fetch"
	"github.com/fortuna/pythia/internal/ingest/injuries"
	"github.com/fortuna/pythia/internal/ingest/odds"
	"github.com/fortuna/pythia/internal/ingest/weather"
	"github.com/fortuna/pythia/internal/league"
	"github.com/fortuna/pythia/internal/logging"
	"github.com/fortuna/pythia/internal/metrics"
	"github.com/fortuna/pythia/internal/pipeline"
	"github.com/fortuna/pythia/internal/predict"
	"github.com/fortuna/pythia/internal/publisher"
	"github.com/fortuna/pythia/internal/reconciliation"
	"github.com/fortuna/pythia/internal/referee"
	"github.com/fortuna/pythia/internal/results"
	"github.com/fortuna/pythia/internal/snapshot"
	"github.com/fortuna/pythia/internal/store"
	"github.com/fortuna/pythia/internal/store/repository"
	"github.com/fortuna/pythia/internal/venue"
)

var errDatabaseRequired = errors.New("this command needs a database connection")

// globalOptions are the persistent root flags.
type globalOptions struct {
	configPath string
	leagues    []string
	logLevel   string
}

// appOptions selects which backing services a command connects to.
type appOptions struct {
	database      bool
	redisAttempts int
	redisDelay    time.Duration
}

// app holds the components shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	log     *zap.SugaredLogger
	metrics *metrics.Recorder
	leagues []league.League

	db    *store.Database
	redis *cache.RedisCache
	cache cache.Store

	games       *repository.GameRepository
	predictions *repository.PredictionRepository
	results     *repository.ResultRepository
	performance *repository.PerformanceRepository

	espn      *espn.Ingester
	snapshots *snapshot.Writer
	engine    *predict.Engine

	closers []func()
}

func loadConfig(opts *globalOptions) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if opts.configPath != "" {
		ov, err := config.LoadOverrides(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg.OverridesPath, cfg.Overrides = opts.configPath, ov
		if len(ov.Leagues) > 0 {
			cfg.Leagues = ov.Leagues
		}
	}
	if len(opts.leagues) > 0 {
		cfg.Leagues = make([]string, 0, len(opts.leagues))
		for _, l := range opts.leagues {
			cfg.Leagues = append(cfg.Leagues, strings.ToLower(strings.TrimSpace(l)))
		}
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newApp(ctx context.Context, opts *globalOptions, ao appOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		log:       logger.Named("main").Sugar(),
		metrics:   metrics.NewRecorder(),
		cache:     cache.NewMemoryCache(),
		snapshots: snapshot.NewWriter(cfg.OutputDir, logger),
	}
	a.closers = append(a.closers, func() { _ = logger.Sync() })
	for _, key := range cfg.Leagues {
		a.leagues = append(a.leagues, league.MustLookup(key))
	}

	if ao.database {
		if err := a.connectDatabase(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	if ao.redisAttempts > 0 {
		a.connectRedis(ao.redisAttempts, ao.redisDelay)
	}

	espnClient := espn.NewClient(a.fetchClient("espn"), logger)
	a.espn = espn.NewIngester(espnClient, espn.NewResolver(espnClient, a.cache, logger), logger)
	a.engine = predict.NewEngine(a.loadModel(), logger)
	return a, nil
}

func (a *app) connectDatabase(ctx context.Context) error {
	db, err := store.NewDatabase(a.cfg.DatabaseURL, a.logger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	a.closers = append(a.closers, func() { db.Close() })
	a.log.Info("✓ Connected to database")

	if err := db.RunMigrations(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	a.log.Info("✓ Database migrations applied")

	a.db = db
	a.games = repository.NewGameRepository(db)
	a.predictions = repository.NewPredictionRepository(db)
	a.results = repository.NewResultRepository(db)
	a.performance = repository.NewPerformanceRepository(db)
	return nil
}

// connectRedis retries before falling back to the in-process cache. Without
// Redis the stream publisher is disabled.
func (a *app) connectRedis(attempts int, delay time.Duration) {
	a.log.Info("Connecting to Redis...")
	for i := 0; i < attempts; i++ {
		rc, err := cache.NewRedisCache(a.cfg.RedisURL)
		if err == nil {
			a.redis, a.cache = rc, rc
			a.closers = append(a.closers, func() { rc.Close() })
			a.log.Info("✓ Connected to Redis")
			return
		}
		if i < attempts-1 {
			a.log.Warnf("Redis connection attempt %d/%d failed: %v (retrying in %v)", i+1, attempts, err, delay)
			time.Sleep(delay)
		} else {
			a.log.Warnf("⚠️  Redis unavailable after %d attempts: %v (using in-memory cache)", attempts, err)
		}
	}
}

func (a *app) loadModel() *predict.Model {
	m, err := predict.Load(a.cfg.ModelPath)
	switch {
	case errors.Is(err, predict.ErrNoModel):
		a.log.Infof("no model at %s, predictions are rule-based", a.cfg.ModelPath)
		return nil
	case err != nil:
		a.log.Warnf("⚠️  ignoring model %s: %v", a.cfg.ModelPath, err)
		return nil
	}
	a.log.Infof("✓ model %s loaded", m.Version)
	return m
}

// Close releases everything in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) fetchClient(provider string, extra ...fetch.Option) *fetch.Client {
	opts := []fetch.Option{
		fetch.WithTimeout(a.cfg.HTTPTimeout),
		fetch.WithMaxRetries(a.cfg.HTTPMaxRetries),
		fetch.WithRecorder(a.metrics),
		fetch.WithLogger(a.logger),
	}
	return fetch.New(provider, append(opts, extra...)...)
}

// newPipeline wires every stage. Sinks and history are attached only when
// their backing service is connected.
func (a *app) newPipeline() (*pipeline.Pipeline, error) {
	strategy, err := reconciliation.ParseStrategy(a.cfg.ReconcileStrategy)
	if err != nil {
		return nil, err
	}
	ua := a.cfg.UserAgent()

	lines := odds.NewClient(a.cfg.OddsAPIKey, "", a.fetchClient("odds_api", fetch.WithSecretParams("apiKey")), a.logger)
	if !lines.Enabled() {
		a.log.Warn("⚠️  ODDS_API_KEY not set, market lines come from ESPN only")
	}

	forecasts := weather.NewService(a.cfg.WeatherConcurrency, a.logger,
		weather.NewNWS("", a.fetchClient("nws", fetch.WithUserAgent(ua)), a.cache),
		weather.NewOpenMeteo("", a.fetchClient("open_meteo")),
	)

	sources := []injuries.Source{
		injuries.NewESPN(a.espn.Client()),
		injuries.NewESPNWeb("", a.fetchClient("espn_web")),
	}
	if a.cfg.EnableOddstrader {
		browser := injuries.NewBrowser()
		a.closers = append(a.closers, browser.Close)
		sources = append(sources, injuries.NewOddstrader(browser))
	}

	deps := pipeline.Deps{
		Schedule:   a.espn,
		Lines:      lines,
		Reconciler: reconciliation.NewEngine(strategy, a.logger),
		Venues:     venue.NewResolver(a.cfg.Overrides.VenueIndoor, a.cfg.Overrides.DomeNames),
		Geocoder:   a.newGeocoder(),
		Weather:    forecasts,
		Injuries:   injuries.NewService(a.logger, sources...),
		Engine:     a.engine,
		Snapshots:  a.snapshots,
		Metrics:    a.metrics,
	}
	if a.db != nil {
		deps.History = a.results
		deps.Games = a.games
		deps.Predictions = a.predictions
	}
	if a.redis != nil {
		deps.Streams = publisher.NewRedisStreamPublisher(a.redis.Client())
	}
	return pipeline.New(deps, a.leagues, a.logger), nil
}

// newGeocoder paces Nominatim to one request per second.
func (a *app) newGeocoder() *venue.Geocoder {
	ua := a.cfg.UserAgent()
	httpClient := a.fetchClient("nominatim", fetch.WithUserAgent(ua), fetch.WithRateLimit(time.Second, 1))
	return venue.NewGeocoder(httpClient, a.cache, ua, a.logger)
}

func (a *app) newCollector() (*results.Collector, error) {
	if a.db == nil {
		return nil, errDatabaseRequired
	}
	return results.NewCollector(a.espn, a.games, a.results, a.logger), nil
}

func (a *app) newTracker() (*accuracy.Tracker, error) {
	if a.db == nil {
		return nil, errDatabaseRequired
	}
	return accuracy.NewTracker(a.predictions, a.results, a.performance, a.snapshots, a.logger), nil
}

// collectResults stores finals for the last days days.
func (a *app) collectResults(ctx context.Context, days int) (*results.Stats, error) {
	collector, err := a.newCollector()
	if err != nil {
		return nil, err
	}
	stats, collected, err := collector.Collect(ctx, a.leagues, results.Dates(time.Now().In(a.cfg.Location()), days))
	if len(collected) > 0 {
		if _, werr := a.snapshots.Write(snapshot.HistoricalResults, collected); werr != nil {
			a.log.Warnf("⚠️  %v", werr)
		}
	}
	return stats, err
}

// trackAccuracy grades finished predictions. A nil entry means nothing was
// gradeable.
func (a *app) trackAccuracy(ctx context.Context) (*store.PerformanceEntry, error) {
	tracker, err := a.newTracker()
	if err != nil {
		return nil, err
	}
	return tracker.Run(ctx)
}

// trainModel fits a model on every stored result, saves it and hands it to
// the engine.
func (a *app) trainModel(ctx context.Context) (*predict.Model, error) {
	if a.db == nil {
		return nil, errDatabaseRequired
	}
	all, err := a.results.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	model, err := predict.Train(predict.SamplesFromResults(all, referee.DefaultMinGames), predict.DefaultTrainOptions())
	if err != nil {
		return nil, err
	}
	if err := predict.SaveModel(model, a.cfg.ModelPath); err != nil {
		return nil, err
	}
	a.engine.SetModel(model)
	return model, nil
}
