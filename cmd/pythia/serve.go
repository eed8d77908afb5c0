package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/fortuna/pythia/internal/api/rest"
	"github.com/fortuna/pythia/internal/api/websocket"
	"github.com/fortuna/pythia/internal/backfill"
	"github.com/fortuna/pythia/internal/notify"
	"github.com/fortuna/pythia/internal/pipeline"
	"github.com/fortuna/pythia/internal/predict"
	"github.com/fortuna/pythia/internal/scheduler"
	"github.com/fortuna/pythia/internal/service"
	"github.com/fortuna/pythia/internal/snapshot"
)

const (
	redisAttempts   = 30
	redisRetryDelay = 2 * time.Second
	resultsDays     = 3
	shutdownTimeout = 10 * time.Second
)

func serveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler with the REST and WebSocket APIs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ao := appOptions{database: true, redisAttempts: redisAttempts, redisDelay: redisRetryDelay}
			return withApp(opts, ao, serve)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg
	a.log.Infof("═══ Starting %s v%s ═══", serviceName, serviceVersion)

	p, err := a.newPipeline()
	if err != nil {
		return err
	}
	wsServer := websocket.NewServer(p, a.metrics, a.logger)
	p.AddObserver(wsServer)
	if err := attachDiscord(a, p); err != nil {
		return err
	}

	schedCfg := scheduler.DefaultConfig()
	schedCfg.Location = cfg.Location()
	schedCfg.RunOnStart = []string{scheduler.JobPipeline}
	sched, err := scheduler.NewOrchestrator(schedCfg, a.logger, jobs(a, p)...)
	if err != nil {
		return err
	}
	sched.Start()
	a.log.Info("✓ Scheduler started")

	collector, err := a.newCollector()
	if err != nil {
		return err
	}
	backfillService := backfill.NewService(backfill.NewRepository(a.db), backfill.NewRunner(collector, a.logger), a.logger)
	backfillService.Start()
	a.log.Info("✓ Backfill service started")

	loc := cfg.Location()
	restServer := rest.NewServer(cfg.RESTPort, rest.Deps{
		Games:       service.NewGameService(a.games, a.predictions, p, loc),
		Predictions: service.NewPredictionService(a.predictions, p),
		Analytics:   service.NewAnalyticsService(a.results, a.performance, snapshot.NewReader(cfg.OutputDir), p),
		Pipeline:    p,
		Scheduler:   sched,
		Backfill:    backfillService,
		Metrics:     a.metrics,
		HealthCheck: a.db.HealthCheck,
	}, a.logger)

	serverErr := make(chan error, 2)
	go func() {
		if err := restServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	go func() {
		if err := wsServer.Start(cfg.WSPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	a.log.Infof("✓ %s v%s started successfully", serviceName, serviceVersion)
	a.log.Infof("  REST API: http://0.0.0.0:%s", cfg.RESTPort)
	a.log.Infof("  WebSocket: ws://0.0.0.0:%s/ws/predictions", cfg.WSPort)

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("Shutting down gracefully...")
	case runErr = <-serverErr:
		a.log.Errorf("❌ server error: %v", runErr)
	}

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := restServer.Shutdown(shutdownCtx); err != nil {
		a.log.Warnf("REST API server shutdown error: %v", err)
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		a.log.Warnf("WebSocket server shutdown error: %v", err)
	}
	if err := backfillService.Shutdown(shutdownCtx); err != nil {
		a.log.Warnf("backfill shutdown error: %v", err)
	}

	a.log.Infof("%s stopped", serviceName)
	return runErr
}

// jobs returns the scheduled work. A job with an empty cron spec can still
// be triggered through the API.
func jobs(a *app, p *pipeline.Pipeline) []scheduler.Job {
	return []scheduler.Job{
		{
			Name: scheduler.JobPipeline,
			Spec: a.cfg.PipelineCron,
			Run: func(ctx context.Context) error {
				_, err := p.Run(ctx)
				if errors.Is(err, pipeline.ErrRunInProgress) {
					a.log.Info("pipeline already running, skipping")
					return nil
				}
				return err
			},
		},
		{
			Name: scheduler.JobResults,
			Spec: a.cfg.ResultsCron,
			Run: func(ctx context.Context) error {
				_, err := a.collectResults(ctx, resultsDays)
				return err
			},
		},
		{
			Name: scheduler.JobAccuracy,
			Spec: a.cfg.AccuracyCron,
			Run: func(ctx context.Context) error {
				_, err := a.trackAccuracy(ctx)
				return err
			},
		},
		{
			Name: scheduler.JobTrain,
			Spec: a.cfg.TrainCron,
			Run: func(ctx context.Context) error {
				_, err := a.trainModel(ctx)
				if errors.Is(err, predict.ErrInsufficientData) {
					a.log.Warnf("⚠️  model not retrained: %v", err)
					return nil
				}
				return err
			},
		},
	}
}

// attachDiscord posts each successful run's top picks when webhook
// credentials are configured.
func attachDiscord(a *app, p *pipeline.Pipeline) error {
	if !a.cfg.DiscordEnabled() {
		return nil
	}
	discord, err := notify.NewDiscord(a.cfg.DiscordWebhookID, a.cfg.DiscordWebhookToken, a.cfg.NotifyMinConfidence, a.logger)
	if err != nil {
		return err
	}
	p.AddObserver(pipeline.ObserverFunc(func(ctx context.Context, report *pipeline.Report, slate *pipeline.Slate) {
		if report.Status == pipeline.StatusFailed {
			return
		}
		if err := discord.Notify(ctx, report.RunID, slate.Predictions); err != nil {
			a.log.Warnf("⚠️  discord: %v", err)
		}
	}))
	a.log.Info("✓ Discord notifications enabled")
	return nil
}
