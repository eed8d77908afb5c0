package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/fortuna/pythia/internal/logging"
	"github.com/fortuna/pythia/internal/metrics"
	"github.com/fortuna/pythia/internal/pipeline"
	"github.com/fortuna/pythia/internal/scheduler"
	"github.com/fortuna/pythia/internal/service"
)

// PipelineRunner triggers runs and exposes the latest slate.
type PipelineRunner interface {
	Run(ctx context.Context) (*pipeline.Report, error)
	Latest() *pipeline.Slate
}

// JobStatusProvider reports scheduled job state.
type JobStatusProvider interface {
	GetStatus() []scheduler.JobStatus
}

// Deps holds everything the handlers read from. Only the services are
// required.
type Deps struct {
	Games       *service.GameService
	Predictions *service.PredictionService
	Analytics   *service.AnalyticsService
	Pipeline    PipelineRunner
	Scheduler   JobStatusProvider
	Backfill    BackfillService
	Metrics     *metrics.Recorder
	HealthCheck func(ctx context.Context) error
}

// Server represents the REST API server
type Server struct {
	port   string
	server *http.Server
}

// NewServer creates a new REST API server
func NewServer(port string, deps Deps, logger *zap.Logger) *Server {
	return &Server{
		port: port,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%s", port),
			Handler:           NewRouter(deps, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// NewRouter builds the route table.
func NewRouter(deps Deps, logger *zap.Logger) *mux.Router {
	log := logging.OrNop(logger).Named("rest").Sugar()
	handler := NewHandler(deps, log)

	router := mux.NewRouter()

	// Apply middleware
	router.Use(RecoveryMiddleware(log))
	router.Use(LoggingMiddleware(log))
	router.Use(CORSMiddleware)

	router.HandleFunc("/health", handler.HealthCheck).Methods("GET")
	router.Handle("/metrics", deps.Metrics.Handler()).Methods("GET")

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/games", handler.ListGames).Methods("GET")
	api.HandleFunc("/games/{gameID}", handler.GetGame).Methods("GET")

	api.HandleFunc("/predictions", handler.ListPredictions).Methods("GET")
	api.HandleFunc("/predictions/{gameID}", handler.GetPrediction).Methods("GET")

	api.HandleFunc("/referees", handler.ListRefereeTrends).Methods("GET")
	api.HandleFunc("/accuracy", handler.GetAccuracy).Methods("GET")

	api.HandleFunc("/pipeline/status", handler.PipelineStatus).Methods("GET")
	api.HandleFunc("/pipeline/run", handler.TriggerPipeline).Methods("POST")

	// Backfill operations
	backfillHandler := NewBackfillHandler(deps.Backfill)
	api.HandleFunc("/backfill", backfillHandler.HandleBackfillRequest).Methods("POST")
	api.HandleFunc("/backfill/status", backfillHandler.HandleBackfillStatus).Methods("GET")
	api.HandleFunc("/backfill/{jobID}", backfillHandler.HandleBackfillCancel).Methods("DELETE")

	return router
}

// Start starts the REST API server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
