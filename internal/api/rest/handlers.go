package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/fortuna/pythia/internal/league"
	"github.com/fortuna/pythia/internal/pipeline"
	"github.com/fortuna/pythia/internal/service"
	"github.com/fortuna/pythia/internal/store"
)

// Handler contains dependencies for HTTP handlers
type Handler struct {
	deps   Deps
	logger *zap.SugaredLogger
}

// NewHandler creates a new handler
func NewHandler(deps Deps, logger *zap.SugaredLogger) *Handler {
	return &Handler{deps: deps, logger: logger}
}

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	database := "disabled"
	if h.deps.HealthCheck != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		database = "ok"
		if err := h.deps.HealthCheck(ctx); err != nil {
			status, code, database = "degraded", http.StatusServiceUnavailable, err.Error()
		}
	}

	payload := map[string]interface{}{
		"status":   status,
		"service":  "pythia",
		"database": database,
	}
	if h.deps.Pipeline != nil {
		if latest := h.deps.Pipeline.Latest(); latest != nil {
			payload["last_run"] = latest.Report.FinishedAt
		}
	}
	respondJSON(w, code, payload)
}

// ListGames returns games for ?date=YYYY-MM-DD, or upcoming games.
func (h *Handler) ListGames(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sport, ok := parseSport(w, q.Get("sport"))
	if !ok {
		return
	}
	query := service.GameQuery{Sport: sport, Limit: parseLimit(q.Get("limit"), service.DefaultLimit)}
	if s := q.Get("date"); s != "" {
		date, err := time.Parse("2006-01-02", s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_date", "Invalid date format (use YYYY-MM-DD)")
			return
		}
		query.Date = date
	}

	games, err := h.deps.Games.ListGames(r.Context(), query)
	if err != nil {
		h.serverError(w, "Failed to fetch games", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"count": len(games), "games": games})
}

// GetGame returns one game with its prediction.
func (h *Handler) GetGame(w http.ResponseWriter, r *http.Request) {
	summary, err := h.deps.Games.GetGame(r.Context(), mux.Vars(r)["gameID"])
	if err != nil {
		h.lookupError(w, "Game not found", err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// ListPredictions returns picks filtered by sport, market and confidence.
func (h *Handler) ListPredictions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sport, ok := parseSport(w, q.Get("sport"))
	if !ok {
		return
	}
	query := service.PredictionQuery{Sport: sport, Limit: parseLimit(q.Get("limit"), service.DefaultLimit)}

	switch m := q.Get("market"); m {
	case "", store.MarketSU, store.MarketATS, store.MarketOU:
		query.Market = m
	default:
		respondError(w, http.StatusBadRequest, "invalid_market", "market must be one of su, ats, ou")
		return
	}
	if s := q.Get("min_confidence"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 || v > 100 {
			respondError(w, http.StatusBadRequest, "invalid_min_confidence", "min_confidence must be a number between 0 and 100")
			return
		}
		query.MinConfidence = v
	}

	preds, err := h.deps.Predictions.ListPredictions(r.Context(), query)
	if err != nil {
		h.serverError(w, "Failed to fetch predictions", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"count": len(preds), "predictions": preds})
}

// GetPrediction returns the prediction for one game.
func (h *Handler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Predictions.GetPrediction(r.Context(), mux.Vars(r)["gameID"])
	if err != nil {
		h.lookupError(w, "Prediction not found", err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// ListRefereeTrends returns officials with at least ?min_games= games.
func (h *Handler) ListRefereeTrends(w http.ResponseWriter, r *http.Request) {
	minGames := parseLimit(r.URL.Query().Get("min_games"), 0)
	trends, err := h.deps.Analytics.RefereeTrends(r.Context(), minGames)
	if err != nil {
		h.serverError(w, "Failed to build referee trends", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"count": len(trends), "referees": trends})
}

// GetAccuracy returns recent performance log entries.
func (h *Handler) GetAccuracy(w http.ResponseWriter, r *http.Request) {
	entries, err := h.deps.Analytics.Accuracy(r.Context(), parseLimit(r.URL.Query().Get("limit"), 30))
	if err != nil {
		h.serverError(w, "Failed to fetch accuracy", err)
		return
	}
	payload := map[string]interface{}{"entries": entries}
	if len(entries) > 0 {
		payload["latest"] = entries[0]
	}
	respondJSON(w, http.StatusOK, payload)
}

// PipelineStatus reports the latest run and the scheduled jobs.
func (h *Handler) PipelineStatus(w http.ResponseWriter, r *http.Request) {
	payload := map[string]interface{}{"status": "idle"}
	if h.deps.Pipeline != nil {
		if latest := h.deps.Pipeline.Latest(); latest != nil {
			payload["status"] = latest.Report.Status
			payload["last_run"] = latest.Report
		}
	}
	if h.deps.Scheduler != nil {
		payload["jobs"] = h.deps.Scheduler.GetStatus()
	}
	respondJSON(w, http.StatusOK, payload)
}

// TriggerPipeline starts a run in the background and returns immediately.
func (h *Handler) TriggerPipeline(w http.ResponseWriter, r *http.Request) {
	if h.deps.Pipeline == nil {
		respondError(w, http.StatusServiceUnavailable, "pipeline_unavailable", "Pipeline is not configured")
		return
	}

	started := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
		defer cancel()
		report, err := h.deps.Pipeline.Run(ctx)
		if errors.Is(err, pipeline.ErrRunInProgress) {
			started <- err
			return
		}
		started <- nil
		if err != nil {
			h.logger.Errorf("❌ manual pipeline run: %v", err)
			return
		}
		h.logger.Infof("✓ manual pipeline run %s: %s", report.RunID, report.Status)
	}()

	// ErrRunInProgress is returned before any stage starts.
	select {
	case err := <-started:
		if err != nil {
			respondError(w, http.StatusConflict, "run_in_progress", err.Error())
			return
		}
	case <-time.After(100 * time.Millisecond):
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (h *Handler) lookupError(w http.ResponseWriter, notFound string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not_found", notFound)
		return
	}
	h.serverError(w, "Lookup failed", err)
}

func (h *Handler) serverError(w http.ResponseWriter, message string, err error) {
	h.logger.Errorf("❌ %s: %v", message, err)
	respondError(w, http.StatusInternalServerError, "internal_error", message)
}

func parseSport(w http.ResponseWriter, s string) (string, bool) {
	if s == "" {
		return "", true
	}
	lg, ok := league.Lookup(s)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_sport", "Unknown sport "+strconv.Quote(s))
		return "", false
	}
	return lg.Key, true
}

func parseLimit(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	if v, err := strconv.Atoi(s); err == nil && v > 0 && v <= 1000 {
		return v
	}
	return fallback
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an {error, message} response
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}
