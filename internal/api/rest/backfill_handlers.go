package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fortuna/pythia/internal/backfill"
)

// BackfillService is the part of *backfill.Service the API uses.
type BackfillService interface {
	Enqueue(ctx context.Context, req backfill.Request) (*backfill.Job, error)
	Cancel(ctx context.Context, jobID string) (bool, error)
	GetStatus(ctx context.Context) (*backfill.StatusSummary, error)
}

// BackfillHandler proxies API calls to the backfill service.
type BackfillHandler struct {
	service BackfillService
}

// NewBackfillHandler wires the REST layer to the backfill service. A nil
// service answers 503.
func NewBackfillHandler(service BackfillService) *BackfillHandler {
	return &BackfillHandler{service: service}
}

type apiBackfillRequest struct {
	Sport     string   `json:"sport"`
	SeasonID  string   `json:"season_id"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	GameID    string   `json:"game_id"`
	GameIDs   []string `json:"game_ids"`
	DryRun    bool     `json:"dry_run"`
}

func (h *BackfillHandler) available(w http.ResponseWriter) bool {
	if h.service == nil {
		respondError(w, http.StatusServiceUnavailable, "backfill_unavailable", "Backfill requires a database")
		return false
	}
	return true
}

// HandleBackfillRequest handles POST /api/v1/backfill
func (h *BackfillHandler) HandleBackfillRequest(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	var req apiBackfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}

	backfillReq := backfill.Request{
		Sport:    req.Sport,
		SeasonID: req.SeasonID,
		DryRun:   req.DryRun,
	}

	if len(req.GameIDs) > 0 {
		backfillReq.GameIDs = append(backfillReq.GameIDs, req.GameIDs...)
	}
	if req.GameID != "" {
		backfillReq.GameIDs = append(backfillReq.GameIDs, req.GameID)
	}

	if req.StartDate != "" {
		start, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_start_date", "Invalid start_date format (YYYY-MM-DD)")
			return
		}
		backfillReq.StartDate = &start
	}

	if req.EndDate != "" {
		end, err := time.Parse("2006-01-02", req.EndDate)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_end_date", "Invalid end_date format (YYYY-MM-DD)")
			return
		}
		backfillReq.EndDate = &end
	}

	job, err := h.service.Enqueue(r.Context(), backfillReq)
	if err != nil {
		if errors.Is(err, backfill.ErrInvalidRequest) {
			respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to enqueue backfill job")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{"job": job})
}

// HandleBackfillStatus handles GET /api/v1/backfill/status
func (h *BackfillHandler) HandleBackfillStatus(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	summary, err := h.service.GetStatus(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to fetch status")
		return
	}

	respondJSON(w, http.StatusOK, buildStatusPayload(summary))
}

// HandleBackfillCancel handles DELETE /api/v1/backfill/{jobID}. Only queued
// jobs can be cancelled.
func (h *BackfillHandler) HandleBackfillCancel(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	jobID := mux.Vars(r)["jobID"]
	cancelled, err := h.service.Cancel(r.Context(), jobID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to cancel job")
		return
	}
	if !cancelled {
		respondError(w, http.StatusConflict, "not_cancellable", "Job "+jobID+" is not queued")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": string(backfill.JobStatusCancelled)})
}

func buildStatusPayload(summary *backfill.StatusSummary) map[string]interface{} {
	response := map[string]interface{}{
		"status":  "idle",
		"message": "No active jobs",
	}

	if summary.ActiveJob != nil {
		response["status"] = summary.ActiveJob.Status
		if summary.ActiveJob.StatusMessage.Valid {
			response["message"] = summary.ActiveJob.StatusMessage.String
		}
		response["active_job"] = summary.ActiveJob
	}

	history := summary.History
	if history == nil {
		history = []*backfill.Job{}
	}
	response["history"] = history
	return response
}
