package backfill

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fortuna/pythia/internal/league"
	"github.com/fortuna/pythia/internal/logging"
)

// ErrInvalidRequest wraps request validation failures.
var ErrInvalidRequest = errors.New("invalid backfill request")

// JobStore is the persistence surface the service needs. *Repository
// implements it.
type JobStore interface {
	CreateJob(ctx context.Context, job *Job) (*Job, error)
	UpdateStatus(ctx context.Context, jobID string, status JobStatus, message string, lastErr error) error
	UpdateProgress(ctx context.Context, jobID string, current, total int, message string) error
	AppendEvent(ctx context.Context, jobID, eventType, message string) error
	ResetStuckJobs(ctx context.Context) error
	MarkNextJobRunning(ctx context.Context) (*Job, error)
	CancelQueued(ctx context.Context, jobID string) (bool, error)
	GetActiveJob(ctx context.Context) (*Job, error)
	ListRecentJobs(ctx context.Context, limit int) ([]*Job, error)
}

// Request represents a backfill invocation request.
type Request struct {
	Sport     string     `json:"sport"`
	SeasonID  string     `json:"season_id,omitempty"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	GameIDs   []string   `json:"game_ids,omitempty"`
	DryRun    bool       `json:"dry_run,omitempty"`
}

// DeriveType infers the job type based on populated fields.
func (r Request) DeriveType() (JobType, error) {
	if len(r.GameIDs) > 0 {
		return JobTypeGame, nil
	}
	if r.StartDate != nil && r.EndDate != nil {
		return JobTypeDateRange, nil
	}
	if r.SeasonID != "" {
		return JobTypeSeason, nil
	}
	return "", fmt.Errorf("%w: need game_ids, start_date/end_date or season_id", ErrInvalidRequest)
}

// Service coordinates job persistence, execution, and status reporting.
type Service struct {
	repo   JobStore
	runner *Runner

	historyLimit int
	pollInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *zap.SugaredLogger
}

// NewService constructs a Service. Call Start to launch the worker.
func NewService(repo JobStore, runner *Runner, logger *zap.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		repo:         repo,
		runner:       runner,
		historyLimit: 10,
		pollInterval: 3 * time.Second,
		ctx:          ctx,
		cancel:       cancel,
		logger:       logging.OrNop(logger).Named("backfill").Sugar(),
	}
}

// Start launches the background worker loop.
func (s *Service) Start() {
	if err := s.repo.ResetStuckJobs(s.ctx); err != nil {
		s.logger.Warnf("⚠️  failed to reset jobs: %v", err)
	}

	s.wg.Add(1)
	go s.worker()
}

// Shutdown stops the worker and waits for the current job to return.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Enqueue validates the request and stores a queued job.
func (s *Service) Enqueue(ctx context.Context, req Request) (*Job, error) {
	job, err := BuildJob(req)
	if err != nil {
		return nil, err
	}

	stored, err := s.repo.CreateJob(ctx, job)
	if err != nil {
		return nil, err
	}

	if err := s.repo.AppendEvent(ctx, stored.JobID, "queued", "Job queued"); err != nil {
		s.logger.Warnf("⚠️  job %s: %v", stored.JobID, err)
	}
	s.logger.Infof("[%s] queued %s job %s (%d units)", stored.Sport, stored.JobType, stored.JobID, stored.ProgressTotal)

	return stored, nil
}

// Cancel cancels a queued job. Running jobs finish.
func (s *Service) Cancel(ctx context.Context, jobID string) (bool, error) {
	return s.repo.CancelQueued(ctx, jobID)
}

// BuildJob turns a request into a queued job row.
func BuildJob(req Request) (*Job, error) {
	req.Sport = strings.ToLower(strings.TrimSpace(req.Sport))
	if req.Sport == "" {
		req.Sport = "nfl"
	}
	lg, ok := league.Lookup(req.Sport)
	if !ok {
		return nil, fmt.Errorf("%w: unknown sport %q", ErrInvalidRequest, req.Sport)
	}

	jobType, err := req.DeriveType()
	if err != nil {
		return nil, err
	}

	job := &Job{
		JobType:       jobType,
		Sport:         lg.Key,
		Status:        JobStatusQueued,
		StatusMessage: sql.NullString{String: "Queued", Valid: true},
		SeasonID:      sql.NullString{String: req.SeasonID, Valid: req.SeasonID != ""},
	}

	switch jobType {
	case JobTypeGame:
		job.GameIDs = req.GameIDs
		job.ProgressTotal = len(req.GameIDs)
	case JobTypeSeason:
		year, err := seasonStartYear(req.SeasonID)
		if err != nil {
			return nil, err
		}
		start, end := lg.SeasonWindow(year)
		job.StartDate = sql.NullTime{Time: start, Valid: true}
		job.EndDate = sql.NullTime{Time: end, Valid: true}
		job.ProgressTotal = len(enumerateDates(start, end))
	case JobTypeDateRange:
		start, end := truncateDate(*req.StartDate), truncateDate(*req.EndDate)
		if end.Before(start) {
			return nil, fmt.Errorf("%w: end_date before start_date", ErrInvalidRequest)
		}
		job.StartDate = sql.NullTime{Time: start, Valid: true}
		job.EndDate = sql.NullTime{Time: end, Valid: true}
		job.ProgressTotal = len(enumerateDates(start, end))
	}

	return job, nil
}

// GetStatus returns the currently running job plus recent history.
func (s *Service) GetStatus(ctx context.Context) (*StatusSummary, error) {
	active, err := s.repo.GetActiveJob(ctx)
	if err != nil {
		return nil, err
	}

	history, err := s.repo.ListRecentJobs(ctx, s.historyLimit)
	if err != nil {
		return nil, err
	}

	return &StatusSummary{
		ActiveJob: active,
		History:   history,
	}, nil
}

func (s *Service) worker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		if s.ctx.Err() != nil {
			return
		}

		job, err := s.repo.MarkNextJobRunning(s.ctx)
		if err != nil {
			s.logger.Errorf("❌ claim job: %v", err)
		}
		if err != nil || job == nil {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				continue
			}
		}

		s.executeJob(job)
	}
}

func (s *Service) executeJob(job *Job) {
	spec, err := buildSpec(job)
	if err != nil {
		s.logger.Errorf("❌ invalid job spec %s: %v", job.JobID, err)
		_ = s.repo.UpdateStatus(s.ctx, job.JobID, JobStatusFailed, "Invalid job specification", err)
		return
	}

	reporter := &jobReporter{
		ctx:   s.ctx,
		repo:  s.repo,
		jobID: job.JobID,
		total: specProgressUnits(spec),
	}

	started := time.Now()
	if err := s.runner.Run(s.ctx, spec, reporter); err != nil {
		status := JobStatusFailed
		if errors.Is(err, context.Canceled) {
			status = JobStatusCancelled
		}
		// the worker context may already be gone on shutdown
		_ = s.repo.UpdateStatus(context.Background(), job.JobID, status, "Job "+string(status), err)
		s.logger.Errorf("[%s] ❌ job %s %s: %v", job.Sport, job.JobID, status, err)
		return
	}

	_ = s.repo.UpdateStatus(s.ctx, job.JobID, JobStatusCompleted, "Job completed", nil)
	s.logger.Infof("[%s] ✓ job %s completed in %s", job.Sport, job.JobID, time.Since(started).Round(time.Second))
}

// SpecFromRequest validates req and returns the spec a Runner executes
// directly, without queueing a job.
func SpecFromRequest(req Request) (JobSpec, error) {
	job, err := BuildJob(req)
	if err != nil {
		return JobSpec{}, err
	}
	spec, err := buildSpec(job)
	if err != nil {
		return spec, err
	}
	spec.DryRun = req.DryRun
	return spec, nil
}

func buildSpec(job *Job) (JobSpec, error) {
	spec := JobSpec{
		Type:     job.JobType,
		Sport:    job.Sport,
		SeasonID: job.SeasonID.String,
	}

	switch job.JobType {
	case JobTypeGame:
		if len(job.GameIDs) == 0 {
			return spec, fmt.Errorf("game job missing game_ids")
		}
		spec.GameIDs = job.GameIDs
	case JobTypeSeason, JobTypeDateRange:
		if !job.StartDate.Valid || !job.EndDate.Valid {
			return spec, fmt.Errorf("job missing start/end dates")
		}
		spec.Start = job.StartDate.Time
		spec.End = job.EndDate.Time
	default:
		return spec, fmt.Errorf("unknown job type %s", job.JobType)
	}

	return spec, nil
}

type jobReporter struct {
	ctx   context.Context
	repo  JobStore
	jobID string
	total int
}

func (r *jobReporter) OnJobStart(spec JobSpec) {
	if r.total == 0 {
		r.total = specProgressUnits(spec)
	}
	_ = r.repo.UpdateProgress(r.ctx, r.jobID, 0, r.total, "Job starting")
}

func (r *jobReporter) OnDateStart(date time.Time, index int, total int) {
	msg := fmt.Sprintf("Processing %s (%d/%d)", date.Format("Jan 2, 2006"), index+1, total)
	_ = r.repo.UpdateProgress(r.ctx, r.jobID, index, valueOr(total, r.total), msg)
}

func (r *jobReporter) OnGameProcessed(gameID string) {
	_ = r.repo.AppendEvent(r.ctx, r.jobID, "game", fmt.Sprintf("Game %s collected", gameID))
}

func (r *jobReporter) OnProgress(message string, current int, total int) {
	_ = r.repo.UpdateProgress(r.ctx, r.jobID, current, valueOr(total, r.total), message)
}

func (r *jobReporter) OnJobComplete() {
	_ = r.repo.UpdateProgress(r.ctx, r.jobID, r.total, r.total, "Job complete")
}

func (r *jobReporter) OnJobError(err error) {
	_ = r.repo.AppendEvent(r.ctx, r.jobID, "error", err.Error())
}

func specProgressUnits(spec JobSpec) int {
	switch spec.Type {
	case JobTypeGame:
		return len(spec.GameIDs)
	case JobTypeSeason, JobTypeDateRange:
		return len(enumerateDates(spec.Start, spec.End))
	default:
		return 0
	}
}

func valueOr(val, fallback int) int {
	if val > 0 {
		return val
	}
	return fallback
}

// seasonStartYear accepts "2024" and "2024-25".
func seasonStartYear(seasonID string) (int, error) {
	head, _, _ := strings.Cut(strings.TrimSpace(seasonID), "-")
	year, err := strconv.Atoi(head)
	if err != nil || year < 1900 || year > 2100 {
		return 0, fmt.Errorf("%w: season_id %q", ErrInvalidRequest, seasonID)
	}
	return year, nil
}
