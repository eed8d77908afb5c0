package backfill

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// JobType enumerates the supported backfill job variants.
type JobType string

const (
	JobTypeSeason    JobType = "season"
	JobTypeDateRange JobType = "date_range"
	JobTypeGame      JobType = "game"
)

// JobStatus represents the lifecycle state for a job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job models the database representation of a results backfill job.
type Job struct {
	JobID           string
	JobType         JobType
	Sport           string
	SeasonID        sql.NullString
	StartDate       sql.NullTime
	EndDate         sql.NullTime
	GameIDs         pq.StringArray
	Status          JobStatus
	StatusMessage   sql.NullString
	ProgressCurrent int
	ProgressTotal   int
	LastError       sql.NullString
	RetryCount      int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       sql.NullTime
	CompletedAt     sql.NullTime
}

// Copy returns a shallow copy to prevent external mutation.
func (j *Job) Copy() *Job {
	if j == nil {
		return nil
	}
	cpy := *j
	cpy.GameIDs = append(pq.StringArray(nil), j.GameIDs...)
	return &cpy
}

// MarshalJSON renders nullable columns as plain values for API callers.
func (j *Job) MarshalJSON() ([]byte, error) {
	type view struct {
		JobID           string     `json:"job_id"`
		JobType         JobType    `json:"job_type"`
		Sport           string     `json:"sport"`
		SeasonID        string     `json:"season_id,omitempty"`
		StartDate       *time.Time `json:"start_date,omitempty"`
		EndDate         *time.Time `json:"end_date,omitempty"`
		GameIDs         []string   `json:"game_ids,omitempty"`
		Status          JobStatus  `json:"status"`
		StatusMessage   string     `json:"status_message,omitempty"`
		ProgressCurrent int        `json:"progress_current"`
		ProgressTotal   int        `json:"progress_total"`
		LastError       string     `json:"last_error,omitempty"`
		CreatedAt       time.Time  `json:"created_at"`
		StartedAt       *time.Time `json:"started_at,omitempty"`
		CompletedAt     *time.Time `json:"completed_at,omitempty"`
	}
	return json.Marshal(view{
		JobID:           j.JobID,
		JobType:         j.JobType,
		Sport:           j.Sport,
		SeasonID:        j.SeasonID.String,
		StartDate:       nullTime(j.StartDate),
		EndDate:         nullTime(j.EndDate),
		GameIDs:         j.GameIDs,
		Status:          j.Status,
		StatusMessage:   j.StatusMessage.String,
		ProgressCurrent: j.ProgressCurrent,
		ProgressTotal:   j.ProgressTotal,
		LastError:       j.LastError.String,
		CreatedAt:       j.CreatedAt,
		StartedAt:       nullTime(j.StartedAt),
		CompletedAt:     nullTime(j.CompletedAt),
	})
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// JobSpec describes the work to be performed by the runner.
type JobSpec struct {
	Type     JobType
	Sport    string
	SeasonID string
	Start    time.Time
	End      time.Time
	GameIDs  []string
	DryRun   bool
}

// Reporter receives lifecycle callbacks from the runner.
type Reporter interface {
	OnJobStart(spec JobSpec)
	OnDateStart(date time.Time, index int, total int)
	OnGameProcessed(gameID string)
	OnProgress(message string, current int, total int)
	OnJobComplete()
	OnJobError(err error)
}

// StatusSummary is returned to API callers.
type StatusSummary struct {
	ActiveJob *Job   `json:"active_job,omitempty"`
	History   []*Job `json:"recent_jobs,omitempty"`
}
