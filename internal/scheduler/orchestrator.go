package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fortuna/pythia/internal/logging"
)

// Job names wired by cmd/pythia.
const (
	JobPipeline = "pipeline"
	JobResults  = "results"
	JobAccuracy = "accuracy"
	JobTrain    = "train"
)

// Job is one scheduled task. An empty Spec registers the job for manual
// triggering only.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Config holds scheduler configuration
type Config struct {
	Location             *time.Location // Default: UTC
	MaxRetries           int            // Default: 3
	RetryDelay           time.Duration  // Default: 5s
	JobTimeout           time.Duration  // Default: 15m
	MaxConsecutiveErrors int            // Default: 5
	RunOnStart           []string       // jobs run once when Start is called
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() *Config {
	return &Config{
		Location:             time.UTC,
		MaxRetries:           3,
		RetryDelay:           5 * time.Second,
		JobTimeout:           15 * time.Minute,
		MaxConsecutiveErrors: 5,
	}
}

// JobStatus is the last known state of one job.
type JobStatus struct {
	Name              string     `json:"name"`
	Spec              string     `json:"spec,omitempty"`
	Running           bool       `json:"running"`
	LastRun           *time.Time `json:"last_run,omitempty"`
	LastDuration      string     `json:"last_duration,omitempty"`
	LastError         string     `json:"last_error,omitempty"`
	ConsecutiveErrors int        `json:"consecutive_errors"`
	NextRun           *time.Time `json:"next_run,omitempty"`
}

type entry struct {
	job     Job
	id      cron.EntryID
	mu      sync.Mutex
	status  JobStatus
	running bool
}

// Orchestrator runs the pipeline and its maintenance jobs on cron schedules.
type Orchestrator struct {
	cron   *cron.Cron
	config *Config
	logger *zap.SugaredLogger

	entries map[string]*entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator registers jobs. An invalid cron spec is an error.
func NewOrchestrator(config *Config, logger *zap.Logger, jobs ...Job) (*Orchestrator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = DefaultConfig().JobTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(config.Location)),
		config:  config,
		logger:  logging.OrNop(logger).Named("scheduler").Sugar(),
		entries: make(map[string]*entry, len(jobs)),
		ctx:     ctx,
		cancel:  cancel,
	}

	for _, job := range jobs {
		if _, dup := o.entries[job.Name]; dup {
			cancel()
			return nil, fmt.Errorf("scheduler: duplicate job %q", job.Name)
		}
		e := &entry{job: job, status: JobStatus{Name: job.Name, Spec: job.Spec}}
		o.entries[job.Name] = e
		if job.Spec == "" {
			continue
		}
		id, err := o.cron.AddFunc(job.Spec, func() { o.execute(e) })
		if err != nil {
			cancel()
			return nil, fmt.Errorf("scheduler: job %s spec %q: %w", job.Name, job.Spec, err)
		}
		e.id = id
	}
	return o, nil
}

// Start begins all scheduled tasks and returns immediately.
func (o *Orchestrator) Start() {
	o.logger.Info("╔════════════════════════════════════════╗")
	o.logger.Info("║      Pythia Scheduler Orchestrator     ║")
	o.logger.Info("╚════════════════════════════════════════╝")
	for _, name := range o.names() {
		e := o.entries[name]
		if e.job.Spec == "" {
			o.logger.Infof("→ %s: manual only", name)
			continue
		}
		o.logger.Infof("→ %s: %s (%s)", name, e.job.Spec, o.config.Location)
	}

	o.cron.Start()

	for _, name := range o.config.RunOnStart {
		if e, ok := o.entries[name]; ok {
			o.wg.Add(1)
			go func() {
				defer o.wg.Done()
				o.execute(e)
			}()
		}
	}
}

// Stop halts scheduling, cancels running jobs and waits for them to return.
func (o *Orchestrator) Stop() {
	o.logger.Info("Stopping scheduler orchestrator...")
	stopped := o.cron.Stop()
	o.cancel()
	<-stopped.Done()
	o.wg.Wait()
	o.logger.Info("✓ Scheduler orchestrator stopped")
}

// Trigger runs the named job now, outside its schedule, and waits for it.
func (o *Orchestrator) Trigger(ctx context.Context, name string) error {
	e, ok := o.entries[name]
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}
	o.logger.Infof("Manual %s run triggered", name)
	return o.runWithRetry(ctx, e)
}

// TriggerPipeline runs the pipeline job now.
func (o *Orchestrator) TriggerPipeline(ctx context.Context) error {
	return o.Trigger(ctx, JobPipeline)
}

// GetStatus returns current scheduler status, sorted by job name.
func (o *Orchestrator) GetStatus() []JobStatus {
	out := make([]JobStatus, 0, len(o.entries))
	for _, name := range o.names() {
		e := o.entries[name]
		e.mu.Lock()
		s := e.status
		s.Running = e.running
		e.mu.Unlock()
		if e.id != 0 {
			if next := o.cron.Entry(e.id).Next; !next.IsZero() {
				s.NextRun = &next
			}
		}
		out = append(out, s)
	}
	return out
}

func (o *Orchestrator) names() []string {
	names := make([]string, 0, len(o.entries))
	for name := range o.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// execute is the cron entry point. A run still in progress is skipped.
func (o *Orchestrator) execute(e *entry) {
	ctx, cancel := context.WithTimeout(o.ctx, o.config.JobTimeout)
	defer cancel()
	if err := o.runWithRetry(ctx, e); err != nil && !errors.Is(err, errBusy) {
		o.logger.Debugf("%s: %v", e.job.Name, err)
	}
}

var errBusy = errors.New("job already running")

// runWithRetry performs the job with retry logic
func (o *Orchestrator) runWithRetry(ctx context.Context, e *entry) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		o.logger.Warnf("⚠️  %s still running, skipping", e.job.Name)
		return errBusy
	}
	e.running = true
	e.mu.Unlock()

	start := time.Now()
	var err error
retry:
	for attempt := 1; attempt <= o.config.MaxRetries; attempt++ {
		err = e.job.Run(ctx)
		if err == nil {
			break
		}
		o.logger.Warnf("⚠️  %s attempt %d/%d failed: %v", e.job.Name, attempt, o.config.MaxRetries, err)

		if attempt < o.config.MaxRetries {
			o.logger.Infof("  Retrying in %v...", o.config.RetryDelay)
			select {
			case <-ctx.Done():
				err = ctx.Err()
				break retry
			case <-time.After(o.config.RetryDelay):
			}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
	finished := time.Now()
	e.status.LastRun = &finished
	e.status.LastDuration = finished.Sub(start).Round(time.Millisecond).String()

	if err != nil {
		e.status.LastError = err.Error()
		e.status.ConsecutiveErrors++
		o.logger.Errorf("❌ %s failed after %d attempts. Consecutive errors: %d/%d",
			e.job.Name, o.config.MaxRetries, e.status.ConsecutiveErrors, o.config.MaxConsecutiveErrors)
		if o.config.MaxConsecutiveErrors > 0 && e.status.ConsecutiveErrors >= o.config.MaxConsecutiveErrors {
			o.logger.Errorf("⚠️  %s has failed %d times in a row", e.job.Name, e.status.ConsecutiveErrors)
		}
		return err
	}

	e.status.LastError = ""
	e.status.ConsecutiveErrors = 0
	o.logger.Infof("✓ %s complete in %s", e.job.Name, e.status.LastDuration)
	return nil
}
