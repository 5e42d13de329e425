// Package schedule maps enabled job definitions to live cron entries,
// guarantees at-most-one concurrent run per job, and provides manual
// triggering and hot reconfiguration.
package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/stewardhq/steward/errors"
	"github.com/stewardhq/steward/store"
)

// Typed failures surfaced to trigger/run callers.
var (
	// ErrAlreadyRunning is returned when a run is requested for a job that
	// already has a run in flight. The fire is lost, not queued.
	ErrAlreadyRunning = errors.Wrap(errors.ErrConflict, "job is already running")

	// ErrJobNotFound is returned by Trigger for an unknown job id
	ErrJobNotFound = errors.Wrap(errors.ErrNotFound, "job not registered")

	// ErrDefinitionNotFound is returned when the stored definition vanished
	// between lock acquisition and lookup (a race with unregistration)
	ErrDefinitionNotFound = errors.Wrap(errors.ErrNotFound, "job definition not found")
)

// Runner executes one job run end-to-end and records the outcome on the
// execution itself. The returned error reports only failures the runner
// could not fold into execution state.
type Runner interface {
	Run(ctx context.Context, job *store.Job) (executionID string, err error)
}

// RunnerFunc adapts a function to the Runner interface
type RunnerFunc func(ctx context.Context, job *store.Job) (string, error)

// Run implements Runner
func (f RunnerFunc) Run(ctx context.Context, job *store.Job) (string, error) {
	return f(ctx, job)
}

// Config contains scheduler configuration
type Config struct {
	RunTimeout time.Duration // Wall-clock limit per run (default: 10 minutes)
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		RunTimeout: 10 * time.Minute,
	}
}

// Scheduler owns the entry registry, the definition cache, and the
// running-set. All three are mutated only through its methods so the
// run-lock invariant is enforced in one place.
type Scheduler struct {
	cron    *cron.Cron
	parser  cron.Parser
	runner  Runner
	jobs    *store.JobStore
	log     *zap.SugaredLogger
	timeout time.Duration

	mu      sync.Mutex
	entries map[string]cron.EntryID
	defs    map[string]*store.Job
	running map[string]struct{}
}

// NewScheduler creates a scheduler. Standard 5-field cron expressions
// only (minute hour dom month dow).
func NewScheduler(runner Runner, jobs *store.JobStore, cfg Config, log *zap.SugaredLogger) *Scheduler {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultConfig().RunTimeout
	}

	return &Scheduler{
		cron:    cron.New(),
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		runner:  runner,
		jobs:    jobs,
		log:     log,
		timeout: cfg.RunTimeout,
		entries: make(map[string]cron.EntryID),
		defs:    make(map[string]*store.Job),
		running: make(map[string]struct{}),
	}
}

// Start begins firing cron entries
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Infow("Scheduler started")
}

// Stop stops firing and waits for in-flight cron callbacks to return
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Infow("Scheduler stopped")
}

// Initialize clears all existing entries and registers every enabled job
// with a valid schedule. Jobs with an invalid schedule are stored but
// never entry-registered; they remain manually triggerable.
func (s *Scheduler) Initialize(jobs []*store.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.entries {
		s.cron.Remove(s.entries[id])
		delete(s.entries, id)
	}
	s.defs = make(map[string]*store.Job)

	for _, job := range jobs {
		s.defs[job.ID] = job
		if job.Enabled {
			s.registerLocked(job)
		}
	}

	s.log.Infow("Scheduler initialized",
		"jobs", len(jobs),
		"scheduled", len(s.entries))
}

// Register validates the schedule and replaces any prior entry for the
// job id. Invalid schedules are logged; the definition is still stored so
// the job stays fetchable and manually triggerable.
func (s *Scheduler) Register(job *store.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[job.ID] = job
	s.registerLocked(job)
}

// registerLocked requires s.mu held
func (s *Scheduler) registerLocked(job *store.Job) {
	sched, err := s.parser.Parse(job.Schedule)
	if err != nil {
		s.log.Warnw("Invalid schedule, job will not auto-fire",
			"job_id", job.ID,
			"schedule", job.Schedule,
			"error", err)
		return
	}

	if prev, ok := s.entries[job.ID]; ok {
		s.cron.Remove(prev)
	}

	jobID := job.ID
	s.entries[jobID] = s.cron.Schedule(sched, cron.FuncJob(func() {
		if _, err := s.runJob(jobID); err != nil {
			s.log.Warnw("Scheduled run skipped",
				"job_id", jobID,
				"error", err)
		}
	}))

	s.persistNextRunEstimate(job.ID, job.Schedule)

	s.log.Infow("Job scheduled",
		"job_id", job.ID,
		"schedule", job.Schedule)
}

// Unregister cancels and removes the entry if present; idempotent no-op
// otherwise. The definition is retained.
func (s *Scheduler) Unregister(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unregisterLocked(jobID)
}

// unregisterLocked requires s.mu held
func (s *Scheduler) unregisterLocked(jobID string) {
	entryID, ok := s.entries[jobID]
	if !ok {
		return
	}
	s.cron.Remove(entryID)
	delete(s.entries, jobID)
	s.log.Infow("Job unscheduled", "job_id", jobID)
}

// Reconcile applies a fresh full job list: ids no longer present are
// unregistered and dropped; disabled jobs are unregistered but their
// definition retained; enabled jobs are re-registered only if new or if
// their schedule string changed, to avoid needless entry churn.
func (s *Scheduler) Reconcile(jobs []*store.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	incoming := make(map[string]*store.Job, len(jobs))
	for _, job := range jobs {
		incoming[job.ID] = job
	}

	for id := range s.defs {
		if _, ok := incoming[id]; !ok {
			s.unregisterLocked(id)
			delete(s.defs, id)
		}
	}

	for _, job := range jobs {
		prev := s.defs[job.ID]
		s.defs[job.ID] = job

		if !job.Enabled {
			s.unregisterLocked(job.ID)
			continue
		}

		_, hasEntry := s.entries[job.ID]
		if !hasEntry || prev == nil || prev.Schedule != job.Schedule {
			s.registerLocked(job)
		}
	}

	s.log.Infow("Scheduler reconciled",
		"jobs", len(jobs),
		"scheduled", len(s.entries))
}

// Trigger manually invokes the run routine for an already-registered
// definition. Fails with ErrJobNotFound if the id is unknown.
func (s *Scheduler) Trigger(jobID string) (string, error) {
	s.mu.Lock()
	_, known := s.defs[jobID]
	s.mu.Unlock()
	if !known {
		return "", errors.Wrapf(ErrJobNotFound, "%s", jobID)
	}

	return s.runJob(jobID)
}

// IsRunning reports whether a run for the job is in flight
func (s *Scheduler) IsRunning(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, running := s.running[jobID]
	return running
}

// ScheduledIDs returns a sorted snapshot of entry-registered job ids
func (s *Scheduler) ScheduledIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// runJob is the run routine shared by cron fires and manual triggers.
// Run failures are recorded on the execution by the runner; only
// concurrency and lookup failures propagate to the caller.
func (s *Scheduler) runJob(jobID string) (string, error) {
	s.mu.Lock()
	if _, inFlight := s.running[jobID]; inFlight {
		s.mu.Unlock()
		return "", errors.Wrapf(ErrAlreadyRunning, "%s", jobID)
	}
	job, ok := s.defs[jobID]
	if !ok {
		s.mu.Unlock()
		return "", errors.Wrapf(ErrDefinitionNotFound, "%s", jobID)
	}
	s.running[jobID] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, jobID)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.log.Infow("Running job",
		"job_id", jobID,
		"title", job.Title)

	executionID, err := s.runner.Run(ctx, job)
	if err != nil {
		// Already recorded on the execution; surface in logs only
		s.log.Errorw("Job run failed",
			"job_id", jobID,
			"execution_id", executionID,
			"error", err)
		return executionID, nil
	}

	s.mu.Lock()
	s.persistNextRunEstimate(jobID, job.Schedule)
	s.mu.Unlock()

	s.log.Infow("Job run finished",
		"job_id", jobID,
		"execution_id", executionID)

	return executionID, nil
}

// persistNextRunEstimate stamps the advisory next-run estimate for display.
// Never used to decide whether to fire.
func (s *Scheduler) persistNextRunEstimate(jobID, schedule string) {
	if s.jobs == nil {
		return
	}
	estimate := NextRunEstimate(schedule, time.Now())
	if err := s.jobs.SetNextRun(jobID, estimate); err != nil {
		s.log.Debugw("Failed to persist next-run estimate",
			"job_id", jobID,
			"error", err)
	}
}
