package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stewardhq/steward/errors"
	stewardtest "github.com/stewardhq/steward/internal/testing"
	"github.com/stewardhq/steward/store"
)

func schedulerJob(id, schedule string, enabled bool) *store.Job {
	return &store.Job{
		ID:       id,
		Title:    "Test job " + id,
		Schedule: schedule,
		Goal:     "test",
		Enabled:  enabled,
	}
}

func newTestScheduler(t *testing.T, runner Runner) *Scheduler {
	t.Helper()
	s := NewScheduler(runner, nil, DefaultConfig(), zap.NewNop().Sugar())
	t.Cleanup(s.Stop)
	return s
}

func noopRunner(executionID string) Runner {
	return RunnerFunc(func(ctx context.Context, job *store.Job) (string, error) {
		return executionID, nil
	})
}

func TestInitializeRegistersOnlyValidEnabledJobs(t *testing.T) {
	s := newTestScheduler(t, noopRunner("EXE_1"))

	s.Initialize([]*store.Job{
		schedulerJob("JOB_valid", "*/5 * * * *", true),
		schedulerJob("JOB_disabled", "*/5 * * * *", false),
		schedulerJob("JOB_invalid", "not a cron", true),
		schedulerJob("JOB_short", "0 9 *", true), // fewer than 5 fields
	})

	assert.Equal(t, []string{"JOB_valid"}, s.ScheduledIDs())
}

func TestInvalidScheduleStillManuallyTriggerable(t *testing.T) {
	var ran bool
	runner := RunnerFunc(func(ctx context.Context, job *store.Job) (string, error) {
		ran = true
		return "EXE_manual", nil
	})
	s := newTestScheduler(t, runner)

	s.Initialize([]*store.Job{schedulerJob("JOB_invalid", "0 9 *", true)})
	require.Empty(t, s.ScheduledIDs())

	execID, err := s.Trigger("JOB_invalid")
	require.NoError(t, err)
	assert.Equal(t, "EXE_manual", execID)
	assert.True(t, ran)
}

func TestTriggerUnknownJob(t *testing.T) {
	s := newTestScheduler(t, noopRunner("EXE_1"))

	_, err := s.Trigger("JOB_unknown")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrJobNotFound))
}

func TestTriggerRejectsConcurrentRun(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	runner := RunnerFunc(func(ctx context.Context, job *store.Job) (string, error) {
		close(started)
		<-release
		return "EXE_slow", nil
	})
	s := newTestScheduler(t, runner)
	s.Initialize([]*store.Job{schedulerJob("JOB_slow", "*/5 * * * *", true)})

	done := make(chan struct{})
	go func() {
		defer close(done)
		execID, err := s.Trigger("JOB_slow")
		assert.NoError(t, err)
		assert.Equal(t, "EXE_slow", execID)
	}()

	<-started
	assert.True(t, s.IsRunning("JOB_slow"))

	_, err := s.Trigger("JOB_slow")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyRunning))

	close(release)
	<-done

	// Run-lock released after completion
	assert.False(t, s.IsRunning("JOB_slow"))
}

func TestRunnerErrorDoesNotPropagate(t *testing.T) {
	runner := RunnerFunc(func(ctx context.Context, job *store.Job) (string, error) {
		return "EXE_fail", errors.New("completion service unreachable")
	})
	s := newTestScheduler(t, runner)
	s.Initialize([]*store.Job{schedulerJob("JOB_fail", "*/5 * * * *", true)})

	execID, err := s.Trigger("JOB_fail")
	require.NoError(t, err)
	assert.Equal(t, "EXE_fail", execID)
	assert.False(t, s.IsRunning("JOB_fail"))
}

func TestReconcileNoChurnOnUnchangedList(t *testing.T) {
	s := newTestScheduler(t, noopRunner("EXE_1"))

	jobs := []*store.Job{
		schedulerJob("JOB_a", "*/5 * * * *", true),
		schedulerJob("JOB_b", "0 9 * * *", true),
	}
	s.Initialize(jobs)

	before := map[string]interface{}{}
	s.mu.Lock()
	for id, entry := range s.entries {
		before[id] = entry
	}
	s.mu.Unlock()

	s.Reconcile(jobs)

	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.entries, len(before))
	for id, entry := range s.entries {
		assert.Equal(t, before[id], entry, "entry for %s should not churn", id)
	}
}

func TestReconcileAppliesSymmetricDifference(t *testing.T) {
	s := newTestScheduler(t, noopRunner("EXE_1"))

	s.Initialize([]*store.Job{
		schedulerJob("JOB_keep", "*/5 * * * *", true),
		schedulerJob("JOB_gone", "*/5 * * * *", true),
		schedulerJob("JOB_off", "*/5 * * * *", true),
	})

	s.Reconcile([]*store.Job{
		schedulerJob("JOB_keep", "*/5 * * * *", true),
		schedulerJob("JOB_off", "*/5 * * * *", false),
		schedulerJob("JOB_new", "0 12 * * *", true),
	})

	assert.Equal(t, []string{"JOB_keep", "JOB_new"}, s.ScheduledIDs())

	// Vanished id is fully dropped: not even manually triggerable
	_, err := s.Trigger("JOB_gone")
	assert.True(t, errors.Is(err, ErrJobNotFound))

	// Disabled id keeps its definition: still manually triggerable
	execID, err := s.Trigger("JOB_off")
	require.NoError(t, err)
	assert.Equal(t, "EXE_1", execID)
}

func TestReconcileReregistersOnScheduleChange(t *testing.T) {
	s := newTestScheduler(t, noopRunner("EXE_1"))

	s.Initialize([]*store.Job{schedulerJob("JOB_a", "*/5 * * * *", true)})

	s.mu.Lock()
	before := s.entries["JOB_a"]
	s.mu.Unlock()

	s.Reconcile([]*store.Job{schedulerJob("JOB_a", "*/10 * * * *", true)})

	s.mu.Lock()
	after := s.entries["JOB_a"]
	s.mu.Unlock()
	assert.NotEqual(t, before, after)
}

func TestSuccessfulRunPersistsNextRunEstimate(t *testing.T) {
	db := stewardtest.CreateTestDB(t)
	jobs := store.NewJobStore(db)

	job := schedulerJob("JOB_estimate", "*/15 * * * *", true)
	job.Boundaries = []string{}
	require.NoError(t, jobs.Upsert(job))

	s := NewScheduler(noopRunner("EXE_1"), jobs, DefaultConfig(), zap.NewNop().Sugar())
	t.Cleanup(s.Stop)
	s.Initialize([]*store.Job{job})

	_, err := s.Trigger("JOB_estimate")
	require.NoError(t, err)

	stored, err := jobs.GetByID("JOB_estimate")
	require.NoError(t, err)
	require.NotNil(t, stored.NextRunAt)
	assert.True(t, stored.NextRunAt.After(time.Now().Add(-time.Minute)))
}
