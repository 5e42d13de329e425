package approval

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/errors"
	testhelper "github.com/stewardhq/steward/internal/testing"
	"github.com/stewardhq/steward/internal/util"
	"github.com/stewardhq/steward/store"
	"github.com/stewardhq/steward/tools"
)

type fixture struct {
	db         *sql.DB
	jobs       *store.JobStore
	executions *store.ExecutionStore
	actions    *store.ActionStore
	workflow   *Workflow
}

func newFixture(t *testing.T) *fixture {
	db := testhelper.CreateTestDB(t)
	executions := store.NewExecutionStore(db)
	actions := store.NewActionStore(db)
	return &fixture{
		db:         db,
		jobs:       store.NewJobStore(db),
		executions: executions,
		actions:    actions,
		workflow:   NewWorkflow(tools.DefaultRegistry(), executions, actions),
	}
}

// pendingFixture creates a job, an awaiting-approval execution, and one
// pending action for the given tool
func (f *fixture) pendingFixture(t *testing.T, tool string, arguments json.RawMessage, description string) *store.Action {
	t.Helper()

	job := &store.Job{
		ID:       "JOB_inbox-triage",
		Title:    "Inbox Triage",
		Schedule: "*/30 * * * *",
		Goal:     "Keep the inbox tidy",
		Tools:    []string{"gmail"},
		Enabled:  true,
	}
	require.NoError(t, f.jobs.Upsert(job))

	exec := &store.Execution{
		ID:        store.NewExecutionID(),
		JobID:     job.ID,
		Status:    store.StatusAwaitingApproval,
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, f.executions.Create(exec))

	action := &store.Action{
		ID:                store.NewActionID(),
		ExecutionID:       exec.ID,
		Description:       description,
		Tool:              util.Ptr(tool),
		Arguments:         arguments,
		Status:            store.ActionStatusPending,
		BoundaryViolation: util.Ptr("Never send emails directly"),
	}
	require.NoError(t, f.actions.Create(action))
	return action
}

func TestApproveCompletesExecution(t *testing.T) {
	f := newFixture(t)
	pending := f.pendingFixture(t, "gmail_draft_reply",
		json.RawMessage(`{"message_id":"msg-105","body":"On it."}`),
		`gmail_draft_reply({"message_id":"msg-105","body":"On it."})`)

	action, err := f.workflow.Approve(context.Background(), pending.ID)
	require.NoError(t, err)

	assert.Equal(t, store.ActionStatusApproved, action.Status)
	require.NotNil(t, action.Result)
	assert.Contains(t, *action.Result, "msg-105")

	exec, err := f.executions.GetByID(pending.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, exec.Status)
	assert.NotNil(t, exec.CompletedAt)
}

func TestVetoRecordsReasonAndCompletes(t *testing.T) {
	f := newFixture(t)
	pending := f.pendingFixture(t, "gmail_draft_reply", nil, "gmail_draft_reply()")

	action, err := f.workflow.Veto(context.Background(), pending.ID, "not yet")
	require.NoError(t, err)

	assert.Equal(t, store.ActionStatusVetoed, action.Status)
	require.NotNil(t, action.Result)
	assert.Equal(t, "Vetoed: not yet", *action.Result)

	exec, err := f.executions.GetByID(pending.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, exec.Status)
}

func TestVetoWithoutReason(t *testing.T) {
	f := newFixture(t)
	pending := f.pendingFixture(t, "gmail_draft_reply", nil, "gmail_draft_reply()")

	action, err := f.workflow.Veto(context.Background(), pending.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "Vetoed", *action.Result)
}

func TestApproveUnknownAction(t *testing.T) {
	f := newFixture(t)

	_, err := f.workflow.Approve(context.Background(), "ACT_missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrActionNotFound)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestVetoTwiceIsNotPending(t *testing.T) {
	f := newFixture(t)
	pending := f.pendingFixture(t, "gmail_draft_reply", nil, "gmail_draft_reply()")

	_, err := f.workflow.Veto(context.Background(), pending.ID, "first")
	require.NoError(t, err)

	_, err = f.workflow.Veto(context.Background(), pending.ID, "second")
	require.Error(t, err)

	var notPending *NotPendingError
	require.ErrorAs(t, err, &notPending)
	assert.Equal(t, store.ActionStatusVetoed, notPending.Status)
}

func TestApproveRecoversArgumentsFromDescription(t *testing.T) {
	f := newFixture(t)
	// no stored arguments, JSON form in the description
	pending := f.pendingFixture(t, "gmail_archive_email", nil,
		`gmail_archive_email({"message_id":"msg-77"})`)

	action, err := f.workflow.Approve(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Contains(t, *action.Result, "msg-77")
}

func TestApproveRecoversFlatArguments(t *testing.T) {
	f := newFixture(t)
	pending := f.pendingFixture(t, "gmail_archive_email", nil,
		"gmail_archive_email(message_id: msg-88)")

	action, err := f.workflow.Approve(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Contains(t, *action.Result, "msg-88")
}

func TestApproveFallsBackToToolDefaults(t *testing.T) {
	f := newFixture(t)
	pending := f.pendingFixture(t, "gmail_draft_reply", nil, "draft a reply")

	action, err := f.workflow.Approve(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ActionStatusApproved, action.Status)
	assert.Contains(t, *action.Result, "msg-unknown")
}

func TestApproveSurvivesInvocationFailure(t *testing.T) {
	f := newFixture(t)
	pending := f.pendingFixture(t, "gmail_teleport", nil, "gmail_teleport()")

	action, err := f.workflow.Approve(context.Background(), pending.ID)
	require.NoError(t, err)

	assert.Equal(t, store.ActionStatusApproved, action.Status)
	require.NotNil(t, action.Result)
	assert.Contains(t, *action.Result, "invocation failed")

	// a failed re-invocation still resolves the pending state
	exec, err := f.executions.GetByID(pending.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, exec.Status)
}

func TestApproveLeavesExecutionWaitingWithSiblings(t *testing.T) {
	f := newFixture(t)
	first := f.pendingFixture(t, "gmail_draft_reply", nil, "gmail_draft_reply()")

	sibling := &store.Action{
		ID:          store.NewActionID(),
		ExecutionID: first.ExecutionID,
		Description: "gmail_unsubscribe()",
		Tool:        util.Ptr("gmail_unsubscribe"),
		Status:      store.ActionStatusPending,
	}
	require.NoError(t, f.actions.Create(sibling))

	_, err := f.workflow.Approve(context.Background(), first.ID)
	require.NoError(t, err)

	exec, err := f.executions.GetByID(first.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusAwaitingApproval, exec.Status)

	_, err = f.workflow.Veto(context.Background(), sibling.ID, "")
	require.NoError(t, err)

	exec, err = f.executions.GetByID(first.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, exec.Status)
}

func TestListPendingIncludesContext(t *testing.T) {
	f := newFixture(t)
	pending := f.pendingFixture(t, "gmail_draft_reply", nil, "gmail_draft_reply()")

	list, err := f.workflow.ListPending()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, pending.ID, list[0].ID)
	assert.Equal(t, "Inbox Triage", list[0].JobTitle)
	assert.Equal(t, store.StatusAwaitingApproval, list[0].ExecutionStatus)
}
