package agent

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/ai/anthropic"
	"github.com/stewardhq/steward/errors"
	testhelper "github.com/stewardhq/steward/internal/testing"
	"github.com/stewardhq/steward/store"
	"github.com/stewardhq/steward/tools"
)

type fixture struct {
	db         *sql.DB
	jobs       *store.JobStore
	executions *store.ExecutionStore
	actions    *store.ActionStore
}

func newFixture(t *testing.T) *fixture {
	db := testhelper.CreateTestDB(t)
	return &fixture{
		db:         db,
		jobs:       store.NewJobStore(db),
		executions: store.NewExecutionStore(db),
		actions:    store.NewActionStore(db),
	}
}

func (f *fixture) insertJob(t *testing.T, job *store.Job) *store.Job {
	require.NoError(t, f.jobs.Upsert(job))
	return job
}

func (f *fixture) executor(client CompletionClient) *Executor {
	return NewExecutor(client, tools.DefaultRegistry(), f.jobs, f.executions, f.actions)
}

// fakeClient replays scripted turns
type fakeClient struct {
	turns       []*anthropic.MessagesResponse
	err         error
	transcripts [][]anthropic.Message
}

func (f *fakeClient) IsConfigured() bool { return true }

func (f *fakeClient) Converse(ctx context.Context, system string, tools []anthropic.Tool, transcript []anthropic.Message) (*anthropic.MessagesResponse, error) {
	f.transcripts = append(f.transcripts, transcript)
	if f.err != nil {
		return nil, f.err
	}
	turn := len(f.transcripts) - 1
	if turn >= len(f.turns) {
		return nil, errors.New("fake client ran out of turns")
	}
	return f.turns[turn], nil
}

func gmailJob(boundaries []string) *store.Job {
	return &store.Job{
		ID:         "JOB_inbox-triage",
		Title:      "Inbox Triage",
		Schedule:   "*/30 * * * *",
		Goal:       "Keep the inbox tidy",
		Boundaries: boundaries,
		Tools:      []string{"gmail"},
		Enabled:    true,
	}
}

func TestSimulatedGmailRunHitsBoundary(t *testing.T) {
	f := newFixture(t)
	job := f.insertJob(t, gmailJob([]string{"Never send emails directly"}))

	result, err := f.executor(anthropic.NewClient(anthropic.Config{})).Run(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, store.StatusAwaitingApproval, result.Status)
	assert.Equal(t, 5, result.ActionCount)
	assert.Equal(t, 1, result.PendingCount)

	actions, err := f.actions.ListByExecution(result.ExecutionID)
	require.NoError(t, err)
	require.Len(t, actions, 5)

	var pending []*store.Action
	for _, action := range actions {
		if action.Status == store.ActionStatusPending {
			pending = append(pending, action)
		} else {
			assert.Equal(t, store.ActionStatusExecuted, action.Status)
		}
	}
	require.Len(t, pending, 1)
	assert.Equal(t, "gmail_draft_reply", *pending[0].Tool)
	require.NotNil(t, pending[0].BoundaryViolation)
	assert.Equal(t, "Never send emails directly", *pending[0].BoundaryViolation)

	exec, err := f.executions.GetByID(result.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusAwaitingApproval, exec.Status)
	assert.NotNil(t, exec.CompletedAt)
}

func TestSimulatedGmailRunWithoutBoundariesCompletes(t *testing.T) {
	f := newFixture(t)
	job := f.insertJob(t, gmailJob(nil))

	result, err := f.executor(anthropic.NewClient(anthropic.Config{})).Run(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, store.StatusCompleted, result.Status)
	assert.Equal(t, 5, result.ActionCount)
	assert.Equal(t, 0, result.PendingCount)
	assert.Contains(t, result.Summary, "Simulated run")

	refreshed, err := f.jobs.GetByID(job.ID)
	require.NoError(t, err)
	assert.NotNil(t, refreshed.LastRunAt)
}

func TestSimulatedGithubRunHoldsApproveForApproval(t *testing.T) {
	f := newFixture(t)
	job := f.insertJob(t, &store.Job{
		ID:       "JOB_pr-review",
		Title:    "PR Review",
		Schedule: "0 9 * * 1-5",
		Goal:     "Review open pull requests",
		Tools:    []string{"github"},
		Enabled:  true,
	})

	result, err := f.executor(anthropic.NewClient(anthropic.Config{})).Run(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, store.StatusAwaitingApproval, result.Status)
	assert.Equal(t, 3, result.ActionCount)
	assert.Equal(t, 1, result.PendingCount)

	actions, err := f.actions.ListByExecution(result.ExecutionID)
	require.NoError(t, err)
	require.Len(t, actions, 3)

	assert.Equal(t, store.ActionStatusExecuted, actions[0].Status)
	assert.Equal(t, store.ActionStatusExecuted, actions[1].Status)

	held := actions[2]
	assert.Equal(t, store.ActionStatusPending, held.Status)
	assert.Equal(t, "github_approve_pull_request", *held.Tool)
	assert.Nil(t, held.BoundaryViolation) // tool-signaled, not a boundary hit
	require.NotNil(t, held.Result)
	assert.Contains(t, *held.Result, "#42")
}

func TestLiveRunRecordsActionsInOrder(t *testing.T) {
	f := newFixture(t)
	job := f.insertJob(t, gmailJob(nil))

	client := &fakeClient{turns: []*anthropic.MessagesResponse{
		{
			StopReason: "tool_use",
			Content: []anthropic.ContentBlock{
				{Type: "tool_use", ID: "toolu_01", Name: "gmail_search_inbox", Input: json.RawMessage(`{"query":"is:unread"}`)},
				{Type: "tool_use", ID: "toolu_02", Name: "gmail_archive_email", Input: json.RawMessage(`{"message_id":"msg-106"}`)},
			},
		},
		{
			StopReason: "end_turn",
			Content:    []anthropic.ContentBlock{{Type: "text", Text: "Inbox triaged."}},
		},
	}}

	result, err := f.executor(client).Run(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, store.StatusCompleted, result.Status)
	assert.Equal(t, "Inbox triaged.", result.Summary)

	actions, err := f.actions.ListByExecution(result.ExecutionID)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, "gmail_search_inbox", *actions[0].Tool)
	assert.Equal(t, "gmail_archive_email", *actions[1].Tool)
	assert.Contains(t, actions[0].Description, `gmail_search_inbox({"query":"is:unread"})`)

	// second turn's transcript must carry tool results answering both calls
	require.Len(t, client.transcripts, 2)
	last := client.transcripts[1]
	results := last[len(last)-1]
	require.Len(t, results.Content, 2)
	assert.Equal(t, "toolu_01", results.Content[0].ToolUseID)
	assert.Equal(t, "toolu_02", results.Content[1].ToolUseID)
}

func TestLiveRunCompletionFailureFailsRun(t *testing.T) {
	f := newFixture(t)
	job := f.insertJob(t, gmailJob(nil))

	client := &fakeClient{err: errors.New("completion service unreachable: dial tcp: timeout")}

	result, err := f.executor(client).Run(context.Background(), job)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, store.StatusFailed, result.Status)

	exec, execErr := f.executions.GetByID(result.ExecutionID)
	require.NoError(t, execErr)
	assert.Equal(t, store.StatusFailed, exec.Status)
	require.NotNil(t, exec.ErrorMessage)
	assert.Equal(t, "completion service unreachable: dial tcp: timeout", *exec.ErrorMessage)
}

func TestLiveRunToolFailureContinues(t *testing.T) {
	f := newFixture(t)
	job := f.insertJob(t, gmailJob(nil))

	client := &fakeClient{turns: []*anthropic.MessagesResponse{
		{
			StopReason: "tool_use",
			Content: []anthropic.ContentBlock{
				{Type: "tool_use", ID: "toolu_01", Name: "gmail_teleport", Input: json.RawMessage(`{}`)},
			},
		},
		{
			StopReason: "end_turn",
			Content:    []anthropic.ContentBlock{{Type: "text", Text: "Could not teleport, finished the rest."}},
		},
	}}

	result, err := f.executor(client).Run(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, result.Status)

	actions, err := f.actions.ListByExecution(result.ExecutionID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, store.ActionStatusExecuted, actions[0].Status)
	require.NotNil(t, actions[0].Result)
	assert.Contains(t, *actions[0].Result, "tool invocation failed")

	// the failure was fed back as an error tool result
	results := client.transcripts[1][len(client.transcripts[1])-1]
	require.Len(t, results.Content, 1)
	assert.True(t, results.Content[0].IsError)
}

func TestBoundaryTable(t *testing.T) {
	boundaries := []string{
		"Never merge pull requests yourself",
		"Never send emails directly",
	}

	violation, matched := checkBoundaries(boundaries, "gmail_draft_reply")
	require.True(t, matched)
	assert.Equal(t, "Never send emails directly", violation)

	violation, matched = checkBoundaries(boundaries, "github_merge_pull_request")
	require.True(t, matched)
	assert.Equal(t, "Never merge pull requests yourself", violation)

	_, matched = checkBoundaries(boundaries, "gmail_search_inbox")
	assert.False(t, matched)

	// first boundary in job order wins when both could match
	violation, matched = checkBoundaries(
		[]string{"Do nothing without approval", "Never approve anything"},
		"github_approve_pull_request",
	)
	require.True(t, matched)
	assert.Equal(t, "Do nothing without approval", violation)
}
