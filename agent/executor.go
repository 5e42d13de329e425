// Package agent drives job executions: the multi-turn tool-use exchange
// with the completion service, boundary enforcement on every requested
// tool call, and the action ledger the approval workflow later resolves.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stewardhq/steward/ai/anthropic"
	"github.com/stewardhq/steward/errors"
	"github.com/stewardhq/steward/internal/util"
	"github.com/stewardhq/steward/logger"
	"github.com/stewardhq/steward/store"
	"github.com/stewardhq/steward/tools"
)

// maxTurns bounds the conversation so a misbehaving exchange cannot spin
// forever inside one run
const maxTurns = 20

// CompletionClient is the conversational reasoning backend. It is
// satisfied by *anthropic.Client; tests substitute a scripted fake.
type CompletionClient interface {
	IsConfigured() bool
	Converse(ctx context.Context, system string, tools []anthropic.Tool, transcript []anthropic.Message) (*anthropic.MessagesResponse, error)
}

// Result summarizes one finished run
type Result struct {
	ExecutionID  string
	Status       string
	Summary      string
	ActionCount  int
	PendingCount int
}

// Executor runs one job at a time. Concurrency per job is the scheduler's
// responsibility; the executor assumes it holds the run-lock.
type Executor struct {
	client     CompletionClient
	registry   *tools.Registry
	jobs       *store.JobStore
	executions *store.ExecutionStore
	actions    *store.ActionStore
	log        *zap.SugaredLogger
}

// NewExecutor creates an executor over the given stores and collaborators
func NewExecutor(client CompletionClient, registry *tools.Registry, jobs *store.JobStore, executions *store.ExecutionStore, actions *store.ActionStore) *Executor {
	return &Executor{
		client:     client,
		registry:   registry,
		jobs:       jobs,
		executions: executions,
		actions:    actions,
		log:        logger.Named("agent"),
	}
}

// Run executes one job to completion and returns the run's outcome. The
// returned error is non-nil only when the run itself failed; ledger state
// is finalized either way.
func (e *Executor) Run(ctx context.Context, job *store.Job) (*Result, error) {
	exec := &store.Execution{
		ID:        store.NewExecutionID(),
		JobID:     job.ID,
		Status:    store.StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := e.executions.Create(exec); err != nil {
		return nil, errors.Wrapf(err, "failed to open execution for job %s", job.ID)
	}

	if err := e.jobs.SetLastRun(job.ID, exec.StartedAt); err != nil {
		e.log.Warnw("Failed to stamp last run", "job_id", job.ID, "error", err)
	}

	var summary string
	var runErr error

	// Simulation runs whenever no credential is configured; the two modes
	// are never mixed within one execution.
	if e.client == nil || !e.client.IsConfigured() {
		e.log.Infow("No completion-service credential, running simulation",
			"job_id", job.ID, "execution_id", exec.ID)
		summary, runErr = e.simulate(ctx, exec.ID, job)
	} else {
		summary, runErr = e.converseLoop(ctx, exec.ID, job)
	}

	return e.finalize(exec.ID, job.ID, summary, runErr)
}

// converseLoop drives the live tool-use exchange until the service returns
// a turn with no tool calls
func (e *Executor) converseLoop(ctx context.Context, executionID string, job *store.Job) (string, error) {
	catalog := e.registry.CatalogFor(job.Tools)
	apiTools := make([]anthropic.Tool, 0, len(catalog))
	for _, spec := range catalog {
		apiTools = append(apiTools, anthropic.Tool{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: spec.InputSchema,
		})
	}

	system := buildSystemDirective(job)
	transcript := []anthropic.Message{
		{Role: "user", Content: []anthropic.ContentBlock{anthropic.NewTextBlock(kickoffMessage(job))}},
	}

	for turn := 0; turn < maxTurns; turn++ {
		resp, err := e.client.Converse(ctx, system, apiTools, transcript)
		if err != nil {
			return "", err
		}

		transcript = append(transcript, anthropic.Message{Role: "assistant", Content: resp.Content})

		uses := resp.ToolUses()
		if len(uses) == 0 {
			return resp.TextContent(), nil
		}

		// Calls within one turn are processed sequentially, in the order
		// the service requested them; later calls may depend on earlier
		// ones having been recorded.
		results := make([]anthropic.ContentBlock, 0, len(uses))
		for _, use := range uses {
			outcome, err := e.processCall(ctx, executionID, job.Boundaries, toolCall{
				name:  use.Name,
				input: use.Input,
			})
			if err != nil {
				return "", err
			}
			results = append(results, anthropic.NewToolResultBlock(use.ID, outcome.content, outcome.isError))
		}
		transcript = append(transcript, anthropic.Message{Role: "user", Content: results})
	}

	return "", errors.Newf("conversation did not terminate within %d turns", maxTurns)
}

// toolCall is one requested invocation, from the live service or from a
// simulation script
type toolCall struct {
	name  string
	input json.RawMessage
}

type callOutcome struct {
	content string
	isError bool
	pending bool
}

// processCall applies the boundary check, invokes or defers the tool, and
// writes the resulting action. The returned error is reserved for ledger
// failures; a failing tool is recorded and the run continues.
func (e *Executor) processCall(ctx context.Context, executionID string, boundaries []string, call toolCall) (callOutcome, error) {
	description := renderCall(call.name, call.input)

	action := &store.Action{
		ID:          store.NewActionID(),
		ExecutionID: executionID,
		Description: description,
		Tool:        util.Ptr(call.name),
		Arguments:   call.input,
	}

	if boundary, matched := checkBoundaries(boundaries, call.name); matched {
		action.Status = store.ActionStatusPending
		action.BoundaryViolation = util.Ptr(boundary)
		if err := e.actions.Create(action); err != nil {
			return callOutcome{}, errors.Wrap(err, "failed to record blocked action")
		}
		e.log.Infow("Tool call blocked by boundary",
			"execution_id", executionID, "tool", call.name, "boundary", boundary)
		return callOutcome{
			content: fmt.Sprintf("Blocked: this action crosses the boundary %q and is held for human approval. Continue with the rest of the goal.", boundary),
			pending: true,
		}, nil
	}

	args := decodeArgs(call.input)
	result, err := e.registry.Invoke(ctx, call.name, args)
	if err != nil {
		failure := fmt.Sprintf("tool invocation failed: %v", err)
		action.Status = store.ActionStatusExecuted
		action.Result = util.Ptr(failure)
		if createErr := e.actions.Create(action); createErr != nil {
			return callOutcome{}, errors.Wrap(createErr, "failed to record failed action")
		}
		e.log.Warnw("Tool invocation failed",
			"execution_id", executionID, "tool", call.name, "error", err)
		return callOutcome{content: failure, isError: true}, nil
	}

	if result.RequiresApproval {
		action.Status = store.ActionStatusPending
		action.Result = util.Ptr(result.Data)
		if err := e.actions.Create(action); err != nil {
			return callOutcome{}, errors.Wrap(err, "failed to record deferred action")
		}
		return callOutcome{
			content: fmt.Sprintf("Prepared but held for human approval before taking effect: %s", result.Data),
			pending: true,
		}, nil
	}

	action.Status = store.ActionStatusExecuted
	action.Result = util.Ptr(result.Data)
	if err := e.actions.Create(action); err != nil {
		return callOutcome{}, errors.Wrap(err, "failed to record executed action")
	}
	return callOutcome{content: result.Data, isError: !result.Success}, nil
}

// finalize computes the terminal status from the run outcome and the
// pending-action count, writes it, and builds the result
func (e *Executor) finalize(executionID, jobID, summary string, runErr error) (*Result, error) {
	pending, err := e.actions.CountPending(executionID)
	if err != nil {
		e.log.Errorw("Failed to count pending actions", "execution_id", executionID, "error", err)
	}

	recorded, err := e.actions.ListByExecution(executionID)
	if err != nil {
		e.log.Errorw("Failed to list actions", "execution_id", executionID, "error", err)
	}

	now := time.Now().UTC()
	update := store.ExecutionUpdate{CompletedAt: &now}

	status := store.StatusCompleted
	switch {
	case runErr != nil:
		status = store.StatusFailed
		// Preserved verbatim for operator diagnosis
		update.ErrorMessage = util.Ptr(runErr.Error())
	case pending > 0:
		status = store.StatusAwaitingApproval
	}
	update.Status = &status
	if summary != "" {
		update.Summary = &summary
	}

	if err := e.executions.Update(executionID, update); err != nil {
		e.log.Errorw("Failed to finalize execution", "execution_id", executionID, "error", err)
		if runErr == nil {
			runErr = errors.Wrap(err, "failed to finalize execution")
		}
	}

	e.log.Infow("Execution finished",
		"execution_id", executionID, "job_id", jobID, "status", status,
		"actions", len(recorded), "pending", pending)

	return &Result{
		ExecutionID:  executionID,
		Status:       status,
		Summary:      summary,
		ActionCount:  len(recorded),
		PendingCount: pending,
	}, runErr
}

// renderCall renders a tool call as "name({...})" with compact JSON
// arguments. Approval falls back to parsing this form when stored
// arguments are missing.
func renderCall(name string, input json.RawMessage) string {
	if len(input) == 0 {
		return name + "()"
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, input); err != nil {
		return fmt.Sprintf("%s(%s)", name, input)
	}
	return fmt.Sprintf("%s(%s)", name, compact.String())
}

func decodeArgs(input json.RawMessage) map[string]any {
	if len(input) == 0 {
		return nil
	}
	var args map[string]any
	if err := json.Unmarshal(input, &args); err != nil {
		return nil
	}
	return args
}
