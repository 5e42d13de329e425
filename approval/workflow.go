// Package approval resolves pending actions: a human approves or vetoes
// each one, and the owning execution's status is re-evaluated once no
// pending siblings remain.
package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stewardhq/steward/errors"
	"github.com/stewardhq/steward/internal/util"
	"github.com/stewardhq/steward/logger"
	"github.com/stewardhq/steward/store"
	"github.com/stewardhq/steward/tools"
)

// ErrActionNotFound indicates an unknown action id
var ErrActionNotFound = errors.Wrap(errors.ErrNotFound, "action not found")

// NotPendingError indicates an action that is no longer pending approval
type NotPendingError struct {
	Status string
}

func (e *NotPendingError) Error() string {
	return fmt.Sprintf("action is not pending approval (status: %s)", e.Status)
}

// Workflow applies human decisions to pending actions
type Workflow struct {
	registry   *tools.Registry
	executions *store.ExecutionStore
	actions    *store.ActionStore
	log        *zap.SugaredLogger
}

// NewWorkflow creates an approval workflow over the given stores
func NewWorkflow(registry *tools.Registry, executions *store.ExecutionStore, actions *store.ActionStore) *Workflow {
	return &Workflow{
		registry:   registry,
		executions: executions,
		actions:    actions,
		log:        logger.Named("approval"),
	}
}

// ListPending returns all pending actions joined with job and execution
// context
func (w *Workflow) ListPending() ([]*store.PendingAction, error) {
	return w.actions.ListPendingWithContext()
}

// Approve marks a pending action approved, re-invoking its tool on a
// best-effort basis. A failing re-invocation still approves the action;
// the failure is recorded in its result.
func (w *Workflow) Approve(ctx context.Context, actionID string) (*store.Action, error) {
	action, err := w.pendingAction(actionID)
	if err != nil {
		return nil, err
	}

	result := "approved"
	if action.Tool != nil {
		args := w.recoverArguments(action)
		invoked, err := w.registry.Invoke(ctx, *action.Tool, args)
		if err != nil {
			result = fmt.Sprintf("approved, but invocation failed: %v", err)
			w.log.Warnw("Approved action failed to invoke",
				"action_id", actionID, "tool", *action.Tool, "error", err)
		} else {
			result = invoked.Data
		}
	}

	update := store.ActionUpdate{
		Status: util.Ptr(store.ActionStatusApproved),
		Result: &result,
	}
	if err := w.actions.Update(actionID, update); err != nil {
		return nil, errors.Wrapf(err, "failed to approve action %s", actionID)
	}

	w.log.Infow("Action approved", "action_id", actionID, "execution_id", action.ExecutionID)

	if err := w.reevaluate(action.ExecutionID); err != nil {
		return nil, err
	}
	return w.actions.GetByID(actionID)
}

// Veto marks a pending action vetoed with an optional reason. No tool is
// ever invoked on veto.
func (w *Workflow) Veto(ctx context.Context, actionID, reason string) (*store.Action, error) {
	action, err := w.pendingAction(actionID)
	if err != nil {
		return nil, err
	}

	result := "Vetoed"
	if reason != "" {
		result = "Vetoed: " + reason
	}

	update := store.ActionUpdate{
		Status: util.Ptr(store.ActionStatusVetoed),
		Result: &result,
	}
	if err := w.actions.Update(actionID, update); err != nil {
		return nil, errors.Wrapf(err, "failed to veto action %s", actionID)
	}

	w.log.Infow("Action vetoed", "action_id", actionID, "execution_id", action.ExecutionID)

	if err := w.reevaluate(action.ExecutionID); err != nil {
		return nil, err
	}
	return w.actions.GetByID(actionID)
}

func (w *Workflow) pendingAction(actionID string) (*store.Action, error) {
	action, err := w.actions.GetByID(actionID)
	if err != nil {
		if errors.IsNotFoundError(err) {
			return nil, ErrActionNotFound
		}
		return nil, errors.Wrapf(err, "failed to load action %s", actionID)
	}
	if action.Status != store.ActionStatusPending {
		return nil, &NotPendingError{Status: action.Status}
	}
	return action, nil
}

// reevaluate promotes an awaiting-approval execution to completed once it
// has no pending actions left
func (w *Workflow) reevaluate(executionID string) error {
	exec, err := w.executions.GetByID(executionID)
	if err != nil {
		return errors.Wrapf(err, "failed to load execution %s", executionID)
	}
	if exec.Status != store.StatusAwaitingApproval {
		return nil
	}

	pending, err := w.actions.CountPending(executionID)
	if err != nil {
		return errors.Wrapf(err, "failed to count pending actions for %s", executionID)
	}
	if pending > 0 {
		return nil
	}

	now := time.Now().UTC()
	update := store.ExecutionUpdate{
		Status:      util.Ptr(store.StatusCompleted),
		CompletedAt: &now,
	}
	if err := w.executions.Update(executionID, update); err != nil {
		return errors.Wrapf(err, "failed to complete execution %s", executionID)
	}

	w.log.Infow("Execution completed after approvals resolved", "execution_id", executionID)
	return nil
}

// recoverArguments rebuilds the argument object for re-invocation. Stored
// structured arguments win; otherwise the rendered description is parsed
// (a trailing JSON object in parentheses, then a flat "key: value" list);
// tool defaults are the last resort. The parsing paths are lossy.
func (w *Workflow) recoverArguments(action *store.Action) map[string]any {
	if len(action.Arguments) > 0 {
		var args map[string]any
		if err := json.Unmarshal(action.Arguments, &args); err == nil {
			return args
		}
	}

	if args := parseDescriptionArgs(action.Description); args != nil {
		return args
	}

	if action.Tool != nil {
		return w.registry.DefaultArgs(*action.Tool)
	}
	return nil
}

// parseDescriptionArgs extracts arguments from a "name(...)" rendering
func parseDescriptionArgs(description string) map[string]any {
	open := strings.Index(description, "(")
	if open < 0 || !strings.HasSuffix(description, ")") {
		return nil
	}
	inner := strings.TrimSpace(description[open+1 : len(description)-1])
	if inner == "" {
		return nil
	}

	if strings.HasPrefix(inner, "{") {
		var args map[string]any
		if err := json.Unmarshal([]byte(inner), &args); err == nil {
			return args
		}
		return nil
	}

	// flat "key: value, key: value" form
	args := make(map[string]any)
	for _, pair := range strings.Split(inner, ",") {
		key, value, found := strings.Cut(pair, ":")
		if !found {
			return nil
		}
		args[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if len(args) == 0 {
		return nil
	}
	return args
}
