package store

import (
	"encoding/json"
	"time"
)

// Action represents one tool invocation attempt, or deferral thereof,
// within an execution.
//
// An action with BoundaryViolation set was never actually invoked
// until/unless approved. Arguments carries the original structured tool
// input so that approval can re-invoke the call without re-parsing the
// rendered description.
type Action struct {
	ID                string          `json:"id"` // ACT_{random}
	ExecutionID       string          `json:"execution_id"`
	Description       string          `json:"description"`
	Tool              *string         `json:"tool,omitempty"`
	Arguments         json.RawMessage `json:"arguments,omitempty"`
	Status            string          `json:"status"`
	BoundaryViolation *string         `json:"boundary_violation,omitempty"`
	Result            *string         `json:"result,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Action status constants. ActionStatusPending is the only non-terminal
// state; it transitions exclusively to approved or vetoed.
const (
	ActionStatusExecuted = "executed"
	ActionStatusPending  = "pending_approval"
	ActionStatusApproved = "approved"
	ActionStatusVetoed   = "vetoed"
)

// ActionUpdate holds the mutable fields of an action. Nil fields are left
// untouched.
type ActionUpdate struct {
	Status            *string
	Result            *string
	BoundaryViolation *string
}

// PendingAction is a pending-approval action joined with enough job and
// execution context for a human to decide.
type PendingAction struct {
	Action
	JobID           string `json:"job_id"`
	JobTitle        string `json:"job_title"`
	ExecutionStatus string `json:"execution_status"`
}
