package store

import "time"

// Execution represents a single run attempt of a job.
//
// Exactly one execution per job is ever in StatusRunning at a time. That
// invariant is enforced by the scheduler's run-lock, not by this store.
type Execution struct {
	ID           string     `json:"id"` // EXE_{random}
	JobID        string     `json:"job_id"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"` // nil while running
	Summary      *string    `json:"summary,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Execution status constants
const (
	StatusRunning          = "running"
	StatusCompleted        = "completed"
	StatusFailed           = "failed"
	StatusAwaitingApproval = "awaiting_approval"
)

// ExecutionUpdate holds the fields that may change after an execution is
// created. Nil fields are left untouched.
type ExecutionUpdate struct {
	Status       *string
	CompletedAt  *time.Time
	Summary      *string
	ErrorMessage *string
}
