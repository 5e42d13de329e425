// Package store persists the steward ledger: jobs, executions, and the
// actions taken (or deferred) during executions.
package store

import "time"

// Job represents one schedulable unit of autonomous work.
//
// Policies are advisory guidance passed to the reasoning service verbatim.
// Boundaries are hard limits enforced by the executor's boundary check.
// Tools lists the tool category names the job is allowed to use.
type Job struct {
	ID         string     `json:"id"` // JOB_{slug}, derived from the source document name
	Title      string     `json:"title"`
	Schedule   string     `json:"schedule"` // 5-field cron expression
	Goal       string     `json:"goal"`
	Policies   []string   `json:"policies"`
	Boundaries []string   `json:"boundaries"`
	Tools      []string   `json:"tools"`
	Enabled    bool       `json:"enabled"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	NextRunAt  *time.Time `json:"next_run_at,omitempty"` // advisory estimate, display only
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
