package store

import (
	"database/sql"
	"strings"
	"time"

	"github.com/stewardhq/steward/errors"
)

// ExecutionStore handles persistence of job execution history
type ExecutionStore struct {
	db *sql.DB
}

// NewExecutionStore creates a new execution store
func NewExecutionStore(db *sql.DB) *ExecutionStore {
	return &ExecutionStore{db: db}
}

// Create creates a new execution record
func (s *ExecutionStore) Create(exec *Execution) error {
	query := `
		INSERT INTO executions (
			id, job_id, status, started_at, completed_at,
			summary, error_message, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var completedAt, summary, errorMessage interface{}
	if exec.CompletedAt != nil {
		completedAt = exec.CompletedAt.Format(time.RFC3339)
	}
	if exec.Summary != nil {
		summary = *exec.Summary
	}
	if exec.ErrorMessage != nil {
		errorMessage = *exec.ErrorMessage
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(query,
		exec.ID,
		exec.JobID,
		exec.Status,
		exec.StartedAt.UTC().Format(time.RFC3339),
		completedAt,
		summary,
		errorMessage,
		now,
		now,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to create execution %s", exec.ID)
	}

	return nil
}

// GetByID retrieves an execution by ID
func (s *ExecutionStore) GetByID(id string) (*Execution, error) {
	row := s.db.QueryRow(`
		SELECT id, job_id, status, started_at, completed_at,
		       summary, error_message, created_at, updated_at
		FROM executions
		WHERE id = ?
	`, id)

	exec, err := scanExecution(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrapf(errors.ErrNotFound, "execution %s", id)
		}
		return nil, errors.Wrapf(err, "failed to get execution %s", id)
	}
	return exec, nil
}

// Update applies a partial update to an execution. Nil fields in the
// update are left untouched.
func (s *ExecutionStore) Update(id string, update ExecutionUpdate) error {
	var sets []string
	var args []interface{}

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *update.Status)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, update.CompletedAt.UTC().Format(time.RFC3339))
	}
	if update.Summary != nil {
		sets = append(sets, "summary = ?")
		args = append(args, *update.Summary)
	}
	if update.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *update.ErrorMessage)
	}

	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339))
	args = append(args, id)

	result, err := s.db.Exec(
		`UPDATE executions SET `+strings.Join(sets, ", ")+` WHERE id = ?`,
		args...,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to update execution %s", id)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		return errors.Wrapf(errors.ErrNotFound, "execution %s", id)
	}

	return nil
}

// ListByJob returns executions for a job, newest first
func (s *ExecutionStore) ListByJob(jobID string, limit int) ([]*Execution, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, job_id, status, started_at, completed_at,
		       summary, error_message, created_at, updated_at
		FROM executions
		WHERE job_id = ?
		ORDER BY started_at DESC
		LIMIT ?
	`, jobID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list executions for job %s", jobID)
	}
	defer rows.Close()

	var execs []*Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan execution")
		}
		execs = append(execs, exec)
	}

	return execs, rows.Err()
}

// ListByStatus returns executions in the given status, oldest first.
// Used by the startup pass that fails executions stranded by a restart.
func (s *ExecutionStore) ListByStatus(status string) ([]*Execution, error) {
	rows, err := s.db.Query(`
		SELECT id, job_id, status, started_at, completed_at,
		       summary, error_message, created_at, updated_at
		FROM executions
		WHERE status = ?
		ORDER BY started_at ASC
	`, status)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list executions with status %s", status)
	}
	defer rows.Close()

	var execs []*Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan execution")
		}
		execs = append(execs, exec)
	}

	return execs, rows.Err()
}

func scanExecution(row rowScanner) (*Execution, error) {
	var exec Execution
	var startedAt, createdAt, updatedAt string
	var completedAt, summary, errorMessage sql.NullString

	err := row.Scan(
		&exec.ID,
		&exec.JobID,
		&exec.Status,
		&startedAt,
		&completedAt,
		&summary,
		&errorMessage,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	exec.StartedAt, err = time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse started_at for execution %s", exec.ID)
	}
	exec.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for execution %s", exec.ID)
	}
	exec.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for execution %s", exec.ID)
	}

	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339, completedAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse completed_at for execution %s", exec.ID)
		}
		exec.CompletedAt = &t
	}
	if summary.Valid {
		exec.Summary = &summary.String
	}
	if errorMessage.Valid {
		exec.ErrorMessage = &errorMessage.String
	}

	return &exec, nil
}
