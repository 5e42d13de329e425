package store

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/stewardhq/steward/errors"
)

// ActionStore handles persistence of the action ledger
type ActionStore struct {
	db *sql.DB
}

// NewActionStore creates a new action store
func NewActionStore(db *sql.DB) *ActionStore {
	return &ActionStore{db: db}
}

// Create creates a new action record
func (s *ActionStore) Create(action *Action) error {
	query := `
		INSERT INTO actions (
			id, execution_id, description, tool, arguments,
			status, boundary_violation, result, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var tool, arguments, boundaryViolation, result interface{}
	if action.Tool != nil {
		tool = *action.Tool
	}
	if len(action.Arguments) > 0 {
		arguments = string(action.Arguments)
	}
	if action.BoundaryViolation != nil {
		boundaryViolation = *action.BoundaryViolation
	}
	if action.Result != nil {
		result = *action.Result
	}

	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(query,
		action.ID,
		action.ExecutionID,
		action.Description,
		tool,
		arguments,
		action.Status,
		boundaryViolation,
		result,
		action.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to create action %s", action.ID)
	}

	return nil
}

// GetByID retrieves an action by ID
func (s *ActionStore) GetByID(id string) (*Action, error) {
	row := s.db.QueryRow(`
		SELECT id, execution_id, description, tool, arguments,
		       status, boundary_violation, result, created_at
		FROM actions
		WHERE id = ?
	`, id)

	action, err := scanAction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrapf(errors.ErrNotFound, "action %s", id)
		}
		return nil, errors.Wrapf(err, "failed to get action %s", id)
	}
	return action, nil
}

// Update applies a partial update to an action. Nil fields in the update
// are left untouched.
func (s *ActionStore) Update(id string, update ActionUpdate) error {
	var sets []string
	var args []interface{}

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *update.Status)
	}
	if update.Result != nil {
		sets = append(sets, "result = ?")
		args = append(args, *update.Result)
	}
	if update.BoundaryViolation != nil {
		sets = append(sets, "boundary_violation = ?")
		args = append(args, *update.BoundaryViolation)
	}

	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	result, err := s.db.Exec(
		`UPDATE actions SET `+strings.Join(sets, ", ")+` WHERE id = ?`,
		args...,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to update action %s", id)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		return errors.Wrapf(errors.ErrNotFound, "action %s", id)
	}

	return nil
}

// ListByExecution returns actions for an execution in creation order
func (s *ActionStore) ListByExecution(executionID string) ([]*Action, error) {
	rows, err := s.db.Query(`
		SELECT id, execution_id, description, tool, arguments,
		       status, boundary_violation, result, created_at
		FROM actions
		WHERE execution_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, executionID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list actions for execution %s", executionID)
	}
	defer rows.Close()

	var actions []*Action
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan action")
		}
		actions = append(actions, action)
	}

	return actions, rows.Err()
}

// CountPending returns the number of pending-approval actions for an execution
func (s *ActionStore) CountPending(executionID string) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM actions WHERE execution_id = ? AND status = ?`,
		executionID, ActionStatusPending,
	).Scan(&count)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to count pending actions for execution %s", executionID)
	}
	return count, nil
}

// ListPendingWithContext returns all pending-approval actions joined with
// job title and execution status, oldest first.
func (s *ActionStore) ListPendingWithContext() ([]*PendingAction, error) {
	rows, err := s.db.Query(`
		SELECT a.id, a.execution_id, a.description, a.tool, a.arguments,
		       a.status, a.boundary_violation, a.result, a.created_at,
		       e.job_id, j.title, e.status
		FROM actions a
		JOIN executions e ON e.id = a.execution_id
		JOIN jobs j ON j.id = e.job_id
		WHERE a.status = ?
		ORDER BY a.created_at ASC, a.rowid ASC
	`, ActionStatusPending)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list pending actions")
	}
	defer rows.Close()

	var pending []*PendingAction
	for rows.Next() {
		var p PendingAction
		var tool, arguments, boundaryViolation, result sql.NullString
		var createdAt string

		err := rows.Scan(
			&p.ID,
			&p.ExecutionID,
			&p.Description,
			&tool,
			&arguments,
			&p.Status,
			&boundaryViolation,
			&result,
			&createdAt,
			&p.JobID,
			&p.JobTitle,
			&p.ExecutionStatus,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan pending action")
		}

		p.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse created_at for action %s", p.ID)
		}
		if tool.Valid {
			p.Tool = &tool.String
		}
		if arguments.Valid {
			p.Arguments = json.RawMessage(arguments.String)
		}
		if boundaryViolation.Valid {
			p.BoundaryViolation = &boundaryViolation.String
		}
		if result.Valid {
			p.Result = &result.String
		}

		pending = append(pending, &p)
	}

	return pending, rows.Err()
}

func scanAction(row rowScanner) (*Action, error) {
	var action Action
	var tool, arguments, boundaryViolation, result sql.NullString
	var createdAt string

	err := row.Scan(
		&action.ID,
		&action.ExecutionID,
		&action.Description,
		&tool,
		&arguments,
		&action.Status,
		&boundaryViolation,
		&result,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	action.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for action %s", action.ID)
	}

	if tool.Valid {
		action.Tool = &tool.String
	}
	if arguments.Valid {
		action.Arguments = json.RawMessage(arguments.String)
	}
	if boundaryViolation.Valid {
		action.BoundaryViolation = &boundaryViolation.String
	}
	if result.Valid {
		action.Result = &result.String
	}

	return &action, nil
}
