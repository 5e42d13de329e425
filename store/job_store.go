package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/stewardhq/steward/errors"
)

// JobStore handles persistence of job definitions
type JobStore struct {
	db *sql.DB
}

// NewJobStore creates a new job store
func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

const jobColumns = `id, title, schedule, goal, policies, boundaries, tools,
       enabled, last_run_at, next_run_at, created_at, updated_at`

// Upsert inserts a job or overwrites its fields in place, preserving
// identity and created_at. This is how source reloads update jobs.
func (s *JobStore) Upsert(job *Job) error {
	policies, err := json.Marshal(job.Policies)
	if err != nil {
		return errors.Wrap(err, "marshal policies")
	}
	boundaries, err := json.Marshal(job.Boundaries)
	if err != nil {
		return errors.Wrap(err, "marshal boundaries")
	}
	tools, err := json.Marshal(job.Tools)
	if err != nil {
		return errors.Wrap(err, "marshal tools")
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var lastRunAt, nextRunAt interface{}
	if job.LastRunAt != nil {
		lastRunAt = job.LastRunAt.Format(time.RFC3339)
	}
	if job.NextRunAt != nil {
		nextRunAt = job.NextRunAt.Format(time.RFC3339)
	}

	query := `
		INSERT INTO jobs (
			id, title, schedule, goal, policies, boundaries, tools,
			enabled, last_run_at, next_run_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			schedule = excluded.schedule,
			goal = excluded.goal,
			policies = excluded.policies,
			boundaries = excluded.boundaries,
			tools = excluded.tools,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err = s.db.Exec(query,
		job.ID,
		job.Title,
		job.Schedule,
		job.Goal,
		string(policies),
		string(boundaries),
		string(tools),
		job.Enabled,
		lastRunAt,
		nextRunAt,
		now,
		now,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to upsert job %s", job.ID)
	}

	return nil
}

// GetByID retrieves a job by ID
func (s *JobStore) GetByID(id string) (*Job, error) {
	row := s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)

	job, err := scanJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrapf(errors.ErrNotFound, "job %s", id)
		}
		return nil, errors.Wrapf(err, "failed to get job %s", id)
	}
	return job, nil
}

// GetAll returns all jobs ordered by id
func (s *JobStore) GetAll() ([]*Job, error) {
	rows, err := s.db.Query(`SELECT ` + jobColumns + ` FROM jobs ORDER BY id ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// SetEnabled toggles a job's enabled flag and returns the updated job
func (s *JobStore) SetEnabled(id string, enabled bool) (*Job, error) {
	result, err := s.db.Exec(
		`UPDATE jobs SET enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to set enabled for job %s", id)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "job %s", id)
	}

	return s.GetByID(id)
}

// SetNextRun stamps the advisory next-run estimate
func (s *JobStore) SetNextRun(id string, at time.Time) error {
	return s.stampTime(id, "next_run_at", at)
}

// SetLastRun stamps the last run time
func (s *JobStore) SetLastRun(id string, at time.Time) error {
	return s.stampTime(id, "last_run_at", at)
}

func (s *JobStore) stampTime(id, column string, at time.Time) error {
	// column is one of two compile-time constants, never user input
	query := `UPDATE jobs SET ` + column + ` = ?, updated_at = ? WHERE id = ?`
	result, err := s.db.Exec(query,
		at.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to update %s for job %s", column, id)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		return errors.Wrapf(errors.ErrNotFound, "job %s", id)
	}

	return nil
}

// Delete removes a job whose source document has disappeared.
// Idempotent: deleting an unknown id is a no-op.
func (s *JobStore) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM jobs WHERE id = ?`, id); err != nil {
		return errors.Wrapf(err, "failed to delete job %s", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var policies, boundaries, tools string
	var lastRunAt, nextRunAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&job.ID,
		&job.Title,
		&job.Schedule,
		&job.Goal,
		&policies,
		&boundaries,
		&tools,
		&job.Enabled,
		&lastRunAt,
		&nextRunAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(policies), &job.Policies); err != nil {
		return nil, errors.Wrapf(err, "failed to parse policies for job %s", job.ID)
	}
	if err := json.Unmarshal([]byte(boundaries), &job.Boundaries); err != nil {
		return nil, errors.Wrapf(err, "failed to parse boundaries for job %s", job.ID)
	}
	if err := json.Unmarshal([]byte(tools), &job.Tools); err != nil {
		return nil, errors.Wrapf(err, "failed to parse tools for job %s", job.ID)
	}

	job.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for job %s", job.ID)
	}
	job.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for job %s", job.ID)
	}

	if lastRunAt.Valid {
		t, err := time.Parse(time.RFC3339, lastRunAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse last_run_at for job %s", job.ID)
		}
		job.LastRunAt = &t
	}
	if nextRunAt.Valid {
		t, err := time.Parse(time.RFC3339, nextRunAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse next_run_at for job %s", job.ID)
		}
		job.NextRunAt = &t
	}

	return &job, nil
}
