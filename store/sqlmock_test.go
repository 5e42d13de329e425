package store

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Driver-level failures are hard to provoke with real sqlite; sqlmock
// covers the wrapping on those paths.

func TestJobStoreUpsertDatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO jobs").WillReturnError(assert.AnError)

	jobs := NewJobStore(db)
	err = jobs.Upsert(testJob("JOB_mock"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to upsert job JOB_mock")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActionStoreListPendingDatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT a.id").WillReturnError(assert.AnError)

	actions := NewActionStore(db)
	_, err = actions.ListPendingWithContext()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list pending actions")
	assert.NoError(t, mock.ExpectationsWereMet())
}
