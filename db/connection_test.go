package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	t.Run("opens database with WAL mode and foreign keys", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		database, err := Open(dbPath, nil)
		require.NoError(t, err)
		defer database.Close()

		var journalMode string
		err = database.QueryRow("PRAGMA journal_mode").Scan(&journalMode)
		require.NoError(t, err)
		assert.Equal(t, "wal", journalMode)

		var foreignKeys int
		err = database.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys)
		require.NoError(t, err)
		assert.Equal(t, 1, foreignKeys)
	})

	t.Run("fails on unwritable path", func(t *testing.T) {
		_, err := Open("/nonexistent-dir/deeply/nested/test.db", nil)
		assert.Error(t, err)
	})
}
