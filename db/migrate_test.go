package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenWithMigrations(t *testing.T) {
	t.Run("creates ledger tables", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		database, err := OpenWithMigrations(dbPath, nil)
		require.NoError(t, err)
		defer database.Close()

		for _, table := range []string{"schema_migrations", "jobs", "executions", "actions"} {
			var count int
			err = database.QueryRow(
				"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table,
			).Scan(&count)
			require.NoError(t, err)
			assert.Equal(t, 1, count, "table %s should exist after migrations", table)
		}
	})

	t.Run("is idempotent", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		database, err := OpenWithMigrations(dbPath, nil)
		require.NoError(t, err)
		require.NoError(t, Migrate(database, nil))

		var applied int
		err = database.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied)
		require.NoError(t, err)
		assert.Equal(t, 4, applied)
		database.Close()
	})
}
