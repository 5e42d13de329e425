package commands

import (
	"database/sql"

	"github.com/stewardhq/steward/config"
	"github.com/stewardhq/steward/db"
	"github.com/stewardhq/steward/errors"
	"github.com/stewardhq/steward/logger"
)

// openDatabase loads the configuration and opens the migrated ledger
func openDatabase() (*sql.DB, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load config")
	}

	database, err := db.OpenWithMigrations(cfg.Database.Path, logger.Named("db"))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open database %s", cfg.Database.Path)
	}
	return database, cfg, nil
}
