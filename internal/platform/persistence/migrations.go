package persistence

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// SchemaVersion is the migration that installs everything this build relies on:
// progress_records with its immutability trigger, then ledger_outbox.
const SchemaVersion uint = 2

// ErrDirtySchema means an earlier migration failed halfway and needs manual repair
// (golang-migrate's "force" command) before the ledger may start.
var ErrDirtySchema = errors.New("database schema is dirty")

// RunMigrations brings the schema up to date and refuses to continue on a schema
// that is dirty or older than SchemaVersion.
func RunMigrations(logger *zap.Logger, databaseURL string, migrationsPath string) error {
	if migrationsPath == "" {
		return errors.New("migrations path cannot be empty")
	}
	if databaseURL == "" {
		return errors.New("database URL cannot be empty")
	}

	m, err := migrate.New("file://"+migrationsPath, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			logger.Warn("Failed to close migrate instance", zap.NamedError("source_error", sourceErr), zap.NamedError("db_error", dbErr))
		}
	}()

	if version, dirty, err := m.Version(); err == nil && dirty {
		return fmt.Errorf("%w at version %d", ErrDirtySchema, version)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	return checkSchemaVersion(logger, version, dirty)
}

func checkSchemaVersion(logger *zap.Logger, version uint, dirty bool) error {
	if dirty {
		return fmt.Errorf("%w at version %d", ErrDirtySchema, version)
	}
	if version < SchemaVersion {
		return fmt.Errorf("database schema version %d is older than required version %d", version, SchemaVersion)
	}
	logger.Info("Ledger schema is ready", zap.Uint("version", version))
	return nil
}
