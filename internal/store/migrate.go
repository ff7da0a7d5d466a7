package store

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // register postgres driver
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// migrationSource reads NNN_name.up.sql / NNN_name.down.sql pairs from dir.
func migrationSource(dir fs.FS) (source.Driver, error) {
	src, err := iofs.New(dir, ".")
	if err != nil {
		return nil, fmt.Errorf("store: read migrations: %w", err)
	}
	return src, nil
}

func newMigrator(dsn string, dir fs.FS) (*migrate.Migrate, error) {
	src, err := migrationSource(dir)
	if err != nil {
		return nil, err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("store: create migrator: %w", err)
	}
	return m, nil
}

// Migrate applies every pending up migration in dir to the database at dsn
// and returns the schema version afterwards. changed is false when the
// schema was already current.
func Migrate(dsn string, dir fs.FS, logger *zap.Logger) (version uint, changed bool, err error) {
	m, err := newMigrator(dsn, dir)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	changed = true
	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return 0, false, fmt.Errorf("store: run migrations up: %w", err)
		}
		changed = false
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, changed, fmt.Errorf("store: read schema version: %w", err)
	}
	if dirty {
		return version, changed, fmt.Errorf("store: schema version %d is dirty", version)
	}
	logger.Info("store: migrations applied", zap.Uint("version", version), zap.Bool("changed", changed))
	return version, changed, nil
}

// MigrateDown rolls back every applied migration. Nothing to roll back is
// not an error.
func MigrateDown(dsn string, dir fs.FS, logger *zap.Logger) error {
	m, err := newMigrator(dsn, dir)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: run migrations down: %w", err)
	}
	logger.Info("store: migrations rolled back")
	return nil
}
