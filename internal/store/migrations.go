package store

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFS embed.FS

// Migrate applies all pending migrations for the repository's dialect and
// returns the resulting schema version.
func (r *Repository) Migrate() (uint, error) {
	var (
		driver database.Driver
		err    error
	)
	switch r.dialect {
	case Postgres:
		driver, err = postgres.WithInstance(r.db, &postgres.Config{})
	case SQLite:
		driver, err = sqlite.WithInstance(r.db, &sqlite.Config{})
	default:
		return 0, fmt.Errorf("unsupported dialect %q", r.dialect)
	}
	if err != nil {
		return 0, fmt.Errorf("create %s migration driver: %w", r.dialect, err)
	}

	source, err := iofs.New(migrationFS, "migrations/"+string(r.dialect))
	if err != nil {
		return 0, fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, string(r.dialect), driver)
	if err != nil {
		return 0, fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("get migration version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}
