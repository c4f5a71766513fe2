package db

import (
	"embed"
	"errors"
	"fmt"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Direction selects which way migrations are applied.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// MigrationStatus reports the schema version after a run.
type MigrationStatus struct {
	Version uint
	Dirty   bool
	Changed bool
}

// Migrate applies the embedded migrations against databaseURL.
func Migrate(databaseURL string, dir Direction) (MigrationStatus, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("open migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("create migrator: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch dir {
	case Up:
		err = m.Up()
	case Down:
		err = m.Down()
	default:
		return MigrationStatus{}, fmt.Errorf("unknown migration direction %q", dir)
	}
	status := MigrationStatus{Changed: true}
	if errors.Is(err, migrate.ErrNoChange) {
		status.Changed = false
		err = nil
	}
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("run migrations %s: %w", dir, err)
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return MigrationStatus{}, fmt.Errorf("read migration version: %w", verr)
	}
	status.Version = version
	status.Dirty = dirty
	return status, nil
}
