package postgres

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// NewMigrator returns a migrator over the embedded migrations of one service
// ("transactions" or "payments").
func NewMigrator(databaseURL, service string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations/"+service)
	if err != nil {
		return nil, fmt.Errorf("open migrations for %s: %w", service, err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// MigrateUp applies every pending migration of the service.
func MigrateUp(databaseURL, service string) error {
	m, err := NewMigrator(databaseURL, service)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s up: %w", service, err)
	}
	return nil
}
