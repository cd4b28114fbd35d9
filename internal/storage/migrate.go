package storage

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/phlyk/bewhere-mvp-sub002/migrations"
)

// RunMigrations applies all embedded migrations against the connection. It
// validates the embedded pairs first so a broken build fails before touching
// the schema. ErrNoChange is not an error: it means the schema is current.
func RunMigrations(conn *Connection) error {
	if conn == nil {
		return ErrNoDatabaseConnection
	}

	if err := migrations.Validate(); err != nil {
		return fmt.Errorf("embedded migration validation failed: %w", err)
	}

	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to open embedded migration source: %w", err)
	}

	driver, err := migratepg.WithInstance(conn.DB(), &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	return nil
}
