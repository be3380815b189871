// Package migrate applies local store migrations from embedded SQL files using golang-migrate.
package migrate

import (
	"database/sql"
	"errors"
	"fmt"

	"securevote/client/internal/db"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// ErrNoChange is returned by golang-migrate when there is nothing to do.
var ErrNoChange = migrate.ErrNoChange

// Up brings the opened local store to the latest schema version. Already being
// at the latest version is not an error.
func Up(database *sql.DB) error {
	if database == nil {
		return errors.New("migrate: database is nil")
	}
	sourceDriver, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}
	dbDriver, err := sqlite.WithInstance(database, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
