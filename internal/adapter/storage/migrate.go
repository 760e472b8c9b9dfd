package storage

import (
	"database/sql"
	"embed"

	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// RunMigrations applies the embedded schema. clean rolls everything back
// first.
func RunMigrations(db *sql.DB, clean bool) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "open migrations")
	}
	driver, err := migratemysql.WithInstance(db, &migratemysql.Config{})
	if err != nil {
		return errors.Wrap(err, "migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "mysql", driver)
	if err != nil {
		return errors.Wrap(err, "migrate")
	}

	if clean {
		if err := m.Down(); err != nil && err != migrate.ErrNoChange {
			return errors.Wrap(err, "migrate down")
		}
	}
	if err := m.Up(); err != nil {
		if err != migrate.ErrNoChange {
			return errors.Wrap(err, "migrate up")
		}
		log.Info().Msg("schema is up to date")
	}
	return nil
}
