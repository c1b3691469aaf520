package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/smallbiznis/fintrack/pkg/db"
)

//go:embed migrations
var embeddedMigrations embed.FS

const migrationsDir = "migrations"

// RunMigrations brings the schema for the given dialect up to date. Every
// table the ledger, recurring engine and license cache need is created on
// startup so a fresh install works without manual steps.
func RunMigrations(sqlDB *sql.DB, dialect string) error {
	if sqlDB == nil {
		return errors.New("migration database handle is required")
	}
	if dialect == "" {
		dialect = db.TypeSQLite
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir+"/"+dialect)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := newDriver(sqlDB, dialect)
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, dialect, driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Version reports the applied schema version and whether it is dirty.
func Version(sqlDB *sql.DB, dialect string) (uint, bool, error) {
	sub, err := fs.Sub(embeddedMigrations, migrationsDir+"/"+dialect)
	if err != nil {
		return 0, false, err
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return 0, false, err
	}
	driver, err := newDriver(sqlDB, dialect)
	if err != nil {
		return 0, false, err
	}
	migrator, err := migrate.NewWithInstance("iofs", source, dialect, driver)
	if err != nil {
		return 0, false, err
	}
	return migrator.Version()
}

func newDriver(sqlDB *sql.DB, dialect string) (database.Driver, error) {
	switch dialect {
	case db.TypeSQLite:
		return sqlite3.WithInstance(sqlDB, &sqlite3.Config{})
	case db.TypePostgres:
		return postgres.WithInstance(sqlDB, &postgres.Config{})
	case db.TypeMySQL:
		return mysql.WithInstance(sqlDB, &mysql.Config{})
	default:
		return nil, fmt.Errorf("unsupported migration dialect %q", dialect)
	}
}
