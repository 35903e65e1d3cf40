package sqldb

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/golang/glog"
)

//go:embed migrations
var migrationsFS embed.FS

// RunMigrations applies the pending migrations of the dialect. Already
// applied migrations are skipped.
func RunMigrations(db *DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations/"+db.dialect)
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	var dbDriver database.Driver
	switch db.dialect {
	case TypeSQLite:
		dbDriver, err = migratesqlite.WithInstance(db.Writer, &migratesqlite.Config{})
	case TypePostgres:
		dbDriver, err = migratepg.WithInstance(db.Writer, &migratepg.Config{})
	default:
		err = fmt.Errorf("unknown dialect %s", db.dialect)
	}
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, db.dialect, dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	if glog.V(5) {
		v, _, _ := m.Version()
		glog.Infof("%s schema version %d", db.dialect, v)
	}
	return nil
}
