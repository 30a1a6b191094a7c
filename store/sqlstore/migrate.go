package sqlstore

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Migrate applies pending migrations for the store's dialect.
// It runs on the store's own pool so in-memory SQLite sees the schema.
func (s *Store) Migrate() error {
	var (
		driver database.Driver
		err    error
	)
	switch s.dialect {
	case SQLite:
		driver, err = migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	case Postgres:
		driver, err = migratepgx.WithInstance(s.db, &migratepgx.Config{})
	default:
		return fmt.Errorf("unsupported dialect %q", s.dialect)
	}
	if err != nil {
		return fmt.Errorf("create %s driver: %w", s.dialect, err)
	}

	src, err := iofs.New(migrationsFS, "migrations/"+string(s.dialect))
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(s.dialect), driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// m.Close is not called: it would close the shared *sql.DB.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err == nil {
		s.log.Debug("schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
	}
	return nil
}
