/*
Package sqlstore provides a SQL-backed implementation of ledger.TxStore.

PURPOSE:
  Persists accounts, categories and transactions in SQLite or PostgreSQL.
  Queries are built with squirrel; only the placeholder format and the
  row-lock suffix differ between dialects.

DIALECTS:
  sqlite:   mattn/go-sqlite3. Opened with foreign keys on, WAL, and
            _txlock=immediate so every write transaction takes the write
            lock at BEGIN and concurrent balance updates serialize.
  postgres: pgx/v5 through database/sql. Account reads inside WithTx use
            SELECT ... FOR UPDATE.

KEY TABLES:
  accounts:     Balances and limits (decimal text / NUMERIC)
  categories:   One-level tree via parent_id, ON DELETE CASCADE
  transactions: Ledger entries; transfer legs point at each other

MIGRATION:
  Schema lives in migrations/<dialect>/ and is applied with golang-migrate
  from the embedded filesystem (see migrate.go).

USAGE:
  store, err := sqlstore.Open(sqlstore.Config{Dialect: sqlstore.SQLite, DSN: sqlstore.SQLiteDSN(":memory:")}, logger)
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := ledger.NewEngine(store)

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/warp/money-tracker/ledger"
)

// Dialect selects the SQL flavour.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// Config holds connection settings.
type Config struct {
	Dialect         Dialect
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SQLiteDSN appends the connection parameters the store relies on to a path.
// Use ":memory:" for an in-memory database.
func SQLiteDSN(path string) string {
	return path + "?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000"
}

// Store implements ledger.TxStore.
type Store struct {
	*queries
	db      *sql.DB
	dialect Dialect
	log     *zap.Logger
}

var _ ledger.TxStore = (*Store)(nil)

// Open connects, applies migrations and returns a ready store.
func Open(cfg Config, log *zap.Logger) (*Store, error) {
	var driver string
	switch cfg.Dialect {
	case SQLite:
		driver = "sqlite3"
	case Postgres:
		driver = "pgx"
	default:
		return nil, fmt.Errorf("unsupported dialect %q", cfg.Dialect)
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Dialect == SQLite && strings.HasPrefix(cfg.DSN, ":memory:") {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	s := &Store{
		queries: newQueries(db, cfg.Dialect, false),
		db:      db,
		dialect: cfg.Dialect,
		log:     log,
	}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Info("database ready", zap.String("dialect", string(cfg.Dialect)))
	return s, nil
}

// Close closes the database connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

// WithTx executes fn within a database transaction. The transaction is
// rolled back on every path that does not reach Commit.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(newQueries(sqlTx, s.dialect, s.dialect == Postgres)); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// QUERIES - shared by the pool and by open transactions
// =============================================================================

type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	run     runner
	sb      sq.StatementBuilderType
	lockRow bool
}

func newQueries(run runner, dialect Dialect, lockRows bool) *queries {
	var format sq.PlaceholderFormat = sq.Question
	if dialect == Postgres {
		format = sq.Dollar
	}
	return &queries{
		run:     run,
		sb:      sq.StatementBuilder.PlaceholderFormat(format),
		lockRow: lockRows,
	}
}

func (q *queries) exec(ctx context.Context, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return q.run.ExecContext(ctx, query, args...)
}

func (q *queries) queryRow(ctx context.Context, b sq.Sqlizer) (*sql.Row, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return q.run.QueryRowContext(ctx, query, args...), nil
}

func (q *queries) query(ctx context.Context, b sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return q.run.QueryContext(ctx, query, args...)
}

// insertReturningID runs an INSERT ... RETURNING id.
func (q *queries) insertReturningID(ctx context.Context, b sq.InsertBuilder) (int64, error) {
	row, err := q.queryRow(ctx, b.Suffix("RETURNING id"))
	if err != nil {
		return 0, err
	}
	var id int64
	err = row.Scan(&id)
	return id, err
}

// =============================================================================
// HELPERS
// =============================================================================

// timeLayout is fixed-width so stored timestamps order lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullID[T ~int64](id *T) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}

func idPtr[T ~int64](n sql.NullInt64) *T {
	if !n.Valid {
		return nil
	}
	id := T(n.Int64)
	return &id
}

func isUniqueViolation(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
