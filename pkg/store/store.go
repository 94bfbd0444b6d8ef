// Package store provides sqlx-backed persistence for the catalog and the
// reconcile pipeline, over either Postgres or SQLite.
package store

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Dialect identifies the database backend and its claim capabilities.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// SupportsSkipLocked reports whether the backend can claim jobs with
// SELECT ... FOR UPDATE SKIP LOCKED.
func (d Dialect) SupportsSkipLocked() bool {
	return d == DialectPostgres
}

// Store wraps a database handle, its dialect and the entity repositories.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
	logger  *zap.SugaredLogger
}

// Open connects to databaseURL, runs pending migrations and returns a
// ready store. Postgres URLs (postgres://, postgresql://) use pgx; a
// sqlite:// URL or bare file path uses SQLite.
func Open(ctx context.Context, databaseURL string, logger *zap.SugaredLogger) (*Store, error) {
	driver, dsn, dialect := resolveDriver(databaseURL)

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if dialect == DialectSQLite {
		// SQLite serializes writers; a small pool plus busy_timeout keeps
		// concurrent workers from tripping over SQLITE_BUSY.
		db.SetMaxOpenConns(4)
	}

	s := &Store{db: db, dialect: dialect, logger: logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func resolveDriver(databaseURL string) (driver, dsn string, dialect Dialect) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return "pgx", databaseURL, DialectPostgres
	case strings.HasPrefix(databaseURL, "sqlite://"):
		path := strings.TrimPrefix(databaseURL, "sqlite://")
		return "sqlite3", path + "?_busy_timeout=5000&_foreign_keys=on", DialectSQLite
	default:
		return "sqlite3", databaseURL + "?_busy_timeout=5000&_foreign_keys=on", DialectSQLite
	}
}

func (s *Store) migrate(ctx context.Context) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())

	var gooseDialect, dir string
	switch s.dialect {
	case DialectPostgres:
		gooseDialect, dir = "postgres", "migrations/postgres"
	default:
		gooseDialect, dir = "sqlite3", "migrations/sqlite"
	}
	if err := goose.SetDialect(gooseDialect); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, s.db.DB, dir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	s.logger.Debugf("database ready (dialect=%s)", s.dialect)
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for non-transactional reads.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

// WithTx runs fn inside a transaction, rolling back on error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warnf("rollback failed: %v", rbErr)
		}
		return err
	}
	return tx.Commit()
}

// now returns the canonical UTC timestamp written to all columns, truncated
// to microseconds so values round-trip identically on both backends.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
