// Package migrations embeds the versioned EarthFrame schema and applies it
// with golang-migrate.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Dialect selects the SQL flavour of the embedded migration files.
type Dialect string

// Supported dialects.
const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

//go:embed postgres/*.sql sqlite/*.sql
var migrationFiles embed.FS

// Status describes the schema version recorded in a database.
type Status struct {
	Version uint
	Latest  uint
	Dirty   bool
}

// Up applies all pending migrations. An already current database is not an
// error.
func Up(ctx context.Context, db *sql.DB, dialect Dialect) error {
	m, err := newSession(ctx, db, dialect)
	if err != nil {
		return err
	}
	defer m.release()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}

		return fmt.Errorf("migrating up: %w", err)
	}

	return nil
}

// Down rolls back the given number of migrations. A non-positive steps value
// rolls back every migration.
func Down(ctx context.Context, db *sql.DB, dialect Dialect, steps int) error {
	m, err := newSession(ctx, db, dialect)
	if err != nil {
		return err
	}
	defer m.release()

	if steps <= 0 {
		err = m.Down()
	} else {
		err = m.Steps(-steps)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrating down: %w", err)
	}

	return nil
}

// Version reports the current and latest schema versions. A database that
// has never been migrated reports version 0.
func Version(ctx context.Context, db *sql.DB, dialect Dialect) (*Status, error) {
	m, err := newSession(ctx, db, dialect)
	if err != nil {
		return nil, err
	}
	defer m.release()

	latest, err := LatestVersion(dialect)
	if err != nil {
		return nil, err
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return nil, fmt.Errorf("reading schema version: %w", err)
	}

	return &Status{Version: version, Latest: latest, Dirty: dirty}, nil
}

// CheckStatus verifies that the database schema matches the embedded
// migrations exactly.
func CheckStatus(ctx context.Context, db *sql.DB, dialect Dialect) error {
	m, err := newSession(ctx, db, dialect)
	if err != nil {
		return err
	}
	defer m.release()

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("database has no schema version (needs migration)")
		}

		return fmt.Errorf("reading schema version: %w", err)
	}

	if dirty {
		return fmt.Errorf(
			"database is in dirty state at version %d (migration failed previously)",
			version,
		)
	}

	latest, err := LatestVersion(dialect)
	if err != nil {
		return err
	}

	switch {
	case version < latest:
		return fmt.Errorf(
			"database is at version %d but latest is %d (%d migrations behind)",
			version, latest, latest-version,
		)
	case version > latest:
		return fmt.Errorf(
			"database version %d is ahead of binary version %d (binary needs update)",
			version, latest,
		)
	}

	return nil
}

// LatestVersion returns the highest migration version embedded for dialect.
func LatestVersion(dialect Dialect) (uint, error) {
	src, err := newSource(dialect)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	latest, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("reading first migration: %w", err)
	}

	for {
		next, err := src.Next(latest)
		if err != nil {
			break
		}

		latest = next
	}

	return latest, nil
}

func newSource(dialect Dialect) (source.Driver, error) {
	switch dialect {
	case Postgres, SQLite:
	default:
		return nil, fmt.Errorf("unsupported migration dialect: %q", dialect)
	}

	src, err := iofs.New(migrationFiles, string(dialect))
	if err != nil {
		return nil, fmt.Errorf("opening embedded migrations: %w", err)
	}

	return src, nil
}

// session is a migrate instance bound to the caller's pool. release frees
// what the instance holds and leaves db open.
type session struct {
	*migrate.Migrate
	release func()
}

func newSession(ctx context.Context, db *sql.DB, dialect Dialect) (*session, error) {
	src, err := newSource(dialect)
	if err != nil {
		return nil, err
	}

	switch dialect {
	case Postgres:
		return newPostgresSession(ctx, db, src)
	default:
		return newSQLiteSession(db, src)
	}
}

// newPostgresSession runs migrations on one dedicated connection, which
// the advisory lock requires. Closing the instance returns that connection
// to db.
func newPostgresSession(ctx context.Context, db *sql.DB, src source.Driver) (*session, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		src.Close()

		return nil, fmt.Errorf("acquiring migration connection: %w", err)
	}

	driver, err := migratepg.WithConnection(ctx, conn, &migratepg.Config{})
	if err != nil {
		conn.Close()
		src.Close()

		return nil, fmt.Errorf("creating postgres migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		driver.Close()
		src.Close()

		return nil, fmt.Errorf("creating migrate instance: %w", err)
	}

	return &session{
		Migrate: m,
		release: func() { _, _ = m.Close() },
	}, nil
}

// newSQLiteSession drives db directly. The instance is never closed since
// the sqlite3 driver's Close would close db.
func newSQLiteSession(db *sql.DB, src source.Driver) (*session, error) {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()

		return nil, fmt.Errorf("creating sqlite migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()

		return nil, fmt.Errorf("creating migrate instance: %w", err)
	}

	return &session{
		Migrate: m,
		release: func() { _ = src.Close() },
	}, nil
}
