package migrations

import (
	"context"
	"database/sql"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	gdb, err := gorm.Open(
		sqlite.Open(":memory:?_pragma=foreign_keys(1)"),
		&gorm.Config{Logger: logger.Discard},
	)
	require.NoError(t, err)

	db, err := gdb.DB()
	require.NoError(t, err)

	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func tableExists(t *testing.T, db *sql.DB, table string) bool {
	t.Helper()

	var name string

	err := db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
	).Scan(&name)

	return err == nil
}

func TestUp_FreshDatabase(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	require.NoError(t, Up(ctx, db, SQLite))

	for _, table := range []string{
		"machines", "status_lookup", "simulations", "artifacts",
		"external_links", "variables", "simulation_variables",
		"schema_migrations",
	} {
		assert.True(t, tableExists(t, db, table), "table %s", table)
	}

	var statuses int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM status_lookup").Scan(&statuses))
	assert.Equal(t, 5, statuses)

	var machines int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM machines").Scan(&machines))
	assert.Equal(t, 8, machines)
}

func TestCheckStatus_FreshDatabase(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	err := CheckStatus(ctx, db, SQLite)
	require.Error(t, err)
	assert.Equal(t, "database has no schema version (needs migration)", err.Error())
}

func TestCheckStatus_AfterMigration(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	require.NoError(t, Up(ctx, db, SQLite))
	assert.NoError(t, CheckStatus(ctx, db, SQLite))
}

func TestUp_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	require.NoError(t, Up(ctx, db, SQLite))
	require.NoError(t, Up(ctx, db, SQLite), "second run should be a no-op")
	assert.NoError(t, CheckStatus(ctx, db, SQLite))
}

func TestDown_Steps(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	require.NoError(t, Up(ctx, db, SQLite))
	require.NoError(t, Down(ctx, db, SQLite, 1))

	status, err := Version(ctx, db, SQLite)
	require.NoError(t, err)
	assert.Equal(t, status.Latest-1, status.Version)
	assert.False(t, status.Dirty)

	var machines int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM machines").Scan(&machines))
	assert.Zero(t, machines)

	err = CheckStatus(ctx, db, SQLite)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 migrations behind")
}

func TestDown_All(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	require.NoError(t, Up(ctx, db, SQLite))
	require.NoError(t, Down(ctx, db, SQLite, 0))

	assert.False(t, tableExists(t, db, "simulations"))
	assert.False(t, tableExists(t, db, "machines"))
}

func TestVersion_Unmigrated(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	status, err := Version(ctx, db, SQLite)
	require.NoError(t, err)
	assert.Zero(t, status.Version)
	assert.Equal(t, uint(3), status.Latest)
}

func TestLatestVersion_DialectsAgree(t *testing.T) {
	pg, err := LatestVersion(Postgres)
	require.NoError(t, err)

	lite, err := LatestVersion(SQLite)
	require.NoError(t, err)

	assert.Equal(t, pg, lite)
}

func TestLatestVersion_UnknownDialect(t *testing.T) {
	_, err := LatestVersion(Dialect("oracle"))
	require.Error(t, err)
}
