package nrsql

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// registerTestDriver registers a wrapped sqlite3 driver under a name unique
// to the test, since database/sql forbids re-registration.
func registerTestDriver(t *testing.T, opts ...Option) string {
	t.Helper()
	name := fmt.Sprintf("sqlite3-nr-%s", t.Name())
	Register(name, &sqlite3.SQLiteDriver{}, opts...)
	return name
}

func openTestDB(t *testing.T, driverName string) *sql.DB {
	t.Helper()
	db, err := sql.Open(driverName, ":memory:")
	require.NoError(t, err)
	// In-memory sqlite databases are per-connection.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestWrappedDriverExecutesQueries(t *testing.T) {
	db := openTestDB(t, registerTestDriver(t))

	ctx := context.Background()
	_, err := db.ExecContext(ctx, "CREATE TABLE res_partner (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "INSERT INTO res_partner (name) VALUES (?)", "Azure Interior")
	require.NoError(t, err)

	var name string
	err = db.QueryRowContext(ctx, "SELECT name FROM res_partner WHERE id = ?", 1).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "Azure Interior", name)
}

func TestQueryLogCollection(t *testing.T) {
	db := openTestDB(t, registerTestDriver(t))

	setup := context.Background()
	_, err := db.ExecContext(setup, "CREATE TABLE res_users (id INTEGER PRIMARY KEY, login TEXT)")
	require.NoError(t, err)

	ctx := WithQueryLog(context.Background())
	_, err = db.ExecContext(ctx, "INSERT INTO res_users (login) VALUES (?)", "admin")
	require.NoError(t, err)
	rows, err := db.QueryContext(ctx, "SELECT login FROM res_users")
	require.NoError(t, err)
	rows.Close()

	queries := QueryLogFromContext(ctx)
	require.Len(t, queries, 2)
	assert.Contains(t, queries[0].Query, "INSERT INTO res_users")
	assert.Contains(t, queries[1].Query, "SELECT login FROM res_users")
	for _, q := range queries {
		assert.GreaterOrEqual(t, q.Duration.Nanoseconds(), int64(0))
	}

	// The setup statement ran on a plain context and must not leak in.
	for _, q := range queries {
		assert.NotContains(t, q.Query, "CREATE TABLE")
	}
}

func TestQueryLogFromPlainContext(t *testing.T) {
	assert.Nil(t, QueryLogFromContext(context.Background()))
}

func TestRegisterPanics(t *testing.T) {
	assert.Panics(t, func() {
		Register("sqlite3-nr-nil-driver", nil)
	})

	name := registerTestDriver(t)
	assert.Panics(t, func() {
		Register(name, &sqlite3.SQLiteDriver{})
	})
}

func TestWithProduct(t *testing.T) {
	o := &options{product: newrelic.DatastorePostgres}
	WithProduct(newrelic.DatastoreSQLite)(o)
	assert.Equal(t, newrelic.DatastoreSQLite, o.product)
}

func TestQueryOperation(t *testing.T) {
	assert.Equal(t, "select", queryOperation("SELECT * FROM res_partner"))
	assert.Equal(t, "insert", queryOperation("insert into res_users values (1)"))
	assert.Equal(t, "", queryOperation("   "))
}
