package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertIfAbsent(t *testing.T) {
	assert.Equal(t, " ON DUPLICATE KEY UPDATE ticket_key = ticket_key", MySQL.InsertIfAbsent("ticket_key"))
	assert.Equal(t, " ON CONFLICT(ticket_key) DO NOTHING", SQLite.InsertIfAbsent("ticket_key"))
	assert.Equal(t, " ON CONFLICT(idem_key, endpoint) DO NOTHING", SQLite.InsertIfAbsent("idem_key", "idem_key", "endpoint"))
}

func TestForUpdate(t *testing.T) {
	assert.Equal(t, " FOR UPDATE", MySQL.ForUpdate())
	assert.Equal(t, "", SQLite.ForUpdate())
}

func TestTxOptions(t *testing.T) {
	opts := MySQL.TxOptions()
	require.NotNil(t, opts)
	assert.Equal(t, sql.LevelReadCommitted, opts.Isolation)
	assert.False(t, opts.ReadOnly)
	assert.Nil(t, SQLite.TxOptions())
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect(" MySQL ")
	require.NoError(t, err)
	assert.Equal(t, MySQL, d)

	d, err = ParseDialect("sqlite3")
	require.NoError(t, err)
	assert.Equal(t, SQLite, d)

	_, err = ParseDialect("oracle")
	assert.Error(t, err)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", Placeholders(0))
	assert.Equal(t, "?", Placeholders(1))
	assert.Equal(t, "?,?,?", Placeholders(3))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New("boom")))
	assert.True(t, IsRetryable(&mysql.MySQLError{Number: 1213, Message: "Deadlock found"}))
	assert.True(t, IsRetryable(&mysql.MySQLError{Number: 1205, Message: "Lock wait timeout"}))
	assert.False(t, IsRetryable(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}))
}

func TestMigrateSQLite(t *testing.T) {
	db, err := OpenSQLite(t.TempDir() + "/migrate.db")
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, Migrate(ctx, db, SQLite))
	// running twice must be harmless
	require.NoError(t, Migrate(ctx, db, SQLite))

	var n int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('tickets','ticket_consumptions','idempotency_keys','validation_records')`,
	).Scan(&n))
	assert.Equal(t, 4, n)
}
