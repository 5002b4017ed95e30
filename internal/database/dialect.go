package database

import (
	"database/sql"
	"fmt"
	"strings"
)

// Dialect captures the few statements that differ between the storage
// engines the ledger runs on.  Both engines accept "?" placeholders.
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite"
)

// ParseDialect maps a DB_DRIVER value onto a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "mysql":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", driver)
}

// ForUpdate returns the row-locking suffix for a SELECT inside a
// transaction.  SQLite has no row locks; its immediate transactions
// already hold the database write lock.
func (d Dialect) ForUpdate() string {
	if d == MySQL {
		return " FOR UPDATE"
	}
	return ""
}

// TxOptions returns the options ledger transactions begin with.  MySQL
// runs them at READ COMMITTED: a locking read of an absent idempotency key
// then takes no gap lock, so requests with distinct keys cannot deadlock
// on each other's inserts.  A request reusing a key still waits on the
// first one's uncommitted row and then inserts nothing.  SQLite
// transactions are already serialized by BEGIN IMMEDIATE.
func (d Dialect) TxOptions() *sql.TxOptions {
	if d == MySQL {
		return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	}
	return nil
}

// InsertIfAbsent returns the suffix that turns a plain INSERT into a
// conditional one: when a row with the same key exists the statement
// affects zero rows instead of failing.  keyCol is the first column of the
// unique key and is used for the no-op assignment on MySQL.
func (d Dialect) InsertIfAbsent(keyCol string, conflictCols ...string) string {
	if d == MySQL {
		return fmt.Sprintf(" ON DUPLICATE KEY UPDATE %s = %s", keyCol, keyCol)
	}
	cols := conflictCols
	if len(cols) == 0 {
		cols = []string{keyCol}
	}
	return " ON CONFLICT(" + strings.Join(cols, ", ") + ") DO NOTHING"
}

// Placeholders returns n comma separated "?" markers for an IN list.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
