package database

import (
	"context"
	"database/sql"
	"fmt"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS tickets (
		ticket_key     VARCHAR(128) NOT NULL PRIMARY KEY,
		locator        VARCHAR(64)  NOT NULL,
		service_id     VARCHAR(64)  NULL,
		seq            INT          NULL,
		bound_identity VARCHAR(32)  NULL,
		reference      VARCHAR(128) NULL,
		created_at     DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		INDEX idx_tickets_locator (locator, service_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS ticket_consumptions (
		ticket_key VARCHAR(128) NOT NULL PRIMARY KEY,
		locator    VARCHAR(64)  NOT NULL,
		service_id VARCHAR(64)  NULL,
		user_id    VARCHAR(64)  NULL,
		username   VARCHAR(128) NULL,
		roles      VARCHAR(255) NULL,
		dni        VARCHAR(32)  NOT NULL,
		created_at DATETIME(3)  NOT NULL,
		INDEX idx_consumptions_service (service_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		idem_key    VARCHAR(191) NOT NULL,
		endpoint    VARCHAR(64)  NOT NULL,
		fingerprint CHAR(64)     NOT NULL,
		response    MEDIUMTEXT   NOT NULL,
		created_at  DATETIME(3)  NOT NULL,
		PRIMARY KEY (idem_key, endpoint)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS validation_records (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		locator    VARCHAR(64)  NOT NULL,
		service_id VARCHAR(64)  NULL,
		dni        VARCHAR(32)  NULL,
		result     ENUM('VALID','INVALID','DUPLICATE','ERROR') NOT NULL,
		reason     VARCHAR(32)  NULL,
		reference  VARCHAR(128) NULL,
		ticket_key VARCHAR(128) NULL,
		user_id    VARCHAR(64)  NULL,
		username   VARCHAR(128) NULL,
		created_at DATETIME(3)  NOT NULL,
		updated_at DATETIME(3)  NOT NULL,
		INDEX idx_validations_locator (locator, created_at),
		INDEX idx_validations_created (created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS tickets (
		ticket_key     TEXT NOT NULL PRIMARY KEY,
		locator        TEXT NOT NULL,
		service_id     TEXT NULL,
		seq            INTEGER NULL,
		bound_identity TEXT NULL,
		reference      TEXT NULL,
		created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_locator ON tickets (locator, service_id)`,
	`CREATE TABLE IF NOT EXISTS ticket_consumptions (
		ticket_key TEXT NOT NULL PRIMARY KEY,
		locator    TEXT NOT NULL,
		service_id TEXT NULL,
		user_id    TEXT NULL,
		username   TEXT NULL,
		roles      TEXT NULL,
		dni        TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_consumptions_service ON ticket_consumptions (service_id)`,
	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		idem_key    TEXT NOT NULL,
		endpoint    TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		response    TEXT NOT NULL,
		created_at  DATETIME NOT NULL,
		PRIMARY KEY (idem_key, endpoint)
	)`,
	`CREATE TABLE IF NOT EXISTS validation_records (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		locator    TEXT NOT NULL,
		service_id TEXT NULL,
		dni        TEXT NULL,
		result     TEXT NOT NULL CHECK (result IN ('VALID','INVALID','DUPLICATE','ERROR')),
		reason     TEXT NULL,
		reference  TEXT NULL,
		ticket_key TEXT NULL,
		user_id    TEXT NULL,
		username   TEXT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_validations_locator ON validation_records (locator, created_at)`,
}

// Migrate creates the ledger tables when they do not exist yet.
// Statements run one at a time because the MySQL driver rejects
// multi-statement strings by default.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	stmts := sqliteSchema
	if d == MySQL {
		stmts = mysqlSchema
	}
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s step %d: %w", d, i, err)
		}
	}
	return nil
}
