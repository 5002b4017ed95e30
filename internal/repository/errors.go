// Package repository holds the SQL persistence of the validation ledgers:
// consumption claims, idempotency records, the validation audit log and
// the locally seeded ticket table.  Methods suffixed Tx run inside a
// caller-owned transaction; the caller commits or rolls back.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row.  Handlers and the
// engine translate it rather than inspecting sql.ErrNoRows.
var ErrNotFound = errors.New("not found")
