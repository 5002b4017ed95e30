package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/locator-validation/internal/database"
	"github.com/iliyamo/locator-validation/internal/model"
)

// ConsumptionRepo is the consumption ledger: the set of ticket keys that
// have been claimed.  The primary key on ticket_key is what makes a claim
// exclusive; no method here relies on a prior read for correctness.
type ConsumptionRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewConsumptionRepo returns a ConsumptionRepo bound to the given database.
func NewConsumptionRepo(db *sql.DB, d database.Dialect) *ConsumptionRepo {
	return &ConsumptionRepo{db: db, dialect: d}
}

// TryClaimTx inserts the consumption row unless one already exists for the
// ticket key.  It returns true only when this call created the row.  When
// another transaction holds an uncommitted claim on the same key the
// statement waits for it and then affects zero rows.
func (r *ConsumptionRepo) TryClaimTx(ctx context.Context, tx *sql.Tx, c model.Consumption) (bool, error) {
	q := `INSERT INTO ticket_consumptions (ticket_key, locator, service_id, user_id, username, roles, dni, created_at)
          VALUES (?, ?, ?, ?, ?, ?, ?, ?)` + r.dialect.InsertIfAbsent("ticket_key")
	res, err := tx.ExecContext(ctx, q,
		c.TicketKey, c.Locator, nullString(c.ServiceID),
		nullIfEmpty(c.Actor.UserID), nullIfEmpty(c.Actor.Username), nullIfEmpty(strings.Join(c.Actor.Roles, ",")),
		c.DNI, c.CreatedAt.UTC(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListConsumedKeysTx returns the subset of keys that already have a
// consumption row.  Passing an empty slice returns an empty set.
func (r *ConsumptionRepo) ListConsumedKeysTx(ctx context.Context, tx *sql.Tx, keys []string) (map[string]struct{}, error) {
	consumed := make(map[string]struct{})
	if len(keys) == 0 {
		return consumed, nil
	}
	q := `SELECT ticket_key FROM ticket_consumptions WHERE ticket_key IN (` + database.Placeholders(len(keys)) + `)`
	rows, err := tx.QueryContext(ctx, q, stringArgs(keys)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		consumed[k] = struct{}{}
	}
	return consumed, rows.Err()
}

// LatestConsumptionTx returns the most recent claim time among keys, or
// nil when none of them has been consumed.
func (r *ConsumptionRepo) LatestConsumptionTx(ctx context.Context, tx *sql.Tx, keys []string) (*time.Time, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	q := `SELECT created_at FROM ticket_consumptions WHERE ticket_key IN (` + database.Placeholders(len(keys)) + `)`
	rows, err := tx.QueryContext(ctx, q, stringArgs(keys)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var latest *time.Time
	for rows.Next() {
		var nt nullTime
		if err := rows.Scan(&nt); err != nil {
			return nil, err
		}
		if nt.Valid && (latest == nil || nt.Time.After(*latest)) {
			t := nt.Time
			latest = &t
		}
	}
	return latest, rows.Err()
}

// DeleteAll removes consumption rows, optionally limited to one service,
// and returns how many were removed.  It backs the gated administrative
// reset and is never called by the validation path.
func (r *ConsumptionRepo) DeleteAll(ctx context.Context, serviceID *string) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if serviceID != nil && *serviceID != "" {
		res, err = r.db.ExecContext(ctx, `DELETE FROM ticket_consumptions WHERE service_id = ?`, *serviceID)
	} else {
		res, err = r.db.ExecContext(ctx, `DELETE FROM ticket_consumptions`)
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
