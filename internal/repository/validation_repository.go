package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/locator-validation/internal/model"
)

// ValidationRepo appends to and reads the validation audit log.  Rows are
// never updated.
type ValidationRepo struct {
	db *sql.DB
}

// NewValidationRepo returns a ValidationRepo bound to the given database.
func NewValidationRepo(db *sql.DB) *ValidationRepo { return &ValidationRepo{db: db} }

// ValidationFilter narrows ListRecent.  Empty fields match everything.
type ValidationFilter struct {
	Locator   string
	ServiceID string
	Limit     int
}

// CreateTx inserts an audit row within the caller's transaction and
// populates the generated ID on rec.
func (r *ValidationRepo) CreateTx(ctx context.Context, tx *sql.Tx, rec *model.ValidationRecord) error {
	const q = `INSERT INTO validation_records
               (locator, service_id, dni, result, reason, reference, ticket_key, user_id, username, created_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q,
		rec.Locator, nullString(rec.ServiceID), nullIfEmpty(rec.DNI), rec.Result,
		nullString(rec.Reason), nullString(rec.Reference), nullString(rec.TicketKey),
		nullString(rec.UserID), nullString(rec.Username),
		rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rec.ID = uint64(id)
	return nil
}

// ListRecent returns audit rows newest first.  Limit defaults to 50 and
// is capped at 500.
func (r *ValidationRepo) ListRecent(ctx context.Context, f ValidationFilter) ([]model.ValidationRecord, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	var (
		where []string
		args  []any
	)
	if f.Locator != "" {
		where = append(where, "locator = ?")
		args = append(args, f.Locator)
	}
	if f.ServiceID != "" {
		where = append(where, "service_id = ?")
		args = append(args, f.ServiceID)
	}
	q := `SELECT id, locator, service_id, dni, result, reason, reference, ticket_key, user_id, username, created_at, updated_at
          FROM validation_records`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.ValidationRecord, 0)
	for rows.Next() {
		var (
			rec                                                   model.ValidationRecord
			serviceID, dni, reason, ref, ticketKey, userID, uname sql.NullString
			created, updated                                      nullTime
		)
		if err := rows.Scan(&rec.ID, &rec.Locator, &serviceID, &dni, &rec.Result, &reason, &ref,
			&ticketKey, &userID, &uname, &created, &updated); err != nil {
			return nil, err
		}
		rec.ServiceID = stringPtr(serviceID)
		rec.DNI = dni.String
		rec.Reason = stringPtr(reason)
		rec.Reference = stringPtr(ref)
		rec.TicketKey = stringPtr(ticketKey)
		rec.UserID = stringPtr(userID)
		rec.Username = stringPtr(uname)
		rec.CreatedAt = created.Time
		rec.UpdatedAt = updated.Time
		out = append(out, rec)
	}
	return out, rows.Err()
}
