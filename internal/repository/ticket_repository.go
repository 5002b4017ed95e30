package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/locator-validation/internal/database"
	"github.com/iliyamo/locator-validation/internal/model"
)

// TicketRepo reads and seeds the local ticket table that backs the local
// candidate source.  Rows are keyed by ticket_key.
type TicketRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewTicketRepo returns a TicketRepo bound to the given database.
func NewTicketRepo(db *sql.DB, d database.Dialect) *TicketRepo {
	return &TicketRepo{db: db, dialect: d}
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ListByLocator returns every ticket issued under locator.  When
// serviceID is non-nil only tickets of that service are returned.  No
// ordering is promised.
func (r *TicketRepo) ListByLocator(ctx context.Context, locator string, serviceID *string) ([]model.TicketCandidate, error) {
	return listByLocator(ctx, r.db, locator, serviceID)
}

// ListByLocatorTx is ListByLocator on the caller's transaction, so a
// validation never needs a second pooled connection while it holds one.
func (r *TicketRepo) ListByLocatorTx(ctx context.Context, tx *sql.Tx, locator string, serviceID *string) ([]model.TicketCandidate, error) {
	return listByLocator(ctx, tx, locator, serviceID)
}

func listByLocator(ctx context.Context, q queryer, locator string, serviceID *string) ([]model.TicketCandidate, error) {
	stmt := `SELECT ticket_key, locator, service_id, seq, bound_identity, reference FROM tickets WHERE locator = ?`
	args := []any{locator}
	if serviceID != nil {
		stmt += ` AND service_id = ?`
		args = append(args, *serviceID)
	}
	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.TicketCandidate, 0)
	for rows.Next() {
		var (
			c                  model.TicketCandidate
			svc, identity, ref sql.NullString
			seq                sql.NullInt64
		)
		if err := rows.Scan(&c.TicketKey, &c.Locator, &svc, &seq, &identity, &ref); err != nil {
			return nil, err
		}
		c.ServiceID = stringPtr(svc)
		if seq.Valid {
			n := int(seq.Int64)
			c.Sequence = &n
		}
		c.BoundIdentity = identity.String
		c.Reference = ref.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertBulk inserts or replaces tickets in a single transaction and
// returns the number of tickets written.  Consumption state is kept in a
// separate table, so re-importing a ticket never revives a consumed slot.
func (r *TicketRepo) UpsertBulk(ctx context.Context, tickets []model.TicketCandidate) (int, error) {
	if len(tickets) == 0 {
		return 0, nil
	}
	q := `INSERT INTO tickets (ticket_key, locator, service_id, seq, bound_identity, reference) VALUES (?, ?, ?, ?, ?, ?)`
	if r.dialect == database.MySQL {
		q += ` ON DUPLICATE KEY UPDATE locator = VALUES(locator), service_id = VALUES(service_id), seq = VALUES(seq),
               bound_identity = VALUES(bound_identity), reference = VALUES(reference)`
	} else {
		q += ` ON CONFLICT(ticket_key) DO UPDATE SET locator = excluded.locator, service_id = excluded.service_id,
               seq = excluded.seq, bound_identity = excluded.bound_identity, reference = excluded.reference`
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for _, t := range tickets {
		var seq sql.NullInt64
		if t.Sequence != nil {
			seq = sql.NullInt64{Int64: int64(*t.Sequence), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			t.TicketKey, strings.ToUpper(strings.TrimSpace(t.Locator)), nullString(t.ServiceID), seq,
			nullIfEmpty(t.BoundIdentity), nullIfEmpty(t.Reference),
		); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return len(tickets), nil
}
