package source

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/iliyamo/locator-validation/internal/model"
)

// RemoteSource queries the ticket-of-record database of the ticketing
// system.  It is read-only; consumption state never leaves this service.
type RemoteSource struct {
	db      *sql.DB
	timeout time.Duration
}

// OpenRemote connects to the ticket-of-record Postgres database.
func OpenRemote(dsn string, timeout time.Duration) (*RemoteSource, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	return NewRemoteSource(db, timeout), nil
}

// NewRemoteSource wraps an open handle.  A non-positive timeout leaves the
// caller's deadline as the only bound.
func NewRemoteSource(db *sql.DB, timeout time.Duration) *RemoteSource {
	return &RemoteSource{db: db, timeout: timeout}
}

// Tickets are matched on locator and, when the holder's document is
// recorded upstream, also returned with it so the engine can enforce the
// binding.
const remoteCandidatesQuery = `SELECT ticket_key, seq, holder_document, ticket_number, service_id
FROM ticket_slots
WHERE locator = $1 AND ($2::text IS NULL OR service_id = $2)`

func (s *RemoteSource) ListCandidates(ctx context.Context, q Query) ([]model.TicketCandidate, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	var svc sql.NullString
	if q.ServiceID != nil {
		svc = sql.NullString{String: *q.ServiceID, Valid: true}
	}
	rows, err := s.db.QueryContext(ctx, remoteCandidatesQuery, q.Locator, svc)
	if err != nil {
		return nil, unavailable("ticket-of-record", err)
	}
	defer rows.Close()
	out := make([]model.TicketCandidate, 0)
	for rows.Next() {
		var (
			c                     model.TicketCandidate
			seq                   sql.NullInt64
			holder, number, svcID sql.NullString
		)
		if err := rows.Scan(&c.TicketKey, &seq, &holder, &number, &svcID); err != nil {
			return nil, unavailable("ticket-of-record", err)
		}
		if seq.Valid {
			n := int(seq.Int64)
			c.Sequence = &n
		}
		c.BoundIdentity = holder.String
		c.Reference = number.String
		c.Locator = q.Locator
		if svcID.Valid {
			v := svcID.String
			c.ServiceID = &v
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("ticket-of-record", err)
	}
	return out, nil
}

// Close releases the connection pool.
func (s *RemoteSource) Close() error { return s.db.Close() }
