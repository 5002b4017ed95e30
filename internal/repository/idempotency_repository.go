package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/locator-validation/internal/database"
	"github.com/iliyamo/locator-validation/internal/model"
)

// IdempotencyRepo stores completed requests keyed by (idempotency key,
// endpoint).  Records are written in the same transaction as the work
// they guard and never change afterwards.
type IdempotencyRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewIdempotencyRepo returns an IdempotencyRepo bound to the given database.
func NewIdempotencyRepo(db *sql.DB, d database.Dialect) *IdempotencyRepo {
	return &IdempotencyRepo{db: db, dialect: d}
}

const selectIdempotency = `SELECT idem_key, endpoint, fingerprint, response, created_at
                           FROM idempotency_keys WHERE idem_key = ? AND endpoint = ?`

// GetForUpdateTx looks up a record and, on MySQL, locks it until the
// transaction ends.  Ledger transactions run at READ COMMITTED, so an
// absent key locks nothing; a concurrent request with the same key then
// queues on the first one's uncommitted insert in PutIfAbsentTx.  It
// returns ErrNotFound when no record exists.
func (r *IdempotencyRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, key, endpoint string) (*model.IdempotencyRecord, error) {
	return scanIdempotency(tx.QueryRowContext(ctx, selectIdempotency+r.dialect.ForUpdate(), key, endpoint))
}

// Get reads a committed record outside any transaction.
func (r *IdempotencyRepo) Get(ctx context.Context, key, endpoint string) (*model.IdempotencyRecord, error) {
	return scanIdempotency(r.db.QueryRowContext(ctx, selectIdempotency, key, endpoint))
}

// PutIfAbsentTx inserts the record unless one already exists for the same
// key and endpoint.  It returns false when another request got there
// first; the caller then rolls back and replays the stored record.
func (r *IdempotencyRepo) PutIfAbsentTx(ctx context.Context, tx *sql.Tx, rec model.IdempotencyRecord) (bool, error) {
	q := `INSERT INTO idempotency_keys (idem_key, endpoint, fingerprint, response, created_at)
          VALUES (?, ?, ?, ?, ?)` + r.dialect.InsertIfAbsent("idem_key", "idem_key", "endpoint")
	res, err := tx.ExecContext(ctx, q, rec.Key, rec.Endpoint, rec.Fingerprint, string(rec.Response), rec.CreatedAt.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanIdempotency(row *sql.Row) (*model.IdempotencyRecord, error) {
	var (
		rec  model.IdempotencyRecord
		body string
		ts   nullTime
	)
	if err := row.Scan(&rec.Key, &rec.Endpoint, &rec.Fingerprint, &body, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec.Response = []byte(body)
	rec.CreatedAt = ts.Time
	return &rec, nil
}
