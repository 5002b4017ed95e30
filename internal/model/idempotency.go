package model

import "time"

// IdempotencyRecord models an entry in the `idempotency_keys` table.  It
// stores the fingerprint of the request that first used a key on an
// endpoint together with the exact response body returned for it.  Rows
// are immutable once committed.
type IdempotencyRecord struct {
	Key         string    // idempotency_keys.idem_key
	Endpoint    string    // idempotency_keys.endpoint
	Fingerprint string    // idempotency_keys.fingerprint (hex SHA-256)
	Response    []byte    // idempotency_keys.response (JSON)
	CreatedAt   time.Time // idempotency_keys.created_at
}
