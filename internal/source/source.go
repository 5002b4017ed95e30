// Package source provides the candidate sources the validation engine
// draws ticket slots from.  The engine only sees the CandidateSource
// interface; which variant backs it is decided once at start-up.
package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/locator-validation/internal/model"
)

// ErrUnavailable marks a lookup that failed for infrastructure reasons.
// It must never be mistaken for an empty result.
var ErrUnavailable = errors.New("candidate source unavailable")

// Query identifies the candidates to look up.  Locator and DNI are
// already normalized.  A nil ServiceID matches every service.
type Query struct {
	Locator   string
	DNI       string
	ServiceID *string
}

// CandidateSource lists the ticket slots issued under a locator.  Results
// carry no ordering guarantee.
type CandidateSource interface {
	ListCandidates(ctx context.Context, q Query) ([]model.TicketCandidate, error)
}

// TxCandidateSource is implemented by sources that live in the ledger
// database.  The engine prefers it so a validation reads its candidates
// on the connection its transaction already holds.
type TxCandidateSource interface {
	CandidateSource
	ListCandidatesTx(ctx context.Context, tx *sql.Tx, q Query) ([]model.TicketCandidate, error)
}

func unavailable(name string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, name, err)
}
