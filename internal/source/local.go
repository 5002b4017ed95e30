package source

import (
	"context"
	"database/sql"

	"github.com/iliyamo/locator-validation/internal/model"
	"github.com/iliyamo/locator-validation/internal/repository"
)

// LocalSource serves candidates from the pre-seeded tickets table, which
// lives in the ledger database.
type LocalSource struct {
	tickets *repository.TicketRepo
}

func NewLocalSource(tickets *repository.TicketRepo) *LocalSource {
	return &LocalSource{tickets: tickets}
}

func (s *LocalSource) ListCandidates(ctx context.Context, q Query) ([]model.TicketCandidate, error) {
	out, err := s.tickets.ListByLocator(ctx, q.Locator, q.ServiceID)
	if err != nil {
		return nil, unavailable("local tickets", err)
	}
	return out, nil
}

// ListCandidatesTx reads through the engine's transaction.
func (s *LocalSource) ListCandidatesTx(ctx context.Context, tx *sql.Tx, q Query) ([]model.TicketCandidate, error) {
	out, err := s.tickets.ListByLocatorTx(ctx, tx, q.Locator, q.ServiceID)
	if err != nil {
		return nil, unavailable("local tickets", err)
	}
	return out, nil
}
