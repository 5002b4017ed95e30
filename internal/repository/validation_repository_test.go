package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/locator-validation/internal/model"
)

func TestValidationRepo_CreateTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	repo := NewValidationRepo(db)
	now := time.Now().UTC()
	reason := model.ReasonNotFound
	rec := &model.ValidationRecord{
		Locator:   "ABC123",
		DNI:       "12345678Z",
		Result:    model.ResultInvalid,
		Reason:    &reason,
		CreatedAt: now,
		UpdatedAt: now,
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO validation_records").
		WithArgs("ABC123", nil, "12345678Z", "INVALID", "NOT_FOUND", nil, nil, nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(42, 1))

	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, repo.CreateTx(context.Background(), tx, rec))
	assert.EqualValues(t, 42, rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidationRepo_ListRecent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	repo := NewValidationRepo(db)
	ts := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	cols := []string{"id", "locator", "service_id", "dni", "result", "reason", "reference", "ticket_key", "user_id", "username", "created_at", "updated_at"}

	mock.ExpectQuery(regexp.QuoteMeta("FROM validation_records WHERE locator = ? AND service_id = ? ORDER BY id DESC LIMIT ?")).
		WithArgs("ABC123", "S1", 500).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(2, "ABC123", "S1", "12345678Z", "VALID", nil, "T-2", "K2", "7", "driver1", ts, ts).
			AddRow(1, "ABC123", "S1", "12345678Z", "DUPLICATE", "NO_REMAINING", nil, nil, nil, nil, ts, ts))

	recs, err := repo.ListRecent(context.Background(), ValidationFilter{Locator: "ABC123", ServiceID: "S1", Limit: 10000})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.EqualValues(t, 2, recs[0].ID)
	assert.Equal(t, "K2", *recs[0].TicketKey)
	assert.Nil(t, recs[0].Reason)
	assert.Equal(t, "NO_REMAINING", *recs[1].Reason)
	assert.True(t, recs[1].CreatedAt.Equal(ts))
	assert.NoError(t, mock.ExpectationsWereMet())
}
