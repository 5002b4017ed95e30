package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/locator-validation/internal/database"
	"github.com/iliyamo/locator-validation/internal/model"
)

func TestConsumptionRepo_TryClaimTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	repo := NewConsumptionRepo(db, database.MySQL)
	ctx := context.Background()
	svc := "S1"
	claim := model.Consumption{
		TicketKey: "K1",
		Locator:   "ABC123",
		ServiceID: &svc,
		Actor:     model.Actor{UserID: "7", Username: "driver1", Roles: []string{"DRIVER"}},
		DNI:       "12345678Z",
		CreatedAt: time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO ticket_consumptions .* ON DUPLICATE KEY UPDATE ticket_key = ticket_key").
		WithArgs("K1", "ABC123", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "12345678Z", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO ticket_consumptions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := db.Begin()
	require.NoError(t, err)

	won, err := repo.TryClaimTx(ctx, tx, claim)
	require.NoError(t, err)
	assert.True(t, won, "first insert affects one row")

	won, err = repo.TryClaimTx(ctx, tx, claim)
	require.NoError(t, err)
	assert.False(t, won, "existing key affects zero rows")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumptionRepo_ListConsumedKeysTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	repo := NewConsumptionRepo(db, database.MySQL)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT ticket_key FROM ticket_consumptions WHERE ticket_key IN (?,?)")).
		WithArgs("A", "B").
		WillReturnRows(sqlmock.NewRows([]string{"ticket_key"}).AddRow("B"))

	tx, err := db.Begin()
	require.NoError(t, err)

	got, err := repo.ListConsumedKeysTx(context.Background(), tx, []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"B": {}}, got)

	empty, err := repo.ListConsumedKeysTx(context.Background(), tx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumptionRepo_LatestConsumptionTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	repo := NewConsumptionRepo(db, database.MySQL)
	older := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 3, 1, 11, 30, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT created_at FROM ticket_consumptions").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(newer).AddRow(older))
	mock.ExpectQuery("SELECT created_at FROM ticket_consumptions").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}))

	tx, err := db.Begin()
	require.NoError(t, err)

	latest, err := repo.LatestConsumptionTx(context.Background(), tx, []string{"A", "B"})
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Equal(newer))

	none, err := repo.LatestConsumptionTx(context.Background(), tx, []string{"C"})
	require.NoError(t, err)
	assert.Nil(t, none)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumptionRepo_DeleteAllByService(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	repo := NewConsumptionRepo(db, database.MySQL)
	svc := "S9"
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM ticket_consumptions WHERE service_id = ?")).
		WithArgs("S9").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteAll(context.Background(), &svc)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
