package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bakeflow/bakeflow-backend/internal/fulfillment/repository"
	"github.com/bakeflow/bakeflow-backend/pkg/errors"
	"github.com/bakeflow/bakeflow-backend/pkg/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commitLines(t *testing.T, pairs ...string) []repository.CommitLine {
	t.Helper()
	require.Equal(t, 0, len(pairs)%2)
	lines := make([]repository.CommitLine, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		lines = append(lines, repository.CommitLine{
			LicensePlateID: pairs[i],
			Quantity:       testutil.MustDecimal(t, pairs[i+1]),
		})
	}
	return lines
}

func TestReservationRepository_CommitAllocation(t *testing.T) {
	mockDB, db := setupMockDB(t)
	repo := repository.NewReservationRepository(db)

	lockRows := testutil.MockRows(lpColumns()...)
	lpRow(lockRows, "lp-1", "50", "0", testutil.Date(2025, 1, 1))
	lpRow(lockRows, "lp-2", "50", "0", testutil.Date(2025, 1, 15))

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT * FROM license_plates").WillReturnRows(lockRows)

	// lines are processed in LP id order
	mockDB.ExpectExec("UPDATE license_plates").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery("INSERT INTO reservations").
		WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now().UTC()))
	mockDB.ExpectExec("UPDATE license_plates").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery("INSERT INTO reservations").
		WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now().UTC()))

	mockDB.ExpectExec("UPDATE demand_lines").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	reservations, err := repo.CommitAllocation(context.Background(), testOrg, "dl-1",
		commitLines(t, "lp-2", "20", "lp-1", "50"), "actor-1")
	require.NoError(t, err)
	require.Len(t, reservations, 2)
	assert.Equal(t, "lp-1", reservations[0].LicensePlateID)
	assert.Equal(t, "50", reservations[0].Quantity.String())
	assert.Equal(t, "lp-2", reservations[1].LicensePlateID)
	assert.Equal(t, repository.ReservationStatusActive, reservations[0].Status)

	mockDB.ExpectationsWereMet(t)
}

// A concurrent committer shrank lp-2 below the selected quantity: the whole
// commit rolls back and the still-valid subset comes back for re-planning.
func TestReservationRepository_CommitAllocation_Stale(t *testing.T) {
	mockDB, db := setupMockDB(t)
	repo := repository.NewReservationRepository(db)

	lockRows := testutil.MockRows(lpColumns()...)
	lpRow(lockRows, "lp-1", "50", "0", testutil.Date(2025, 1, 1))
	lpRow(lockRows, "lp-2", "50", "45", testutil.Date(2025, 1, 15))

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT * FROM license_plates").WillReturnRows(lockRows)
	mockDB.ExpectRollback()

	_, err := repo.CommitAllocation(context.Background(), testOrg, "dl-1",
		commitLines(t, "lp-1", "50", "lp-2", "20"), "actor-1")
	require.Error(t, err)

	var staleErr *repository.StaleAllocationError
	require.True(t, errors.As(err, &staleErr))
	assert.Equal(t, "dl-1", staleErr.DemandLineID)
	require.Len(t, staleErr.StillValid, 1)
	assert.Equal(t, "lp-1", staleErr.StillValid[0].LicensePlateID)
	assert.True(t, errors.Is(err, errors.ErrStaleAllocation))

	mockDB.ExpectationsWereMet(t)
}

// A vanished or QA-flagged LP also fails the commit as stale.
func TestReservationRepository_CommitAllocation_MissingLP(t *testing.T) {
	mockDB, db := setupMockDB(t)
	repo := repository.NewReservationRepository(db)

	lockRows := testutil.MockRows(lpColumns()...)
	lpRow(lockRows, "lp-1", "50", "0", testutil.Date(2025, 1, 1))

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT * FROM license_plates").WillReturnRows(lockRows)
	mockDB.ExpectRollback()

	_, err := repo.CommitAllocation(context.Background(), testOrg, "dl-1",
		commitLines(t, "lp-1", "50", "lp-gone", "20"), "actor-1")

	var staleErr *repository.StaleAllocationError
	require.True(t, errors.As(err, &staleErr))
	require.Len(t, staleErr.StillValid, 1)
	assert.Equal(t, "lp-1", staleErr.StillValid[0].LicensePlateID)
}

// A storage failure mid-commit rolls everything back and surfaces as
// TRANSACTION_FAILED, safe to retry.
func TestReservationRepository_CommitAllocation_TransactionFailed(t *testing.T) {
	mockDB, db := setupMockDB(t)
	repo := repository.NewReservationRepository(db)

	lockRows := testutil.MockRows(lpColumns()...)
	lpRow(lockRows, "lp-1", "50", "0", testutil.Date(2025, 1, 1))

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT * FROM license_plates").WillReturnRows(lockRows)
	mockDB.ExpectExec("UPDATE license_plates").
		WillReturnError(assert.AnError)
	mockDB.ExpectRollback()

	_, err := repo.CommitAllocation(context.Background(), testOrg, "dl-1",
		commitLines(t, "lp-1", "50"), "actor-1")
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "TRANSACTION_FAILED", appErr.Code)
}

func TestReservationRepository_CommitAllocation_NoLines(t *testing.T) {
	_, db := setupMockDB(t)
	repo := repository.NewReservationRepository(db)

	_, err := repo.CommitAllocation(context.Background(), testOrg, "dl-1", nil, "actor-1")
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "BAD_REQUEST", appErr.Code)
}

func reservationColumns() []string {
	return []string{
		"id", "org_id", "license_plate_id", "demand_line_id", "quantity",
		"status", "is_over_consumption", "created_by", "created_at",
	}
}

func TestReservationRepository_Release(t *testing.T) {
	mockDB, db := setupMockDB(t)
	repo := repository.NewReservationRepository(db)

	rows := testutil.MockRows(reservationColumns()...).
		AddRow("res-1", testOrg, "lp-1", "dl-1", "30", "active", false, "actor-1", time.Now().UTC())

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT * FROM reservations").WillReturnRows(rows)
	mockDB.ExpectExec("UPDATE license_plates").WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("UPDATE demand_lines").WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("DELETE FROM reservations").WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	released, err := repo.Release(context.Background(), testOrg, "res-1")
	require.NoError(t, err)
	assert.Equal(t, "lp-1", released.LicensePlateID)
	assert.True(t, released.Quantity.Equal(decimal.NewFromInt(30)))

	mockDB.ExpectationsWereMet(t)
}

func TestReservationRepository_Release_ConsumedIsFinal(t *testing.T) {
	mockDB, db := setupMockDB(t)
	repo := repository.NewReservationRepository(db)

	rows := testutil.MockRows(reservationColumns()...).
		AddRow("res-1", testOrg, "lp-1", "dl-1", "30", "consumed", false, "actor-1", time.Now().UTC())

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT * FROM reservations").WillReturnRows(rows)
	mockDB.ExpectRollback()

	_, err := repo.Release(context.Background(), testOrg, "res-1")
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "CONFLICT", appErr.Code)
}
