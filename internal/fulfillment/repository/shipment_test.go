package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bakeflow/bakeflow-backend/internal/fulfillment/repository"
	"github.com/bakeflow/bakeflow-backend/pkg/errors"
	"github.com/bakeflow/bakeflow-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shipmentColumns() []string {
	return []string{
		"id", "org_id", "order_id", "status", "carrier_name", "tracking_number",
		"manifested_at", "shipped_at", "delivered_at", "created_at", "updated_at",
	}
}

func shipmentRow(status string) *sqlmock.Rows {
	now := time.Now().UTC()
	return testutil.MockRows(shipmentColumns()...).
		AddRow("ship-1", testOrg, "ord-1", status, nil, nil, nil, nil, nil, now, now)
}

// Two boxes, one missing its SSCC: manifest fails with the offending box
// number and the shipment stays packed.
func TestShipmentRepository_Manifest_IncompleteManifest(t *testing.T) {
	mockDB, db := setupMockDB(t)
	repo := repository.NewShipmentRepository(db)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT * FROM shipments").WillReturnRows(shipmentRow("packed"))
	mockDB.ExpectQuery("SELECT box_number FROM shipment_boxes").
		WillReturnRows(testutil.MockRows("box_number").AddRow(2))
	mockDB.ExpectRollback()

	_, err := repo.Manifest(context.Background(), testOrg, "ship-1", "actor-1")
	require.Error(t, err)

	var manifestErr *repository.IncompleteManifestError
	require.True(t, errors.As(err, &manifestErr))
	assert.Equal(t, []int{2}, manifestErr.BoxNumbers)

	mockDB.ExpectationsWereMet(t)
}

func TestShipmentRepository_Manifest(t *testing.T) {
	mockDB, db := setupMockDB(t)
	repo := repository.NewShipmentRepository(db)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT * FROM shipments").WillReturnRows(shipmentRow("packed"))
	mockDB.ExpectQuery("SELECT box_number FROM shipment_boxes").
		WillReturnRows(testutil.MockRows("box_number"))
	mockDB.ExpectExec("UPDATE shipments").WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("INSERT INTO shipment_transitions").WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	sh, err := repo.Manifest(context.Background(), testOrg, "ship-1", "actor-1")
	require.NoError(t, err)
	assert.Equal(t, repository.ShipmentStatusManifested, sh.Status)
	assert.NotNil(t, sh.ManifestedAt)

	mockDB.ExpectationsWereMet(t)
}

func TestShipmentRepository_Manifest_WrongStatus(t *testing.T) {
	mockDB, db := setupMockDB(t)
	repo := repository.NewShipmentRepository(db)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT * FROM shipments").WillReturnRows(shipmentRow("packing"))
	mockDB.ExpectRollback()

	_, err := repo.Manifest(context.Background(), testOrg, "ship-1", "actor-1")
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "CONFLICT", appErr.Code)
}

// Shipping an unmanifested shipment without the explicit bypass is refused.
func TestShipmentRepository_Ship_NotManifested(t *testing.T) {
	mockDB, db := setupMockDB(t)
	repo := repository.NewShipmentRepository(db)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT * FROM shipments").WillReturnRows(shipmentRow("packed"))
	mockDB.ExpectRollback()

	_, _, err := repo.Ship(context.Background(), testOrg, "ship-1", "actor-1", false)
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "NOT_MANIFESTED", appErr.Code)
}

func TestShipmentRepository_Ship(t *testing.T) {
	mockDB, db := setupMockDB(t)
	repo := repository.NewShipmentRepository(db)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT * FROM shipments").WillReturnRows(shipmentRow("manifested"))
	mockDB.ExpectQuery("SELECT c.license_plate_id, SUM(c.quantity)").
		WillReturnRows(testutil.MockRows("license_plate_id", "quantity").
			AddRow("lp-1", "50").
			AddRow("lp-2", "20"))

	lockRows := testutil.MockRows(lpColumns()...)
	lpRow(lockRows, "lp-1", "50", "50", testutil.Date(2025, 1, 1))
	lpRow(lockRows, "lp-2", "50", "20", testutil.Date(2025, 1, 15))
	mockDB.ExpectQuery("SELECT * FROM license_plates").WillReturnRows(lockRows)

	mockDB.ExpectExec("UPDATE license_plates").WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("UPDATE license_plates").WillReturnResult(sqlmock.NewResult(0, 1))

	// lp-1's reservation is fully covered and flips to consumed; lp-2's 50 is
	// only partially shipped, so 30 stays active and releasable.
	mockDB.ExpectQuery("SELECT r.id, r.quantity").
		WithArgs("ord-1", "lp-1").
		WillReturnRows(testutil.MockRows("id", "quantity").AddRow("res-1", "50"))
	mockDB.ExpectExec("UPDATE reservations SET status = 'consumed'").
		WithArgs("res-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery("SELECT r.id, r.quantity").
		WithArgs("ord-1", "lp-2").
		WillReturnRows(testutil.MockRows("id", "quantity").AddRow("res-2", "50"))
	mockDB.ExpectExec("UPDATE reservations SET quantity = quantity - $2").
		WithArgs("res-2", "20").
		WillReturnResult(sqlmock.NewResult(0, 1))

	mockDB.ExpectExec("UPDATE orders").WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("UPDATE shipments").WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("INSERT INTO shipment_transitions").WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	sh, consumed, err := repo.Ship(context.Background(), testOrg, "ship-1", "actor-1", false)
	require.NoError(t, err)
	assert.Equal(t, repository.ShipmentStatusShipped, sh.Status)
	require.Len(t, consumed, 2)
	assert.Equal(t, "lp-1", consumed[0].LicensePlateID)
	assert.Equal(t, "50", consumed[0].Quantity.String())

	mockDB.ExpectationsWereMet(t)
}

// Shipping more of an LP than the order holds active reservations for is an
// already-broken ledger; the commit panics and the transaction rolls back, so
// no lock or partial decrement survives.
func TestShipmentRepository_Ship_ReservationShortfallRollsBack(t *testing.T) {
	mockDB, db := setupMockDB(t)
	repo := repository.NewShipmentRepository(db)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT * FROM shipments").WillReturnRows(shipmentRow("manifested"))
	mockDB.ExpectQuery("SELECT c.license_plate_id, SUM(c.quantity)").
		WillReturnRows(testutil.MockRows("license_plate_id", "quantity").AddRow("lp-1", "50"))

	lockRows := testutil.MockRows(lpColumns()...)
	lpRow(lockRows, "lp-1", "50", "50", testutil.Date(2025, 1, 1))
	mockDB.ExpectQuery("SELECT * FROM license_plates").WillReturnRows(lockRows)

	mockDB.ExpectExec("UPDATE license_plates").WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery("SELECT r.id, r.quantity").
		WithArgs("ord-1", "lp-1").
		WillReturnRows(testutil.MockRows("id", "quantity").AddRow("res-1", "20"))
	mockDB.ExpectExec("UPDATE reservations SET status = 'consumed'").
		WithArgs("res-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectRollback()

	assert.Panics(t, func() {
		_, _, _ = repo.Ship(context.Background(), testOrg, "ship-1", "actor-1", false)
	})

	mockDB.ExpectationsWereMet(t)
}

// The packed -> shipped bypass works only with the explicit flag and records
// the reason in the transition log.
func TestShipmentRepository_Ship_SkipManifest(t *testing.T) {
	mockDB, db := setupMockDB(t)
	repo := repository.NewShipmentRepository(db)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT * FROM shipments").WillReturnRows(shipmentRow("packed"))
	mockDB.ExpectQuery("SELECT c.license_plate_id, SUM(c.quantity)").
		WillReturnRows(testutil.MockRows("license_plate_id", "quantity").AddRow("lp-1", "10"))

	lockRows := testutil.MockRows(lpColumns()...)
	lpRow(lockRows, "lp-1", "50", "10", testutil.Date(2025, 1, 1))
	mockDB.ExpectQuery("SELECT * FROM license_plates").WillReturnRows(lockRows)

	mockDB.ExpectExec("UPDATE license_plates").WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery("SELECT r.id, r.quantity").
		WithArgs("ord-1", "lp-1").
		WillReturnRows(testutil.MockRows("id", "quantity").AddRow("res-1", "10"))
	mockDB.ExpectExec("UPDATE reservations SET status = 'consumed'").
		WithArgs("res-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("UPDATE orders").WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("UPDATE shipments").WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("INSERT INTO shipment_transitions").
		WithArgs(testutil.AnyUUID{}, "ship-1", "packed", "shipped", "actor-1",
			"manifest skipped by explicit caller request").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	sh, consumed, err := repo.Ship(context.Background(), testOrg, "ship-1", "actor-1", true)
	require.NoError(t, err)
	assert.Equal(t, repository.ShipmentStatusShipped, sh.Status)
	assert.Len(t, consumed, 1)

	mockDB.ExpectationsWereMet(t)
}

func TestShipmentRepository_Deliver_WrongStatus(t *testing.T) {
	mockDB, db := setupMockDB(t)
	repo := repository.NewShipmentRepository(db)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT * FROM shipments").WillReturnRows(shipmentRow("packed"))
	mockDB.ExpectRollback()

	_, err := repo.Deliver(context.Background(), testOrg, "ship-1", "actor-1")
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "CONFLICT", appErr.Code)
}

func TestShipmentRepository_GetByID_NotFound(t *testing.T) {
	mockDB, db := setupMockDB(t)
	repo := repository.NewShipmentRepository(db)

	mockDB.ExpectQuery("SELECT * FROM shipments").
		WillReturnRows(testutil.MockRows(shipmentColumns()...))

	_, err := repo.GetByID(context.Background(), testOrg, "other-org-shipment")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
