package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bakeflow/bakeflow-backend/internal/fulfillment/repository"
	"github.com/bakeflow/bakeflow-backend/pkg/actor"
	"github.com/bakeflow/bakeflow-backend/pkg/config"
	"github.com/bakeflow/bakeflow-backend/pkg/database"
	"github.com/bakeflow/bakeflow-backend/pkg/errors"
	"github.com/bakeflow/bakeflow-backend/pkg/logger"
	"github.com/bakeflow/bakeflow-backend/pkg/tenant"
	"github.com/bakeflow/bakeflow-backend/pkg/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCtx(role string) context.Context {
	ctx := tenant.WithOrgContext(context.Background(), "org-1", "bakery")
	return actor.WithActor(ctx, &actor.Actor{
		ID:    "actor-1",
		Name:  "Test Operator",
		OrgID: "org-1",
		Role:  role,
	})
}

func testFulfillmentConfig() *config.FulfillmentConfig {
	return &config.FulfillmentConfig{
		ExpiryWarningDays:      7,
		AllocationThresholdPct: 80,
		MaxBoxWeightKg:         25,
		MinDimensionCm:         10,
		MaxDimensionCm:         200,
	}
}

func newShipmentService() *ShipmentService {
	log := logger.New("fulfillment-service-test", "development")
	return NewShipmentService(nil, nil, nil, nil, nil, testFulfillmentConfig(), log)
}

// Shipping without confirm=true never reaches the repository.
func TestShipShipment_ConfirmationRequired(t *testing.T) {
	svc := newShipmentService()

	_, err := svc.ShipShipment(testCtx("warehouse"), "ship-1", false, false)
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "CONFIRMATION_REQUIRED", appErr.Code)
}

func TestShipShipment_RoleGate(t *testing.T) {
	svc := newShipmentService()

	_, err := svc.ShipShipment(testCtx("operator"), "ship-1", true, false)
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INSUFFICIENT_PERMISSIONS", appErr.Code)
	assert.Contains(t, appErr.Details["required_roles"], "warehouse")
}

func TestManifestShipment_RoleGate(t *testing.T) {
	svc := newShipmentService()

	_, err := svc.ManifestShipment(testCtx("operator"), "ship-1")
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INSUFFICIENT_PERMISSIONS", appErr.Code)
}

// Only manager and admin may mark delivered; the error names the accepted
// roles.
func TestDeliverShipment_RoleGate(t *testing.T) {
	svc := newShipmentService()

	_, err := svc.DeliverShipment(testCtx("warehouse"), "ship-1")
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INSUFFICIENT_PERMISSIONS", appErr.Code)
	assert.Equal(t, "manager,admin", appErr.Details["required_roles"])
}

func TestUpdateBox_WeightValidation(t *testing.T) {
	svc := newShipmentService()
	ctx := testCtx("warehouse")

	zero := decimal.Zero
	err := svc.UpdateBox(ctx, "ship-1", "box-1", BoxUpdate{WeightKg: &zero})
	require.Error(t, err)
	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INVALID_QUANTITY", appErr.Code)

	tooHeavy := decimal.NewFromInt(26)
	err = svc.UpdateBox(ctx, "ship-1", "box-1", BoxUpdate{WeightKg: &tooHeavy})
	assert.Error(t, err)
}

func TestUpdateBox_DimensionValidation(t *testing.T) {
	svc := newShipmentService()
	ctx := testCtx("warehouse")

	tooSmall := decimal.NewFromInt(5)
	err := svc.UpdateBox(ctx, "ship-1", "box-1", BoxUpdate{LengthCm: &tooSmall})
	require.Error(t, err)

	tooBig := decimal.NewFromInt(250)
	err = svc.UpdateBox(ctx, "ship-1", "box-1", BoxUpdate{HeightCm: &tooBig})
	require.Error(t, err)
}

func TestUpdateBox_RejectsBadSSCC(t *testing.T) {
	svc := newShipmentService()

	bad := "006141411234567891"
	err := svc.UpdateBox(testCtx("warehouse"), "ship-1", "box-1", BoxUpdate{SSCC: &bad})
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

func newShipmentServiceDB(t *testing.T) (*testutil.MockDB, *ShipmentService) {
	mockDB := testutil.NewMockDB(t)
	t.Cleanup(func() { mockDB.Close() })
	log := logger.New("fulfillment-service-test", "development")
	db := database.NewFromSqlx(mockDB.DB, log)
	svc := NewShipmentService(
		repository.NewShipmentRepository(db),
		nil,
		repository.NewLicensePlateRepository(db),
		repository.NewReservationRepository(db),
		nil, testFulfillmentConfig(), log,
	)
	return mockDB, svc
}

func packingShipmentRow() *sqlmock.Rows {
	now := time.Now().UTC()
	return testutil.MockRows(
		"id", "org_id", "order_id", "status", "carrier_name", "tracking_number",
		"manifested_at", "shipped_at", "delivered_at", "created_at", "updated_at",
	).AddRow("ship-1", "org-1", "ord-1", "packing", nil, nil, nil, nil, nil, now, now)
}

func licensePlateRow(onHand, allocated string) *sqlmock.Rows {
	now := time.Now().UTC()
	return testutil.MockRows(
		"id", "org_id", "lp_number", "product_id", "lot_number", "location_id",
		"on_hand_quantity", "allocated_quantity", "manufacturing_date",
		"receipt_date", "best_before_date", "qa_status", "created_at", "updated_at",
	).AddRow("lp-1", "org-1", "LP-lp-1", "prod-1", "LOT-1", nil,
		onHand, allocated, nil, testutil.Date(2025, 1, 1), nil, "passed", now, now)
}

// Packing is validated cumulatively: a second add that pushes the shipment's
// total for the LP past the order's active reservations is refused even
// though the add alone would fit.
func TestAddBoxContent_CumulativeOverpackRefused(t *testing.T) {
	mockDB, svc := newShipmentServiceDB(t)

	mockDB.ExpectQuery("SELECT * FROM shipments").WillReturnRows(packingShipmentRow())
	mockDB.ExpectQuery("SELECT * FROM license_plates").WillReturnRows(licensePlateRow("100", "100"))
	mockDB.ExpectQuery("SELECT COALESCE(SUM(c.quantity), 0)").
		WithArgs("ship-1", "lp-1").
		WillReturnRows(testutil.MockRows("coalesce").AddRow("60"))
	mockDB.ExpectQuery("SELECT COALESCE(SUM(r.quantity), 0)").
		WithArgs("org-1", "ord-1", "lp-1").
		WillReturnRows(testutil.MockRows("coalesce").AddRow("100"))

	_, err := svc.AddBoxContent(testCtx("warehouse"), "ship-1", "box-1", "lp-1", decimal.NewFromInt(60))
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INVALID_QUANTITY", appErr.Code)

	mockDB.ExpectationsWereMet(t)
}

func TestAddBoxContent_WithinReservation(t *testing.T) {
	mockDB, svc := newShipmentServiceDB(t)

	mockDB.ExpectQuery("SELECT * FROM shipments").WillReturnRows(packingShipmentRow())
	mockDB.ExpectQuery("SELECT * FROM license_plates").WillReturnRows(licensePlateRow("100", "100"))
	mockDB.ExpectQuery("SELECT COALESCE(SUM(c.quantity), 0)").
		WillReturnRows(testutil.MockRows("coalesce").AddRow("60"))
	mockDB.ExpectQuery("SELECT COALESCE(SUM(r.quantity), 0)").
		WillReturnRows(testutil.MockRows("coalesce").AddRow("100"))
	mockDB.ExpectQuery("INSERT INTO shipment_box_contents").
		WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now().UTC()))

	content, err := svc.AddBoxContent(testCtx("warehouse"), "ship-1", "box-1", "lp-1", decimal.NewFromInt(40))
	require.NoError(t, err)
	assert.Equal(t, "LOT-1", content.LotNumber)
	assert.Equal(t, "40", content.Quantity.String())

	mockDB.ExpectationsWereMet(t)
}

func strPtr(s string) *string { return &s }

func TestTrackingURL(t *testing.T) {
	tests := []struct {
		name     string
		carrier  *string
		tracking *string
		want     *string
	}{
		{"dhl", strPtr("DHL"), strPtr("123"), strPtr("https://www.dhl.com/en/express/tracking.html?AWB=123")},
		{"ups lowercase", strPtr("ups"), strPtr("1Z999"), strPtr("https://www.ups.com/track?tracknum=1Z999")},
		{"dpd", strPtr("DPD"), strPtr("0150"), strPtr("https://tracking.dpd.de/status/en_US/parcel/0150")},
		{"fedex", strPtr("FedEx"), strPtr("777"), strPtr("https://www.fedex.com/fedextrack/?tracknumbers=777")},
		{"unknown carrier", strPtr("PONY-EXPRESS"), strPtr("123"), nil},
		{"missing carrier", nil, strPtr("123"), nil},
		{"missing tracking", strPtr("DHL"), nil, nil},
		{"empty tracking", strPtr("DHL"), strPtr(""), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TrackingURL(tt.carrier, tt.tracking)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}
