package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/bakeflow/bakeflow-backend/pkg/database"
	"github.com/bakeflow/bakeflow-backend/pkg/errors"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// QA statuses a license plate can carry. Only passed plates are allocatable.
const (
	QAStatusPending    = "pending"
	QAStatusPassed     = "passed"
	QAStatusHold       = "hold"
	QAStatusRejected   = "rejected"
	QAStatusQuarantine = "quarantine"
)

// LicensePlate is a physically identifiable, quantity-bearing inventory unit.
// allocated_quantity <= on_hand_quantity at all times; available quantity is
// derived, never stored, so the two columns cannot drift apart.
type LicensePlate struct {
	ID                string          `db:"id" json:"id"`
	OrgID             string          `db:"org_id" json:"-"`
	LPNumber          string          `db:"lp_number" json:"lp_number"`
	ProductID         string          `db:"product_id" json:"product_id"`
	LotNumber         string          `db:"lot_number" json:"lot_number"`
	LocationID        *string         `db:"location_id" json:"location_id,omitempty"`
	OnHandQuantity    decimal.Decimal `db:"on_hand_quantity" json:"on_hand_quantity"`
	AllocatedQuantity decimal.Decimal `db:"allocated_quantity" json:"allocated_quantity"`
	ManufacturingDate *time.Time      `db:"manufacturing_date" json:"manufacturing_date,omitempty"`
	ReceiptDate       time.Time       `db:"receipt_date" json:"receipt_date"`
	BestBeforeDate    *time.Time      `db:"best_before_date" json:"best_before_date,omitempty"`
	QAStatus          string          `db:"qa_status" json:"qa_status"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// AvailableQuantity is on-hand minus allocated.
func (lp *LicensePlate) AvailableQuantity() decimal.Decimal {
	return lp.OnHandQuantity.Sub(lp.AllocatedQuantity)
}

// LicensePlateRepository handles license plate persistence
type LicensePlateRepository struct {
	db *database.DB
}

// NewLicensePlateRepository creates a new license plate repository
func NewLicensePlateRepository(db *database.DB) *LicensePlateRepository {
	return &LicensePlateRepository{db: db}
}

// GetByID gets a license plate by ID within the caller's org.
// Cross-org lookups return NotFound, never a permission error.
func (r *LicensePlateRepository) GetByID(ctx context.Context, orgID, id string) (*LicensePlate, error) {
	var lp LicensePlate
	query := `SELECT * FROM license_plates WHERE org_id = $1 AND id = $2`
	if err := r.db.GetContext(ctx, &lp, query, orgID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("license plate")
		}
		return nil, err
	}
	return &lp, nil
}

// GetByIDs gets license plates by IDs within the caller's org.
func (r *LicensePlateRepository) GetByIDs(ctx context.Context, orgID string, ids []string) ([]*LicensePlate, error) {
	var lps []*LicensePlate
	query := `
		SELECT * FROM license_plates
		WHERE org_id = $1 AND id = ANY($2)
		ORDER BY id
	`
	if err := r.db.SelectContext(ctx, &lps, query, orgID, pq.Array(ids)); err != nil {
		return nil, err
	}
	return lps, nil
}

// AvailableForProduct lists the allocatable pool for a product: QA-passed
// plates with available quantity > 0, oldest receipt first. This is the
// snapshot the candidate ranker works against.
func (r *LicensePlateRepository) AvailableForProduct(ctx context.Context, orgID, productID string) ([]*LicensePlate, error) {
	var lps []*LicensePlate
	query := `
		SELECT * FROM license_plates
		WHERE org_id = $1 AND product_id = $2
		AND qa_status = 'passed'
		AND on_hand_quantity - allocated_quantity > 0
		ORDER BY receipt_date, id
	`
	if err := r.db.SelectContext(ctx, &lps, query, orgID, productID); err != nil {
		return nil, err
	}
	return lps, nil
}

// UpdateQAStatus moves a license plate between QA statuses. Driven by
// quality-service events; a plate leaving 'passed' drops out of the
// allocatable pool on the next snapshot.
func (r *LicensePlateRepository) UpdateQAStatus(ctx context.Context, orgID, id, status string) error {
	query := `
		UPDATE license_plates
		SET qa_status = $3, updated_at = NOW()
		WHERE org_id = $1 AND id = $2
	`
	result, err := r.db.ExecContext(ctx, query, orgID, id, status)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("license plate")
	}

	return nil
}

// Create creates a license plate. Used on receipt and on output registration.
func (r *LicensePlateRepository) Create(ctx context.Context, lp *LicensePlate) error {
	query := `
		INSERT INTO license_plates (
			id, org_id, lp_number, product_id, lot_number, location_id,
			on_hand_quantity, allocated_quantity, manufacturing_date,
			receipt_date, best_before_date, qa_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`

	return r.db.QueryRowxContext(ctx, query,
		lp.ID, lp.OrgID, lp.LPNumber, lp.ProductID, lp.LotNumber, lp.LocationID,
		lp.OnHandQuantity, lp.AllocatedQuantity, lp.ManufacturingDate,
		lp.ReceiptDate, lp.BestBeforeDate, lp.QAStatus,
	).Scan(&lp.CreatedAt, &lp.UpdatedAt)
}
