package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/bakeflow/bakeflow-backend/pkg/database"
	"github.com/bakeflow/bakeflow-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// By-product registration statuses
const (
	ByProductStatusPending    = "pending"
	ByProductStatusRegistered = "registered"
	ByProductStatusSkipped    = "skipped"
)

// WorkOrder is the production order whose output registration this core
// participates in. Routing and scheduling belong to other subsystems.
type WorkOrder struct {
	ID                 string           `db:"id" json:"id"`
	OrgID              string           `db:"org_id" json:"-"`
	WorkOrderNumber    string           `db:"work_order_number" json:"work_order_number"`
	MainProductID      string           `db:"main_product_id" json:"main_product_id"`
	MainOutputQuantity *decimal.Decimal `db:"main_output_quantity" json:"main_output_quantity,omitempty"`
	MaterialLineID     *string          `db:"material_line_id" json:"material_line_id,omitempty"`
	Status             string           `db:"status" json:"status"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
}

// WorkOrderByProduct is one declared by-product of a work order, walked
// sequentially during output registration.
type WorkOrderByProduct struct {
	ID             string           `db:"id" json:"id"`
	WorkOrderID    string           `db:"work_order_id" json:"work_order_id"`
	ProductID      string           `db:"product_id" json:"product_id"`
	YieldPercent   decimal.Decimal  `db:"yield_percent" json:"yield_percent"`
	Status         string           `db:"status" json:"status"`
	ActualQuantity *decimal.Decimal `db:"actual_quantity" json:"actual_quantity,omitempty"`
	RegisteredBy   *string          `db:"registered_by" json:"registered_by,omitempty"`
	RegisteredAt   *time.Time       `db:"registered_at" json:"registered_at,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}

// WorkOrderRepository handles work order and by-product persistence
type WorkOrderRepository struct {
	db *database.DB
}

// NewWorkOrderRepository creates a new work order repository
func NewWorkOrderRepository(db *database.DB) *WorkOrderRepository {
	return &WorkOrderRepository{db: db}
}

// GetByID gets a work order by ID within the caller's org
func (r *WorkOrderRepository) GetByID(ctx context.Context, orgID, id string) (*WorkOrder, error) {
	var wo WorkOrder
	query := `SELECT * FROM work_orders WHERE org_id = $1 AND id = $2`
	if err := r.db.GetContext(ctx, &wo, query, orgID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("work order")
		}
		return nil, err
	}
	return &wo, nil
}

// SetMainOutputQuantity records the registered main output quantity
func (r *WorkOrderRepository) SetMainOutputQuantity(ctx context.Context, orgID, id string, qty decimal.Decimal) error {
	query := `
		UPDATE work_orders
		SET main_output_quantity = $3, updated_at = NOW()
		WHERE org_id = $1 AND id = $2
	`
	result, err := r.db.ExecContext(ctx, query, orgID, id, qty)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("work order")
	}

	return nil
}

// ListByProducts lists a work order's by-products in declaration order
func (r *WorkOrderRepository) ListByProducts(ctx context.Context, workOrderID string) ([]*WorkOrderByProduct, error) {
	var byProducts []*WorkOrderByProduct
	query := `SELECT * FROM work_order_by_products WHERE work_order_id = $1 ORDER BY created_at, id`
	if err := r.db.SelectContext(ctx, &byProducts, query, workOrderID); err != nil {
		return nil, err
	}
	return byProducts, nil
}

// NextPending returns the next unprocessed by-product, or nil when the loop
// is complete.
func (r *WorkOrderRepository) NextPending(ctx context.Context, workOrderID string) (*WorkOrderByProduct, error) {
	var bp WorkOrderByProduct
	query := `
		SELECT * FROM work_order_by_products
		WHERE work_order_id = $1 AND status = 'pending'
		ORDER BY created_at, id
		LIMIT 1
	`
	if err := r.db.GetContext(ctx, &bp, query, workOrderID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &bp, nil
}

// RegisterByProduct records an actual quantity for one by-product
func (r *WorkOrderRepository) RegisterByProduct(ctx context.Context, byProductID string, actual decimal.Decimal, actorID string) error {
	query := `
		UPDATE work_order_by_products
		SET status = 'registered', actual_quantity = $2, registered_by = $3, registered_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	result, err := r.db.ExecContext(ctx, query, byProductID, actual, actorID)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("pending by-product")
	}

	return nil
}

// SkipByProduct marks one by-product skipped
func (r *WorkOrderRepository) SkipByProduct(ctx context.Context, byProductID, actorID string) error {
	query := `
		UPDATE work_order_by_products
		SET status = 'skipped', registered_by = $2, registered_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	result, err := r.db.ExecContext(ctx, query, byProductID, actorID)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("pending by-product")
	}

	return nil
}

// SkipRemaining marks every still-pending by-product skipped and returns how
// many were affected.
func (r *WorkOrderRepository) SkipRemaining(ctx context.Context, workOrderID, actorID string) (int, error) {
	query := `
		UPDATE work_order_by_products
		SET status = 'skipped', registered_by = $2, registered_at = NOW()
		WHERE work_order_id = $1 AND status = 'pending'
	`
	result, err := r.db.ExecContext(ctx, query, workOrderID, actorID)
	if err != nil {
		return 0, err
	}

	affected, _ := result.RowsAffected()
	return int(affected), nil
}
