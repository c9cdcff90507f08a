package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/bakeflow/bakeflow-backend/pkg/database"
	"github.com/bakeflow/bakeflow-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// DemandLine is a requested quantity of a product to be fulfilled, either a
// sales-order line or a production material need. Owned by its parent order;
// this core only accumulates quantity_allocated on it.
type DemandLine struct {
	ID                string          `db:"id" json:"id"`
	OrgID             string          `db:"org_id" json:"-"`
	OrderID           string          `db:"order_id" json:"order_id"`
	ProductID         string          `db:"product_id" json:"product_id"`
	QuantityRequired  decimal.Decimal `db:"quantity_required" json:"quantity_required"`
	QuantityAllocated decimal.Decimal `db:"quantity_allocated" json:"quantity_allocated"`
	// FulfillmentSkipped marks a line the operator explicitly excluded from
	// packing; skipped lines do not block the packed transition.
	FulfillmentSkipped bool      `db:"fulfillment_skipped" json:"fulfillment_skipped"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// Order is the demand owner. The fulfillment core only reads it and cascades
// status on allocation and shipment transitions.
type Order struct {
	ID          string    `db:"id" json:"id"`
	OrgID       string    `db:"org_id" json:"-"`
	OrderNumber string    `db:"order_number" json:"order_number"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Order statuses touched by the fulfillment core
const (
	OrderStatusPicked    = "picked"
	OrderStatusAllocated = "allocated"
	OrderStatusPacking   = "packing"
	OrderStatusShipped   = "shipped"
)

// DemandRepository handles demand line and order persistence
type DemandRepository struct {
	db *database.DB
}

// NewDemandRepository creates a new demand repository
func NewDemandRepository(db *database.DB) *DemandRepository {
	return &DemandRepository{db: db}
}

// GetLineByID gets a demand line by ID within the caller's org
func (r *DemandRepository) GetLineByID(ctx context.Context, orgID, id string) (*DemandLine, error) {
	var line DemandLine
	query := `SELECT * FROM demand_lines WHERE org_id = $1 AND id = $2`
	if err := r.db.GetContext(ctx, &line, query, orgID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("demand line")
		}
		return nil, err
	}
	return &line, nil
}

// ListLinesByOrder lists demand lines for an order
func (r *DemandRepository) ListLinesByOrder(ctx context.Context, orgID, orderID string) ([]*DemandLine, error) {
	var lines []*DemandLine
	query := `SELECT * FROM demand_lines WHERE org_id = $1 AND order_id = $2 ORDER BY id`
	if err := r.db.SelectContext(ctx, &lines, query, orgID, orderID); err != nil {
		return nil, err
	}
	return lines, nil
}

// MarkLineSkipped flags a line as explicitly excluded from packing
func (r *DemandRepository) MarkLineSkipped(ctx context.Context, orgID, id string) error {
	query := `UPDATE demand_lines SET fulfillment_skipped = true, updated_at = NOW() WHERE org_id = $1 AND id = $2`
	result, err := r.db.ExecContext(ctx, query, orgID, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("demand line")
	}

	return nil
}

// GetOrderByID gets an order by ID within the caller's org
func (r *DemandRepository) GetOrderByID(ctx context.Context, orgID, id string) (*Order, error) {
	var order Order
	query := `SELECT * FROM orders WHERE org_id = $1 AND id = $2`
	if err := r.db.GetContext(ctx, &order, query, orgID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("order")
		}
		return nil, err
	}
	return &order, nil
}

// UpdateOrderStatus sets an order's status
func (r *DemandRepository) UpdateOrderStatus(ctx context.Context, orgID, orderID, status string) error {
	query := `UPDATE orders SET status = $3, updated_at = NOW() WHERE org_id = $1 AND id = $2`
	result, err := r.db.ExecContext(ctx, query, orgID, orderID, status)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("order")
	}

	return nil
}
