package repository

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/bakeflow/bakeflow-backend/pkg/database"
	"github.com/bakeflow/bakeflow-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Shipment statuses. Terminal: delivered, exception.
const (
	ShipmentStatusPending    = "pending"
	ShipmentStatusPacking    = "packing"
	ShipmentStatusPacked     = "packed"
	ShipmentStatusManifested = "manifested"
	ShipmentStatusShipped    = "shipped"
	ShipmentStatusDelivered  = "delivered"
	ShipmentStatusException  = "exception"
)

// Shipment is the aggregate root of the outbound lifecycle. Status moves
// forward only; every transition appends one transition row.
type Shipment struct {
	ID             string     `db:"id" json:"id"`
	OrgID          string     `db:"org_id" json:"-"`
	OrderID        string     `db:"order_id" json:"order_id"`
	Status         string     `db:"status" json:"status"`
	CarrierName    *string    `db:"carrier_name" json:"carrier_name,omitempty"`
	TrackingNumber *string    `db:"tracking_number" json:"tracking_number,omitempty"`
	ManifestedAt   *time.Time `db:"manifested_at" json:"manifested_at,omitempty"`
	ShippedAt      *time.Time `db:"shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Box is one physical container of a shipment. It must carry a validated
// weight, dimensions, and an SSCC before the shipment can be manifested.
type Box struct {
	ID         string           `db:"id" json:"id"`
	ShipmentID string           `db:"shipment_id" json:"shipment_id"`
	BoxNumber  int              `db:"box_number" json:"box_number"`
	WeightKg   *decimal.Decimal `db:"weight_kg" json:"weight_kg,omitempty"`
	LengthCm   *decimal.Decimal `db:"length_cm" json:"length_cm,omitempty"`
	WidthCm    *decimal.Decimal `db:"width_cm" json:"width_cm,omitempty"`
	HeightCm   *decimal.Decimal `db:"height_cm" json:"height_cm,omitempty"`
	SSCC       *string          `db:"sscc" json:"sscc,omitempty"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}

// BoxContent is one (LP, lot, quantity) triple packed into a box.
type BoxContent struct {
	ID             string          `db:"id" json:"id"`
	BoxID          string          `db:"box_id" json:"box_id"`
	LicensePlateID string          `db:"license_plate_id" json:"license_plate_id"`
	LotNumber      string          `db:"lot_number" json:"lot_number"`
	Quantity       decimal.Decimal `db:"quantity" json:"quantity"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// ShipmentTransition is one audit entry of the lifecycle log.
type ShipmentTransition struct {
	ID         string    `db:"id" json:"id"`
	ShipmentID string    `db:"shipment_id" json:"shipment_id"`
	FromStatus string    `db:"from_status" json:"from_status"`
	ToStatus   string    `db:"to_status" json:"to_status"`
	ActorID    string    `db:"actor_id" json:"actor_id"`
	Reason     *string   `db:"reason" json:"reason,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ConsumedLP is one LP decrement applied by the ship commit.
type ConsumedLP struct {
	LicensePlateID string          `db:"license_plate_id" json:"license_plate_id"`
	Quantity       decimal.Decimal `db:"quantity" json:"quantity"`
}

// IncompleteManifestError reports the boxes still missing an SSCC. Non-fatal;
// the caller corrects the boxes and retries the manifest.
type IncompleteManifestError struct {
	ShipmentID string `json:"shipment_id"`
	BoxNumbers []int  `json:"box_numbers"`
}

func (e *IncompleteManifestError) Error() string {
	return fmt.Sprintf("shipment %s has %d boxes without an SSCC", e.ShipmentID, len(e.BoxNumbers))
}

// ShipmentRepository handles shipment persistence. It is the only writer of
// shipment/box status and the only component that decrements
// license_plates.on_hand_quantity (on ship).
type ShipmentRepository struct {
	db *database.DB
}

// NewShipmentRepository creates a new shipment repository
func NewShipmentRepository(db *database.DB) *ShipmentRepository {
	return &ShipmentRepository{db: db}
}

// GetByID gets a shipment by ID within the caller's org
func (r *ShipmentRepository) GetByID(ctx context.Context, orgID, id string) (*Shipment, error) {
	var sh Shipment
	query := `SELECT * FROM shipments WHERE org_id = $1 AND id = $2`
	if err := r.db.GetContext(ctx, &sh, query, orgID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("shipment")
		}
		return nil, err
	}
	return &sh, nil
}

// GetBoxes lists the boxes of a shipment in box number order
func (r *ShipmentRepository) GetBoxes(ctx context.Context, shipmentID string) ([]*Box, error) {
	var boxes []*Box
	query := `SELECT * FROM shipment_boxes WHERE shipment_id = $1 ORDER BY box_number`
	if err := r.db.SelectContext(ctx, &boxes, query, shipmentID); err != nil {
		return nil, err
	}
	return boxes, nil
}

// GetBoxContents lists the contents of one box
func (r *ShipmentRepository) GetBoxContents(ctx context.Context, boxID string) ([]*BoxContent, error) {
	var contents []*BoxContent
	query := `SELECT * FROM shipment_box_contents WHERE box_id = $1 ORDER BY id`
	if err := r.db.SelectContext(ctx, &contents, query, boxID); err != nil {
		return nil, err
	}
	return contents, nil
}

// ListTransitions returns the lifecycle audit log, oldest first
func (r *ShipmentRepository) ListTransitions(ctx context.Context, shipmentID string) ([]*ShipmentTransition, error) {
	var transitions []*ShipmentTransition
	query := `SELECT * FROM shipment_transitions WHERE shipment_id = $1 ORDER BY created_at, id`
	if err := r.db.SelectContext(ctx, &transitions, query, shipmentID); err != nil {
		return nil, err
	}
	return transitions, nil
}

// Create creates a shipment from an order in picked status. The order
// cascades to packing in the same transaction.
func (r *ShipmentRepository) Create(ctx context.Context, orgID, orderID, actorID string) (*Shipment, error) {
	sh := &Shipment{
		ID:      uuid.New().String(),
		OrgID:   orgID,
		OrderID: orderID,
		Status:  ShipmentStatusPacking,
	}

	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var order Order
		orderQuery := `SELECT * FROM orders WHERE org_id = $1 AND id = $2 FOR UPDATE`
		if err := tx.GetContext(ctx, &order, orderQuery, orgID, orderID); err != nil {
			if err == sql.ErrNoRows {
				return errors.NotFound("order")
			}
			return err
		}

		if order.Status != OrderStatusPicked {
			return errors.Conflict(fmt.Sprintf("order must be picked to start packing, is %s", order.Status))
		}

		insertQuery := `
			INSERT INTO shipments (id, org_id, order_id, status)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at, updated_at
		`
		if err := tx.QueryRowxContext(ctx, insertQuery, sh.ID, sh.OrgID, sh.OrderID, sh.Status).
			Scan(&sh.CreatedAt, &sh.UpdatedAt); err != nil {
			return err
		}

		cascadeQuery := `UPDATE orders SET status = $3, updated_at = NOW() WHERE org_id = $1 AND id = $2`
		if _, err := tx.ExecContext(ctx, cascadeQuery, orgID, orderID, OrderStatusPacking); err != nil {
			return err
		}

		return appendTransition(ctx, tx, sh.ID, ShipmentStatusPending, ShipmentStatusPacking, actorID, nil)
	})
	if err != nil {
		var appErr *errors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, errors.TransactionFailed(err)
	}

	return sh, nil
}

// AddBox appends a box with the next sequential box number
func (r *ShipmentRepository) AddBox(ctx context.Context, orgID, shipmentID string) (*Box, error) {
	box := &Box{
		ID:         uuid.New().String(),
		ShipmentID: shipmentID,
	}

	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		sh, err := lockShipment(ctx, tx, orgID, shipmentID)
		if err != nil {
			return err
		}
		if sh.Status != ShipmentStatusPacking {
			return errors.Conflict(fmt.Sprintf("boxes can only be added while packing, shipment is %s", sh.Status))
		}

		numberQuery := `SELECT COALESCE(MAX(box_number), 0) + 1 FROM shipment_boxes WHERE shipment_id = $1`
		if err := tx.GetContext(ctx, &box.BoxNumber, numberQuery, shipmentID); err != nil {
			return err
		}

		insertQuery := `
			INSERT INTO shipment_boxes (id, shipment_id, box_number)
			VALUES ($1, $2, $3)
			RETURNING created_at, updated_at
		`
		return tx.QueryRowxContext(ctx, insertQuery, box.ID, box.ShipmentID, box.BoxNumber).
			Scan(&box.CreatedAt, &box.UpdatedAt)
	})
	if err != nil {
		var appErr *errors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, errors.TransactionFailed(err)
	}

	return box, nil
}

// UpdateBox sets a box's weight, dimensions, and SSCC. Range validation
// happens in the service; the check constraints are the backstop.
func (r *ShipmentRepository) UpdateBox(ctx context.Context, orgID, shipmentID string, box *Box) error {
	query := `
		UPDATE shipment_boxes b
		SET weight_kg = $4, length_cm = $5, width_cm = $6, height_cm = $7,
			sscc = $8, updated_at = NOW()
		FROM shipments s
		WHERE b.id = $3 AND b.shipment_id = s.id AND s.org_id = $1 AND s.id = $2
	`
	result, err := r.db.ExecContext(ctx, query,
		orgID, shipmentID, box.ID,
		box.WeightKg, box.LengthCm, box.WidthCm, box.HeightCm, box.SSCC,
	)
	if err != nil {
		return database.MapPQError(err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("box")
	}

	return nil
}

// AddBoxContent records one (LP, lot, quantity) triple inside a box
func (r *ShipmentRepository) AddBoxContent(ctx context.Context, content *BoxContent) error {
	if content.ID == "" {
		content.ID = uuid.New().String()
	}

	query := `
		INSERT INTO shipment_box_contents (id, box_id, license_plate_id, lot_number, quantity)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	return r.db.QueryRowxContext(ctx, query,
		content.ID, content.BoxID, content.LicensePlateID, content.LotNumber, content.Quantity,
	).Scan(&content.CreatedAt)
}

// PackedQuantityForLP sums what a shipment has already packed of one license
// plate across all of its boxes.
func (r *ShipmentRepository) PackedQuantityForLP(ctx context.Context, shipmentID, licensePlateID string) (decimal.Decimal, error) {
	var packed decimal.Decimal
	query := `
		SELECT COALESCE(SUM(c.quantity), 0)
		FROM shipment_box_contents c
		JOIN shipment_boxes b ON b.id = c.box_id
		WHERE b.shipment_id = $1 AND c.license_plate_id = $2
	`
	if err := r.db.GetContext(ctx, &packed, query, shipmentID, licensePlateID); err != nil {
		return decimal.Zero, err
	}
	return packed, nil
}

// Pack transitions packing -> packed. Every box must hold at least one LP and
// carry a non-null weight and dimensions; line coverage is checked by the
// service before the call.
func (r *ShipmentRepository) Pack(ctx context.Context, orgID, shipmentID, actorID string) (*Shipment, error) {
	var sh *Shipment

	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		sh, err = lockShipment(ctx, tx, orgID, shipmentID)
		if err != nil {
			return err
		}
		if sh.Status != ShipmentStatusPacking {
			return errors.Conflict(fmt.Sprintf("cannot pack a %s shipment", sh.Status))
		}

		var incomplete []int
		incompleteQuery := `
			SELECT b.box_number FROM shipment_boxes b
			WHERE b.shipment_id = $1
			AND (
				b.weight_kg IS NULL OR b.length_cm IS NULL
				OR b.width_cm IS NULL OR b.height_cm IS NULL
				OR NOT EXISTS (SELECT 1 FROM shipment_box_contents c WHERE c.box_id = b.id)
			)
			ORDER BY b.box_number
		`
		if err := tx.SelectContext(ctx, &incomplete, incompleteQuery, shipmentID); err != nil {
			return err
		}
		if len(incomplete) > 0 {
			return errors.Validation(map[string]string{
				"boxes": fmt.Sprintf("boxes missing weight, dimensions, or contents: %v", incomplete),
			})
		}

		var boxCount int
		countQuery := `SELECT COUNT(*) FROM shipment_boxes WHERE shipment_id = $1`
		if err := tx.GetContext(ctx, &boxCount, countQuery, shipmentID); err != nil {
			return err
		}
		if boxCount == 0 {
			return errors.Validation(map[string]string{"boxes": "shipment has no boxes"})
		}

		return r.transition(ctx, tx, sh, ShipmentStatusPacked, actorID, nil,
			`UPDATE shipments SET status = $3, updated_at = NOW() WHERE org_id = $1 AND id = $2`)
	})
	if err != nil {
		return nil, mapShipmentErr(err)
	}

	return sh, nil
}

// Manifest transitions packed -> manifested. Every box must carry an SSCC;
// otherwise the offending box numbers are returned and nothing changes.
func (r *ShipmentRepository) Manifest(ctx context.Context, orgID, shipmentID, actorID string) (*Shipment, error) {
	var sh *Shipment

	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		sh, err = lockShipment(ctx, tx, orgID, shipmentID)
		if err != nil {
			return err
		}
		if sh.Status != ShipmentStatusPacked {
			return errors.Conflict(fmt.Sprintf("cannot manifest a %s shipment", sh.Status))
		}

		var missing []int
		missingQuery := `
			SELECT box_number FROM shipment_boxes
			WHERE shipment_id = $1 AND sscc IS NULL
			ORDER BY box_number
		`
		if err := tx.SelectContext(ctx, &missing, missingQuery, shipmentID); err != nil {
			return err
		}
		if len(missing) > 0 {
			return &IncompleteManifestError{ShipmentID: shipmentID, BoxNumbers: missing}
		}

		return r.transition(ctx, tx, sh, ShipmentStatusManifested, actorID, nil,
			`UPDATE shipments SET status = $3, manifested_at = NOW(), updated_at = NOW() WHERE org_id = $1 AND id = $2`)
	})
	if err != nil {
		return nil, mapShipmentErr(err)
	}

	now := time.Now().UTC()
	sh.ManifestedAt = &now
	return sh, nil
}

// Ship is the irreversible consumption commit: for every (LP, quantity) pair
// in the shipment's boxes, decrements both on_hand_quantity and
// allocated_quantity, marks the matching reservations consumed, cascades the
// order to shipped, and moves the shipment to shipped — all in one
// transaction. Any single failure rolls back all of it.
//
// LP rows are locked ordered by id; the shipment row lock serializes
// concurrent transition calls for the same shipment.
func (r *ShipmentRepository) Ship(ctx context.Context, orgID, shipmentID, actorID string, skipManifest bool) (*Shipment, []ConsumedLP, error) {
	var sh *Shipment
	var consumed []ConsumedLP

	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		sh, err = lockShipment(ctx, tx, orgID, shipmentID)
		if err != nil {
			return err
		}

		switch {
		case sh.Status == ShipmentStatusManifested:
		case sh.Status == ShipmentStatusPacked && skipManifest:
		case sh.Status == ShipmentStatusPacked:
			return errors.New("NOT_MANIFESTED", "shipment must be manifested before shipping", http.StatusConflict)
		default:
			return errors.Conflict(fmt.Sprintf("cannot ship a %s shipment", sh.Status))
		}

		consumed = nil
		contentQuery := `
			SELECT c.license_plate_id, SUM(c.quantity) AS quantity
			FROM shipment_box_contents c
			JOIN shipment_boxes b ON b.id = c.box_id
			WHERE b.shipment_id = $1
			GROUP BY c.license_plate_id
			ORDER BY c.license_plate_id
		`
		rows, err := tx.QueryxContext(ctx, contentQuery, shipmentID)
		if err != nil {
			return err
		}
		for rows.Next() {
			var lp ConsumedLP
			if err := rows.StructScan(&lp); err != nil {
				rows.Close()
				return err
			}
			consumed = append(consumed, lp)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(consumed) == 0 {
			return errors.Validation(map[string]string{"boxes": "shipment has no packed contents"})
		}

		lpIDs := make([]string, len(consumed))
		for i, c := range consumed {
			lpIDs[i] = c.LicensePlateID
		}

		var locked []*LicensePlate
		lockQuery := `
			SELECT * FROM license_plates
			WHERE org_id = $1 AND id = ANY($2)
			ORDER BY id
			FOR UPDATE
		`
		if err := tx.SelectContext(ctx, &locked, lockQuery, orgID, pq.Array(lpIDs)); err != nil {
			return err
		}

		byID := make(map[string]*LicensePlate, len(locked))
		for _, lp := range locked {
			byID[lp.ID] = lp
		}

		for _, c := range consumed {
			lp, ok := byID[c.LicensePlateID]
			if !ok {
				return errors.NotFound("license plate")
			}
			// A packed quantity exceeding on-hand or allocated means the
			// ledger invariant was already broken; unreachable after a
			// validated commit.
			if lp.OnHandQuantity.LessThan(c.Quantity) || lp.AllocatedQuantity.LessThan(c.Quantity) {
				panic(fmt.Sprintf("license plate %s: packed quantity %s exceeds on-hand %s / allocated %s",
					lp.ID, c.Quantity, lp.OnHandQuantity, lp.AllocatedQuantity))
			}

			consumeQuery := `
				UPDATE license_plates
				SET on_hand_quantity = on_hand_quantity - $3,
					allocated_quantity = allocated_quantity - $3,
					updated_at = NOW()
				WHERE org_id = $1 AND id = $2
			`
			if _, err := tx.ExecContext(ctx, consumeQuery, orgID, c.LicensePlateID, c.Quantity); err != nil {
				return err
			}
		}

		for _, c := range consumed {
			if err := consumeReservations(ctx, tx, sh.OrderID, c.LicensePlateID, c.Quantity); err != nil {
				return err
			}
		}

		cascadeQuery := `UPDATE orders SET status = $3, updated_at = NOW() WHERE org_id = $1 AND id = $2`
		if _, err := tx.ExecContext(ctx, cascadeQuery, orgID, sh.OrderID, OrderStatusShipped); err != nil {
			return err
		}

		var reason *string
		if skipManifest {
			s := "manifest skipped by explicit caller request"
			reason = &s
		}

		return r.transition(ctx, tx, sh, ShipmentStatusShipped, actorID, reason,
			`UPDATE shipments SET status = $3, shipped_at = NOW(), updated_at = NOW() WHERE org_id = $1 AND id = $2`)
	})
	if err != nil {
		return nil, nil, mapShipmentErr(err)
	}

	now := time.Now().UTC()
	sh.ShippedAt = &now
	return sh, consumed, nil
}

// Deliver transitions shipped -> delivered. Role gating happens in the
// service; this only enforces the state machine.
func (r *ShipmentRepository) Deliver(ctx context.Context, orgID, shipmentID, actorID string) (*Shipment, error) {
	var sh *Shipment

	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		sh, err = lockShipment(ctx, tx, orgID, shipmentID)
		if err != nil {
			return err
		}
		if sh.Status != ShipmentStatusShipped {
			return errors.Conflict(fmt.Sprintf("cannot deliver a %s shipment", sh.Status))
		}

		return r.transition(ctx, tx, sh, ShipmentStatusDelivered, actorID, nil,
			`UPDATE shipments SET status = $3, delivered_at = NOW(), updated_at = NOW() WHERE org_id = $1 AND id = $2`)
	})
	if err != nil {
		return nil, mapShipmentErr(err)
	}

	now := time.Now().UTC()
	sh.DeliveredAt = &now
	return sh, nil
}

// SetCarrier records carrier and tracking number
func (r *ShipmentRepository) SetCarrier(ctx context.Context, orgID, shipmentID, carrierName, trackingNumber string) error {
	query := `
		UPDATE shipments
		SET carrier_name = $3, tracking_number = $4, updated_at = NOW()
		WHERE org_id = $1 AND id = $2
	`
	result, err := r.db.ExecContext(ctx, query, orgID, shipmentID, carrierName, trackingNumber)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("shipment")
	}

	return nil
}

// consumeReservations applies one shipped LP quantity to the order's active
// reservations on it, oldest first. A reservation fully covered flips to
// consumed; a partially covered one keeps the remainder active and
// releasable, so allocated_quantity and live reservations stay in step.
func consumeReservations(ctx context.Context, tx *sqlx.Tx, orderID, licensePlateID string, qty decimal.Decimal) error {
	var reservations []struct {
		ID       string          `db:"id"`
		Quantity decimal.Decimal `db:"quantity"`
	}
	query := `
		SELECT r.id, r.quantity
		FROM reservations r
		JOIN demand_lines dl ON dl.id = r.demand_line_id
		WHERE dl.order_id = $1 AND r.license_plate_id = $2 AND r.status = 'active'
		ORDER BY r.created_at, r.id
		FOR UPDATE OF r
	`
	if err := tx.SelectContext(ctx, &reservations, query, orderID, licensePlateID); err != nil {
		return err
	}

	remaining := qty
	for _, res := range reservations {
		if !remaining.IsPositive() {
			break
		}

		if res.Quantity.LessThanOrEqual(remaining) {
			consumeQuery := `UPDATE reservations SET status = 'consumed' WHERE id = $1`
			if _, err := tx.ExecContext(ctx, consumeQuery, res.ID); err != nil {
				return err
			}
			remaining = remaining.Sub(res.Quantity)
			continue
		}

		reduceQuery := `UPDATE reservations SET quantity = quantity - $2 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, reduceQuery, res.ID, remaining); err != nil {
			return err
		}
		remaining = decimal.Zero
	}

	// Packing is validated against the order's reservations, so shipped
	// quantity past them means the ledger was already broken.
	if remaining.IsPositive() {
		panic(fmt.Sprintf("license plate %s: shipped quantity exceeds the order's active reservations by %s",
			licensePlateID, remaining))
	}

	return nil
}

func lockShipment(ctx context.Context, tx *sqlx.Tx, orgID, shipmentID string) (*Shipment, error) {
	var sh Shipment
	query := `SELECT * FROM shipments WHERE org_id = $1 AND id = $2 FOR UPDATE`
	if err := tx.GetContext(ctx, &sh, query, orgID, shipmentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("shipment")
		}
		return nil, err
	}
	return &sh, nil
}

func (r *ShipmentRepository) transition(ctx context.Context, tx *sqlx.Tx, sh *Shipment, to, actorID string, reason *string, updateQuery string) error {
	if _, err := tx.ExecContext(ctx, updateQuery, sh.OrgID, sh.ID, to); err != nil {
		return err
	}

	if err := appendTransition(ctx, tx, sh.ID, sh.Status, to, actorID, reason); err != nil {
		return err
	}

	sh.Status = to
	return nil
}

func appendTransition(ctx context.Context, tx *sqlx.Tx, shipmentID, from, to, actorID string, reason *string) error {
	query := `
		INSERT INTO shipment_transitions (id, shipment_id, from_status, to_status, actor_id, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := tx.ExecContext(ctx, query, uuid.New().String(), shipmentID, from, to, actorID, reason)
	return err
}

func mapShipmentErr(err error) error {
	var manifestErr *IncompleteManifestError
	var appErr *errors.AppError
	if errors.As(err, &manifestErr) || errors.As(err, &appErr) {
		return err
	}
	return errors.TransactionFailed(err)
}
