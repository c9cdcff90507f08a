package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/bakeflow/bakeflow-backend/pkg/database"
	"github.com/bakeflow/bakeflow-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Reservation statuses
const (
	ReservationStatusActive   = "active"
	ReservationStatusConsumed = "consumed"
)

// Reservation is a committed, persisted claim of a specific quantity of a
// specific license plate against a specific demand line. Created only through
// CommitAllocation; released pre-ship or converted to consumption on ship.
type Reservation struct {
	ID                string          `db:"id" json:"id"`
	OrgID             string          `db:"org_id" json:"-"`
	LicensePlateID    string          `db:"license_plate_id" json:"license_plate_id"`
	DemandLineID      string          `db:"demand_line_id" json:"demand_line_id"`
	Quantity          decimal.Decimal `db:"quantity" json:"quantity"`
	Status            string          `db:"status" json:"status"`
	IsOverConsumption bool            `db:"is_over_consumption" json:"is_over_consumption"`
	CreatedBy         string          `db:"created_by" json:"created_by"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}

// CommitLine is one LP/quantity pair of a confirmed allocation session.
type CommitLine struct {
	LicensePlateID string          `json:"license_plate_id"`
	Quantity       decimal.Decimal `json:"quantity"`
}

// StaleAllocationError reports that at least one committed line no longer fits
// the current persisted LP state. StillValid carries the subset that would
// still commit, so the caller can re-plan instead of starting from scratch.
type StaleAllocationError struct {
	DemandLineID string       `json:"demand_line_id"`
	StillValid   []CommitLine `json:"still_valid"`
}

func (e *StaleAllocationError) Error() string {
	return fmt.Sprintf("allocation for demand line %s is stale: %d of the selected lines still fit",
		e.DemandLineID, len(e.StillValid))
}

func (e *StaleAllocationError) Unwrap() error {
	return errors.ErrStaleAllocation
}

// ReservationRepository is the reservation ledger's persistence layer. It is
// the only writer of license_plates.allocated_quantity.
type ReservationRepository struct {
	db *database.DB
}

// NewReservationRepository creates a new reservation repository
func NewReservationRepository(db *database.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

// GetByID gets a reservation by ID within the caller's org
func (r *ReservationRepository) GetByID(ctx context.Context, orgID, id string) (*Reservation, error) {
	var res Reservation
	query := `SELECT * FROM reservations WHERE org_id = $1 AND id = $2`
	if err := r.db.GetContext(ctx, &res, query, orgID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("reservation")
		}
		return nil, err
	}
	return &res, nil
}

// ListByDemandLine lists active reservations for a demand line
func (r *ReservationRepository) ListByDemandLine(ctx context.Context, orgID, demandLineID string) ([]*Reservation, error) {
	var reservations []*Reservation
	query := `
		SELECT * FROM reservations
		WHERE org_id = $1 AND demand_line_id = $2 AND status = 'active'
		ORDER BY created_at, id
	`
	if err := r.db.SelectContext(ctx, &reservations, query, orgID, demandLineID); err != nil {
		return nil, err
	}
	return reservations, nil
}

// ActiveReservedForOrderLP sums the active reservations an order holds on one
// license plate across its demand lines. This is the order's claim; packing
// may never exceed it.
func (r *ReservationRepository) ActiveReservedForOrderLP(ctx context.Context, orgID, orderID, licensePlateID string) (decimal.Decimal, error) {
	var reserved decimal.Decimal
	query := `
		SELECT COALESCE(SUM(r.quantity), 0)
		FROM reservations r
		JOIN demand_lines dl ON dl.id = r.demand_line_id
		WHERE dl.org_id = $1 AND dl.order_id = $2
		AND r.license_plate_id = $3 AND r.status = 'active'
	`
	if err := r.db.GetContext(ctx, &reserved, query, orgID, orderID, licensePlateID); err != nil {
		return decimal.Zero, err
	}
	return reserved, nil
}

// CommitAllocation converts a confirmed allocation into persisted reservations
// in one transaction:
//
//  1. Locks every touched LP row with SELECT ... FOR UPDATE, ordered by LP id
//     so concurrent multi-LP commits cannot deadlock.
//  2. Re-validates each line against the locked (current) quantities, not the
//     session's snapshot. Any shortfall fails the whole commit with
//     StaleAllocationError carrying the still-valid subset.
//  3. Increments allocated_quantity per LP, inserts one reservation per line,
//     and accumulates the total onto the demand line.
//
// On any failure the transaction rolls back; partial reservation is never
// left behind.
func (r *ReservationRepository) CommitAllocation(ctx context.Context, orgID, demandLineID string, lines []CommitLine, actorID string) ([]*Reservation, error) {
	if len(lines) == 0 {
		return nil, errors.BadRequest("no allocation lines selected")
	}

	sorted := make([]CommitLine, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].LicensePlateID < sorted[j].LicensePlateID
	})

	lpIDs := make([]string, len(sorted))
	for i, line := range sorted {
		lpIDs[i] = line.LicensePlateID
	}

	var reservations []*Reservation

	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
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

		stillValid := make([]CommitLine, 0, len(sorted))
		stale := false
		for _, line := range sorted {
			lp, ok := byID[line.LicensePlateID]
			if !ok || lp.QAStatus != QAStatusPassed {
				stale = true
				continue
			}
			if lp.AvailableQuantity().LessThan(line.Quantity) {
				stale = true
				continue
			}
			stillValid = append(stillValid, line)
		}
		if stale {
			return &StaleAllocationError{DemandLineID: demandLineID, StillValid: stillValid}
		}

		total := decimal.Zero
		for _, line := range sorted {
			allocQuery := `
				UPDATE license_plates
				SET allocated_quantity = allocated_quantity + $3, updated_at = NOW()
				WHERE org_id = $1 AND id = $2
			`
			if _, err := tx.ExecContext(ctx, allocQuery, orgID, line.LicensePlateID, line.Quantity); err != nil {
				return err
			}

			res := &Reservation{
				ID:             uuid.New().String(),
				OrgID:          orgID,
				LicensePlateID: line.LicensePlateID,
				DemandLineID:   demandLineID,
				Quantity:       line.Quantity,
				Status:         ReservationStatusActive,
				CreatedBy:      actorID,
			}

			insertQuery := `
				INSERT INTO reservations (
					id, org_id, license_plate_id, demand_line_id, quantity, status,
					is_over_consumption, created_by
				) VALUES ($1, $2, $3, $4, $5, $6, false, $7)
				RETURNING created_at
			`
			if err := tx.QueryRowxContext(ctx, insertQuery,
				res.ID, res.OrgID, res.LicensePlateID, res.DemandLineID,
				res.Quantity, res.Status, res.CreatedBy,
			).Scan(&res.CreatedAt); err != nil {
				return err
			}

			reservations = append(reservations, res)
			total = total.Add(line.Quantity)
		}

		demandQuery := `
			UPDATE demand_lines
			SET quantity_allocated = quantity_allocated + $3, updated_at = NOW()
			WHERE org_id = $1 AND id = $2
		`
		result, err := tx.ExecContext(ctx, demandQuery, orgID, demandLineID, total)
		if err != nil {
			return err
		}
		affected, _ := result.RowsAffected()
		if affected == 0 {
			return errors.NotFound("demand line")
		}

		return nil
	})
	if err != nil {
		var staleErr *StaleAllocationError
		var appErr *errors.AppError
		if errors.As(err, &staleErr) || errors.As(err, &appErr) {
			return nil, err
		}
		return nil, errors.TransactionFailed(err)
	}

	return reservations, nil
}

// Release decrements the LP's allocated_quantity back and deletes the
// reservation, in one transaction. Only active reservations can be released;
// consumed ones are final.
func (r *ReservationRepository) Release(ctx context.Context, orgID, reservationID string) (*Reservation, error) {
	var released Reservation

	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		lockQuery := `SELECT * FROM reservations WHERE org_id = $1 AND id = $2 FOR UPDATE`
		if err := tx.GetContext(ctx, &released, lockQuery, orgID, reservationID); err != nil {
			if err == sql.ErrNoRows {
				return errors.NotFound("reservation")
			}
			return err
		}

		if released.Status != ReservationStatusActive {
			return errors.Conflict("reservation has already been consumed")
		}

		lpQuery := `
			UPDATE license_plates
			SET allocated_quantity = allocated_quantity - $3, updated_at = NOW()
			WHERE org_id = $1 AND id = $2
		`
		if _, err := tx.ExecContext(ctx, lpQuery, orgID, released.LicensePlateID, released.Quantity); err != nil {
			return err
		}

		demandQuery := `
			UPDATE demand_lines
			SET quantity_allocated = quantity_allocated - $3, updated_at = NOW()
			WHERE org_id = $1 AND id = $2
		`
		if _, err := tx.ExecContext(ctx, demandQuery, orgID, released.DemandLineID, released.Quantity); err != nil {
			return err
		}

		deleteQuery := `DELETE FROM reservations WHERE org_id = $1 AND id = $2`
		if _, err := tx.ExecContext(ctx, deleteQuery, orgID, reservationID); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		var appErr *errors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, errors.TransactionFailed(err)
	}

	return &released, nil
}

// ApproveOverConsumption reserves the excess quantity against the designated
// parent LP as an explicitly attributed over-consumption. The parent must
// still have the excess available; otherwise the approval fails stale.
func (r *ReservationRepository) ApproveOverConsumption(ctx context.Context, orgID, demandLineID, parentLPID string, excess decimal.Decimal, actorID string) (*Reservation, error) {
	var res *Reservation

	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var lp LicensePlate
		lockQuery := `SELECT * FROM license_plates WHERE org_id = $1 AND id = $2 FOR UPDATE`
		if err := tx.GetContext(ctx, &lp, lockQuery, orgID, parentLPID); err != nil {
			if err == sql.ErrNoRows {
				return errors.NotFound("license plate")
			}
			return err
		}

		if lp.AvailableQuantity().LessThan(excess) {
			return &StaleAllocationError{DemandLineID: demandLineID, StillValid: nil}
		}

		allocQuery := `
			UPDATE license_plates
			SET allocated_quantity = allocated_quantity + $3, updated_at = NOW()
			WHERE org_id = $1 AND id = $2
		`
		if _, err := tx.ExecContext(ctx, allocQuery, orgID, parentLPID, excess); err != nil {
			return err
		}

		res = &Reservation{
			ID:                uuid.New().String(),
			OrgID:             orgID,
			LicensePlateID:    parentLPID,
			DemandLineID:      demandLineID,
			Quantity:          excess,
			Status:            ReservationStatusActive,
			IsOverConsumption: true,
			CreatedBy:         actorID,
		}

		insertQuery := `
			INSERT INTO reservations (
				id, org_id, license_plate_id, demand_line_id, quantity, status,
				is_over_consumption, created_by
			) VALUES ($1, $2, $3, $4, $5, $6, true, $7)
			RETURNING created_at
		`
		if err := tx.QueryRowxContext(ctx, insertQuery,
			res.ID, res.OrgID, res.LicensePlateID, res.DemandLineID,
			res.Quantity, res.Status, res.CreatedBy,
		).Scan(&res.CreatedAt); err != nil {
			return err
		}

		demandQuery := `
			UPDATE demand_lines
			SET quantity_allocated = quantity_allocated + $3, updated_at = NOW()
			WHERE org_id = $1 AND id = $2
		`
		if _, err := tx.ExecContext(ctx, demandQuery, orgID, demandLineID, excess); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		var staleErr *StaleAllocationError
		var appErr *errors.AppError
		if errors.As(err, &staleErr) || errors.As(err, &appErr) {
			return nil, err
		}
		return nil, errors.TransactionFailed(err)
	}

	return res, nil
}
