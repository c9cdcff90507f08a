package database

import (
	"strings"

	"github.com/bakeflow/bakeflow-backend/pkg/errors"
	"github.com/lib/pq"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "allocated_lte_on_hand"):
		// allocated_quantity exceeded on_hand_quantity; the ledger's pre-check
		// should have caught this, so surface it as a conflict to retry against
		return errors.Conflict("allocated quantity would exceed on-hand quantity")

	case strings.Contains(constraint, "quantity_non_negative"):
		return errors.Validation(map[string]string{
			"quantity": "must not be negative",
		})

	case strings.Contains(constraint, "box_weight_range"):
		return errors.Validation(map[string]string{
			"weight": "must be greater than 0 and at most 25 kg",
		})

	case strings.Contains(constraint, "box_dimension_range"):
		return errors.Validation(map[string]string{
			"dimensions": "each side must be between 10 and 200 cm",
		})

	case strings.Contains(constraint, "qa_status_valid"):
		return errors.Validation(map[string]string{
			"qa_status": "must be one of: pending, passed, hold, rejected, quarantine",
		})

	case strings.Contains(constraint, "shipment_status_valid"):
		return errors.Validation(map[string]string{
			"status": "must be one of: pending, packing, packed, manifested, shipped, delivered, exception",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "reservations_lp_demand"):
		return "this license plate is already reserved for this demand line"
	case strings.Contains(constraint, "lp_number"):
		return "a license plate with this number already exists"
	case strings.Contains(constraint, "sscc"):
		return "a box with this SSCC already exists"
	default:
		return "a record with these values already exists"
	}
}
