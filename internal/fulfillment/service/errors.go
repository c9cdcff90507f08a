package service

import (
	"fmt"

	"github.com/bakeflow/bakeflow-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// CandidateParentLP is one reserved LP the operator may designate as the
// source of an over-consumption excess.
type CandidateParentLP struct {
	LicensePlateID   string          `json:"license_plate_id"`
	LPNumber         string          `json:"lp_number"`
	ReservedQuantity decimal.Decimal `json:"reserved_quantity"`
}

// OverConsumptionError is the resolver's signal: the attempted quantity
// exceeds reserved supply and the caller must resubmit with
// is_over_production=true and a chosen parent_lp_id. A policy gate, not a
// failure.
type OverConsumptionError struct {
	DemandLineID       string              `json:"demand_line_id"`
	AttemptedQuantity  decimal.Decimal     `json:"attempted_quantity"`
	ReservedQuantity   decimal.Decimal     `json:"reserved_quantity"`
	ExcessQuantity     decimal.Decimal     `json:"excess_quantity"`
	CandidateParentLPs []CandidateParentLP `json:"candidate_parent_lps"`
}

func (e *OverConsumptionError) Error() string {
	return fmt.Sprintf("quantity %s exceeds reserved supply %s for demand line %s; over-production confirmation required",
		e.AttemptedQuantity, e.ReservedQuantity, e.DemandLineID)
}

func (e *OverConsumptionError) Unwrap() error {
	return errors.ErrConfirmationRequired
}
