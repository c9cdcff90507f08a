// Package allocation implements the pure planning side of fulfillment: the
// candidate ranker, the greedy planner, and the interactive allocation
// session. Nothing in this package touches storage; the session store keeps
// sessions alive across requests but never mutates license plate state.
package allocation

import (
	"fmt"
	"sort"
	"time"

	"github.com/bakeflow/bakeflow-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// Strategy selects the candidate ordering.
type Strategy string

const (
	// StrategyFIFO orders by receipt date, oldest inventory first.
	StrategyFIFO Strategy = "FIFO"
	// StrategyFEFO orders by best-before date, earliest expiry first.
	StrategyFEFO Strategy = "FEFO"
)

// ParseStrategy validates a strategy string
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyFIFO, StrategyFEFO:
		return Strategy(s), nil
	default:
		return "", errors.BadRequest(fmt.Sprintf("unknown allocation strategy %q, expected FIFO or FEFO", s))
	}
}

// Plate is the snapshot of one license plate the planner works against.
// Derived from live LP state at session creation or refresh; never written
// back.
type Plate struct {
	ID                string          `json:"id"`
	LPNumber          string          `json:"lp_number"`
	LotNumber         string          `json:"lot_number"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
	ReceiptDate       time.Time       `json:"receipt_date"`
	BestBeforeDate    *time.Time      `json:"best_before_date,omitempty"`
}

// Candidate is one ranked plate with its rank rationale and expiry flag.
type Candidate struct {
	Plate
	RankReason          string `json:"rank_reason"`
	ExpiryDaysRemaining *int   `json:"expiry_days_remaining,omitempty"`
	IsExpiryWarning     bool   `json:"is_expiry_warning"`
}

// Rank orders the plate pool by strategy and flags expiry-warning candidates.
//
// FIFO: receipt date ascending, ties broken by plate id.
// FEFO: best-before ascending with nulls last, ties broken by receipt date,
// then plate id, so identical snapshots always rank identically.
//
// The expiry warning is informational only and never excludes a candidate.
func Rank(pool []Plate, strategy Strategy, now time.Time, warnDays int) []Candidate {
	ranked := make([]Plate, len(pool))
	copy(ranked, pool)

	switch strategy {
	case StrategyFEFO:
		sort.SliceStable(ranked, func(i, j int) bool {
			bi, bj := ranked[i].BestBeforeDate, ranked[j].BestBeforeDate
			switch {
			case bi == nil && bj == nil:
			case bi == nil:
				return false
			case bj == nil:
				return true
			case !bi.Equal(*bj):
				return bi.Before(*bj)
			}
			if !ranked[i].ReceiptDate.Equal(ranked[j].ReceiptDate) {
				return ranked[i].ReceiptDate.Before(ranked[j].ReceiptDate)
			}
			return ranked[i].ID < ranked[j].ID
		})
	default:
		sort.SliceStable(ranked, func(i, j int) bool {
			if !ranked[i].ReceiptDate.Equal(ranked[j].ReceiptDate) {
				return ranked[i].ReceiptDate.Before(ranked[j].ReceiptDate)
			}
			return ranked[i].ID < ranked[j].ID
		})
	}

	today := now.UTC().Truncate(24 * time.Hour)

	candidates := make([]Candidate, len(ranked))
	for i, plate := range ranked {
		c := Candidate{Plate: plate}

		if plate.BestBeforeDate != nil {
			days := int(plate.BestBeforeDate.UTC().Truncate(24 * time.Hour).Sub(today).Hours() / 24)
			c.ExpiryDaysRemaining = &days
			c.IsExpiryWarning = days < warnDays
		}

		switch strategy {
		case StrategyFEFO:
			if plate.BestBeforeDate != nil {
				c.RankReason = fmt.Sprintf("FEFO: expires %s", plate.BestBeforeDate.Format("2006-01-02"))
			} else {
				c.RankReason = "FEFO: no best-before date"
			}
		default:
			c.RankReason = fmt.Sprintf("FIFO: received %s", plate.ReceiptDate.Format("2006-01-02"))
		}

		candidates[i] = c
	}

	return candidates
}
