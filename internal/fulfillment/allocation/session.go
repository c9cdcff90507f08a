package allocation

import (
	"fmt"
	"time"

	"github.com/bakeflow/bakeflow-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// DefaultStaleAfter is the snapshot age past which a session must be
// refreshed before it can commit.
const DefaultStaleAfter = 5 * time.Minute

// SessionCandidate is one candidate inside a session, carrying the operator's
// selection and quantity on top of the planner suggestion. Quantity starts as
// the suggested quantity and is replaced by an override.
type SessionCandidate struct {
	PlannedCandidate
	Selected bool            `json:"selected"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Session is the ephemeral planning aggregate for one demand line. It lives
// for the duration of one planning-and-commit cycle; committing or cancelling
// destroys it. Single-writer: one operator drives it, so mutations need no
// locking until the ledger commit re-validates everything anyway.
type Session struct {
	ID               string             `json:"id"`
	DemandLineID     string             `json:"demand_line_id"`
	OrderID          string             `json:"order_id"`
	ProductID        string             `json:"product_id"`
	Strategy         Strategy           `json:"strategy"`
	RequiredQuantity decimal.Decimal    `json:"required_quantity"`
	Pool             []Plate            `json:"pool"`
	Candidates       []SessionCandidate `json:"candidates"`
	SnapshotAt       time.Time          `json:"snapshot_at"`
}

// Summary is the coverage projection recomputed on every session mutation.
// Advisory only; the ledger re-validates against live state at commit.
type Summary struct {
	TotalRequired   decimal.Decimal `json:"total_required"`
	TotalSelected   decimal.Decimal `json:"total_selected"`
	CoveragePercent decimal.Decimal `json:"coverage_percent"`
	Shortfall       decimal.Decimal `json:"shortfall"`
	LPCountSelected int             `json:"lp_count_selected"`
	IsStale         bool            `json:"is_stale"`
}

// NewSession ranks and plans the pool and pre-selects every suggested
// candidate.
func NewSession(id, demandLineID, orderID, productID string, strategy Strategy, required decimal.Decimal, pool []Plate, now time.Time, warnDays int) *Session {
	s := &Session{
		ID:               id,
		DemandLineID:     demandLineID,
		OrderID:          orderID,
		ProductID:        productID,
		Strategy:         strategy,
		RequiredQuantity: required,
		Pool:             pool,
		SnapshotAt:       now.UTC(),
	}
	s.replan(now, warnDays)
	return s
}

func (s *Session) replan(now time.Time, warnDays int) {
	plan := Plan(Rank(s.Pool, s.Strategy, now, warnDays), s.RequiredQuantity)

	s.Candidates = make([]SessionCandidate, len(plan.Candidates))
	for i, planned := range plan.Candidates {
		s.Candidates[i] = SessionCandidate{
			PlannedCandidate: planned,
			Selected:         planned.IsSuggested,
			Quantity:         planned.SuggestedQuantity,
		}
	}
}

func (s *Session) find(lpID string) (*SessionCandidate, error) {
	for i := range s.Candidates {
		if s.Candidates[i].ID == lpID {
			return &s.Candidates[i], nil
		}
	}
	return nil, errors.NotFound("allocation candidate")
}

// ToggleSelection flips one candidate's selected flag
func (s *Session) ToggleSelection(lpID string) error {
	c, err := s.find(lpID)
	if err != nil {
		return err
	}
	c.Selected = !c.Selected
	return nil
}

// SetOverrideQuantity replaces one candidate's quantity with a manual value.
// The override must be positive and fit the candidate's available quantity.
func (s *Session) SetOverrideQuantity(lpID string, qty decimal.Decimal) error {
	c, err := s.find(lpID)
	if err != nil {
		return err
	}

	if !qty.IsPositive() {
		return errors.InvalidQuantity("override_quantity", "must be greater than zero")
	}
	if qty.GreaterThan(c.AvailableQuantity) {
		return errors.InvalidQuantity("override_quantity",
			fmt.Sprintf("exceeds available quantity %s on %s", c.AvailableQuantity, c.LPNumber))
	}

	c.Quantity = qty
	c.Selected = true
	return nil
}

// SwitchStrategy re-ranks and re-plans against the same plate snapshot. A
// strategy change is a fresh plan: manual overrides and toggles are
// discarded.
func (s *Session) SwitchStrategy(strategy Strategy, now time.Time, warnDays int) {
	s.Strategy = strategy
	s.replan(now, warnDays)
}

// Refresh replaces the plate snapshot and re-plans, resetting the snapshot
// timestamp. Required once the session has gone stale.
func (s *Session) Refresh(pool []Plate, now time.Time, warnDays int) {
	s.Pool = pool
	s.SnapshotAt = now.UTC()
	s.replan(now, warnDays)
}

// Stale reports whether the snapshot is older than staleAfter. A stale
// session cannot commit until refreshed.
func (s *Session) Stale(now time.Time, staleAfter time.Duration) bool {
	return now.Sub(s.SnapshotAt) > staleAfter
}

// SelectedLines returns the (LP, quantity) pairs the operator confirmed.
func (s *Session) SelectedLines() []SelectedLine {
	var lines []SelectedLine
	for _, c := range s.Candidates {
		if c.Selected && c.Quantity.IsPositive() {
			lines = append(lines, SelectedLine{LicensePlateID: c.ID, Quantity: c.Quantity})
		}
	}
	return lines
}

// SelectedLine is one confirmed (LP, quantity) pair of a session.
type SelectedLine struct {
	LicensePlateID string          `json:"license_plate_id"`
	Quantity       decimal.Decimal `json:"quantity"`
}

// Summary computes the coverage projection. Coverage is rounded half-up to
// two decimals and capped at 100.
func (s *Session) Summary(now time.Time, staleAfter time.Duration) Summary {
	selected := decimal.Zero
	count := 0
	for _, c := range s.Candidates {
		if c.Selected {
			selected = selected.Add(c.Quantity)
			count++
		}
	}

	coverage := decimal.NewFromInt(100)
	if s.RequiredQuantity.IsPositive() {
		coverage = selected.Mul(decimal.NewFromInt(100)).DivRound(s.RequiredQuantity, 2)
		if coverage.GreaterThan(decimal.NewFromInt(100)) {
			coverage = decimal.NewFromInt(100)
		}
	}

	return Summary{
		TotalRequired:   s.RequiredQuantity,
		TotalSelected:   selected,
		CoveragePercent: coverage,
		Shortfall:       decimal.Max(decimal.Zero, s.RequiredQuantity.Sub(selected)),
		LPCountSelected: count,
		IsStale:         s.Stale(now, staleAfter),
	}
}
