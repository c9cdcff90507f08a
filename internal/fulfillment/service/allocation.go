package service

import (
	"context"
	"net/http"
	"time"

	"github.com/bakeflow/bakeflow-backend/internal/fulfillment/allocation"
	"github.com/bakeflow/bakeflow-backend/internal/fulfillment/events"
	"github.com/bakeflow/bakeflow-backend/internal/fulfillment/repository"
	"github.com/bakeflow/bakeflow-backend/pkg/actor"
	"github.com/bakeflow/bakeflow-backend/pkg/config"
	"github.com/bakeflow/bakeflow-backend/pkg/errors"
	"github.com/bakeflow/bakeflow-backend/pkg/logger"
	"github.com/bakeflow/bakeflow-backend/pkg/permissions"
	"github.com/bakeflow/bakeflow-backend/pkg/tenant"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReleaseUndoWindow is advisory only: releases past it carry the
// undo_window_expired flag so the caller can warn, but are never blocked.
const ReleaseUndoWindow = 5 * time.Minute

// AllocationService drives the planning cycle (rank, plan, edit, commit) and
// the reservation ledger around it.
type AllocationService struct {
	lpRepo     *repository.LicensePlateRepository
	demandRepo *repository.DemandRepository
	resRepo    *repository.ReservationRepository
	sessions   *allocation.Store
	publisher  *events.FulfillmentEventPublisher
	cfg        *config.FulfillmentConfig
	logger     *logger.Logger
}

// NewAllocationService creates a new allocation service
func NewAllocationService(
	lpRepo *repository.LicensePlateRepository,
	demandRepo *repository.DemandRepository,
	resRepo *repository.ReservationRepository,
	sessions *allocation.Store,
	publisher *events.FulfillmentEventPublisher,
	cfg *config.FulfillmentConfig,
	log *logger.Logger,
) *AllocationService {
	return &AllocationService{
		lpRepo:     lpRepo,
		demandRepo: demandRepo,
		resRepo:    resRepo,
		sessions:   sessions,
		publisher:  publisher,
		cfg:        cfg,
		logger:     log,
	}
}

// SessionView is a session plus its recomputed summary, the shape every
// session endpoint returns.
type SessionView struct {
	Session *allocation.Session `json:"session"`
	Summary allocation.Summary  `json:"summary"`
}

func (s *AllocationService) view(session *allocation.Session) *SessionView {
	return &SessionView{
		Session: session,
		Summary: session.Summary(time.Now().UTC(), s.staleAfter()),
	}
}

func (s *AllocationService) staleAfter() time.Duration {
	if s.cfg.SessionTTL > 0 {
		return s.cfg.SessionTTL
	}
	return allocation.DefaultStaleAfter
}

func (s *AllocationService) fetchPool(ctx context.Context, orgID, productID string) ([]allocation.Plate, error) {
	lps, err := s.lpRepo.AvailableForProduct(ctx, orgID, productID)
	if err != nil {
		return nil, err
	}

	pool := make([]allocation.Plate, len(lps))
	for i, lp := range lps {
		pool[i] = allocation.Plate{
			ID:                lp.ID,
			LPNumber:          lp.LPNumber,
			LotNumber:         lp.LotNumber,
			AvailableQuantity: lp.AvailableQuantity(),
			ReceiptDate:       lp.ReceiptDate,
			BestBeforeDate:    lp.BestBeforeDate,
		}
	}
	return pool, nil
}

// RankCandidates returns the ranked candidate pool for a product without
// opening a session.
func (s *AllocationService) RankCandidates(ctx context.Context, productID, strategy string) ([]allocation.Candidate, error) {
	parsed, err := allocation.ParseStrategy(strategy)
	if err != nil {
		return nil, err
	}

	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return nil, errors.Unauthorized("missing organization context")
	}

	pool, err := s.fetchPool(ctx, orgID, productID)
	if err != nil {
		return nil, err
	}

	return allocation.Rank(pool, parsed, time.Now().UTC(), s.cfg.ExpiryWarningDays), nil
}

// PlanAllocation opens a planning session for a demand line. The requirement
// is what the line still needs; suggested candidates come pre-selected.
func (s *AllocationService) PlanAllocation(ctx context.Context, demandLineID, strategy string) (*SessionView, error) {
	parsed, err := allocation.ParseStrategy(strategy)
	if err != nil {
		return nil, err
	}

	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return nil, errors.Unauthorized("missing organization context")
	}

	line, err := s.demandRepo.GetLineByID(ctx, orgID, demandLineID)
	if err != nil {
		return nil, err
	}

	remaining := decimal.Max(decimal.Zero, line.QuantityRequired.Sub(line.QuantityAllocated))

	pool, err := s.fetchPool(ctx, orgID, line.ProductID)
	if err != nil {
		return nil, err
	}

	session := allocation.NewSession(
		uuid.New().String(), line.ID, line.OrderID, line.ProductID,
		parsed, remaining, pool, time.Now().UTC(), s.cfg.ExpiryWarningDays,
	)

	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	return s.view(session), nil
}

// GetSession loads a session with its current summary
func (s *AllocationService) GetSession(ctx context.Context, sessionID string) (*SessionView, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.view(session), nil
}

func (s *AllocationService) mutate(ctx context.Context, sessionID string, fn func(*allocation.Session) error) (*SessionView, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := fn(session); err != nil {
		return nil, err
	}

	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	return s.view(session), nil
}

// ToggleSelection flips one candidate's selection
func (s *AllocationService) ToggleSelection(ctx context.Context, sessionID, lpID string) (*SessionView, error) {
	return s.mutate(ctx, sessionID, func(session *allocation.Session) error {
		return session.ToggleSelection(lpID)
	})
}

// SetOverrideQuantity replaces one candidate's quantity
func (s *AllocationService) SetOverrideQuantity(ctx context.Context, sessionID, lpID string, qty decimal.Decimal) (*SessionView, error) {
	return s.mutate(ctx, sessionID, func(session *allocation.Session) error {
		return session.SetOverrideQuantity(lpID, qty)
	})
}

// SwitchStrategy re-plans the session under the other strategy, discarding
// manual edits.
func (s *AllocationService) SwitchStrategy(ctx context.Context, sessionID, strategy string) (*SessionView, error) {
	parsed, err := allocation.ParseStrategy(strategy)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, sessionID, func(session *allocation.Session) error {
		session.SwitchStrategy(parsed, time.Now().UTC(), s.cfg.ExpiryWarningDays)
		return nil
	})
}

// RefreshSession re-fetches the LP pool and re-plans, clearing staleness
func (s *AllocationService) RefreshSession(ctx context.Context, sessionID string) (*SessionView, error) {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return nil, errors.Unauthorized("missing organization context")
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	pool, err := s.fetchPool(ctx, orgID, session.ProductID)
	if err != nil {
		return nil, err
	}

	session.Refresh(pool, time.Now().UTC(), s.cfg.ExpiryWarningDays)

	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	return s.view(session), nil
}

// CancelSession discards a session with no persisted effect
func (s *AllocationService) CancelSession(ctx context.Context, sessionID string) error {
	return s.sessions.Delete(ctx, sessionID)
}

// CommitRequest carries the commit confirmation inputs. The over-production
// pair is only needed when the selected total exceeds the line requirement.
type CommitRequest struct {
	IsOverProduction bool   `json:"is_over_production"`
	ParentLPID       string `json:"parent_lp_id"`
}

// CommitResult is the ledger's answer to a successful commit.
type CommitResult struct {
	Reservations    []*repository.Reservation `json:"reservations"`
	CoveragePercent decimal.Decimal           `json:"coverage_percent"`
	OrderAllocated  bool                      `json:"order_allocated"`
}

// CommitAllocation converts the session into persisted reservations through
// the ledger. The session's stale flag blocks the commit client-side cheaply;
// the ledger then re-validates every line against live LP state under row
// locks, which is what actually prevents double-booking.
func (s *AllocationService) CommitAllocation(ctx context.Context, sessionID string, req CommitRequest) (*CommitResult, error) {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return nil, errors.Unauthorized("missing organization context")
	}

	act := actor.MustFromContext(ctx)
	if !permissions.CanReserve(act.Role) {
		return nil, errors.InsufficientPermissions("commit allocation", permissions.ReserveRoles)
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if session.Stale(now, s.staleAfter()) {
		return nil, errors.Wrap(errors.ErrStaleAllocation, "STALE_ALLOCATION",
			"allocation snapshot is older than the freshness window, refresh before committing", http.StatusConflict)
	}

	selected := session.SelectedLines()
	if len(selected) == 0 {
		return nil, errors.BadRequest("no candidates selected")
	}

	totalSelected := decimal.Zero
	for _, line := range selected {
		totalSelected = totalSelected.Add(line.Quantity)
	}

	// Committing more than the line requires is over-consumption and needs
	// explicit attribution before the ledger will accept it.
	if totalSelected.GreaterThan(session.RequiredQuantity) {
		if !req.IsOverProduction || req.ParentLPID == "" {
			overErr := &OverConsumptionError{
				DemandLineID:      session.DemandLineID,
				AttemptedQuantity: totalSelected,
				ReservedQuantity:  session.RequiredQuantity,
				ExcessQuantity:    totalSelected.Sub(session.RequiredQuantity),
			}
			for _, line := range selected {
				for _, c := range session.Candidates {
					if c.ID == line.LicensePlateID {
						overErr.CandidateParentLPs = append(overErr.CandidateParentLPs, CandidateParentLP{
							LicensePlateID:   c.ID,
							LPNumber:         c.LPNumber,
							ReservedQuantity: line.Quantity,
						})
					}
				}
			}
			return nil, overErr
		}

		s.logger.Warn().
			Str("demand_line_id", session.DemandLineID).
			Str("parent_lp_id", req.ParentLPID).
			Str("excess", totalSelected.Sub(session.RequiredQuantity).String()).
			Msg("over-production commit attributed to parent license plate")
	}

	lines := make([]repository.CommitLine, len(selected))
	for i, line := range selected {
		lines[i] = repository.CommitLine{LicensePlateID: line.LicensePlateID, Quantity: line.Quantity}
	}

	reservations, err := s.resRepo.CommitAllocation(ctx, orgID, session.DemandLineID, lines, act.ID)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("failed to discard committed session")
	}

	if req.IsOverProduction && totalSelected.GreaterThan(session.RequiredQuantity) {
		s.publisher.PublishOverConsumptionApproved(ctx, session.DemandLineID, req.ParentLPID,
			totalSelected.Sub(session.RequiredQuantity), act.ID)
	}
	s.publisher.PublishAllocationCommitted(ctx, session.DemandLineID, session.OrderID, string(session.Strategy), act.ID, reservations)

	result := &CommitResult{Reservations: reservations}

	// Coverage threshold cascade: the order moves to allocated once the line
	// is covered far enough.
	line, err := s.demandRepo.GetLineByID(ctx, orgID, session.DemandLineID)
	if err == nil && line.QuantityRequired.IsPositive() {
		coverage := line.QuantityAllocated.Mul(decimal.NewFromInt(100)).DivRound(line.QuantityRequired, 2)
		if coverage.GreaterThan(decimal.NewFromInt(100)) {
			coverage = decimal.NewFromInt(100)
		}
		result.CoveragePercent = coverage

		if coverage.GreaterThanOrEqual(decimal.NewFromInt(int64(s.cfg.AllocationThresholdPct))) {
			if err := s.demandRepo.UpdateOrderStatus(ctx, orgID, line.OrderID, repository.OrderStatusAllocated); err != nil {
				s.logger.Warn().Err(err).Str("order_id", line.OrderID).Msg("failed to cascade order to allocated")
			} else {
				result.OrderAllocated = true
			}
		}
	}

	return result, nil
}

// ReleaseResult carries the released reservation and the undo-window
// advisory.
type ReleaseResult struct {
	Reservation       *repository.Reservation `json:"reservation"`
	UndoWindowExpired bool                    `json:"undo_window_expired"`
}

// ReleaseReservation gives a reservation's quantity back to its LP. Only
// possible before the owning shipment ships; consumed reservations are final.
func (s *AllocationService) ReleaseReservation(ctx context.Context, reservationID string) (*ReleaseResult, error) {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return nil, errors.Unauthorized("missing organization context")
	}

	act := actor.MustFromContext(ctx)
	if !permissions.CanReserve(act.Role) {
		return nil, errors.InsufficientPermissions("release reservation", permissions.ReserveRoles)
	}

	released, err := s.resRepo.Release(ctx, orgID, reservationID)
	if err != nil {
		return nil, err
	}

	s.publisher.PublishReservationReleased(ctx, released, act.ID)

	return &ReleaseResult{
		Reservation:       released,
		UndoWindowExpired: time.Since(released.CreatedAt) > ReleaseUndoWindow,
	}, nil
}
