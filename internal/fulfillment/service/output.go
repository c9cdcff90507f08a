package service

import (
	"context"
	"time"

	"github.com/bakeflow/bakeflow-backend/internal/fulfillment/events"
	"github.com/bakeflow/bakeflow-backend/internal/fulfillment/repository"
	"github.com/bakeflow/bakeflow-backend/pkg/actor"
	"github.com/bakeflow/bakeflow-backend/pkg/errors"
	"github.com/bakeflow/bakeflow-backend/pkg/logger"
	"github.com/bakeflow/bakeflow-backend/pkg/tenant"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OutputService registers production output: the main output LP with its
// material draw (over-consumption gated), and the sequential by-product
// registration loop.
type OutputService struct {
	workOrderRepo *repository.WorkOrderRepository
	demandRepo    *repository.DemandRepository
	resRepo       *repository.ReservationRepository
	lpRepo        *repository.LicensePlateRepository
	publisher     *events.FulfillmentEventPublisher
	logger        *logger.Logger
}

// NewOutputService creates a new output service
func NewOutputService(
	workOrderRepo *repository.WorkOrderRepository,
	demandRepo *repository.DemandRepository,
	resRepo *repository.ReservationRepository,
	lpRepo *repository.LicensePlateRepository,
	publisher *events.FulfillmentEventPublisher,
	log *logger.Logger,
) *OutputService {
	return &OutputService{
		workOrderRepo: workOrderRepo,
		demandRepo:    demandRepo,
		resRepo:       resRepo,
		lpRepo:        lpRepo,
		publisher:     publisher,
		logger:        log,
	}
}

// RegisterOutputRequest carries one main-output registration.
type RegisterOutputRequest struct {
	OutputQuantity   decimal.Decimal `json:"output_quantity"`
	ConsumedQuantity decimal.Decimal `json:"consumed_quantity"`
	LotNumber        string          `json:"lot_number"`
	BestBeforeDate   *time.Time      `json:"best_before_date"`
	IsOverProduction bool            `json:"is_over_production"`
	ParentLPID       string          `json:"parent_lp_id"`
}

// RegisterOutputResult is the registered output LP plus by-product loop
// status.
type RegisterOutputResult struct {
	OutputLP            *repository.LicensePlate `json:"output_lp"`
	PendingByProducts   int                      `json:"pending_by_products"`
	OverConsumptionUsed bool                     `json:"over_consumption_used"`
}

// RegisterOutput records a work order's main output. The material draw is
// checked against reserved supply; any excess requires the explicit
// over-production pair (is_over_production + parent_lp_id) before the ledger
// accepts it. A new QA-pending LP is created for the produced goods.
func (s *OutputService) RegisterOutput(ctx context.Context, workOrderID string, req RegisterOutputRequest) (*RegisterOutputResult, error) {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return nil, errors.Unauthorized("missing organization context")
	}
	act := actor.MustFromContext(ctx)

	if !req.OutputQuantity.IsPositive() {
		return nil, errors.InvalidQuantity("output_quantity", "must be greater than zero")
	}
	if req.ConsumedQuantity.IsNegative() {
		return nil, errors.InvalidQuantity("consumed_quantity", "must not be negative")
	}
	if req.LotNumber == "" {
		return nil, errors.Validation(map[string]string{"lot_number": "is required"})
	}

	wo, err := s.workOrderRepo.GetByID(ctx, orgID, workOrderID)
	if err != nil {
		return nil, err
	}

	result := &RegisterOutputResult{}

	if wo.MaterialLineID != nil && req.ConsumedQuantity.IsPositive() {
		if err := s.resolveOverConsumption(ctx, orgID, *wo.MaterialLineID, req, act.ID, result); err != nil {
			return nil, err
		}
	}

	outputLP := &repository.LicensePlate{
		ID:                uuid.New().String(),
		OrgID:             orgID,
		LPNumber:          "LP-" + wo.WorkOrderNumber + "-" + req.LotNumber,
		ProductID:         wo.MainProductID,
		LotNumber:         req.LotNumber,
		OnHandQuantity:    req.OutputQuantity,
		AllocatedQuantity: decimal.Zero,
		ReceiptDate:       time.Now().UTC(),
		BestBeforeDate:    req.BestBeforeDate,
		QAStatus:          repository.QAStatusPending,
	}
	if err := s.lpRepo.Create(ctx, outputLP); err != nil {
		return nil, err
	}

	if err := s.workOrderRepo.SetMainOutputQuantity(ctx, orgID, wo.ID, req.OutputQuantity); err != nil {
		return nil, err
	}

	byProducts, err := s.workOrderRepo.ListByProducts(ctx, wo.ID)
	if err != nil {
		return nil, err
	}
	for _, bp := range byProducts {
		if bp.Status == repository.ByProductStatusPending {
			result.PendingByProducts++
		}
	}

	result.OutputLP = outputLP
	return result, nil
}

// resolveOverConsumption checks the material draw against reserved supply and
// enforces explicit attribution of any excess.
func (s *OutputService) resolveOverConsumption(ctx context.Context, orgID, materialLineID string, req RegisterOutputRequest, actorID string, result *RegisterOutputResult) error {
	reservations, err := s.resRepo.ListByDemandLine(ctx, orgID, materialLineID)
	if err != nil {
		return err
	}

	reserved := decimal.Zero
	for _, res := range reservations {
		reserved = reserved.Add(res.Quantity)
	}

	if req.ConsumedQuantity.LessThanOrEqual(reserved) {
		return nil
	}

	excess := req.ConsumedQuantity.Sub(reserved)

	if !req.IsOverProduction || req.ParentLPID == "" {
		overErr := &OverConsumptionError{
			DemandLineID:      materialLineID,
			AttemptedQuantity: req.ConsumedQuantity,
			ReservedQuantity:  reserved,
			ExcessQuantity:    excess,
		}
		for _, res := range reservations {
			lp, err := s.lpRepo.GetByID(ctx, orgID, res.LicensePlateID)
			if err != nil {
				continue
			}
			overErr.CandidateParentLPs = append(overErr.CandidateParentLPs, CandidateParentLP{
				LicensePlateID:   lp.ID,
				LPNumber:         lp.LPNumber,
				ReservedQuantity: res.Quantity,
			})
		}
		return overErr
	}

	if _, err := s.resRepo.ApproveOverConsumption(ctx, orgID, materialLineID, req.ParentLPID, excess, actorID); err != nil {
		return err
	}

	s.logger.Warn().
		Str("demand_line_id", materialLineID).
		Str("parent_lp_id", req.ParentLPID).
		Str("excess", excess.String()).
		Msg("over-consumption attributed to parent license plate")

	s.publisher.PublishOverConsumptionApproved(ctx, materialLineID, req.ParentLPID, excess, actorID)
	result.OverConsumptionUsed = true
	return nil
}

// By-product loop actions
const (
	ByProductActionRegister = "register"
	ByProductActionSkip     = "skip"
	ByProductActionSkipAll  = "skip_all"
)

// ByProductRequest drives one step of the registration loop.
type ByProductRequest struct {
	Action         string           `json:"action" validate:"required,oneof=register skip skip_all"`
	ActualQuantity *decimal.Decimal `json:"actual_quantity"`
	// ConfirmZero acknowledges the non-blocking prompt raised when a zero
	// actual quantity is registered.
	ConfirmZero bool `json:"confirm_zero"`
}

// ByProductStep is the loop state after one action: either the next
// by-product to process, a zero-quantity confirmation prompt, or completion.
type ByProductStep struct {
	Completed        bool                           `json:"completed"`
	AllRegistered    bool                           `json:"all_registered"`
	RequiresConfirm  bool                           `json:"requires_confirm"`
	ConfirmMessage   string                         `json:"confirm_message,omitempty"`
	Next             *ByProductView                 `json:"next,omitempty"`
	Processed        *repository.WorkOrderByProduct `json:"processed,omitempty"`
	SkippedRemaining int                            `json:"skipped_remaining,omitempty"`
}

// ByProductView is one by-product with its expected quantity pre-computed.
type ByProductView struct {
	*repository.WorkOrderByProduct
	ExpectedQuantity decimal.Decimal `json:"expected_quantity"`
}

// NextByProduct advances the sequential registration loop one step. The loop
// terminates when all by-products are processed or skip_all is invoked; the
// completion signal distinguishes all-registered from some-skipped.
func (s *OutputService) NextByProduct(ctx context.Context, workOrderID string, req ByProductRequest) (*ByProductStep, error) {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return nil, errors.Unauthorized("missing organization context")
	}
	act := actor.MustFromContext(ctx)

	wo, err := s.workOrderRepo.GetByID(ctx, orgID, workOrderID)
	if err != nil {
		return nil, err
	}
	if wo.MainOutputQuantity == nil {
		return nil, errors.BadRequest("register the main output before processing by-products")
	}

	step := &ByProductStep{}

	if req.Action == ByProductActionSkipAll {
		skipped, err := s.workOrderRepo.SkipRemaining(ctx, workOrderID, act.ID)
		if err != nil {
			return nil, err
		}
		step.SkippedRemaining = skipped
		return s.complete(ctx, workOrderID, step)
	}

	current, err := s.workOrderRepo.NextPending(ctx, workOrderID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return s.complete(ctx, workOrderID, step)
	}

	expected := ExpectedByProductQuantity(*wo.MainOutputQuantity, current.YieldPercent)

	switch req.Action {
	case ByProductActionRegister:
		if req.ActualQuantity == nil || req.ActualQuantity.IsNegative() {
			return nil, errors.InvalidQuantity("actual_quantity", "must be zero or greater")
		}
		// Zero is allowed but prompts once; not an error.
		if req.ActualQuantity.IsZero() && !req.ConfirmZero {
			step.RequiresConfirm = true
			step.ConfirmMessage = "actual quantity is zero; resubmit with confirm_zero=true to register it"
			step.Next = &ByProductView{WorkOrderByProduct: current, ExpectedQuantity: expected}
			return step, nil
		}

		if err := s.workOrderRepo.RegisterByProduct(ctx, current.ID, *req.ActualQuantity, act.ID); err != nil {
			return nil, err
		}
		current.Status = repository.ByProductStatusRegistered
		current.ActualQuantity = req.ActualQuantity
		step.Processed = current
		s.publisher.PublishByProductRegistered(ctx, workOrderID, current, expected, act.ID)

	case ByProductActionSkip:
		if err := s.workOrderRepo.SkipByProduct(ctx, current.ID, act.ID); err != nil {
			return nil, err
		}
		current.Status = repository.ByProductStatusSkipped
		step.Processed = current

	default:
		return nil, errors.BadRequest("action must be register, skip, or skip_all")
	}

	next, err := s.workOrderRepo.NextPending(ctx, workOrderID)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return s.complete(ctx, workOrderID, step)
	}

	step.Next = &ByProductView{
		WorkOrderByProduct: next,
		ExpectedQuantity:   ExpectedByProductQuantity(*wo.MainOutputQuantity, next.YieldPercent),
	}
	return step, nil
}

func (s *OutputService) complete(ctx context.Context, workOrderID string, step *ByProductStep) (*ByProductStep, error) {
	byProducts, err := s.workOrderRepo.ListByProducts(ctx, workOrderID)
	if err != nil {
		return nil, err
	}

	step.Completed = true
	step.AllRegistered = true
	for _, bp := range byProducts {
		if bp.Status != repository.ByProductStatusRegistered {
			step.AllRegistered = false
			break
		}
	}
	return step, nil
}
