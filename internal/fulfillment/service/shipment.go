package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bakeflow/bakeflow-backend/internal/fulfillment/events"
	"github.com/bakeflow/bakeflow-backend/internal/fulfillment/repository"
	"github.com/bakeflow/bakeflow-backend/pkg/actor"
	"github.com/bakeflow/bakeflow-backend/pkg/config"
	"github.com/bakeflow/bakeflow-backend/pkg/errors"
	"github.com/bakeflow/bakeflow-backend/pkg/logger"
	"github.com/bakeflow/bakeflow-backend/pkg/permissions"
	"github.com/bakeflow/bakeflow-backend/pkg/tenant"
	"github.com/shopspring/decimal"
)

// carrierTrackingURLs maps known carriers to their tracking URL templates.
// Unknown carriers yield no URL, never an error.
var carrierTrackingURLs = map[string]string{
	"DHL":   "https://www.dhl.com/en/express/tracking.html?AWB=%s",
	"UPS":   "https://www.ups.com/track?tracknum=%s",
	"DPD":   "https://tracking.dpd.de/status/en_US/parcel/%s",
	"FEDEX": "https://www.fedex.com/fedextrack/?tracknumbers=%s",
}

// ShipmentService drives the shipment lifecycle: box management, the
// packing/manifest/ship/deliver transitions with their gates, and tracking.
type ShipmentService struct {
	shipmentRepo *repository.ShipmentRepository
	demandRepo   *repository.DemandRepository
	lpRepo       *repository.LicensePlateRepository
	resRepo      *repository.ReservationRepository
	publisher    *events.FulfillmentEventPublisher
	cfg          *config.FulfillmentConfig
	logger       *logger.Logger
}

// NewShipmentService creates a new shipment service
func NewShipmentService(
	shipmentRepo *repository.ShipmentRepository,
	demandRepo *repository.DemandRepository,
	lpRepo *repository.LicensePlateRepository,
	resRepo *repository.ReservationRepository,
	publisher *events.FulfillmentEventPublisher,
	cfg *config.FulfillmentConfig,
	log *logger.Logger,
) *ShipmentService {
	return &ShipmentService{
		shipmentRepo: shipmentRepo,
		demandRepo:   demandRepo,
		lpRepo:       lpRepo,
		resRepo:      resRepo,
		publisher:    publisher,
		cfg:          cfg,
		logger:       log,
	}
}

// CreateShipment opens a shipment for a picked order, cascading the order to
// packing.
func (s *ShipmentService) CreateShipment(ctx context.Context, orderID string) (*repository.Shipment, error) {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return nil, errors.Unauthorized("missing organization context")
	}

	act := actor.MustFromContext(ctx)
	return s.shipmentRepo.Create(ctx, orgID, orderID, act.ID)
}

// GetShipment loads a shipment with its boxes and contents
func (s *ShipmentService) GetShipment(ctx context.Context, shipmentID string) (*ShipmentView, error) {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return nil, errors.Unauthorized("missing organization context")
	}

	sh, err := s.shipmentRepo.GetByID(ctx, orgID, shipmentID)
	if err != nil {
		return nil, err
	}

	boxes, err := s.shipmentRepo.GetBoxes(ctx, sh.ID)
	if err != nil {
		return nil, err
	}

	view := &ShipmentView{Shipment: sh, Boxes: make([]BoxView, len(boxes))}
	for i, box := range boxes {
		contents, err := s.shipmentRepo.GetBoxContents(ctx, box.ID)
		if err != nil {
			return nil, err
		}
		view.Boxes[i] = BoxView{Box: box, Contents: contents}
	}

	return view, nil
}

// ShipmentView is a shipment with its packed boxes.
type ShipmentView struct {
	Shipment *repository.Shipment `json:"shipment"`
	Boxes    []BoxView            `json:"boxes"`
}

// BoxView is one box with its contents.
type BoxView struct {
	Box      *repository.Box          `json:"box"`
	Contents []*repository.BoxContent `json:"contents"`
}

// AddBox appends an empty box to a packing shipment
func (s *ShipmentService) AddBox(ctx context.Context, shipmentID string) (*repository.Box, error) {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return nil, errors.Unauthorized("missing organization context")
	}

	return s.shipmentRepo.AddBox(ctx, orgID, shipmentID)
}

// BoxUpdate carries the measurable attributes of a box.
type BoxUpdate struct {
	WeightKg *decimal.Decimal `json:"weight_kg"`
	LengthCm *decimal.Decimal `json:"length_cm"`
	WidthCm  *decimal.Decimal `json:"width_cm"`
	HeightCm *decimal.Decimal `json:"height_cm"`
	SSCC     *string          `json:"sscc"`
}

// UpdateBox validates and stores weight, dimensions, and SSCC for a box.
// Weight must be in (0, max]; each side within the configured bounds; the
// SSCC must pass the GS1 check digit.
func (s *ShipmentService) UpdateBox(ctx context.Context, shipmentID, boxID string, upd BoxUpdate) error {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return errors.Unauthorized("missing organization context")
	}

	if upd.WeightKg != nil {
		maxWeight := decimal.NewFromFloat(s.cfg.MaxBoxWeightKg)
		if !upd.WeightKg.IsPositive() || upd.WeightKg.GreaterThan(maxWeight) {
			return errors.InvalidQuantity("weight_kg",
				fmt.Sprintf("must be greater than 0 and at most %s kg", maxWeight))
		}
	}

	minDim := decimal.NewFromFloat(s.cfg.MinDimensionCm)
	maxDim := decimal.NewFromFloat(s.cfg.MaxDimensionCm)
	for field, dim := range map[string]*decimal.Decimal{
		"length_cm": upd.LengthCm,
		"width_cm":  upd.WidthCm,
		"height_cm": upd.HeightCm,
	} {
		if dim == nil {
			continue
		}
		if dim.LessThan(minDim) || dim.GreaterThan(maxDim) {
			return errors.InvalidQuantity(field,
				fmt.Sprintf("must be between %s and %s cm", minDim, maxDim))
		}
	}

	if upd.SSCC != nil {
		if err := ValidateSSCC(*upd.SSCC); err != nil {
			return err
		}
	}

	return s.shipmentRepo.UpdateBox(ctx, orgID, shipmentID, &repository.Box{
		ID:       boxID,
		WeightKg: upd.WeightKg,
		LengthCm: upd.LengthCm,
		WidthCm:  upd.WidthCm,
		HeightCm: upd.HeightCm,
		SSCC:     upd.SSCC,
	})
}

// AddBoxContent packs one (LP, quantity) into a box. The shipment's total
// packed quantity of the LP, including this add, must fit the order's active
// reservations on it, so ship-time consumption can never exceed the ledger.
func (s *ShipmentService) AddBoxContent(ctx context.Context, shipmentID, boxID, licensePlateID string, qty decimal.Decimal) (*repository.BoxContent, error) {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return nil, errors.Unauthorized("missing organization context")
	}

	if !qty.IsPositive() {
		return nil, errors.InvalidQuantity("quantity", "must be greater than zero")
	}

	sh, err := s.shipmentRepo.GetByID(ctx, orgID, shipmentID)
	if err != nil {
		return nil, err
	}
	if sh.Status != repository.ShipmentStatusPacking {
		return nil, errors.Conflict(fmt.Sprintf("contents can only be added while packing, shipment is %s", sh.Status))
	}

	lp, err := s.lpRepo.GetByID(ctx, orgID, licensePlateID)
	if err != nil {
		return nil, err
	}

	packed, err := s.shipmentRepo.PackedQuantityForLP(ctx, shipmentID, lp.ID)
	if err != nil {
		return nil, err
	}
	reserved, err := s.resRepo.ActiveReservedForOrderLP(ctx, orgID, sh.OrderID, lp.ID)
	if err != nil {
		return nil, err
	}
	if packed.Add(qty).GreaterThan(reserved) {
		return nil, errors.InvalidQuantity("quantity",
			fmt.Sprintf("shipment would pack %s of %s but the order has only %s reserved",
				packed.Add(qty), lp.LPNumber, reserved))
	}

	content := &repository.BoxContent{
		BoxID:          boxID,
		LicensePlateID: lp.ID,
		LotNumber:      lp.LotNumber,
		Quantity:       qty,
	}
	if err := s.shipmentRepo.AddBoxContent(ctx, content); err != nil {
		return nil, err
	}
	return content, nil
}

// SkipDemandLine marks a line as deliberately unfulfilled so packing can
// proceed without a reservation for it.
func (s *ShipmentService) SkipDemandLine(ctx context.Context, demandLineID string) error {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return errors.Unauthorized("missing organization context")
	}

	act := actor.MustFromContext(ctx)
	s.logger.Info().
		Str("demand_line_id", demandLineID).
		Str("actor_id", act.ID).
		Msg("demand line fulfillment skipped")

	return s.demandRepo.MarkLineSkipped(ctx, orgID, demandLineID)
}

// PackShipment transitions packing -> packed. Every demand line of the order
// must carry either a reservation or an explicit skip, and every box must be
// complete (weight, dimensions, contents).
func (s *ShipmentService) PackShipment(ctx context.Context, shipmentID string) (*repository.Shipment, error) {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return nil, errors.Unauthorized("missing organization context")
	}

	act := actor.MustFromContext(ctx)

	sh, err := s.shipmentRepo.GetByID(ctx, orgID, shipmentID)
	if err != nil {
		return nil, err
	}

	lines, err := s.demandRepo.ListLinesByOrder(ctx, orgID, sh.OrderID)
	if err != nil {
		return nil, err
	}
	var uncovered []string
	for _, line := range lines {
		if !line.FulfillmentSkipped && !line.QuantityAllocated.IsPositive() {
			uncovered = append(uncovered, line.ID)
		}
	}
	if len(uncovered) > 0 {
		return nil, errors.Validation(map[string]string{
			"demand_lines": fmt.Sprintf("lines without a reservation or explicit skip: %s", strings.Join(uncovered, ", ")),
		})
	}

	return s.shipmentRepo.Pack(ctx, orgID, shipmentID, act.ID)
}

// ManifestShipment transitions packed -> manifested. Fails with the list of
// boxes missing an SSCC; retryable after correction.
func (s *ShipmentService) ManifestShipment(ctx context.Context, shipmentID string) (*repository.Shipment, error) {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return nil, errors.Unauthorized("missing organization context")
	}

	act := actor.MustFromContext(ctx)
	if !permissions.CanManifestOrShip(act.Role) {
		return nil, errors.InsufficientPermissions("manifest shipment", permissions.ManifestShipRoles)
	}

	sh, err := s.shipmentRepo.Manifest(ctx, orgID, shipmentID, act.ID)
	if err != nil {
		return nil, err
	}

	boxes, err := s.shipmentRepo.GetBoxes(ctx, sh.ID)
	if err == nil {
		s.publisher.PublishShipmentManifested(ctx, sh, len(boxes))
	}

	return sh, nil
}

// ShipResult is the outcome of the irreversible ship commit.
type ShipResult struct {
	Shipment    *repository.Shipment    `json:"shipment"`
	ConsumedLPs []repository.ConsumedLP `json:"consumed_lps"`
}

// ShipShipment runs the irreversible consumption commit. confirm must be
// true; skipManifest is the explicit, logged packed -> shipped bypass.
func (s *ShipmentService) ShipShipment(ctx context.Context, shipmentID string, confirm, skipManifest bool) (*ShipResult, error) {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return nil, errors.Unauthorized("missing organization context")
	}

	act := actor.MustFromContext(ctx)
	if !permissions.CanManifestOrShip(act.Role) {
		return nil, errors.InsufficientPermissions("ship shipment", permissions.ManifestShipRoles)
	}

	if !confirm {
		return nil, errors.ConfirmationRequired("shipping consumes inventory irreversibly; resubmit with confirm=true")
	}

	if skipManifest {
		s.logger.Warn().
			Str("shipment_id", shipmentID).
			Str("actor_id", act.ID).
			Msg("shipping without manifest by explicit caller request")
	}

	sh, consumed, err := s.shipmentRepo.Ship(ctx, orgID, shipmentID, act.ID, skipManifest)
	if err != nil {
		return nil, err
	}

	s.publisher.PublishShipmentShipped(ctx, sh, consumed, skipManifest, act.ID)

	return &ShipResult{Shipment: sh, ConsumedLPs: consumed}, nil
}

// DeliverShipment transitions shipped -> delivered. Manager or admin only.
func (s *ShipmentService) DeliverShipment(ctx context.Context, shipmentID string) (*repository.Shipment, error) {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return nil, errors.Unauthorized("missing organization context")
	}

	act := actor.MustFromContext(ctx)
	if !permissions.CanMarkDelivered(act.Role) {
		return nil, errors.InsufficientPermissions("mark shipment delivered", permissions.MarkDeliveredRoles)
	}

	sh, err := s.shipmentRepo.Deliver(ctx, orgID, shipmentID, act.ID)
	if err != nil {
		return nil, err
	}

	s.publisher.PublishShipmentDelivered(ctx, sh, act.ID)

	return sh, nil
}

// SetCarrier records carrier and tracking number on a shipment
func (s *ShipmentService) SetCarrier(ctx context.Context, shipmentID, carrierName, trackingNumber string) error {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return errors.Unauthorized("missing organization context")
	}

	return s.shipmentRepo.SetCarrier(ctx, orgID, shipmentID, carrierName, trackingNumber)
}

// TrackingInfo is the lifecycle timeline plus the carrier link, when one can
// be built.
type TrackingInfo struct {
	ShipmentID          string                           `json:"shipment_id"`
	Status              string                           `json:"status"`
	Timeline            []*repository.ShipmentTransition `json:"timeline"`
	ExternalTrackingURL *string                          `json:"external_tracking_url"`
}

// GetTrackingInfo builds the tracking view. An unknown carrier or a missing
// tracking number yields a null URL, never an error.
func (s *ShipmentService) GetTrackingInfo(ctx context.Context, shipmentID string) (*TrackingInfo, error) {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return nil, errors.Unauthorized("missing organization context")
	}

	sh, err := s.shipmentRepo.GetByID(ctx, orgID, shipmentID)
	if err != nil {
		return nil, err
	}

	timeline, err := s.shipmentRepo.ListTransitions(ctx, sh.ID)
	if err != nil {
		return nil, err
	}

	return &TrackingInfo{
		ShipmentID:          sh.ID,
		Status:              sh.Status,
		Timeline:            timeline,
		ExternalTrackingURL: TrackingURL(sh.CarrierName, sh.TrackingNumber),
	}, nil
}

// TrackingURL builds the carrier tracking link from the static carrier table.
func TrackingURL(carrierName, trackingNumber *string) *string {
	if carrierName == nil || trackingNumber == nil || *trackingNumber == "" {
		return nil
	}

	template, ok := carrierTrackingURLs[strings.ToUpper(strings.TrimSpace(*carrierName))]
	if !ok {
		return nil
	}

	url := fmt.Sprintf(template, *trackingNumber)
	return &url
}
