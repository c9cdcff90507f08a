package events

import (
	"context"
	"time"

	"github.com/bakeflow/bakeflow-backend/internal/fulfillment/repository"
	"github.com/bakeflow/bakeflow-backend/pkg/logger"
	"github.com/bakeflow/bakeflow-backend/pkg/messaging"
	"github.com/shopspring/decimal"
)

// FulfillmentEventPublisher publishes fulfillment domain events
type FulfillmentEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewFulfillmentEventPublisher creates a new fulfillment event publisher
func NewFulfillmentEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*FulfillmentEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeFulfillmentEvents, "fulfillment-service", log)
	if err != nil {
		return nil, err
	}

	return &FulfillmentEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishAllocationCommitted publishes an allocation committed event
func (p *FulfillmentEventPublisher) PublishAllocationCommitted(ctx context.Context, demandLineID, orderID, strategy, actorID string, reservations []*repository.Reservation) {
	if p == nil {
		return
	}

	total := decimal.Zero
	ids := make([]string, len(reservations))
	perLP := make(map[string]string, len(reservations))
	for i, res := range reservations {
		ids[i] = res.ID
		perLP[res.LicensePlateID] = res.Quantity.String()
		total = total.Add(res.Quantity)
	}

	data := messaging.AllocationCommittedEvent{
		DemandLineID:   demandLineID,
		OrderID:        orderID,
		Strategy:       strategy,
		TotalQuantity:  total.String(),
		ReservationIDs: ids,
		PerLPQuantity:  perLP,
		CommittedBy:    actorID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventAllocationCommitted, data); err != nil {
		p.logger.Error().Err(err).Str("demand_line_id", demandLineID).Msg("failed to publish allocation committed event")
	}
}

// PublishReservationReleased publishes a reservation released event
func (p *FulfillmentEventPublisher) PublishReservationReleased(ctx context.Context, res *repository.Reservation, actorID string) {
	if p == nil {
		return
	}

	data := messaging.ReservationReleasedEvent{
		ReservationID:  res.ID,
		LicensePlateID: res.LicensePlateID,
		DemandLineID:   res.DemandLineID,
		Quantity:       res.Quantity.String(),
		ReleasedBy:     actorID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventReservationReleased, data); err != nil {
		p.logger.Error().Err(err).Str("reservation_id", res.ID).Msg("failed to publish reservation released event")
	}
}

// PublishShipmentManifested publishes a shipment manifested event
func (p *FulfillmentEventPublisher) PublishShipmentManifested(ctx context.Context, sh *repository.Shipment, boxCount int) {
	if p == nil {
		return
	}

	manifestedAt := ""
	if sh.ManifestedAt != nil {
		manifestedAt = sh.ManifestedAt.Format(time.RFC3339)
	}

	data := messaging.ShipmentManifestedEvent{
		ShipmentID:   sh.ID,
		OrderID:      sh.OrderID,
		BoxCount:     boxCount,
		ManifestedAt: manifestedAt,
	}

	if err := p.publisher.Publish(ctx, messaging.EventShipmentManifested, data); err != nil {
		p.logger.Error().Err(err).Str("shipment_id", sh.ID).Msg("failed to publish shipment manifested event")
	}
}

// PublishShipmentShipped publishes a shipment shipped event
func (p *FulfillmentEventPublisher) PublishShipmentShipped(ctx context.Context, sh *repository.Shipment, consumed []repository.ConsumedLP, skippedManifest bool, actorID string) {
	if p == nil {
		return
	}

	shippedAt := ""
	if sh.ShippedAt != nil {
		shippedAt = sh.ShippedAt.Format(time.RFC3339)
	}

	data := messaging.ShipmentShippedEvent{
		ShipmentID:      sh.ID,
		OrderID:         sh.OrderID,
		ConsumedLPs:     len(consumed),
		SkippedManifest: skippedManifest,
		ShippedBy:       actorID,
		ShippedAt:       shippedAt,
	}

	if err := p.publisher.Publish(ctx, messaging.EventShipmentShipped, data); err != nil {
		p.logger.Error().Err(err).Str("shipment_id", sh.ID).Msg("failed to publish shipment shipped event")
	}
}

// PublishShipmentDelivered publishes a shipment delivered event
func (p *FulfillmentEventPublisher) PublishShipmentDelivered(ctx context.Context, sh *repository.Shipment, actorID string) {
	if p == nil {
		return
	}

	deliveredAt := ""
	if sh.DeliveredAt != nil {
		deliveredAt = sh.DeliveredAt.Format(time.RFC3339)
	}

	data := messaging.ShipmentDeliveredEvent{
		ShipmentID:  sh.ID,
		OrderID:     sh.OrderID,
		DeliveredBy: actorID,
		DeliveredAt: deliveredAt,
	}

	if err := p.publisher.Publish(ctx, messaging.EventShipmentDelivered, data); err != nil {
		p.logger.Error().Err(err).Str("shipment_id", sh.ID).Msg("failed to publish shipment delivered event")
	}
}

// PublishOverConsumptionApproved publishes an over-consumption approval event
func (p *FulfillmentEventPublisher) PublishOverConsumptionApproved(ctx context.Context, demandLineID, parentLPID string, excess decimal.Decimal, actorID string) {
	if p == nil {
		return
	}

	data := messaging.OverConsumptionApprovedEvent{
		DemandLineID:   demandLineID,
		ParentLPID:     parentLPID,
		ExcessQuantity: excess.String(),
		ApprovedBy:     actorID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventOverConsumptionApproved, data); err != nil {
		p.logger.Error().Err(err).Str("demand_line_id", demandLineID).Msg("failed to publish over-consumption approved event")
	}
}

// PublishByProductRegistered publishes a by-product registered event
func (p *FulfillmentEventPublisher) PublishByProductRegistered(ctx context.Context, workOrderID string, bp *repository.WorkOrderByProduct, expected decimal.Decimal, actorID string) {
	if p == nil {
		return
	}

	actual := ""
	if bp.ActualQuantity != nil {
		actual = bp.ActualQuantity.String()
	}

	data := messaging.ByProductRegisteredEvent{
		WorkOrderID:      workOrderID,
		ProductID:        bp.ProductID,
		ExpectedQuantity: expected.String(),
		ActualQuantity:   actual,
		RegisteredBy:     actorID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventByProductRegistered, data); err != nil {
		p.logger.Error().Err(err).Str("work_order_id", workOrderID).Msg("failed to publish by-product registered event")
	}
}
