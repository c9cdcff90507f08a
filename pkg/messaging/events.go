package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types
const (
	// Allocation events
	EventAllocationCommitted = "fulfillment.allocation.committed"
	EventReservationReleased = "fulfillment.reservation.released"

	// Shipment events
	EventShipmentManifested = "fulfillment.shipment.manifested"
	EventShipmentShipped    = "fulfillment.shipment.shipped"
	EventShipmentDelivered  = "fulfillment.shipment.delivered"

	// Production output events
	EventOverConsumptionApproved = "fulfillment.output.over_consumption.approved"
	EventByProductRegistered     = "fulfillment.output.by_product.registered"

	// Quality events (consumed from the quality service)
	EventQAStatusChanged = "quality.lp.status_changed"
)

// Exchange names
const (
	ExchangeFulfillmentEvents = "fulfillment.events"
	ExchangeQualityEvents     = "quality.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Allocation Events

// AllocationCommittedEvent is published when the ledger commits a session
type AllocationCommittedEvent struct {
	DemandLineID   string            `json:"demand_line_id"`
	OrderID        string            `json:"order_id,omitempty"`
	Strategy       string            `json:"strategy"`
	TotalQuantity  string            `json:"total_quantity"`
	ReservationIDs []string          `json:"reservation_ids"`
	PerLPQuantity  map[string]string `json:"per_lp_quantity"`
	CommittedBy    string            `json:"committed_by"`
}

// ReservationReleasedEvent is published when a reservation is released pre-ship
type ReservationReleasedEvent struct {
	ReservationID  string `json:"reservation_id"`
	LicensePlateID string `json:"license_plate_id"`
	DemandLineID   string `json:"demand_line_id"`
	Quantity       string `json:"quantity"`
	ReleasedBy     string `json:"released_by"`
}

// Shipment Events

// ShipmentManifestedEvent is published when all boxes pass SSCC validation
type ShipmentManifestedEvent struct {
	ShipmentID   string `json:"shipment_id"`
	OrderID      string `json:"order_id"`
	BoxCount     int    `json:"box_count"`
	ManifestedAt string `json:"manifested_at"`
}

// ShipmentShippedEvent is published after the irreversible ship commit
type ShipmentShippedEvent struct {
	ShipmentID     string `json:"shipment_id"`
	OrderID        string `json:"order_id"`
	ConsumedLPs    int    `json:"consumed_lps"`
	SkippedManifest bool  `json:"skipped_manifest"`
	ShippedBy      string `json:"shipped_by"`
	ShippedAt      string `json:"shipped_at"`
}

// ShipmentDeliveredEvent is published when a manager confirms delivery
type ShipmentDeliveredEvent struct {
	ShipmentID  string `json:"shipment_id"`
	OrderID     string `json:"order_id"`
	DeliveredBy string `json:"delivered_by"`
	DeliveredAt string `json:"delivered_at"`
}

// Production Output Events

// OverConsumptionApprovedEvent is published when an operator attributes excess
// consumption to a parent license plate
type OverConsumptionApprovedEvent struct {
	DemandLineID   string `json:"demand_line_id"`
	ParentLPID     string `json:"parent_lp_id"`
	ExcessQuantity string `json:"excess_quantity"`
	ApprovedBy     string `json:"approved_by"`
}

// ByProductRegisteredEvent is published for each registered by-product output
type ByProductRegisteredEvent struct {
	WorkOrderID      string `json:"work_order_id"`
	ProductID        string `json:"product_id"`
	ExpectedQuantity string `json:"expected_quantity"`
	ActualQuantity   string `json:"actual_quantity"`
	RegisteredBy     string `json:"registered_by"`
}

// Quality Events

// QAStatusChangedEvent is consumed when the quality service moves a license
// plate between QA statuses; only passed LPs are allocatable
type QAStatusChangedEvent struct {
	LicensePlateID string `json:"license_plate_id"`
	OrgID          string `json:"org_id"`
	FromStatus     string `json:"from_status"`
	ToStatus       string `json:"to_status"`
	ChangedBy      string `json:"changed_by"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), time.Now().Nanosecond()%10000)
}
