package handler

import (
	"net/http"

	"github.com/bakeflow/bakeflow-backend/internal/fulfillment/repository"
	"github.com/bakeflow/bakeflow-backend/internal/fulfillment/service"
	"github.com/bakeflow/bakeflow-backend/pkg/errors"
	"github.com/bakeflow/bakeflow-backend/pkg/httputil"
	"github.com/bakeflow/bakeflow-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// ShipmentHandler handles the shipment lifecycle endpoints
type ShipmentHandler struct {
	service *service.ShipmentService
	logger  *logger.Logger
}

// NewShipmentHandler creates a new shipment handler
func NewShipmentHandler(svc *service.ShipmentService, log *logger.Logger) *ShipmentHandler {
	return &ShipmentHandler{
		service: svc,
		logger:  log,
	}
}

// Create opens a shipment for a picked order
func (h *ShipmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	sh, err := h.service.CreateShipment(r.Context(), orderID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, sh)
}

// Get returns a shipment with its boxes and contents
func (h *ShipmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	view, err := h.service.GetShipment(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, view)
}

// AddBox appends an empty box to a packing shipment
func (h *ShipmentHandler) AddBox(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	box, err := h.service.AddBox(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, box)
}

// UpdateBox stores weight, dimensions, and SSCC for a box
func (h *ShipmentHandler) UpdateBox(w http.ResponseWriter, r *http.Request) {
	shipmentID := chi.URLParam(r, "id")
	boxID := chi.URLParam(r, "boxID")

	var req service.BoxUpdate
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.service.UpdateBox(r.Context(), shipmentID, boxID, req); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// AddBoxContent packs one license plate quantity into a box
func (h *ShipmentHandler) AddBoxContent(w http.ResponseWriter, r *http.Request) {
	shipmentID := chi.URLParam(r, "id")
	boxID := chi.URLParam(r, "boxID")

	var req struct {
		LicensePlateID string          `json:"license_plate_id" validate:"required"`
		Quantity       decimal.Decimal `json:"quantity"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	content, err := h.service.AddBoxContent(r.Context(), shipmentID, boxID, req.LicensePlateID, req.Quantity)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, content)
}

// SkipDemandLine marks a demand line as deliberately unfulfilled
func (h *ShipmentHandler) SkipDemandLine(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.SkipDemandLine(r.Context(), id); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// Pack transitions packing -> packed
func (h *ShipmentHandler) Pack(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sh, err := h.service.PackShipment(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, sh)
}

// Manifest transitions packed -> manifested. Boxes missing an SSCC come back
// as a structured payload; the operation is retryable after correction.
func (h *ShipmentHandler) Manifest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sh, err := h.service.ManifestShipment(r.Context(), id)
	if err != nil {
		var manifestErr *repository.IncompleteManifestError
		if errors.As(err, &manifestErr) {
			httputil.ErrorWithPayload(w, errors.Wrap(err, "INCOMPLETE_MANIFEST",
				manifestErr.Error(), http.StatusConflict), manifestErr)
			return
		}

		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, sh)
}

// Ship runs the irreversible consumption commit
func (h *ShipmentHandler) Ship(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Confirm      bool `json:"confirm"`
		SkipManifest bool `json:"skip_manifest"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.ShipShipment(r.Context(), id, req.Confirm, req.SkipManifest)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Deliver transitions shipped -> delivered
func (h *ShipmentHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sh, err := h.service.DeliverShipment(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, sh)
}

// SetCarrier records carrier and tracking number
func (h *ShipmentHandler) SetCarrier(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		CarrierName    string `json:"carrier_name" validate:"required"`
		TrackingNumber string `json:"tracking_number" validate:"required"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.service.SetCarrier(r.Context(), id, req.CarrierName, req.TrackingNumber); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// Tracking returns the lifecycle timeline plus the carrier link
func (h *ShipmentHandler) Tracking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	info, err := h.service.GetTrackingInfo(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, info)
}
