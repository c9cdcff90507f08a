package handler

import (
	"net/http"

	"github.com/bakeflow/bakeflow-backend/internal/fulfillment/service"
	"github.com/bakeflow/bakeflow-backend/pkg/errors"
	"github.com/bakeflow/bakeflow-backend/pkg/httputil"
	"github.com/bakeflow/bakeflow-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// OutputHandler handles production output registration endpoints
type OutputHandler struct {
	service *service.OutputService
	logger  *logger.Logger
}

// NewOutputHandler creates a new output handler
func NewOutputHandler(svc *service.OutputService, log *logger.Logger) *OutputHandler {
	return &OutputHandler{
		service: svc,
		logger:  log,
	}
}

// RegisterOutput records a work order's main output. An unattributed material
// excess comes back as a structured over-consumption payload; the caller
// resubmits with is_over_production=true and a chosen parent_lp_id.
func (h *OutputHandler) RegisterOutput(w http.ResponseWriter, r *http.Request) {
	workOrderID := chi.URLParam(r, "id")

	var req service.RegisterOutputRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.RegisterOutput(r.Context(), workOrderID, req)
	if err != nil {
		var overErr *service.OverConsumptionError
		if errors.As(err, &overErr) {
			httputil.ErrorWithPayload(w, errors.Wrap(err, "OVER_CONSUMPTION_CONFIRMATION_REQUIRED",
				overErr.Error(), http.StatusConflict), overErr)
			return
		}

		httputil.Error(w, err)
		return
	}

	httputil.Created(w, result)
}

// NextByProduct advances the sequential by-product registration loop
func (h *OutputHandler) NextByProduct(w http.ResponseWriter, r *http.Request) {
	workOrderID := chi.URLParam(r, "id")

	var req service.ByProductRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	step, err := h.service.NextByProduct(r.Context(), workOrderID, req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, step)
}
