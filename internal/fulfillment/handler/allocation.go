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

// AllocationHandler handles candidate ranking, planning sessions, and the
// reservation ledger endpoints
type AllocationHandler struct {
	service *service.AllocationService
	logger  *logger.Logger
}

// NewAllocationHandler creates a new allocation handler
func NewAllocationHandler(svc *service.AllocationService, log *logger.Logger) *AllocationHandler {
	return &AllocationHandler{
		service: svc,
		logger:  log,
	}
}

// Candidates ranks the available LP pool for a product
func (h *AllocationHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")
	strategy := r.URL.Query().Get("strategy")

	candidates, err := h.service.RankCandidates(r.Context(), productID, strategy)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, candidates)
}

// Plan opens a planning session for a demand line
func (h *AllocationHandler) Plan(w http.ResponseWriter, r *http.Request) {
	demandLineID := chi.URLParam(r, "id")

	var req struct {
		Strategy string `json:"strategy" validate:"required,oneof=FIFO FEFO"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	view, err := h.service.PlanAllocation(r.Context(), demandLineID, req.Strategy)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, view)
}

// GetSession returns a session with its current summary
func (h *AllocationHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	view, err := h.service.GetSession(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, view)
}

// Toggle flips one candidate's selection in a session
func (h *AllocationHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		LicensePlateID string `json:"license_plate_id" validate:"required"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	view, err := h.service.ToggleSelection(r.Context(), id, req.LicensePlateID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, view)
}

// Override replaces one candidate's suggested quantity
func (h *AllocationHandler) Override(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

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

	view, err := h.service.SetOverrideQuantity(r.Context(), id, req.LicensePlateID, req.Quantity)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, view)
}

// Strategy re-plans the session under the other strategy
func (h *AllocationHandler) Strategy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Strategy string `json:"strategy" validate:"required,oneof=FIFO FEFO"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	view, err := h.service.SwitchStrategy(r.Context(), id, req.Strategy)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, view)
}

// Refresh re-fetches the LP pool and re-plans the session
func (h *AllocationHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	view, err := h.service.RefreshSession(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, view)
}

// Commit converts the session into persisted reservations. Stale snapshots
// and over-consumption come back with structured payloads the client acts on.
func (h *AllocationHandler) Commit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req service.CommitRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.CommitAllocation(r.Context(), id, req)
	if err != nil {
		var staleErr *repository.StaleAllocationError
		if errors.As(err, &staleErr) {
			httputil.ErrorWithPayload(w, errors.Wrap(err, "STALE_ALLOCATION",
				staleErr.Error(), http.StatusConflict), staleErr)
			return
		}

		var overErr *service.OverConsumptionError
		if errors.As(err, &overErr) {
			httputil.ErrorWithPayload(w, errors.Wrap(err, "OVER_CONSUMPTION_CONFIRMATION_REQUIRED",
				overErr.Error(), http.StatusConflict), overErr)
			return
		}

		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Cancel discards a session with no persisted effect
func (h *AllocationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.CancelSession(r.Context(), id); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// Release gives a reservation's quantity back to its license plate
func (h *AllocationHandler) Release(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := h.service.ReleaseReservation(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}
