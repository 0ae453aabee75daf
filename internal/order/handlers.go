package order

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mkarim-dev/backend-bazar/internal/common"
	"github.com/mkarim-dev/backend-bazar/internal/tenant"
)

// Handler exposes buyer order reads plus seller-side listing, cancellation
// and adjustments.
type Handler struct {
	Repo     *Repo
	Svc      *Service
	Validate *validator.Validate
}

type adjustRequest struct {
	Kind   string `json:"kind" validate:"oneof=REFUND SURCHARGE"`
	Amount int64  `json:"amount" validate:"gt=0"`
	Reason string `json:"reason" validate:"required"`
}

// Get returns one order with items and adjustments.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeScope(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	o, err := h.Repo.Get(r.Context(), storeID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order lookup failed", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": o,
		"meta": map[string]any{"effectiveTotal": o.EffectiveTotal()},
	})
}

// List returns the store's recent orders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeScope(w, r)
	if !ok {
		return
	}
	limit := queryInt32(r, "limit", 20)
	offset := queryInt32(r, "offset", 0)
	orders, err := h.Repo.ListByStore(r.Context(), storeID, limit, offset)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order list failed", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": orders})
}

// Cancel aborts a pending order.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeScope(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	o, err := h.Svc.Transition(r.Context(), storeID, id, StatusCanceled)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
		case errors.Is(err, ErrInvalidTransition):
			common.JSONError(w, http.StatusConflict, "INVALID_STATE", "only pending orders can be canceled", nil)
		default:
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to cancel order", nil)
		}
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"status": o.Status}})
}

// Adjust appends a refund or surcharge to a paid order.
func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeScope(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid adjustment", err.Error())
		return
	}
	adj, err := h.Svc.Adjust(r.Context(), storeID, id, AdjustmentKind(req.Kind), req.Amount, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
		case errors.Is(err, ErrInvalidAdjustment):
			common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_ADJUSTMENT", err.Error(), nil)
		default:
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to adjust order", nil)
		}
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": adj})
}

func queryInt32(r *http.Request, key string, fallback int32) int32 {
	return int32(common.AtoiDefault(r.URL.Query().Get(key), int(fallback)))
}

func storeScope(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "store scope missing", nil)
		return uuid.Nil, false
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid store id", nil)
		return uuid.Nil, false
	}
	return parsed, true
}
