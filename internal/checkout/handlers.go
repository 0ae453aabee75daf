package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mkarim-dev/backend-bazar/internal/catalog"
	"github.com/mkarim-dev/backend-bazar/internal/common"
	"github.com/mkarim-dev/backend-bazar/internal/obs"
	"github.com/mkarim-dev/backend-bazar/internal/order"
	"github.com/mkarim-dev/backend-bazar/internal/shipping"
	"github.com/mkarim-dev/backend-bazar/internal/tenant"
)

// Handler exposes checkout preview and commit.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type lineInput struct {
	ProductID string  `json:"productId" validate:"required,uuid4"`
	VariantID *string `json:"variantId"`
	Qty       int32   `json:"qty" validate:"gte=1"`
}

type checkoutRequest struct {
	Lines         []lineInput      `json:"lines" validate:"required,min=1,dive"`
	Address       shipping.Address `json:"address"`
	CouponCode    string           `json:"couponCode"`
	PaymentMethod string           `json:"paymentMethod" validate:"oneof=COD PREPAID"`
	Express       bool             `json:"express"`
	Notes         *string          `json:"notes"`
}

// Preview prices the cart without committing anything.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	storeID, userID, in, ok := h.decode(w, r)
	if !ok {
		return
	}
	out, err := h.Svc.PreviewOrder(r.Context(), storeID, userID, in)
	if err != nil {
		renderCheckoutError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// Commit creates the order. Callers should send an Idempotency-Key header;
// replays are rejected by middleware before reaching this handler.
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	storeID, userID, in, ok := h.decode(w, r)
	if !ok {
		return
	}
	out, err := h.Svc.CommitOrder(r.Context(), storeID, userID, in)
	if err != nil {
		if obs.CheckoutTotal != nil {
			obs.CheckoutTotal.WithLabelValues("rejected").Inc()
		}
		renderCheckoutError(w, err)
		return
	}
	if obs.CheckoutTotal != nil {
		result := "created"
		if out.CouponFallback {
			result = "coupon_fallback"
		}
		obs.CheckoutTotal.WithLabelValues(result).Inc()
	}
	if out.CouponFallback && obs.CouponFallbackTotal != nil {
		obs.CouponFallbackTotal.Inc()
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": out})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, Input, bool) {
	storeID, ok := storeScope(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, Input{}, false
	}
	rawUser, ok := common.UserID(r.Context())
	if !ok || rawUser == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return uuid.Nil, uuid.Nil, Input{}, false
	}
	userID, err := uuid.Parse(rawUser)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid user id", nil)
		return uuid.Nil, uuid.Nil, Input{}, false
	}
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return uuid.Nil, uuid.Nil, Input{}, false
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid checkout request", err.Error())
		return uuid.Nil, uuid.Nil, Input{}, false
	}
	lines := make([]catalog.LineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		productID, err := uuid.Parse(l.ProductID)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
			return uuid.Nil, uuid.Nil, Input{}, false
		}
		line := catalog.LineInput{ProductID: productID, Qty: l.Qty}
		if l.VariantID != nil {
			variantID, err := uuid.Parse(*l.VariantID)
			if err != nil {
				common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid variant id", nil)
				return uuid.Nil, uuid.Nil, Input{}, false
			}
			line.VariantID = &variantID
		}
		lines = append(lines, line)
	}
	return storeID, userID, Input{
		Lines:         lines,
		Address:       req.Address,
		CouponCode:    req.CouponCode,
		PaymentMethod: order.PaymentMethod(req.PaymentMethod),
		Express:       req.Express,
		Notes:         req.Notes,
	}, true
}

func renderCheckoutError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "cart is empty", nil)
	case errors.Is(err, ErrPaymentMethodUnavailable):
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodePaymentMethodUnavailable, "cash on delivery is not available for this store", nil)
	case errors.Is(err, catalog.ErrProductNotFound):
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeProductNotFound, err.Error(), nil)
	case errors.Is(err, catalog.ErrVariantNotFound):
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeVariantNotFound, err.Error(), nil)
	case errors.Is(err, catalog.ErrOutOfStock):
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeOutOfStock, err.Error(), nil)
	case errors.Is(err, catalog.ErrInvalidLine):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, shipping.ErrInvalidConfiguration):
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeInvalidConfiguration, "shipping configuration is invalid", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout failed", nil)
	}
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
