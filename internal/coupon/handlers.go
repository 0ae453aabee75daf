package coupon

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mkarim-dev/backend-bazar/internal/common"
	"github.com/mkarim-dev/backend-bazar/internal/obs"
	"github.com/mkarim-dev/backend-bazar/internal/tenant"
)

// Handler exposes store-scoped coupon management and preview endpoints.
type Handler struct {
	Repo     *Repo
	Svc      *Service
	Validate *validator.Validate
}

type couponPayload struct {
	Code            string    `json:"code" validate:"required"`
	DiscountType    string    `json:"discountType" validate:"oneof=percentage fixed"`
	PercentBps      int32     `json:"percentBps" validate:"gte=0,lte=10000"`
	Amount          int64     `json:"amount" validate:"gte=0"`
	MinSubtotal     int64     `json:"minSubtotal" validate:"gte=0"`
	MinProductCount int32     `json:"minProductCount" validate:"gte=0"`
	ProductIDs      []string  `json:"productIds"`
	ForNewUser      bool      `json:"forNewUser"`
	ForMember       bool      `json:"forMember"`
	FirstOrderOnly  bool      `json:"firstOrderOnly"`
	OneTimePerUser  bool      `json:"oneTimePerUser"`
	UsageLimit      *int32    `json:"usageLimit"`
	IsPublic        bool      `json:"isPublic"`
	IsActive        bool      `json:"isActive"`
	ExpiresAt       time.Time `json:"expiresAt" validate:"required"`
}

type previewRequest struct {
	Code          string   `json:"code" validate:"required"`
	Subtotal      int64    `json:"subtotal" validate:"gt=0"`
	DistinctCount int      `json:"distinctCount" validate:"gte=1"`
	ProductIDs    []string `json:"productIds"`
	IsNewUser     bool     `json:"isNewUser"`
	IsMember      bool     `json:"isMember"`
	HasPriorOrder bool     `json:"hasPriorOrder"`
	HasRedeemed   bool     `json:"hasRedeemed"`
}

// Create inserts a new coupon rule for the current store.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeScope(w, r)
	if !ok {
		return
	}
	rule, ok := h.decodeRule(w, r, storeID)
	if !ok {
		return
	}
	created, err := h.Repo.Create(r.Context(), rule)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			common.JSONError(w, http.StatusConflict, "CONFLICT", "coupon code already exists", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to create coupon", nil)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": created})
}

// Update mutates an existing coupon identified by code.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeScope(w, r)
	if !ok {
		return
	}
	rule, ok := h.decodeRule(w, r, storeID)
	if !ok {
		return
	}
	updated, err := h.Repo.Update(r.Context(), rule)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "coupon not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to update coupon", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

// List returns the store's coupons.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeScope(w, r)
	if !ok {
		return
	}
	rules, err := h.Repo.List(r.Context(), storeID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list coupons", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rules})
}

// Preview simulates an evaluation without persisting anything. Rejections are
// returned with status 200 because they are expected flow, not failures.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeScope(w, r)
	if !ok {
		return
	}
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
			return
		}
	}
	productIDs, err := parseUUIDs(req.ProductIDs)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
		return
	}
	cart := CartFacts{Subtotal: req.Subtotal, DistinctCount: req.DistinctCount, ProductIDs: productIDs}
	profile := Profile{IsNewUser: req.IsNewUser, IsMember: req.IsMember, HasPriorOrder: req.HasPriorOrder, HasRedeemed: req.HasRedeemed}
	result, err := h.Svc.Preview(r.Context(), storeID, req.Code, cart, profile)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "coupon evaluation failed", nil)
		return
	}
	if obs.CouponEvaluationTotal != nil {
		reason := result.ReasonCode
		if result.Valid {
			reason = "applied"
		}
		obs.CouponEvaluationTotal.WithLabelValues(reason).Inc()
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

func (h *Handler) decodeRule(w http.ResponseWriter, r *http.Request, storeID uuid.UUID) (Rule, bool) {
	var payload couponPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return Rule{}, false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
			return Rule{}, false
		}
	}
	discountType := DiscountType(strings.TrimSpace(payload.DiscountType))
	switch discountType {
	case DiscountPercentage:
		if payload.PercentBps <= 0 {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "percentBps must be in (0,10000]", nil)
			return Rule{}, false
		}
	case DiscountFixed:
		if payload.Amount <= 0 {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "amount must be positive", nil)
			return Rule{}, false
		}
	}
	productIDs, err := parseUUIDs(payload.ProductIDs)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
		return Rule{}, false
	}
	return Rule{
		StoreID:         storeID,
		Code:            NormalizeCode(payload.Code),
		Type:            discountType,
		PercentBps:      payload.PercentBps,
		Amount:          payload.Amount,
		MinSubtotal:     payload.MinSubtotal,
		MinProductCount: payload.MinProductCount,
		ProductIDs:      productIDs,
		ForNewUser:      payload.ForNewUser,
		ForMember:       payload.ForMember,
		FirstOrderOnly:  payload.FirstOrderOnly,
		OneTimePerUser:  payload.OneTimePerUser,
		UsageLimit:      payload.UsageLimit,
		IsPublic:        payload.IsPublic,
		IsActive:        payload.IsActive,
		ExpiresAt:       payload.ExpiresAt,
	}, true
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

func parseUUIDs(values []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		parsed, err := uuid.Parse(strings.TrimSpace(v))
		if err != nil {
			return nil, err
		}
		out = append(out, parsed)
	}
	return out, nil
}
