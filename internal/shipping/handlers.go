package shipping

import (
	"encoding/json"
	"net/http"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mkarim-dev/backend-bazar/internal/common"
	"github.com/mkarim-dev/backend-bazar/internal/obs"
	"github.com/mkarim-dev/backend-bazar/internal/tenant"
)

// Handler exposes the seller-facing shipping configuration endpoints and a
// public quote preview.
type Handler struct {
	Repo     *Repo
	Validate *validator.Validate
}

type settingPayload struct {
	Enabled bool   `json:"enabled"`
	Type    string `json:"shippingType" validate:"oneof=FLAT_RATE PER_ITEM WEIGHT_BASED"`

	FlatRate int64 `json:"flatRate" validate:"gte=0"`

	PerItemFee int64  `json:"perItemFee" validate:"gte=0"`
	MaxItemFee *int64 `json:"maxItemFee"`

	BaseWeightGrams     int64 `json:"baseWeightGrams" validate:"gte=0"`
	BaseWeightFee       int64 `json:"baseWeightFee" validate:"gte=0"`
	AdditionalWeightFee int64 `json:"additionalWeightFee" validate:"gte=0"`

	FreeShippingMin int64 `json:"freeShippingMin" validate:"gte=0"`

	LocalDeliveryFee    *int64   `json:"localDeliveryFee"`
	RegionalDeliveryFee *int64   `json:"regionalDeliveryFee"`
	LocalAreas          []string `json:"localAreas"`
	RegionalAreas       []string `json:"regionalAreas"`

	EnableCOD bool  `json:"enableCod"`
	CODFee    int64 `json:"codFee" validate:"gte=0"`

	EnableExpress bool  `json:"enableExpress"`
	ExpressFee    int64 `json:"expressFee" validate:"gte=0"`

	EstimatedDays        int32 `json:"estimatedDays" validate:"gte=0"`
	ExpressEstimatedDays int32 `json:"expressEstimatedDays" validate:"gte=0"`
}

type quoteRequest struct {
	Subtotal    int64   `json:"subtotal" validate:"gte=0"`
	ItemCount   int32   `json:"itemCount" validate:"gte=1"`
	WeightGrams int64   `json:"weightGrams" validate:"gte=0"`
	Address     Address `json:"address"`
	Express     bool    `json:"express"`
	COD         bool    `json:"cod"`
}

// Get returns the current store's shipping setting, defaults included.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeScope(w, r)
	if !ok {
		return
	}
	s, err := h.Repo.Get(r.Context(), storeID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load shipping setting", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": s})
}

// Upsert replaces the current store's shipping setting.
func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeScope(w, r)
	if !ok {
		return
	}
	var p settingPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return
	}
	if err := h.Validate.Struct(p); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid shipping setting", err.Error())
		return
	}
	if p.MaxItemFee != nil && *p.MaxItemFee < 0 {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "maxItemFee must not be negative", nil)
		return
	}
	s := Setting{
		StoreID:              storeID,
		Enabled:              p.Enabled,
		Type:                 Type(p.Type),
		FlatRate:             p.FlatRate,
		PerItemFee:           p.PerItemFee,
		MaxItemFee:           p.MaxItemFee,
		BaseWeightGrams:      p.BaseWeightGrams,
		BaseWeightFee:        p.BaseWeightFee,
		AdditionalWeightFee:  p.AdditionalWeightFee,
		FreeShippingMin:      p.FreeShippingMin,
		LocalDeliveryFee:     p.LocalDeliveryFee,
		RegionalDeliveryFee:  p.RegionalDeliveryFee,
		LocalAreas:           p.LocalAreas,
		RegionalAreas:        p.RegionalAreas,
		EnableCOD:            p.EnableCOD,
		CODFee:               p.CODFee,
		EnableExpress:        p.EnableExpress,
		ExpressFee:           p.ExpressFee,
		EstimatedDays:        p.EstimatedDays,
		ExpressEstimatedDays: p.ExpressEstimatedDays,
	}
	if err := h.Repo.Upsert(r.Context(), s); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to save shipping setting", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": s})
}

// Quote prices shipping for a hypothetical order without creating anything.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeScope(w, r)
	if !ok {
		return
	}
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid quote request", err.Error())
		return
	}
	s, err := h.Repo.Get(r.Context(), storeID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load shipping setting", nil)
		return
	}
	start := time.Now()
	q, err := s.Calculate(Input{
		Subtotal:    req.Subtotal,
		ItemCount:   req.ItemCount,
		WeightGrams: req.WeightGrams,
		Zone:        s.ClassifyDestination(req.Address),
		Express:     req.Express,
		COD:         req.COD,
	})
	if obs.ShippingQuoteLatency != nil {
		obs.ShippingQuoteLatency.WithLabelValues(string(s.Type)).Observe(obs.DurationMillis(time.Since(start)))
	}
	if err != nil {
		common.RenderError(w, common.NewAppError(common.CodeInvalidConfiguration, "shipping configuration is invalid", http.StatusUnprocessableEntity, err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": q})
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
