package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mkarim-dev/backend-bazar/internal/common"
	"github.com/mkarim-dev/backend-bazar/internal/tenant"
)

// Handler exposes seller-facing product management endpoints. All routes are
// scoped to the store resolved by the tenant middleware.
type Handler struct {
	Repo     *Repo
	Validate *validator.Validate
}

type variantPayload struct {
	ID    *string `json:"id"`
	Title string  `json:"title" validate:"required"`
	Price int64   `json:"price" validate:"gt=0"`
	MRP   int64   `json:"mrp" validate:"gtefield=Price"`
	Stock int32   `json:"stock" validate:"gte=0"`
}

type productPayload struct {
	Title            string           `json:"title" validate:"required"`
	Slug             string           `json:"slug" validate:"required"`
	Price            int64            `json:"price" validate:"gt=0"`
	MRP              int64            `json:"mrp" validate:"gtefield=Price"`
	WeightGrams      int64            `json:"weightGrams" validate:"gte=0"`
	InStock          bool             `json:"inStock"`
	AllowReturn      bool             `json:"allowReturn"`
	AllowReplacement bool             `json:"allowReplacement"`
	Variants         []variantPayload `json:"variants" validate:"dive"`
}

// Upsert creates or updates a product for the current store.
func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	storeID, err := storeIDFromContext(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "store scope missing", nil)
		return
	}
	var payload productPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
			return
		}
	}
	product := Product{
		StoreID:          storeID,
		Title:            strings.TrimSpace(payload.Title),
		Slug:             strings.TrimSpace(payload.Slug),
		Price:            payload.Price,
		MRP:              payload.MRP,
		WeightGrams:      payload.WeightGrams,
		InStock:          payload.InStock,
		HasVariants:      len(payload.Variants) > 0,
		AllowReturn:      payload.AllowReturn,
		AllowReplacement: payload.AllowReplacement,
	}
	if id := strings.TrimSpace(chi.URLParam(r, "productID")); id != "" {
		parsed, err := uuid.Parse(id)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
			return
		}
		product.ID = parsed
	}
	for _, v := range payload.Variants {
		variant := Variant{Title: strings.TrimSpace(v.Title), Price: v.Price, MRP: v.MRP, Stock: v.Stock}
		if v.ID != nil {
			parsed, err := uuid.Parse(*v.ID)
			if err != nil {
				common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid variant id", nil)
				return
			}
			variant.ID = parsed
		}
		product.Variants = append(product.Variants, variant)
	}
	saved, err := h.Repo.Upsert(r.Context(), product)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to save product", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": saved})
}

// Get returns a single product for the current store.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	storeID, err := storeIDFromContext(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "store scope missing", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
		return
	}
	product, err := h.Repo.GetProduct(r.Context(), storeID, id)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			common.JSONError(w, http.StatusNotFound, common.CodeProductNotFound, "product not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load product", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": product})
}

// List returns the store's products, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	storeID, err := storeIDFromContext(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "store scope missing", nil)
		return
	}
	limit := common.ClampInt(common.AtoiDefault(r.URL.Query().Get("limit"), 20), 1, 100)
	offset := common.ClampInt(common.AtoiDefault(r.URL.Query().Get("offset"), 0), 0, 1<<20)
	products, err := h.Repo.List(r.Context(), storeID, limit, offset)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list products", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": products})
}

func storeIDFromContext(ctx context.Context) (uuid.UUID, error) {
	id, ok := tenant.FromContext(ctx)
	if !ok {
		return uuid.Nil, errors.New("catalog: store scope missing from context")
	}
	return uuid.Parse(id)
}
