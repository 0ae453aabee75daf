package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Product is the catalog-relevant view of a listed item. Prices are stored in
// minor currency units. MRP is kept for discount labels only and never feeds
// into totals.
type Product struct {
	ID               uuid.UUID `json:"id"`
	StoreID          uuid.UUID `json:"storeId"`
	Title            string    `json:"title"`
	Slug             string    `json:"slug"`
	Price            int64     `json:"price"`
	MRP              int64     `json:"mrp"`
	WeightGrams      int64     `json:"weightGrams"`
	InStock          bool      `json:"inStock"`
	HasVariants      bool      `json:"hasVariants"`
	AllowReturn      bool      `json:"allowReturn"`
	AllowReplacement bool      `json:"allowReplacement"`
	Variants         []Variant `json:"variants,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Variant carries its own price and stock, overriding the headline product price.
type Variant struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
	Price int64     `json:"price"`
	MRP   int64     `json:"mrp"`
	Stock int32     `json:"stock"`
}

// VariantByID returns the variant matching id, if any.
func (p Product) VariantByID(id uuid.UUID) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}
