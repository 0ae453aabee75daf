package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrProductNotFound is returned when a requested product id does not resolve.
	ErrProductNotFound = errors.New("product not found")
	// ErrVariantNotFound is returned when a line references a variant the product does not carry.
	ErrVariantNotFound = errors.New("variant not found")
	// ErrOutOfStock is returned when a line references a product or variant without stock.
	ErrOutOfStock = errors.New("out of stock")
	// ErrInvalidLine is returned when a line carries a non-positive quantity.
	ErrInvalidLine = errors.New("invalid line")
)

// LineInput identifies one cart line to be priced.
type LineInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Qty       int32
}

// Line is a priced, eligibility-annotated cart line.
type Line struct {
	ProductID        uuid.UUID  `json:"productId"`
	VariantID        *uuid.UUID `json:"variantId,omitempty"`
	StoreID          uuid.UUID  `json:"storeId"`
	Title            string     `json:"title"`
	UnitPrice        int64      `json:"unitPrice"`
	Qty              int32      `json:"qty"`
	LineTotal        int64      `json:"lineTotal"`
	WeightGrams      int64      `json:"weightGrams"`
	AllowReturn      bool       `json:"allowReturn"`
	AllowReplacement bool       `json:"allowReplacement"`
}

// Snapshot is a point-in-time priced view of a cart for one store. It is
// captured once per checkout attempt and never re-queried mid-computation, so
// a concurrent price edit cannot alter an in-flight evaluation.
type Snapshot struct {
	StoreID uuid.UUID `json:"storeId"`
	TakenAt time.Time `json:"takenAt"`
	Lines   []Line    `json:"lines"`
}

// Subtotal sums line totals in minor units.
func (s Snapshot) Subtotal() int64 {
	var total int64
	for _, l := range s.Lines {
		total += l.LineTotal
	}
	return total
}

// ItemCount returns the total quantity across all lines.
func (s Snapshot) ItemCount() int {
	var count int
	for _, l := range s.Lines {
		count += int(l.Qty)
	}
	return count
}

// DistinctCount returns the number of distinct line items.
func (s Snapshot) DistinctCount() int { return len(s.Lines) }

// TotalWeightGrams sums per-line weight times quantity. Lines without weight
// contribute zero.
func (s Snapshot) TotalWeightGrams() int64 {
	var total int64
	for _, l := range s.Lines {
		total += l.WeightGrams * int64(l.Qty)
	}
	return total
}

// LineError identifies the offending line when a snapshot cannot be built.
type LineError struct {
	ProductID uuid.UUID
	Err       error
}

// Error implements the error interface.
func (e *LineError) Error() string {
	return fmt.Sprintf("line %s: %v", e.ProductID, e.Err)
}

// Unwrap exposes the underlying sentinel for errors.Is checks.
func (e *LineError) Unwrap() error { return e.Err }

// Store is the narrow read surface the snapshot builder needs.
type Store interface {
	GetProductsByIDs(ctx context.Context, storeID uuid.UUID, ids []uuid.UUID) ([]Product, error)
}

// Builder assembles immutable snapshots from raw cart lines.
type Builder struct {
	Store Store
	Now   func() time.Time
}

// Build resolves, prices and stock-checks every input line. Any failing line
// aborts the whole snapshot; partial snapshots are never produced.
func (b Builder) Build(ctx context.Context, storeID uuid.UUID, inputs []LineInput) (Snapshot, error) {
	if b.Store == nil {
		return Snapshot{}, errors.New("catalog: store not configured")
	}
	if len(inputs) == 0 {
		return Snapshot{}, errors.New("catalog: no lines to price")
	}
	ids := make([]uuid.UUID, 0, len(inputs))
	for _, in := range inputs {
		if in.Qty < 1 {
			return Snapshot{}, &LineError{ProductID: in.ProductID, Err: ErrInvalidLine}
		}
		ids = append(ids, in.ProductID)
	}
	products, err := b.Store.GetProductsByIDs(ctx, storeID, ids)
	if err != nil {
		return Snapshot{}, err
	}
	byID := make(map[uuid.UUID]Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	lines := make([]Line, 0, len(inputs))
	for _, in := range inputs {
		product, ok := byID[in.ProductID]
		if !ok {
			return Snapshot{}, &LineError{ProductID: in.ProductID, Err: ErrProductNotFound}
		}
		line, err := priceLine(product, in)
		if err != nil {
			return Snapshot{}, err
		}
		lines = append(lines, line)
	}
	return Snapshot{StoreID: storeID, TakenAt: b.now(), Lines: lines}, nil
}

func priceLine(product Product, in LineInput) (Line, error) {
	line := Line{
		ProductID:        product.ID,
		StoreID:          product.StoreID,
		Title:            product.Title,
		Qty:              in.Qty,
		WeightGrams:      product.WeightGrams,
		AllowReturn:      product.AllowReturn,
		AllowReplacement: product.AllowReplacement,
	}
	switch {
	case in.VariantID != nil:
		variant, ok := product.VariantByID(*in.VariantID)
		if !ok {
			return Line{}, &LineError{ProductID: product.ID, Err: ErrVariantNotFound}
		}
		if variant.Stock <= 0 {
			return Line{}, &LineError{ProductID: product.ID, Err: ErrOutOfStock}
		}
		id := variant.ID
		line.VariantID = &id
		line.UnitPrice = variant.Price
	case product.HasVariants:
		// Variant products cannot be priced off the headline price.
		return Line{}, &LineError{ProductID: product.ID, Err: ErrVariantNotFound}
	default:
		if !product.InStock {
			return Line{}, &LineError{ProductID: product.ID, Err: ErrOutOfStock}
		}
		line.UnitPrice = product.Price
	}
	line.LineTotal = line.UnitPrice * int64(in.Qty)
	return line, nil
}

func (b Builder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now().UTC()
}
