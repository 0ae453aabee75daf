package order

import (
	"time"

	"github.com/google/uuid"

	"github.com/mkarim-dev/backend-bazar/internal/pricing"
	"github.com/mkarim-dev/backend-bazar/internal/shipping"
)

// Status is the lifecycle state of an order. Transitions only move forward
// in rank; cancellation is terminal.
type Status string

const (
	StatusPendingPayment Status = "PENDING_PAYMENT"
	StatusPaid           Status = "PAID"
	StatusCanceled       Status = "CANCELED"
)

// Rank orders statuses for transition guards. Canceled ranks below every
// live state so nothing can move out of it.
func Rank(s Status) int {
	switch s {
	case StatusPendingPayment:
		return 0
	case StatusPaid:
		return 1
	case StatusCanceled:
		return -1
	default:
		return -2
	}
}

// PaymentMethod selects how the buyer settles the order.
type PaymentMethod string

const (
	PaymentCOD     PaymentMethod = "COD"
	PaymentPrepaid PaymentMethod = "PREPAID"
)

// Order is a committed checkout. The breakdown columns are written once at
// creation and never rewritten; later corrections land in adjustments.
type Order struct {
	ID            uuid.UUID         `json:"id"`
	StoreID       uuid.UUID         `json:"storeId"`
	UserID        uuid.UUID         `json:"userId"`
	Status        Status            `json:"status"`
	Currency      string            `json:"currency"`
	Breakdown     pricing.Breakdown `json:"breakdown"`
	PaymentMethod PaymentMethod     `json:"paymentMethod"`
	Express       bool              `json:"express"`
	Address       shipping.Address  `json:"address"`
	EstimatedDays int32             `json:"estimatedDays"`
	Notes         *string           `json:"notes,omitempty"`
	Items         []Item            `json:"items,omitempty"`
	Adjustments   []Adjustment      `json:"adjustments,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// Item is one priced order line, denormalised from the catalog at checkout
// time so later product edits do not change what was sold.
type Item struct {
	ID          uuid.UUID  `json:"id"`
	OrderID     uuid.UUID  `json:"orderId"`
	ProductID   uuid.UUID  `json:"productId"`
	VariantID   *uuid.UUID `json:"variantId,omitempty"`
	Title       string     `json:"title"`
	Qty         int32      `json:"qty"`
	UnitPrice   int64      `json:"unitPrice"`
	Subtotal    int64      `json:"subtotal"`
	WeightGrams int64      `json:"weightGrams"`
}

// AdjustmentKind classifies a post-creation correction.
type AdjustmentKind string

const (
	AdjustmentRefund    AdjustmentKind = "REFUND"
	AdjustmentSurcharge AdjustmentKind = "SURCHARGE"
)

// Adjustment is an append-only correction applied after the order was
// created. The original breakdown stays untouched; the effective total is
// breakdown total plus the sum of adjustment amounts.
type Adjustment struct {
	ID        uuid.UUID      `json:"id"`
	OrderID   uuid.UUID      `json:"orderId"`
	Kind      AdjustmentKind `json:"kind"`
	Amount    int64          `json:"amount"`
	Reason    string         `json:"reason"`
	CreatedAt time.Time      `json:"createdAt"`
}

// EffectiveTotal is the breakdown total with all adjustments applied,
// floored at zero.
func (o Order) EffectiveTotal() int64 {
	total := o.Breakdown.Total
	for _, a := range o.Adjustments {
		total += a.Amount
	}
	if total < 0 {
		total = 0
	}
	return total
}
