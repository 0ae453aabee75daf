package coupon

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mkarim-dev/backend-bazar/internal/common"
)

// DiscountType enumerates how a coupon's value is interpreted.
type DiscountType string

const (
	// DiscountPercentage takes a share of the eligible subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed subtracts a fixed amount, clamped to the subtotal.
	DiscountFixed DiscountType = "fixed"
)

var (
	// ErrInvalidCoupon is returned when the code does not resolve or the coupon is inactive.
	ErrInvalidCoupon = errors.New("coupon invalid")
	// ErrExpired is returned when the coupon is evaluated strictly after its expiry instant.
	ErrExpired = errors.New("coupon expired")
	// ErrExhausted indicates the global usage quota has been consumed.
	ErrExhausted = errors.New("coupon usage limit reached")
	// ErrNotEligible is returned when the customer's history disqualifies the coupon.
	ErrNotEligible = errors.New("coupon not eligible for this customer")
	// ErrMinimumNotMet indicates the cart did not meet spend or line-count requirements.
	ErrMinimumNotMet = errors.New("cart minimum not met")
	// ErrNotApplicable is returned when an allow-listed coupon matches none of the cart lines.
	ErrNotApplicable = errors.New("coupon not applicable to these products")
)

// Rule captures one coupon's runtime constraints. A coupon belongs to exactly
// one store and can never discount another store's lines.
type Rule struct {
	ID              uuid.UUID
	StoreID         uuid.UUID
	Code            string
	Type            DiscountType
	PercentBps      int32 // percentage discounts, in basis points of the subtotal
	Amount          int64 // fixed discounts, in minor units
	MinSubtotal     int64
	MinProductCount int32
	ProductIDs      []uuid.UUID
	ForNewUser      bool
	ForMember       bool
	FirstOrderOnly  bool
	OneTimePerUser  bool
	UsageLimit      *int32
	UsedCount       int32
	IsPublic        bool
	IsActive        bool
	ExpiresAt       time.Time
}

// Profile carries the customer-history facts the evaluator needs. The engine
// never queries identity or order history itself; the caller injects these.
type Profile struct {
	IsNewUser     bool
	IsMember      bool
	HasPriorOrder bool
	HasRedeemed   bool // a prior successful redemption of this specific code
}

// CartFacts is the snapshot-derived view the rules run against.
type CartFacts struct {
	Subtotal      int64
	DistinctCount int
	ProductIDs    []uuid.UUID
}

// NormalizeCode upper-cases and trims a submitted code. Codes are stored and
// compared upper-cased.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate runs the eligibility checks in their documented order; the first
// failure short-circuits with its specific reason. Usage-limit validation here
// is advisory only; the authoritative check is the conditional increment at
// order commit.
func (r Rule) Validate(now time.Time, cart CartFacts, profile Profile) error {
	if !r.IsActive {
		return ErrInvalidCoupon
	}
	if now.After(r.ExpiresAt) {
		return ErrExpired
	}
	if r.UsageLimit != nil && r.UsedCount >= *r.UsageLimit {
		return ErrExhausted
	}
	if r.OneTimePerUser && profile.HasRedeemed {
		return ErrNotEligible
	}
	if r.FirstOrderOnly && profile.HasPriorOrder {
		return ErrNotEligible
	}
	if r.ForNewUser && !profile.IsNewUser {
		return ErrNotEligible
	}
	if r.ForMember && !profile.IsMember {
		return ErrNotEligible
	}
	if cart.Subtotal < r.MinSubtotal {
		return ErrMinimumNotMet
	}
	if int32(cart.DistinctCount) < r.MinProductCount {
		return ErrMinimumNotMet
	}
	if len(r.ProductIDs) > 0 && !intersects(r.ProductIDs, cart.ProductIDs) {
		return ErrNotApplicable
	}
	return nil
}

// Compute determines the discount in minor units. Percentage discounts round
// half-up at minor-unit precision; fixed discounts clamp to the subtotal so
// the net payable never goes negative.
func (r Rule) Compute(subtotal int64) int64 {
	if subtotal <= 0 {
		return 0
	}
	var discount int64
	switch r.Type {
	case DiscountPercentage:
		if r.PercentBps <= 0 {
			return 0
		}
		discount = (subtotal*int64(r.PercentBps) + 5_000) / 10_000
	case DiscountFixed:
		discount = r.Amount
	default:
		return 0
	}
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		return 0
	}
	return discount
}

// Result reports a coupon evaluation. A rejected coupon is a value, not an
// error: rejection is expected user-facing flow and must never abort checkout.
type Result struct {
	Valid      bool   `json:"valid"`
	Code       string `json:"code,omitempty"`
	Discount   int64  `json:"discount"`
	Reason     string `json:"reason,omitempty"`
	ReasonCode string `json:"reasonCode,omitempty"`
}

// Rejected builds a rejection result from an engine sentinel.
func Rejected(err error) Result {
	return Result{Valid: false, Reason: reasonMessage(err), ReasonCode: ReasonCode(err)}
}

// ReasonCode maps engine sentinels onto canonical rejection codes.
func ReasonCode(err error) string {
	switch {
	case errors.Is(err, ErrExpired):
		return common.CodeCouponExpired
	case errors.Is(err, ErrExhausted):
		return common.CodeCouponExhausted
	case errors.Is(err, ErrNotEligible):
		return common.CodeCouponNotEligible
	case errors.Is(err, ErrMinimumNotMet):
		return common.CodeMinimumNotMet
	case errors.Is(err, ErrNotApplicable):
		return common.CodeCouponNotApplicable
	default:
		return common.CodeInvalidCoupon
	}
}

func reasonMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func intersects(allow, cart []uuid.UUID) bool {
	for _, a := range allow {
		for _, c := range cart {
			if a == c {
				return true
			}
		}
	}
	return false
}
