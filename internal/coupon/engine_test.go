package coupon

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

var evalAt = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

func activeRule(t DiscountType) Rule {
	return Rule{
		ID:        uuid.New(),
		StoreID:   uuid.New(),
		Code:      "HEMAT10",
		Type:      t,
		IsActive:  true,
		ExpiresAt: evalAt.Add(24 * time.Hour),
	}
}

func TestComputePercentageRoundsHalfUp(t *testing.T) {
	rule := activeRule(DiscountPercentage)
	rule.PercentBps = 1000 // 10%
	if got := rule.Compute(100_000); got != 10_000 {
		t.Fatalf("10%% of 1000.00 must be 100.00, got %d", got)
	}
	// 10% of 0.05 is 0.005, rounded half-up to 0.01.
	if got := rule.Compute(5); got != 1 {
		t.Fatalf("expected round-half-up to 1, got %d", got)
	}
}

func TestComputeFixedClampsToSubtotal(t *testing.T) {
	rule := activeRule(DiscountFixed)
	rule.Amount = 500_000
	if got := rule.Compute(100_000); got != 100_000 {
		t.Fatalf("fixed discount must clamp to subtotal, got %d", got)
	}
}

func TestValidateExpiryBoundary(t *testing.T) {
	rule := activeRule(DiscountFixed)
	rule.Amount = 1_000

	rule.ExpiresAt = evalAt.Add(-time.Second)
	if err := rule.Validate(evalAt, CartFacts{Subtotal: 10_000, DistinctCount: 1}, Profile{}); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}

	rule.ExpiresAt = evalAt.Add(time.Second)
	if err := rule.Validate(evalAt, CartFacts{Subtotal: 10_000, DistinctCount: 1}, Profile{}); err != nil {
		t.Fatalf("coupon expiring in the future must pass, got %v", err)
	}

	// Expiry is strict: evaluation exactly at the boundary is still valid.
	rule.ExpiresAt = evalAt
	if err := rule.Validate(evalAt, CartFacts{Subtotal: 10_000, DistinctCount: 1}, Profile{}); err != nil {
		t.Fatalf("coupon at its expiry instant must pass, got %v", err)
	}
}

func TestValidateUsageLimit(t *testing.T) {
	rule := activeRule(DiscountFixed)
	rule.Amount = 1_000
	limit := int32(5)
	rule.UsageLimit = &limit
	rule.UsedCount = 5
	err := rule.Validate(evalAt, CartFacts{Subtotal: 10_000, DistinctCount: 1}, Profile{})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestValidateProfileGates(t *testing.T) {
	cart := CartFacts{Subtotal: 10_000, DistinctCount: 1}
	cases := []struct {
		name    string
		mutate  func(*Rule)
		profile Profile
	}{
		{"one time per user", func(r *Rule) { r.OneTimePerUser = true }, Profile{HasRedeemed: true}},
		{"first order only", func(r *Rule) { r.FirstOrderOnly = true }, Profile{HasPriorOrder: true}},
		{"new users only", func(r *Rule) { r.ForNewUser = true }, Profile{IsNewUser: false}},
		{"members only", func(r *Rule) { r.ForMember = true }, Profile{IsMember: false}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule := activeRule(DiscountFixed)
			rule.Amount = 1_000
			tc.mutate(&rule)
			if err := rule.Validate(evalAt, cart, tc.profile); !errors.Is(err, ErrNotEligible) {
				t.Fatalf("expected ErrNotEligible, got %v", err)
			}
		})
	}
}

func TestValidateMinimums(t *testing.T) {
	rule := activeRule(DiscountFixed)
	rule.Amount = 1_000
	rule.MinSubtotal = 40_000
	if err := rule.Validate(evalAt, CartFacts{Subtotal: 39_999, DistinctCount: 1}, Profile{}); !errors.Is(err, ErrMinimumNotMet) {
		t.Fatalf("expected ErrMinimumNotMet on subtotal, got %v", err)
	}
	rule.MinSubtotal = 0
	rule.MinProductCount = 3
	if err := rule.Validate(evalAt, CartFacts{Subtotal: 50_000, DistinctCount: 2}, Profile{}); !errors.Is(err, ErrMinimumNotMet) {
		t.Fatalf("expected ErrMinimumNotMet on line count, got %v", err)
	}
}

func TestValidateProductAllowList(t *testing.T) {
	allowed := uuid.New()
	rule := activeRule(DiscountFixed)
	rule.Amount = 1_000
	rule.ProductIDs = []uuid.UUID{allowed}

	cart := CartFacts{Subtotal: 10_000, DistinctCount: 1, ProductIDs: []uuid.UUID{uuid.New()}}
	if err := rule.Validate(evalAt, cart, Profile{}); !errors.Is(err, ErrNotApplicable) {
		t.Fatalf("expected ErrNotApplicable, got %v", err)
	}

	cart.ProductIDs = append(cart.ProductIDs, allowed)
	if err := rule.Validate(evalAt, cart, Profile{}); err != nil {
		t.Fatalf("one intersecting line must satisfy the allow-list, got %v", err)
	}
}

func TestNormalizeCode(t *testing.T) {
	if got := NormalizeCode("  save50 "); got != "SAVE50" {
		t.Fatalf("expected SAVE50, got %q", got)
	}
}

func TestReasonCodes(t *testing.T) {
	cases := map[error]string{
		ErrInvalidCoupon: "INVALID_COUPON",
		ErrExpired:       "COUPON_EXPIRED",
		ErrExhausted:     "COUPON_EXHAUSTED",
		ErrNotEligible:   "COUPON_NOT_ELIGIBLE",
		ErrMinimumNotMet: "MINIMUM_NOT_MET",
		ErrNotApplicable: "COUPON_NOT_APPLICABLE",
	}
	for err, want := range cases {
		if got := ReasonCode(err); got != want {
			t.Fatalf("reason for %v: expected %s, got %s", err, want, got)
		}
	}
}
