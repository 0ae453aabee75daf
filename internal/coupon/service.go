package coupon

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Querier captures the database methods the coupon service requires.
type Querier interface {
	FindByCode(ctx context.Context, storeID uuid.UUID, code string) (Rule, error)
	IncrementUsageIfBelowLimit(ctx context.Context, couponID uuid.UUID) (bool, error)
	InsertRedemption(ctx context.Context, couponID, orderID, userID uuid.UUID, amount int64) error
}

// Service evaluates coupons against carts. Preview is advisory and never
// mutates state; Redeem is the authoritative commit-time gate.
type Service struct {
	Q   Querier
	Now func() time.Time
}

// Preview decides whether code may be applied to the given cart and customer
// profile and computes the discount. Rejections come back inside the Result;
// the returned error is reserved for infrastructure failures.
func (s *Service) Preview(ctx context.Context, storeID uuid.UUID, code string, cart CartFacts, profile Profile) (Result, error) {
	if s == nil || s.Q == nil {
		return Result{}, errors.New("coupon: service not configured")
	}
	normalized := NormalizeCode(code)
	if normalized == "" {
		return Rejected(ErrInvalidCoupon), nil
	}
	rule, err := s.Q.FindByCode(ctx, storeID, normalized)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rejected(ErrInvalidCoupon), nil
		}
		return Result{}, err
	}
	if err := rule.Validate(s.now(), cart, profile); err != nil {
		return Rejected(err), nil
	}
	discount := rule.Compute(cart.Subtotal)
	if discount <= 0 {
		return Rejected(ErrInvalidCoupon), nil
	}
	return Result{Valid: true, Code: rule.Code, Discount: discount}, nil
}

// Redeem performs the atomic commit-time usage check: increment the usage
// counter only if it stays within the limit, then record the redemption.
// It reports false when the coupon lost the race; the caller must fall back
// to an undiscounted total rather than failing the order.
func (s *Service) Redeem(ctx context.Context, q Querier, storeID uuid.UUID, code string, orderID, userID uuid.UUID, amount int64) (bool, error) {
	if s == nil {
		return false, errors.New("coupon: service not configured")
	}
	if q == nil {
		q = s.Q
	}
	normalized := NormalizeCode(code)
	if normalized == "" || amount <= 0 {
		return false, nil
	}
	rule, err := q.FindByCode(ctx, storeID, normalized)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	// Expiry can race with validation; a coupon past its window is rejected
	// here even if the purge job has not deleted it yet.
	if !rule.IsActive || s.now().After(rule.ExpiresAt) {
		return false, nil
	}
	ok, err := q.IncrementUsageIfBelowLimit(ctx, rule.ID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := q.InsertRedemption(ctx, rule.ID, orderID, userID, amount); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
