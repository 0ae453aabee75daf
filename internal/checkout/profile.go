package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkarim-dev/backend-bazar/internal/coupon"
)

// ProfileProvider derives the customer facts coupon eligibility rules run
// against. Implementations must scope everything to one store.
type ProfileProvider interface {
	ProfileFor(ctx context.Context, storeID, userID uuid.UUID, couponCode string) (coupon.Profile, error)
}

// ProfileRepo answers profile questions from the orders and redemptions
// tables. A customer is "new" until their first non-canceled order in the
// store; membership comes from the store_members table.
type ProfileRepo struct {
	Pool *pgxpool.Pool
}

// ProfileFor builds the eligibility profile for one customer and coupon.
func (r *ProfileRepo) ProfileFor(ctx context.Context, storeID, userID uuid.UUID, couponCode string) (coupon.Profile, error) {
	var p coupon.Profile

	var orderCount int64
	err := r.Pool.QueryRow(ctx, `
		SELECT count(*) FROM orders
		WHERE store_id = $1 AND user_id = $2 AND status <> 'CANCELED'`,
		storeID.String(), userID.String()).Scan(&orderCount)
	if err != nil {
		return coupon.Profile{}, fmt.Errorf("profile order count: %w", err)
	}
	p.HasPriorOrder = orderCount > 0
	p.IsNewUser = orderCount == 0

	err = r.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM store_members WHERE store_id = $1 AND user_id = $2
		)`, storeID.String(), userID.String()).Scan(&p.IsMember)
	if err != nil {
		return coupon.Profile{}, fmt.Errorf("profile membership: %w", err)
	}

	if code := coupon.NormalizeCode(couponCode); code != "" {
		err = r.Pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM coupon_redemptions cr
				JOIN coupons c ON c.id = cr.coupon_id
				WHERE c.store_id = $1 AND c.code = $2 AND cr.user_id = $3
			)`, storeID.String(), code, userID.String()).Scan(&p.HasRedeemed)
		if err != nil {
			return coupon.Profile{}, fmt.Errorf("profile redemption: %w", err)
		}
	}
	return p, nil
}
