package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is satisfied by *pgxpool.Pool and pgx.Tx alike, letting the checkout
// transaction reuse the same queries.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repo implements Querier and the seller CRUD surface on Postgres.
type Repo struct {
	DB DB
}

const couponColumns = `id, store_id, code, discount_type, percent_bps, amount,
	min_subtotal, min_product_count, product_ids, for_new_user, for_member,
	first_order_only, one_time_per_user, usage_limit, used_count, is_public,
	is_active, expires_at`

// FindByCode looks a coupon up by normalized code within one store's scope.
func (r *Repo) FindByCode(ctx context.Context, storeID uuid.UUID, code string) (Rule, error) {
	if r == nil || r.DB == nil {
		return Rule{}, errors.New("coupon: repo not configured")
	}
	row := r.DB.QueryRow(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE store_id = $1 AND code = $2`,
		storeID.String(), NormalizeCode(code))
	return scanRule(row)
}

// IncrementUsageIfBelowLimit is the atomic commit-time guard: the UPDATE only
// lands when the counter stays within usage_limit, so two racing commits can
// never both redeem the last slot.
func (r *Repo) IncrementUsageIfBelowLimit(ctx context.Context, couponID uuid.UUID) (bool, error) {
	if r == nil || r.DB == nil {
		return false, errors.New("coupon: repo not configured")
	}
	tag, err := r.DB.Exec(ctx,
		`UPDATE coupons SET used_count = used_count + 1
		 WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`,
		couponID.String())
	if err != nil {
		return false, fmt.Errorf("coupon: increment usage: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// InsertRedemption records one successful redemption for audit and per-user checks.
func (r *Repo) InsertRedemption(ctx context.Context, couponID, orderID, userID uuid.UUID, amount int64) error {
	if r == nil || r.DB == nil {
		return errors.New("coupon: repo not configured")
	}
	_, err := r.DB.Exec(ctx,
		`INSERT INTO coupon_redemptions (id, coupon_id, order_id, user_id, amount, redeemed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), couponID.String(), orderID.String(), userID.String(), amount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("coupon: insert redemption: %w", err)
	}
	return nil
}

// HasRedemption reports whether the user already redeemed this coupon.
func (r *Repo) HasRedemption(ctx context.Context, couponID, userID uuid.UUID) (bool, error) {
	if r == nil || r.DB == nil {
		return false, errors.New("coupon: repo not configured")
	}
	var count int64
	err := r.DB.QueryRow(ctx,
		`SELECT COUNT(1) FROM coupon_redemptions WHERE coupon_id = $1 AND user_id = $2`,
		couponID.String(), userID.String()).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create inserts a new coupon rule.
func (r *Repo) Create(ctx context.Context, rule Rule) (Rule, error) {
	if r == nil || r.DB == nil {
		return Rule{}, errors.New("coupon: repo not configured")
	}
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	rule.Code = NormalizeCode(rule.Code)
	_, err := r.DB.Exec(ctx, `
		INSERT INTO coupons (id, store_id, code, discount_type, percent_bps, amount,
			min_subtotal, min_product_count, product_ids, for_new_user, for_member,
			first_order_only, one_time_per_user, usage_limit, used_count, is_public,
			is_active, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		rule.ID.String(), rule.StoreID.String(), rule.Code, string(rule.Type),
		rule.PercentBps, rule.Amount, rule.MinSubtotal, rule.MinProductCount,
		uuidStrings(rule.ProductIDs), rule.ForNewUser, rule.ForMember,
		rule.FirstOrderOnly, rule.OneTimePerUser, rule.UsageLimit, rule.UsedCount,
		rule.IsPublic, rule.IsActive, rule.ExpiresAt)
	if err != nil {
		return Rule{}, fmt.Errorf("coupon: create: %w", err)
	}
	return rule, nil
}

// Update replaces the mutable attributes of an existing coupon. The usage
// counter is intentionally untouched.
func (r *Repo) Update(ctx context.Context, rule Rule) (Rule, error) {
	if r == nil || r.DB == nil {
		return Rule{}, errors.New("coupon: repo not configured")
	}
	rule.Code = NormalizeCode(rule.Code)
	tag, err := r.DB.Exec(ctx, `
		UPDATE coupons SET discount_type = $3, percent_bps = $4, amount = $5,
			min_subtotal = $6, min_product_count = $7, product_ids = $8,
			for_new_user = $9, for_member = $10, first_order_only = $11,
			one_time_per_user = $12, usage_limit = $13, is_public = $14,
			is_active = $15, expires_at = $16
		WHERE store_id = $1 AND code = $2`,
		rule.StoreID.String(), rule.Code, string(rule.Type), rule.PercentBps,
		rule.Amount, rule.MinSubtotal, rule.MinProductCount, uuidStrings(rule.ProductIDs),
		rule.ForNewUser, rule.ForMember, rule.FirstOrderOnly, rule.OneTimePerUser,
		rule.UsageLimit, rule.IsPublic, rule.IsActive, rule.ExpiresAt)
	if err != nil {
		return Rule{}, fmt.Errorf("coupon: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Rule{}, ErrInvalidCoupon
	}
	return rule, nil
}

// List returns the store's coupons, soonest-expiring first.
func (r *Repo) List(ctx context.Context, storeID uuid.UUID) ([]Rule, error) {
	if r == nil || r.DB == nil {
		return nil, errors.New("coupon: repo not configured")
	}
	rows, err := r.DB.Query(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE store_id = $1 ORDER BY expires_at ASC`,
		storeID.String())
	if err != nil {
		return nil, fmt.Errorf("coupon: list: %w", err)
	}
	defer rows.Close()
	var rules []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// PurgeExpired deletes coupons whose expiry is older than before. Expired
// coupons are still rejected by the evaluator in the window before deletion.
func (r *Repo) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	if r == nil || r.DB == nil {
		return 0, errors.New("coupon: repo not configured")
	}
	tag, err := r.DB.Exec(ctx, `DELETE FROM coupons WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("coupon: purge expired: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRule(row pgx.Row) (Rule, error) {
	var rule Rule
	var id, storeID, discountType string
	var productIDs []string
	if err := row.Scan(&id, &storeID, &rule.Code, &discountType, &rule.PercentBps,
		&rule.Amount, &rule.MinSubtotal, &rule.MinProductCount, &productIDs,
		&rule.ForNewUser, &rule.ForMember, &rule.FirstOrderOnly, &rule.OneTimePerUser,
		&rule.UsageLimit, &rule.UsedCount, &rule.IsPublic, &rule.IsActive,
		&rule.ExpiresAt); err != nil {
		return Rule{}, err
	}
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return Rule{}, err
	}
	parsedStore, err := uuid.Parse(storeID)
	if err != nil {
		return Rule{}, err
	}
	rule.ID = parsedID
	rule.StoreID = parsedStore
	rule.Type = DiscountType(discountType)
	for _, raw := range productIDs {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return Rule{}, err
		}
		rule.ProductIDs = append(rule.ProductIDs, parsed)
	}
	return rule, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
