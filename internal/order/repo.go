package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when an order does not exist in the caller's scope.
var ErrNotFound = errors.New("order: not found")

// DB is the subset of pgx used by the repo. Both *pgxpool.Pool and pgx.Tx
// satisfy it, so checkout can run order writes inside its transaction.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repo persists orders, their lines, and append-only adjustments.
type Repo struct {
	DB DB
}

const orderColumns = `id, store_id, user_id, status, currency,
	subtotal, discount, shipping_fee, cod_fee, total, coupon_code,
	payment_method, express, receiver_city, receiver_province,
	receiver_postal_code, receiver_country, estimated_days, notes,
	created_at, updated_at`

// Create inserts the order row and its items. Breakdown columns are written
// here and nowhere else.
func (r *Repo) Create(ctx context.Context, o Order) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO orders (
			id, store_id, user_id, status, currency,
			subtotal, discount, shipping_fee, cod_fee, total, coupon_code,
			payment_method, express, receiver_city, receiver_province,
			receiver_postal_code, receiver_country, estimated_days, notes
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		o.ID.String(), o.StoreID.String(), o.UserID.String(), string(o.Status), o.Currency,
		o.Breakdown.Subtotal, o.Breakdown.Discount, o.Breakdown.ShippingFee,
		o.Breakdown.CODFee, o.Breakdown.Total, nilIfEmpty(o.Breakdown.CouponCode),
		string(o.PaymentMethod), o.Express, o.Address.City, o.Address.Province,
		o.Address.PostalCode, o.Address.Country, o.EstimatedDays, o.Notes)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	for _, it := range o.Items {
		var variantID *string
		if it.VariantID != nil {
			s := it.VariantID.String()
			variantID = &s
		}
		if _, err := r.DB.Exec(ctx, `
			INSERT INTO order_items (
				order_id, product_id, variant_id, title, qty,
				unit_price, subtotal, weight_grams
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			o.ID.String(), it.ProductID.String(), variantID, it.Title, it.Qty,
			it.UnitPrice, it.Subtotal, it.WeightGrams); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

// Get loads one store-scoped order with items and adjustments.
func (r *Repo) Get(ctx context.Context, storeID, id uuid.UUID) (Order, error) {
	row := r.DB.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE store_id = $1 AND id = $2`,
		storeID.String(), id.String())
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	if o.Items, err = r.listItems(ctx, id); err != nil {
		return Order{}, err
	}
	if o.Adjustments, err = r.listAdjustments(ctx, id); err != nil {
		return Order{}, err
	}
	return o, nil
}

// GetByID loads one order without store scoping. Payment reconciliation
// only has the order id the provider echoed back.
func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (Order, error) {
	row := r.DB.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id.String())
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// GetForUser loads one order owned by the given user.
func (r *Repo) GetForUser(ctx context.Context, storeID, userID, id uuid.UUID) (Order, error) {
	o, err := r.Get(ctx, storeID, id)
	if err != nil {
		return Order{}, err
	}
	if o.UserID != userID {
		return Order{}, ErrNotFound
	}
	return o, nil
}

// ListByStore returns recent orders for a store, newest first.
func (r *Repo) ListByStore(ctx context.Context, storeID uuid.UUID, limit, offset int32) ([]Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.DB.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE store_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		storeID.String(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpdateStatusIf performs a compare-and-set status transition. It reports
// whether the row actually moved, so a stale caller notices it lost.
func (r *Repo) UpdateStatusIf(ctx context.Context, id uuid.UUID, from, to Status) (bool, error) {
	tag, err := r.DB.Exec(ctx,
		`UPDATE orders SET status = $3, updated_at = now()
		 WHERE id = $1 AND status = $2`,
		id.String(), string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CancelStalePending cancels orders stuck in PENDING_PAYMENT since before
// the cutoff and returns their ids.
func (r *Repo) CancelStalePending(ctx context.Context, before time.Time) ([]uuid.UUID, error) {
	rows, err := r.DB.Query(ctx, `
		UPDATE orders SET status = 'CANCELED', updated_at = now()
		WHERE status = 'PENDING_PAYMENT' AND created_at < $1
		RETURNING id`, before)
	if err != nil {
		return nil, fmt.Errorf("cancel stale pending: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertAdjustment appends one correction to the order.
func (r *Repo) InsertAdjustment(ctx context.Context, a Adjustment) (Adjustment, error) {
	row := r.DB.QueryRow(ctx, `
		INSERT INTO order_adjustments (order_id, kind, amount, reason)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		a.OrderID.String(), string(a.Kind), a.Amount, a.Reason)
	var id string
	if err := row.Scan(&id, &a.CreatedAt); err != nil {
		return Adjustment{}, fmt.Errorf("insert adjustment: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Adjustment{}, err
	}
	a.ID = parsed
	return a, nil
}

func (r *Repo) listItems(ctx context.Context, orderID uuid.UUID) ([]Item, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, variant_id, title, qty,
		       unit_price, subtotal, weight_grams
		FROM order_items WHERE order_id = $1 ORDER BY id`,
		orderID.String())
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			it        Item
			id        string
			oid       string
			productID string
			variantID *string
		)
		if err := rows.Scan(&id, &oid, &productID, &variantID, &it.Title,
			&it.Qty, &it.UnitPrice, &it.Subtotal, &it.WeightGrams); err != nil {
			return nil, err
		}
		if it.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if it.OrderID, err = uuid.Parse(oid); err != nil {
			return nil, err
		}
		if it.ProductID, err = uuid.Parse(productID); err != nil {
			return nil, err
		}
		if variantID != nil {
			v, err := uuid.Parse(*variantID)
			if err != nil {
				return nil, err
			}
			it.VariantID = &v
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *Repo) listAdjustments(ctx context.Context, orderID uuid.UUID) ([]Adjustment, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, kind, amount, reason, created_at
		FROM order_adjustments WHERE order_id = $1 ORDER BY created_at`,
		orderID.String())
	if err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
	}
	defer rows.Close()

	var out []Adjustment
	for rows.Next() {
		var (
			a    Adjustment
			id   string
			oid  string
			kind string
		)
		if err := rows.Scan(&id, &oid, &kind, &a.Amount, &a.Reason, &a.CreatedAt); err != nil {
			return nil, err
		}
		if a.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if a.OrderID, err = uuid.Parse(oid); err != nil {
			return nil, err
		}
		a.Kind = AdjustmentKind(kind)
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o         Order
		id        string
		storeID   string
		userID    string
		status    string
		coupon    *string
		payMethod string
	)
	if err := row.Scan(
		&id, &storeID, &userID, &status, &o.Currency,
		&o.Breakdown.Subtotal, &o.Breakdown.Discount, &o.Breakdown.ShippingFee,
		&o.Breakdown.CODFee, &o.Breakdown.Total, &coupon,
		&payMethod, &o.Express, &o.Address.City, &o.Address.Province,
		&o.Address.PostalCode, &o.Address.Country, &o.EstimatedDays, &o.Notes,
		&o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return Order{}, err
	}
	var err error
	if o.ID, err = uuid.Parse(id); err != nil {
		return Order{}, err
	}
	if o.StoreID, err = uuid.Parse(storeID); err != nil {
		return Order{}, err
	}
	if o.UserID, err = uuid.Parse(userID); err != nil {
		return Order{}, err
	}
	o.Status = Status(status)
	o.PaymentMethod = PaymentMethod(payMethod)
	if coupon != nil {
		o.Breakdown.CouponCode = *coupon
	}
	return o, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
