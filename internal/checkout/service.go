package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/mkarim-dev/backend-bazar/internal/catalog"
	"github.com/mkarim-dev/backend-bazar/internal/coupon"
	"github.com/mkarim-dev/backend-bazar/internal/events"
	"github.com/mkarim-dev/backend-bazar/internal/order"
	"github.com/mkarim-dev/backend-bazar/internal/pricing"
	"github.com/mkarim-dev/backend-bazar/internal/shipping"
)

// ErrPaymentMethodUnavailable is returned when the buyer picked COD but the
// store has it disabled.
var ErrPaymentMethodUnavailable = errors.New("checkout: payment method unavailable")

// ErrEmptyCart is returned when a checkout carries no lines.
var ErrEmptyCart = errors.New("checkout: cart is empty")

// Input is one checkout attempt. Lines reference catalog products; the
// address drives zone classification.
type Input struct {
	Lines         []catalog.LineInput
	Address       shipping.Address
	CouponCode    string
	PaymentMethod order.PaymentMethod
	Express       bool
	Notes         *string
}

// Preview is the advisory outcome: what the order would cost right now.
// Nothing is reserved and no usage counters move.
type Preview struct {
	Snapshot  catalog.Snapshot  `json:"snapshot"`
	Coupon    coupon.Result     `json:"coupon"`
	Quote     shipping.Quote    `json:"quote"`
	Breakdown pricing.Breakdown `json:"breakdown"`
}

// Commit is the committed outcome. CouponFallback reports that the coupon
// passed preview but lost the usage-limit race at commit time, so the order
// was persisted undiscounted.
type Commit struct {
	Order          order.Order       `json:"order"`
	Breakdown      pricing.Breakdown `json:"breakdown"`
	CouponApplied  bool              `json:"couponApplied"`
	CouponFallback bool              `json:"couponFallback"`
}

// Beginner starts transactions. *pgxpool.Pool satisfies it.
type Beginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// SettingSource loads a store's shipping configuration. *shipping.Repo
// satisfies it.
type SettingSource interface {
	Get(ctx context.Context, storeID uuid.UUID) (shipping.Setting, error)
}

type orderWriter interface {
	Create(ctx context.Context, o order.Order) error
}

// Service orchestrates one checkout: snapshot, coupon, shipping, assembly,
// and the transactional commit.
type Service struct {
	DB       Beginner
	Catalog  catalog.Builder
	Shipping SettingSource
	Coupons  *coupon.Service
	Profiles ProfileProvider
	Events   *events.Bus
	Currency string
	Logger   zerolog.Logger

	// Store factories bind repos to the commit transaction. Tests swap
	// them for stubs; nil means the pgx-backed defaults.
	NewCouponStore func(tx pgx.Tx) coupon.Querier
	NewOrderStore  func(tx pgx.Tx) orderWriter
}

func (s *Service) couponStore(tx pgx.Tx) coupon.Querier {
	if s.NewCouponStore != nil {
		return s.NewCouponStore(tx)
	}
	return &coupon.Repo{DB: tx}
}

func (s *Service) orderStore(tx pgx.Tx) orderWriter {
	if s.NewOrderStore != nil {
		return s.NewOrderStore(tx)
	}
	return &order.Repo{DB: tx}
}

func checkPaymentMethod(method order.PaymentMethod, setting shipping.Setting) error {
	switch method {
	case order.PaymentCOD:
		if !setting.CODAvailable() {
			return ErrPaymentMethodUnavailable
		}
		return nil
	case order.PaymentPrepaid:
		return nil
	default:
		return fmt.Errorf("checkout: unknown payment method %q", method)
	}
}

type computation struct {
	snapshot  catalog.Snapshot
	setting   shipping.Setting
	coupon    coupon.Result
	quote     shipping.Quote
	breakdown pricing.Breakdown
}

// PreviewOrder prices the cart without committing anything. Coupon
// rejections ride inside the result; only infrastructure failures error.
// The payment-method gate runs here too, so a buyer selecting COD against
// a store that disabled it is warned before commit.
func (s *Service) PreviewOrder(ctx context.Context, storeID, userID uuid.UUID, in Input) (Preview, error) {
	comp, err := s.compute(ctx, storeID, userID, in)
	if err != nil {
		return Preview{}, err
	}
	if err := checkPaymentMethod(in.PaymentMethod, comp.setting); err != nil {
		return Preview{}, err
	}
	return Preview{
		Snapshot:  comp.snapshot,
		Coupon:    comp.coupon,
		Quote:     comp.quote,
		Breakdown: comp.breakdown,
	}, nil
}

// CommitOrder re-prices the cart, redeems the coupon under the usage-limit
// gate, and persists the order atomically. Losing the redemption race never
// fails the checkout: the order commits at the undiscounted total.
func (s *Service) CommitOrder(ctx context.Context, storeID, userID uuid.UUID, in Input) (Commit, error) {
	comp, err := s.compute(ctx, storeID, userID, in)
	if err != nil {
		return Commit{}, err
	}
	if err := checkPaymentMethod(in.PaymentMethod, comp.setting); err != nil {
		return Commit{}, err
	}

	orderID := uuid.New()
	out := Commit{Breakdown: comp.breakdown}

	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Commit{}, fmt.Errorf("checkout: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if comp.coupon.Valid && comp.coupon.Discount > 0 {
		redeemed, err := s.Coupons.Redeem(ctx, s.couponStore(tx), storeID,
			comp.coupon.Code, orderID, userID, comp.coupon.Discount)
		if err != nil {
			return Commit{}, fmt.Errorf("checkout: redeem coupon: %w", err)
		}
		if redeemed {
			out.CouponApplied = true
		} else {
			// Lost the usage-limit race between preview and commit.
			out.CouponFallback = true
			out.Breakdown = pricing.Assemble(comp.snapshot.Subtotal(), 0,
				comp.quote.ShippingFee, comp.quote.CODFee, "")
		}
	}

	o := order.Order{
		ID:            orderID,
		StoreID:       storeID,
		UserID:        userID,
		Status:        order.StatusPendingPayment,
		Currency:      s.Currency,
		Breakdown:     out.Breakdown,
		PaymentMethod: in.PaymentMethod,
		Express:       in.Express,
		Address:       in.Address,
		EstimatedDays: comp.quote.EstimatedDays,
		Notes:         in.Notes,
		Items:         orderItems(orderID, comp.snapshot),
	}
	if err := s.orderStore(tx).Create(ctx, o); err != nil {
		return Commit{}, fmt.Errorf("checkout: persist order: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Commit{}, fmt.Errorf("checkout: commit tx: %w", err)
	}
	out.Order = o

	s.emit(ctx, events.TopicOrderCreated, orderID, map[string]any{
		"orderId": orderID.String(),
		"storeId": storeID.String(),
		"userId":  userID.String(),
		"total":   out.Breakdown.Total,
	})
	if out.CouponApplied {
		s.emit(ctx, events.TopicCouponRedeemed, orderID, map[string]any{
			"orderId":  orderID.String(),
			"code":     comp.coupon.Code,
			"discount": comp.coupon.Discount,
		})
	}
	return out, nil
}

func (s *Service) compute(ctx context.Context, storeID, userID uuid.UUID, in Input) (computation, error) {
	if len(in.Lines) == 0 {
		return computation{}, ErrEmptyCart
	}
	snapshot, err := s.Catalog.Build(ctx, storeID, in.Lines)
	if err != nil {
		return computation{}, err
	}
	setting, err := s.Shipping.Get(ctx, storeID)
	if err != nil {
		return computation{}, err
	}

	result := coupon.Result{}
	if coupon.NormalizeCode(in.CouponCode) != "" {
		profile, err := s.Profiles.ProfileFor(ctx, storeID, userID, in.CouponCode)
		if err != nil {
			return computation{}, err
		}
		result, err = s.Coupons.Preview(ctx, storeID, in.CouponCode, cartFacts(snapshot), profile)
		if err != nil {
			return computation{}, err
		}
	}

	quote, err := setting.Calculate(shipping.Input{
		Subtotal:    snapshot.Subtotal(),
		ItemCount:   int32(snapshot.ItemCount()),
		WeightGrams: snapshot.TotalWeightGrams(),
		Zone:        setting.ClassifyDestination(in.Address),
		Express:     in.Express,
		COD:         in.PaymentMethod == order.PaymentCOD,
	})
	if err != nil {
		return computation{}, err
	}

	code := ""
	if result.Valid {
		code = result.Code
	}
	breakdown := pricing.Assemble(snapshot.Subtotal(), result.Discount,
		quote.ShippingFee, quote.CODFee, code)

	return computation{
		snapshot:  snapshot,
		setting:   setting,
		coupon:    result,
		quote:     quote,
		breakdown: breakdown,
	}, nil
}

func (s *Service) emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload map[string]any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, aggregateID, payload); err != nil {
		s.Logger.Warn().Err(err).Str("topic", topic).Msg("event emit failed")
	}
}

func cartFacts(snapshot catalog.Snapshot) coupon.CartFacts {
	ids := make([]uuid.UUID, 0, len(snapshot.Lines))
	for _, l := range snapshot.Lines {
		ids = append(ids, l.ProductID)
	}
	return coupon.CartFacts{
		Subtotal:      snapshot.Subtotal(),
		DistinctCount: snapshot.DistinctCount(),
		ProductIDs:    ids,
	}
}

func orderItems(orderID uuid.UUID, snapshot catalog.Snapshot) []order.Item {
	items := make([]order.Item, 0, len(snapshot.Lines))
	for _, l := range snapshot.Lines {
		items = append(items, order.Item{
			OrderID:     orderID,
			ProductID:   l.ProductID,
			VariantID:   l.VariantID,
			Title:       l.Title,
			Qty:         l.Qty,
			UnitPrice:   l.UnitPrice,
			Subtotal:    l.LineTotal,
			WeightGrams: l.WeightGrams,
		})
	}
	return items
}
