package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/mkarim-dev/backend-bazar/internal/catalog"
	"github.com/mkarim-dev/backend-bazar/internal/coupon"
	"github.com/mkarim-dev/backend-bazar/internal/order"
	"github.com/mkarim-dev/backend-bazar/internal/shipping"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type stubCatalog struct {
	products []catalog.Product
}

func (s *stubCatalog) GetProductsByIDs(_ context.Context, _ uuid.UUID, _ []uuid.UUID) ([]catalog.Product, error) {
	return s.products, nil
}

type stubSettings struct {
	setting shipping.Setting
}

func (s *stubSettings) Get(_ context.Context, _ uuid.UUID) (shipping.Setting, error) {
	return s.setting, nil
}

type stubProfiles struct {
	profile coupon.Profile
}

func (s *stubProfiles) ProfileFor(_ context.Context, _, _ uuid.UUID, _ string) (coupon.Profile, error) {
	return s.profile, nil
}

type stubCouponStore struct {
	rule        coupon.Rule
	found       bool
	allowRedeem bool
	increments  int
	redemptions int
}

func (s *stubCouponStore) FindByCode(_ context.Context, _ uuid.UUID, _ string) (coupon.Rule, error) {
	if !s.found {
		return coupon.Rule{}, pgx.ErrNoRows
	}
	return s.rule, nil
}

func (s *stubCouponStore) IncrementUsageIfBelowLimit(_ context.Context, _ uuid.UUID) (bool, error) {
	s.increments++
	return s.allowRedeem, nil
}

func (s *stubCouponStore) InsertRedemption(_ context.Context, _, _, _ uuid.UUID, _ int64) error {
	s.redemptions++
	return nil
}

type stubOrderWriter struct {
	created []order.Order
}

func (s *stubOrderWriter) Create(_ context.Context, o order.Order) error {
	s.created = append(s.created, o)
	return nil
}

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakeBeginner struct {
	tx *fakeTx
}

func (b *fakeBeginner) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	b.tx = &fakeTx{}
	return b.tx, nil
}

func fixture() (uuid.UUID, uuid.UUID, *stubCouponStore, *stubOrderWriter, *fakeBeginner, *Service, Input) {
	storeID := uuid.New()
	userID := uuid.New()
	productID := uuid.New()

	catalogStore := &stubCatalog{products: []catalog.Product{{
		ID:      productID,
		StoreID: storeID,
		Title:   "Canvas Tote",
		Price:   15_000,
		InStock: true,
	}}}

	couponStore := &stubCouponStore{
		found:       true,
		allowRedeem: true,
		rule: coupon.Rule{
			ID:        uuid.New(),
			StoreID:   storeID,
			Code:      "SAVE50",
			Type:      coupon.DiscountFixed,
			Amount:    5_000,
			IsActive:  true,
			ExpiresAt: fixedNow.Add(24 * time.Hour),
		},
	}

	orders := &stubOrderWriter{}
	db := &fakeBeginner{}

	svc := &Service{
		DB:      db,
		Catalog: catalog.Builder{Store: catalogStore, Now: func() time.Time { return fixedNow }},
		Shipping: &stubSettings{setting: shipping.Setting{
			StoreID:       storeID,
			Enabled:       true,
			Type:          shipping.TypeFlatRate,
			FlatRate:      4_000,
			EnableCOD:     true,
			CODFee:        1_000,
			EstimatedDays: 3,
		}},
		Coupons:        &coupon.Service{Q: couponStore, Now: func() time.Time { return fixedNow }},
		Profiles:       &stubProfiles{},
		Currency:       "IDR",
		NewCouponStore: func(pgx.Tx) coupon.Querier { return couponStore },
		NewOrderStore:  func(pgx.Tx) orderWriter { return orders },
	}

	in := Input{
		Lines:         []catalog.LineInput{{ProductID: productID, Qty: 3}},
		CouponCode:    "save50",
		PaymentMethod: order.PaymentCOD,
	}
	return storeID, userID, couponStore, orders, db, svc, in
}

func TestPreviewOrderAssemblesBreakdown(t *testing.T) {
	storeID, userID, _, _, _, svc, in := fixture()

	out, err := svc.PreviewOrder(context.Background(), storeID, userID, in)
	require.NoError(t, err)

	require.True(t, out.Coupon.Valid)
	require.Equal(t, "SAVE50", out.Coupon.Code)
	require.Equal(t, int64(45_000), out.Breakdown.Subtotal)
	require.Equal(t, int64(5_000), out.Breakdown.Discount)
	require.Equal(t, int64(4_000), out.Breakdown.ShippingFee)
	require.Equal(t, int64(1_000), out.Breakdown.CODFee)
	require.Equal(t, int64(45_000), out.Breakdown.Total)
}

func TestPreviewOrderDoesNotConsumeUsage(t *testing.T) {
	storeID, userID, coupons, _, _, svc, in := fixture()

	_, err := svc.PreviewOrder(context.Background(), storeID, userID, in)
	require.NoError(t, err)
	require.Zero(t, coupons.increments)
	require.Zero(t, coupons.redemptions)
}

func TestCommitOrderRedeemsAndPersists(t *testing.T) {
	storeID, userID, coupons, orders, db, svc, in := fixture()

	out, err := svc.CommitOrder(context.Background(), storeID, userID, in)
	require.NoError(t, err)

	require.True(t, out.CouponApplied)
	require.False(t, out.CouponFallback)
	require.Equal(t, 1, coupons.increments)
	require.Equal(t, 1, coupons.redemptions)
	require.True(t, db.tx.committed)

	require.Len(t, orders.created, 1)
	persisted := orders.created[0]
	require.Equal(t, order.StatusPendingPayment, persisted.Status)
	require.Equal(t, int64(45_000), persisted.Breakdown.Total)
	require.Equal(t, "SAVE50", persisted.Breakdown.CouponCode)
	require.Len(t, persisted.Items, 1)
	require.Equal(t, int32(3), persisted.Items[0].Qty)
}

func TestCommitOrderCouponRaceFallsBack(t *testing.T) {
	storeID, userID, coupons, orders, db, svc, in := fixture()
	coupons.allowRedeem = false

	out, err := svc.CommitOrder(context.Background(), storeID, userID, in)
	require.NoError(t, err)

	require.False(t, out.CouponApplied)
	require.True(t, out.CouponFallback)
	require.Zero(t, coupons.redemptions)
	require.True(t, db.tx.committed)

	require.Len(t, orders.created, 1)
	persisted := orders.created[0]
	require.Equal(t, int64(0), persisted.Breakdown.Discount)
	require.Equal(t, int64(50_000), persisted.Breakdown.Total)
	require.Empty(t, persisted.Breakdown.CouponCode)
}

func TestCommitOrderRejectsDisabledCOD(t *testing.T) {
	storeID, userID, _, orders, _, svc, in := fixture()
	svc.Shipping = &stubSettings{setting: shipping.Setting{
		StoreID:  storeID,
		Enabled:  true,
		Type:     shipping.TypeFlatRate,
		FlatRate: 4_000,
	}}

	_, err := svc.CommitOrder(context.Background(), storeID, userID, in)
	require.ErrorIs(t, err, ErrPaymentMethodUnavailable)
	require.Empty(t, orders.created)
}

func TestPreviewOrderRejectsDisabledCOD(t *testing.T) {
	storeID, userID, coupons, _, _, svc, in := fixture()
	svc.Shipping = &stubSettings{setting: shipping.Setting{
		StoreID:  storeID,
		Enabled:  true,
		Type:     shipping.TypeFlatRate,
		FlatRate: 4_000,
	}}

	_, err := svc.PreviewOrder(context.Background(), storeID, userID, in)
	require.ErrorIs(t, err, ErrPaymentMethodUnavailable)
	require.Zero(t, coupons.increments)
}

func TestCommitOrderUnknownCouponStillCommits(t *testing.T) {
	storeID, userID, coupons, orders, _, svc, in := fixture()
	coupons.found = false

	out, err := svc.CommitOrder(context.Background(), storeID, userID, in)
	require.NoError(t, err)

	require.False(t, out.CouponApplied)
	require.False(t, out.CouponFallback)
	require.Empty(t, out.Breakdown.CouponCode)
	require.Zero(t, out.Breakdown.Discount)
	require.Len(t, orders.created, 1)
}

func TestPreviewOrderEmptyCart(t *testing.T) {
	storeID, userID, _, _, _, svc, _ := fixture()

	_, err := svc.PreviewOrder(context.Background(), storeID, userID, Input{})
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestPreviewOrderUnknownProduct(t *testing.T) {
	storeID, userID, _, _, _, svc, in := fixture()
	svc.Catalog = catalog.Builder{Store: &stubCatalog{}, Now: func() time.Time { return fixedNow }}

	_, err := svc.PreviewOrder(context.Background(), storeID, userID, in)
	require.ErrorIs(t, err, catalog.ErrProductNotFound)
}
