package order

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mkarim-dev/backend-bazar/internal/pricing"
)

type stubStore struct {
	order       Order
	getErr      error
	moved       bool
	transitions []Status
	adjustments []Adjustment
}

func (s *stubStore) Get(_ context.Context, _, _ uuid.UUID) (Order, error) {
	if s.getErr != nil {
		return Order{}, s.getErr
	}
	return s.order, nil
}

func (s *stubStore) UpdateStatusIf(_ context.Context, _ uuid.UUID, _, to Status) (bool, error) {
	s.transitions = append(s.transitions, to)
	return s.moved, nil
}

func (s *stubStore) InsertAdjustment(_ context.Context, a Adjustment) (Adjustment, error) {
	a.ID = uuid.New()
	s.adjustments = append(s.adjustments, a)
	return a, nil
}

func paidOrder(total int64) Order {
	return Order{
		ID:        uuid.New(),
		StoreID:   uuid.New(),
		UserID:    uuid.New(),
		Status:    StatusPaid,
		Breakdown: pricing.Breakdown{Subtotal: total, Total: total},
	}
}

func TestTransitionForwardOnly(t *testing.T) {
	store := &stubStore{order: paidOrder(10_000), moved: true}
	svc := &Service{Repo: store}

	_, err := svc.Transition(context.Background(), store.order.StoreID, store.order.ID, StatusPendingPayment)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Empty(t, store.transitions)
}

func TestTransitionCanceledIsTerminal(t *testing.T) {
	store := &stubStore{order: paidOrder(10_000), moved: true}
	store.order.Status = StatusCanceled
	svc := &Service{Repo: store}

	_, err := svc.Transition(context.Background(), store.order.StoreID, store.order.ID, StatusPaid)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransitionCancelRequiresPending(t *testing.T) {
	store := &stubStore{order: paidOrder(10_000), moved: true}
	svc := &Service{Repo: store}

	_, err := svc.Transition(context.Background(), store.order.StoreID, store.order.ID, StatusCanceled)
	require.ErrorIs(t, err, ErrInvalidTransition)

	store.order.Status = StatusPendingPayment
	o, err := svc.Transition(context.Background(), store.order.StoreID, store.order.ID, StatusCanceled)
	require.NoError(t, err)
	require.Equal(t, StatusCanceled, o.Status)
}

func TestTransitionLostRace(t *testing.T) {
	store := &stubStore{order: paidOrder(10_000), moved: false}
	store.order.Status = StatusPendingPayment
	svc := &Service{Repo: store}

	_, err := svc.Transition(context.Background(), store.order.StoreID, store.order.ID, StatusPaid)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAdjustRefundStoresNegativeAmount(t *testing.T) {
	store := &stubStore{order: paidOrder(10_000)}
	svc := &Service{Repo: store}

	adj, err := svc.Adjust(context.Background(), store.order.StoreID, store.order.ID, AdjustmentRefund, 2_500, "damaged item")
	require.NoError(t, err)
	require.Equal(t, int64(-2_500), adj.Amount)
	require.Len(t, store.adjustments, 1)
}

func TestAdjustRefundCannotExceedTotal(t *testing.T) {
	store := &stubStore{order: paidOrder(10_000)}
	svc := &Service{Repo: store}

	_, err := svc.Adjust(context.Background(), store.order.StoreID, store.order.ID, AdjustmentRefund, 10_001, "too much")
	require.ErrorIs(t, err, ErrInvalidAdjustment)
}

func TestAdjustRejectsUnpaidOrders(t *testing.T) {
	store := &stubStore{order: paidOrder(10_000)}
	store.order.Status = StatusPendingPayment
	svc := &Service{Repo: store}

	_, err := svc.Adjust(context.Background(), store.order.StoreID, store.order.ID, AdjustmentSurcharge, 500, "extra freight")
	require.ErrorIs(t, err, ErrInvalidAdjustment)
}

func TestAdjustValidation(t *testing.T) {
	store := &stubStore{order: paidOrder(10_000)}
	svc := &Service{Repo: store}
	ctx := context.Background()

	_, err := svc.Adjust(ctx, store.order.StoreID, store.order.ID, AdjustmentRefund, 0, "zero")
	require.ErrorIs(t, err, ErrInvalidAdjustment)

	_, err = svc.Adjust(ctx, store.order.StoreID, store.order.ID, AdjustmentRefund, 100, "   ")
	require.ErrorIs(t, err, ErrInvalidAdjustment)

	_, err = svc.Adjust(ctx, store.order.StoreID, store.order.ID, AdjustmentKind("GIFT"), 100, "nope")
	require.ErrorIs(t, err, ErrInvalidAdjustment)
}

func TestAdjustPropagatesLookupError(t *testing.T) {
	store := &stubStore{getErr: ErrNotFound}
	svc := &Service{Repo: store}

	_, err := svc.Adjust(context.Background(), uuid.New(), uuid.New(), AdjustmentRefund, 100, "x")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestEffectiveTotal(t *testing.T) {
	o := paidOrder(10_000)
	o.Adjustments = []Adjustment{
		{Kind: AdjustmentRefund, Amount: -3_000},
		{Kind: AdjustmentSurcharge, Amount: 500},
	}
	require.Equal(t, int64(7_500), o.EffectiveTotal())

	o.Adjustments = append(o.Adjustments, Adjustment{Kind: AdjustmentRefund, Amount: -20_000})
	require.Equal(t, int64(0), o.EffectiveTotal())
}
