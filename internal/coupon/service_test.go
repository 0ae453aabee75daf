package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

type stubQuerier struct {
	rule          Rule
	missing       bool
	incrementOK   bool
	increments    int
	redemptions   int
	redemptionErr error
}

func (s *stubQuerier) FindByCode(ctx context.Context, storeID uuid.UUID, code string) (Rule, error) {
	if s.missing || s.rule.Code != code {
		return Rule{}, pgx.ErrNoRows
	}
	return s.rule, nil
}

func (s *stubQuerier) IncrementUsageIfBelowLimit(ctx context.Context, couponID uuid.UUID) (bool, error) {
	s.increments++
	return s.incrementOK, nil
}

func (s *stubQuerier) InsertRedemption(ctx context.Context, couponID, orderID, userID uuid.UUID, amount int64) error {
	if s.redemptionErr != nil {
		return s.redemptionErr
	}
	s.redemptions++
	return nil
}

func fixedNow() time.Time { return time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC) }

func validRule() Rule {
	return Rule{
		ID:        uuid.New(),
		StoreID:   uuid.New(),
		Code:      "SAVE50",
		Type:      DiscountFixed,
		Amount:    5_000,
		IsActive:  true,
		ExpiresAt: fixedNow().Add(time.Hour),
	}
}

func TestPreviewAppliesDiscount(t *testing.T) {
	rule := validRule()
	svc := &Service{Q: &stubQuerier{rule: rule}, Now: fixedNow}
	result, err := svc.Preview(context.Background(), rule.StoreID, "save50", CartFacts{Subtotal: 45_000, DistinctCount: 2}, Profile{})
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, "SAVE50", result.Code)
	require.Equal(t, int64(5_000), result.Discount)
}

func TestPreviewUnknownCodeIsRejectionNotError(t *testing.T) {
	svc := &Service{Q: &stubQuerier{missing: true}, Now: fixedNow}
	result, err := svc.Preview(context.Background(), uuid.New(), "NOPE", CartFacts{Subtotal: 10_000, DistinctCount: 1}, Profile{})
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Equal(t, "INVALID_COUPON", result.ReasonCode)
}

func TestPreviewRejectionCarriesReason(t *testing.T) {
	rule := validRule()
	rule.MinSubtotal = 100_000
	svc := &Service{Q: &stubQuerier{rule: rule}, Now: fixedNow}
	result, err := svc.Preview(context.Background(), rule.StoreID, "SAVE50", CartFacts{Subtotal: 10_000, DistinctCount: 1}, Profile{})
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Equal(t, "MINIMUM_NOT_MET", result.ReasonCode)
}

func TestRedeemSucceedsWithinLimit(t *testing.T) {
	rule := validRule()
	q := &stubQuerier{rule: rule, incrementOK: true}
	svc := &Service{Q: q, Now: fixedNow}
	ok, err := svc.Redeem(context.Background(), nil, rule.StoreID, "SAVE50", uuid.New(), uuid.New(), 5_000)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, q.increments)
	require.Equal(t, 1, q.redemptions)
}

func TestRedeemLoserFallsBack(t *testing.T) {
	rule := validRule()
	q := &stubQuerier{rule: rule, incrementOK: false}
	svc := &Service{Q: q, Now: fixedNow}
	ok, err := svc.Redeem(context.Background(), nil, rule.StoreID, "SAVE50", uuid.New(), uuid.New(), 5_000)
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, q.redemptions)
}

func TestRedeemRejectsExpiredInRaceWindow(t *testing.T) {
	rule := validRule()
	rule.ExpiresAt = fixedNow().Add(-time.Second)
	q := &stubQuerier{rule: rule, incrementOK: true}
	svc := &Service{Q: q, Now: fixedNow}
	ok, err := svc.Redeem(context.Background(), nil, rule.StoreID, "SAVE50", uuid.New(), uuid.New(), 5_000)
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, q.increments)
}
