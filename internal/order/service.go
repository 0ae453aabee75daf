package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mkarim-dev/backend-bazar/internal/events"
)

// ErrInvalidTransition is returned when a status change would move an order
// backwards or out of a terminal state.
var ErrInvalidTransition = errors.New("order: invalid status transition")

// ErrInvalidAdjustment is returned for malformed correction requests.
var ErrInvalidAdjustment = errors.New("order: invalid adjustment")

// Store is the subset of repo operations the service needs. *Repo
// satisfies it; tests substitute a stub.
type Store interface {
	Get(ctx context.Context, storeID, id uuid.UUID) (Order, error)
	UpdateStatusIf(ctx context.Context, id uuid.UUID, from, to Status) (bool, error)
	InsertAdjustment(ctx context.Context, a Adjustment) (Adjustment, error)
}

// Service wraps repo access with transition guards and event emission.
type Service struct {
	Repo   Store
	Events *events.Bus
	Logger zerolog.Logger
}

// Transition moves an order from its current status to target, enforcing
// the forward-only rank rule. MarkPaid and Cancel are the two callers.
func (s *Service) Transition(ctx context.Context, storeID, id uuid.UUID, target Status) (Order, error) {
	o, err := s.Repo.Get(ctx, storeID, id)
	if err != nil {
		return Order{}, err
	}
	if target == o.Status {
		return o, nil
	}
	if o.Status == StatusCanceled {
		return Order{}, ErrInvalidTransition
	}
	if target != StatusCanceled && Rank(target) <= Rank(o.Status) {
		return Order{}, ErrInvalidTransition
	}
	if target == StatusCanceled && o.Status != StatusPendingPayment {
		return Order{}, ErrInvalidTransition
	}
	moved, err := s.Repo.UpdateStatusIf(ctx, id, o.Status, target)
	if err != nil {
		return Order{}, err
	}
	if !moved {
		return Order{}, ErrInvalidTransition
	}
	o.Status = target
	s.emitTransition(ctx, o, target)
	return o, nil
}

// Adjust appends a refund or surcharge to a paid order. The persisted
// breakdown is never rewritten; the correction lives in its own row and
// order.adjusted carries the new effective total.
func (s *Service) Adjust(ctx context.Context, storeID, id uuid.UUID, kind AdjustmentKind, amount int64, reason string) (Adjustment, error) {
	if amount <= 0 {
		return Adjustment{}, fmt.Errorf("%w: amount must be positive", ErrInvalidAdjustment)
	}
	if strings.TrimSpace(reason) == "" {
		return Adjustment{}, fmt.Errorf("%w: reason is required", ErrInvalidAdjustment)
	}
	switch kind {
	case AdjustmentRefund:
		amount = -amount
	case AdjustmentSurcharge:
	default:
		return Adjustment{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidAdjustment, kind)
	}
	o, err := s.Repo.Get(ctx, storeID, id)
	if err != nil {
		return Adjustment{}, err
	}
	if o.Status != StatusPaid {
		return Adjustment{}, fmt.Errorf("%w: only paid orders can be adjusted", ErrInvalidAdjustment)
	}
	if kind == AdjustmentRefund && -amount > o.EffectiveTotal() {
		return Adjustment{}, fmt.Errorf("%w: refund exceeds remaining total", ErrInvalidAdjustment)
	}
	adj, err := s.Repo.InsertAdjustment(ctx, Adjustment{
		OrderID: id,
		Kind:    kind,
		Amount:  amount,
		Reason:  strings.TrimSpace(reason),
	})
	if err != nil {
		return Adjustment{}, err
	}
	o.Adjustments = append(o.Adjustments, adj)
	if s.Events != nil {
		if _, err := s.Events.Emit(ctx, events.TopicOrderAdjusted, id, map[string]any{
			"orderId":        id.String(),
			"kind":           string(kind),
			"amount":         amount,
			"effectiveTotal": o.EffectiveTotal(),
		}); err != nil {
			s.Logger.Warn().Err(err).Str("order_id", id.String()).Msg("order.adjusted emit failed")
		}
	}
	return adj, nil
}

func (s *Service) emitTransition(ctx context.Context, o Order, target Status) {
	if s.Events == nil {
		return
	}
	var topic string
	switch target {
	case StatusPaid:
		topic = events.TopicOrderPaid
	case StatusCanceled:
		topic = events.TopicOrderCanceled
	default:
		return
	}
	if _, err := s.Events.Emit(ctx, topic, o.ID, map[string]any{
		"orderId": o.ID.String(),
		"storeId": o.StoreID.String(),
		"total":   o.Breakdown.Total,
	}); err != nil {
		s.Logger.Warn().Err(err).Str("order_id", o.ID.String()).Str("topic", topic).Msg("event emit failed")
	}
}
