package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mkarim-dev/backend-bazar/internal/common"
	"github.com/mkarim-dev/backend-bazar/internal/events"
	"github.com/mkarim-dev/backend-bazar/internal/obs"
	"github.com/mkarim-dev/backend-bazar/internal/order"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw body.
const SignatureHeader = "X-Webhook-Signature"

// OrderSource loads orders for reconciliation. *order.Repo satisfies it.
type OrderSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (order.Order, error)
}

// Transitioner applies guarded status changes. *order.Service satisfies it.
type Transitioner interface {
	Transition(ctx context.Context, storeID, id uuid.UUID, target order.Status) (order.Order, error)
}

type notification struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
	Amount  int64  `json:"amount"`
}

// Webhook receives payment provider callbacks, verifies their signature,
// reconciles the paid amount against the persisted breakdown, and settles
// the order.
type Webhook struct {
	Secret    string
	Orders    OrderSource
	Svc       Transitioner
	Events    *events.Bus
	Replay    *redis.Client
	ReplayTTL time.Duration
	Logger    zerolog.Logger
}

// Handle processes one provider callback.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	if !VerifySignature(h.Secret, body, r.Header.Get(SignatureHeader)) {
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}
	ctx := r.Context()
	if h.Replay != nil && h.ReplayTTL > 0 {
		key := fmt.Sprintf("wh:payment:%s", common.Sha256HexBytes(body))
		ok, err := h.Replay.SetNX(ctx, key, "1", h.ReplayTTL).Result()
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", err.Error(), nil)
			return
		}
		if !ok {
			common.JSONError(w, http.StatusConflict, "REPLAY", "duplicate webhook", nil)
			return
		}
	}

	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "payload is not valid json", nil)
		return
	}
	orderID, err := uuid.Parse(n.OrderID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_ORDER_ID", "invalid order identifier", nil)
		return
	}
	o, err := h.Orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order lookup failed", nil)
		return
	}

	switch normalizeStatus(n.Status) {
	case order.StatusPaid:
		if n.Amount != o.Breakdown.Total {
			h.Logger.Warn().
				Str("order_id", orderID.String()).
				Int64("provider_amount", n.Amount).
				Int64("order_total", o.Breakdown.Total).
				Msg("webhook amount mismatch")
			countWebhook("amount_mismatch")
			common.JSONError(w, http.StatusUnprocessableEntity, "AMOUNT_MISMATCH", "provider amount does not match order total", nil)
			return
		}
		if o.Status == order.StatusPaid {
			// Provider retry after a successful settlement.
			countWebhook("duplicate")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if _, err := h.Svc.Transition(ctx, o.StoreID, orderID, order.StatusPaid); err != nil {
			if errors.Is(err, order.ErrInvalidTransition) {
				common.JSONError(w, http.StatusConflict, "INVALID_STATE", "order cannot be settled", nil)
				return
			}
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "settlement failed", nil)
			return
		}
	case order.StatusCanceled:
		if o.Status == order.StatusPendingPayment {
			if _, err := h.Svc.Transition(ctx, o.StoreID, orderID, order.StatusCanceled); err != nil {
				common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cancellation failed", nil)
				return
			}
		}
		if h.Events != nil {
			_, _ = h.Events.Emit(ctx, events.TopicPaymentFailed, orderID, map[string]any{
				"orderId": orderID.String(),
				"status":  n.Status,
			})
		}
	default:
		common.JSONError(w, http.StatusBadRequest, "UNKNOWN_STATUS", "unsupported payment status", nil)
		return
	}
	countWebhook("processed")
	w.WriteHeader(http.StatusNoContent)
}

func countWebhook(result string) {
	if obs.PaymentWebhookTotal != nil {
		obs.PaymentWebhookTotal.WithLabelValues(result).Inc()
	}
}

func normalizeStatus(status string) order.Status {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "PAID", "SUCCESS", "SETTLED", "SETTLEMENT":
		return order.StatusPaid
	case "FAILED", "CANCELED", "DENY", "EXPIRED":
		return order.StatusCanceled
	default:
		return order.Status("")
	}
}
