package order

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/mkarim-dev/backend-bazar/internal/events"
	"github.com/mkarim-dev/backend-bazar/internal/lock"
)

// TaskExpirePending is the asynq task type for the stale-order sweep.
const TaskExpirePending = "order:expire_pending"

// NewExpirePendingTask builds the periodic sweep task.
func NewExpirePendingTask(maxAge time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(map[string]string{"maxAge": maxAge.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExpirePending, payload), nil
}

// Sweeper cancels orders that sat in PENDING_PAYMENT past their window. It
// runs under a Redis lock so concurrent workers never double-sweep.
type Sweeper struct {
	Repo    *Repo
	Events  *events.Bus
	Locker  lock.Locker
	LockTTL time.Duration
	MaxAge  time.Duration
	Logger  zerolog.Logger
}

// HandleExpirePending is the asynq handler for TaskExpirePending.
func (s *Sweeper) HandleExpirePending(ctx context.Context, t *asynq.Task) error {
	maxAge := s.MaxAge
	var payload struct {
		MaxAge string `json:"maxAge"`
	}
	if err := json.Unmarshal(t.Payload(), &payload); err == nil && payload.MaxAge != "" {
		if parsed, err := time.ParseDuration(payload.MaxAge); err == nil && parsed > 0 {
			maxAge = parsed
		}
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	run := func(ctx context.Context) error {
		cutoff := time.Now().UTC().Add(-maxAge)
		canceled, err := s.Repo.CancelStalePending(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("cancel stale pending orders: %w", err)
		}
		for _, id := range canceled {
			if s.Events != nil {
				_, _ = s.Events.Emit(ctx, events.TopicOrderCanceled, id, map[string]any{
					"orderId": id.String(),
					"reason":  "payment window expired",
				})
			}
		}
		s.Logger.Info().Int("canceled", len(canceled)).Time("cutoff", cutoff).Msg("stale order sweep done")
		return nil
	}
	if s.Locker.R == nil {
		return run(ctx)
	}
	return s.Locker.WithLock(ctx, "order:expire_pending", s.LockTTL, run)
}
