package coupon

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/mkarim-dev/backend-bazar/internal/lock"
)

// TaskPurgeExpired is the asynq task type for the expired-coupon sweep.
const TaskPurgeExpired = "coupon:purge_expired"

// NewPurgeExpiredTask builds the periodic purge task.
func NewPurgeExpiredTask() *asynq.Task {
	return asynq.NewTask(TaskPurgeExpired, nil)
}

// Cleaner deletes coupons past their expiry. The delete is advisory hygiene:
// evaluation rejects expired coupons regardless, so a sweep that lags behind
// never lets an expired code through.
type Cleaner struct {
	Repo    *Repo
	Locker  lock.Locker
	LockTTL time.Duration
	Logger  zerolog.Logger
}

// HandlePurgeExpired runs one sweep under a distributed lock so concurrent
// workers do not double-delete.
func (c *Cleaner) HandlePurgeExpired(ctx context.Context, _ *asynq.Task) error {
	ttl := c.LockTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return c.Locker.WithLock(ctx, "coupon:purge", ttl, func(ctx context.Context) error {
		purged, err := c.Repo.PurgeExpired(ctx, time.Now().UTC())
		if err != nil {
			c.Logger.Error().Err(err).Msg("purge expired coupons")
			return err
		}
		if purged > 0 {
			c.Logger.Info().Int64("purged", purged).Msg("expired coupons removed")
		}
		return nil
	})
}
