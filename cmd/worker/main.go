package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mkarim-dev/backend-bazar/internal/config"
	"github.com/mkarim-dev/backend-bazar/internal/coupon"
	"github.com/mkarim-dev/backend-bazar/internal/events"
	"github.com/mkarim-dev/backend-bazar/internal/lock"
	"github.com/mkarim-dev/backend-bazar/internal/obs"
	"github.com/mkarim-dev/backend-bazar/internal/order"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	locker := lock.Locker{R: redisClient}
	bus := &events.Bus{Store: &events.Repo{Pool: pool}}

	cleaner := &coupon.Cleaner{
		Repo:    &coupon.Repo{DB: pool},
		Locker:  locker,
		LockTTL: cfg.WorkerLockTTL,
		Logger:  logger,
	}
	sweeper := &order.Sweeper{
		Repo:    &order.Repo{DB: pool},
		Events:  bus,
		Locker:  locker,
		LockTTL: cfg.WorkerLockTTL,
		MaxAge:  cfg.OrderPaymentWindow,
		Logger:  logger,
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis uri for asynq")
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(coupon.TaskPurgeExpired, cleaner.HandlePurgeExpired)
	mux.HandleFunc(order.TaskExpirePending, sweeper.HandleExpirePending)

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 4,
		Logger:      asynqLogger{logger},
	})

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{})
	if _, err := scheduler.Register(every(cfg.CouponPurgeInterval), coupon.NewPurgeExpiredTask()); err != nil {
		logger.Fatal().Err(err).Msg("register coupon purge schedule")
	}
	expireTask, err := order.NewExpirePendingTask(cfg.OrderPaymentWindow)
	if err != nil {
		logger.Fatal().Err(err).Msg("build expire pending task")
	}
	if _, err := scheduler.Register(every(cfg.WorkerLockTTL*10), expireTask); err != nil {
		logger.Fatal().Err(err).Msg("register order sweep schedule")
	}

	go func() {
		if err := scheduler.Run(); err != nil {
			logger.Error().Err(err).Msg("scheduler stopped")
		}
	}()

	logger.Info().Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start asynq server")
	}

	<-ctx.Done()
	scheduler.Shutdown()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func every(interval time.Duration) string {
	if interval <= 0 {
		interval = time.Hour
	}
	return fmt.Sprintf("@every %s", interval)
}

type asynqLogger struct {
	l zerolog.Logger
}

func (a asynqLogger) Debug(args ...any) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...any)  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...any) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...any) { a.l.Fatal().Msg(fmt.Sprint(args...)) }

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "bazar-worker"
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
