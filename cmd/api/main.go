package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/mkarim-dev/backend-bazar/internal/app"
	"github.com/mkarim-dev/backend-bazar/internal/auth"
	"github.com/mkarim-dev/backend-bazar/internal/cache"
	"github.com/mkarim-dev/backend-bazar/internal/catalog"
	"github.com/mkarim-dev/backend-bazar/internal/checkout"
	"github.com/mkarim-dev/backend-bazar/internal/common"
	"github.com/mkarim-dev/backend-bazar/internal/config"
	"github.com/mkarim-dev/backend-bazar/internal/coupon"
	"github.com/mkarim-dev/backend-bazar/internal/events"
	"github.com/mkarim-dev/backend-bazar/internal/health"
	httpmiddleware "github.com/mkarim-dev/backend-bazar/internal/http/middleware"
	"github.com/mkarim-dev/backend-bazar/internal/obs"
	"github.com/mkarim-dev/backend-bazar/internal/order"
	"github.com/mkarim-dev/backend-bazar/internal/payment"
	"github.com/mkarim-dev/backend-bazar/internal/ratelimit"
	"github.com/mkarim-dev/backend-bazar/internal/security"
	"github.com/mkarim-dev/backend-bazar/internal/shipping"
	"github.com/mkarim-dev/backend-bazar/internal/tenant"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "bazar-api",
			Endpoint:      cfg.OTLPEndpoint,
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "bazar-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	if err := app.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	validate := validator.New()

	catalogRepo := &catalog.Repo{Pool: pool, Cache: cache.NewCache(redisClient, cfg.CatalogCacheTTL)}
	catalogHandler := &catalog.Handler{Repo: catalogRepo, Validate: validate}

	couponRepo := &coupon.Repo{DB: pool}
	couponSvc := &coupon.Service{Q: couponRepo}
	couponHandler := &coupon.Handler{Repo: couponRepo, Svc: couponSvc, Validate: validate}

	shippingRepo := &shipping.Repo{Pool: pool, Cache: cache.NewCache(redisClient, cfg.ShippingCacheTTL)}
	shippingHandler := &shipping.Handler{Repo: shippingRepo, Validate: validate}

	bus := &events.Bus{Store: &events.Repo{Pool: pool}}

	orderRepo := &order.Repo{DB: pool}
	orderSvc := &order.Service{Repo: orderRepo, Events: bus, Logger: logger}
	orderHandler := &order.Handler{Repo: orderRepo, Svc: orderSvc, Validate: validate}

	checkoutSvc := &checkout.Service{
		DB:       pool,
		Catalog:  catalog.Builder{Store: catalogRepo},
		Shipping: shippingRepo,
		Coupons:  couponSvc,
		Profiles: &checkout.ProfileRepo{Pool: pool},
		Events:   bus,
		Currency: cfg.Currency,
		Logger:   logger,
	}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc, Validate: validate}

	paymentWebhook := payment.Webhook{
		Secret:    cfg.WebhookSecret,
		Orders:    orderRepo,
		Svc:       orderSvc,
		Events:    bus,
		Replay:    redisClient,
		ReplayTTL: cfg.IdempotencyTTL,
		Logger:    logger,
	}

	authSvc := auth.NewService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTokenTTL)
	authMiddleware := auth.Middleware{Service: authSvc}
	sellerAuth := auth.SellerAuth{Keys: &auth.APIKeyRepo{DB: pool}}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	previewLimiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "rl:coupon-preview"},
		Config: ratelimit.Config{
			Key:    clientKey,
			Window: cfg.PreviewRateWindow,
			Max:    cfg.PreviewRateLimit,
		},
		OnError: func(err error) { logger.Error().Err(err).Msg("rate limiter") },
	}

	resolver := tenant.NewResolver(
		envOrDefault("TENANT_HEADER", "X-Store-ID"),
		envOrDefault("TENANT_ROOT_DOMAIN", ""),
		envOrDefault("TENANT_DEFAULT", ""),
	)

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(cfg.MetricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true}.Middleware)
	r.Use(security.BodyLimit{Max: int64(envInt("HTTP_MAX_BODY_BYTES", 1<<20))}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Api-Key", "X-Store-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(resolver.Middleware)

		v.Group(func(store chi.Router) {
			store.Use(httpmiddleware.RequireStore)
			store.Get("/products", catalogHandler.List)
			store.Get("/products/{productID}", catalogHandler.Get)
			store.Post("/shipping/quote", shippingHandler.Quote)
			store.With(previewLimiter.Middleware).Post("/coupons/preview", couponHandler.Preview)
		})

		v.Group(func(buyer chi.Router) {
			buyer.Use(httpmiddleware.RequireStore)
			buyer.Use(authMiddleware.RequireAuth)
			buyer.Post("/checkout/preview", checkoutHandler.Preview)
			buyer.With(idem.Middleware).Post("/checkout", checkoutHandler.Commit)
			buyer.Get("/orders/{orderId}", orderHandler.Get)
			buyer.Post("/orders/{orderId}/cancel", orderHandler.Cancel)
		})

		v.Route("/seller", func(seller chi.Router) {
			seller.Use(sellerAuth.RequireSeller)
			seller.Put("/products", catalogHandler.Upsert)
			seller.Get("/coupons", couponHandler.List)
			seller.Post("/coupons", couponHandler.Create)
			seller.Put("/coupons/{code}", couponHandler.Update)
			seller.Get("/shipping/settings", shippingHandler.Get)
			seller.Put("/shipping/settings", shippingHandler.Upsert)
			seller.Get("/orders", orderHandler.List)
			seller.Post("/orders/{orderId}/adjustments", orderHandler.Adjust)
		})

		v.Post("/webhooks/payment", paymentWebhook.Handle)
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	health.SetReady(false)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func clientKey(r *http.Request) string {
	if ip := common.ClientIP(r); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
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

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
