package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/hearth-checkout/internal/cache"
	"github.com/xenking/hearth-checkout/internal/domain/coupon"
	"github.com/xenking/hearth-checkout/internal/domain/order"
	"github.com/xenking/hearth-checkout/internal/domain/payment"
	"github.com/xenking/hearth-checkout/internal/domain/settings"
	"github.com/xenking/hearth-checkout/internal/events"
	"github.com/xenking/hearth-checkout/internal/gateway/stripecheckout"
	"github.com/xenking/hearth-checkout/internal/gateway/uddoktapay"
	"github.com/xenking/hearth-checkout/internal/handler"
	"github.com/xenking/hearth-checkout/internal/repository"
	"github.com/xenking/hearth-checkout/pkg/health"
	"github.com/xenking/hearth-checkout/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the outbox relay,
// and handles graceful shutdown. It is the single wiring point for the
// application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("payment_provider", cfg.Payment.Provider),
	)

	deliveryCharge, err := cfg.DeliveryCharge()
	if err != nil {
		return err
	}

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(zctx.Base(ctx, lg), pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	outboxRepo := repository.NewOutboxRepository(pool)
	settingsRepo := repository.NewSettingsRepository(pool)

	// Health checks.
	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck("postgres", pool.Ping))
	healthSvc.AddReadinessCheck("outbox", 5*time.Second, health.BacklogCheck(outboxRepo.Pending, cfg.Kafka.BacklogLimit))

	// Settled-payment cache.
	var outcomes payment.OutcomeCache = cache.Noop{}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		outcomes = cache.NewRedisOutcomes(rdb, cfg.Redis.OutcomeTTL)
		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
	}

	// Domain services.
	resolver := settings.NewResolver(
		settings.StoreSource{Store: settingsRepo},
		settings.EnvSource{},
	)
	gateway := newGateway(cfg.Payment, resolver, m.TracerProvider())

	coupons := coupon.NewRepoValidator(couponRepo)
	orderService := order.NewService(productRepo, coupons, orderRepo, m.TracerProvider())
	coordinator, err := payment.NewCoordinator(gateway, orderRepo, outcomes, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create payment coordinator")
	}

	// HTTP handlers.
	h := handler.New(handler.Config{
		DeliveryCharge: deliveryCharge,
		RequestTimeout: cfg.Checkout.RequestTimeout,
	}, orderService, coupons, coordinator)
	router := h.Router(handler.Probes{
		Live:  healthSvc.LiveEndpoint,
		Ready: healthSvc.ReadyEndpoint,
	})

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.Checkout.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(
			otelhttp.NewHandler(router, "checkout-api",
				otelhttp.WithTracerProvider(m.TracerProvider()),
				otelhttp.WithMeterProvider(m.MeterProvider()),
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return r.Method + " " + r.URL.Path
				}),
			),
			httpmiddleware.Recovery(lg),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins: cfg.CORS.Origins,
				AllowHeaders: []string{"Content-Type", "Authorization", "X-Client-Info", "Apikey", httpmiddleware.RequestIDHeader},
				MaxAge:       86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Skip:   httpmiddleware.SkipPaths("/livez", "/readyz"),
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.LogRequests(),
		),
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	g, gCtx := errgroup.WithContext(ctx)

	if brokers := cfg.KafkaBrokers(); len(brokers) > 0 {
		publisher := events.NewKafkaPublisher(brokers, cfg.Kafka.Topic)
		defer func() { _ = publisher.Close() }()

		relay := events.NewRelay(outboxRepo, publisher, cfg.Kafka.PollInterval, cfg.Kafka.BatchSize, lg.Named("outbox"))
		g.Go(func() error {
			return relay.Run(gCtx)
		})
	} else {
		lg.Warn("No Kafka brokers configured, order events stay in the outbox")
	}

	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gCtx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}

// newGateway builds the configured payment gateway. Credentials are looked
// up on every call so rotating them in site settings needs no restart.
func newGateway(cfg PaymentConfig, resolver *settings.Resolver, tp trace.TracerProvider) payment.Gateway {
	if cfg.Provider == ProviderStripe {
		return stripecheckout.NewClient(resolver, cfg.Currency, nil)
	}
	return uddoktapay.NewClient(resolver, &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport, otelhttp.WithTracerProvider(tp)),
	})
}
