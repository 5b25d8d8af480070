package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/gallery-checkout/internal/domain/cart"
	"github.com/xenking/gallery-checkout/internal/domain/order"
	"github.com/xenking/gallery-checkout/internal/handler"
	"github.com/xenking/gallery-checkout/internal/outbox"
	"github.com/xenking/gallery-checkout/pkg/health"
	"github.com/xenking/gallery-checkout/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the outbox relay,
// and handles graceful shutdown. It is the single wiring point for the
// application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr), zap.Bool("demo", cfg.DemoMode()))

	healthSvc := health.New()
	healthSvc.Register(health.Liveness, "goroutines", health.GoroutineCountCheck(10000))

	be, err := openBackend(ctx, lg, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer be.close()

	cache, closeCache, err := openCache(ctx, lg, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeCache()

	tokens, err := newTokens(lg, cfg)
	if err != nil {
		return err
	}

	// Domain services.
	cartService := cart.NewService(be.carts, be.catalog, cache)
	orderService, err := order.NewService(be.uow, order.ServiceOptions{
		ApprovedOnly:   cfg.Checkout.RequireApproved,
		Timeout:        cfg.Checkout.Timeout,
		Cache:          cartService.Views(),
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	// HTTP handlers.
	h := handler.NewHandler(
		handler.HandlerConfig{ImageBaseURL: cfg.ImageBaseURL},
		cartService,
		orderService,
		be.ledger,
	)
	router := chi.NewRouter()
	router.Get("/livez", healthSvc.Livez)
	router.Get("/readyz", healthSvc.Readyz)
	h.Mount(router, tokens)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.Checkout.Timeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		BaseContext: func(net.Listener) context.Context {
			return zctx.Base(context.WithoutCancel(ctx), lg)
		},
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.RequestID(),
			httpmiddleware.RouteContext(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins: cfg.CORS.Origins,
				MaxAge:       86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Rate:  cfg.RateLimit.Rate,
				Burst: cfg.RateLimit.Burst,
			}),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Instrument("gallery-api", m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(),
		),
	}

	var relay *outbox.Relay
	if brokers := outbox.ParseBrokers(cfg.Kafka.Brokers); len(brokers) > 0 {
		pub := outbox.NewKafkaPublisher(brokers, cfg.Kafka.Topic)
		defer func() {
			if err := pub.Close(); err != nil {
				lg.Warn("Kafka publisher close failed", zap.Error(err))
			}
		}()
		relay = outbox.NewRelay(be.outbox, pub, outbox.RelayOptions{
			Interval:  cfg.Kafka.PollInterval,
			BatchSize: cfg.Kafka.BatchSize,
		}, lg.Named("outbox"))
		lg.Info("Outbox relay enabled", zap.Strings("brokers", brokers), zap.String("topic", cfg.Kafka.Topic))
	} else {
		lg.Info("No Kafka brokers configured, order events stay in the outbox")
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	g, gctx := errgroup.WithContext(ctx)
	if relay != nil {
		g.Go(func() error {
			return relay.Run(gctx)
		})
	}
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		if relay != nil {
			n, err := relay.Flush(shutdownCtx)
			if err != nil {
				lg.Warn("Final outbox flush failed", zap.Error(err))
			}
			lg.Info("Final outbox flush", zap.Int("published", n))
		}
		healthSvc.Stop()
		return nil
	})

	return g.Wait()
}
