package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/ll-cart/api/internal/handlers"
	"github.com/ll-cart/api/internal/payments"
	"github.com/ll-cart/api/internal/platform/config"
	pfirestore "github.com/ll-cart/api/internal/platform/firestore"
	"github.com/ll-cart/api/internal/platform/idempotency"
	"github.com/ll-cart/api/internal/platform/observability"
	"github.com/ll-cart/api/internal/repositories"
	firestoreRepo "github.com/ll-cart/api/internal/repositories/firestore"
	"github.com/ll-cart/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	buildInfo := buildInfoFromEnv(startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	cartRepo, err := firestoreRepo.NewCartRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise cart repository", zap.Error(err))
	}
	intentRepo, err := firestoreRepo.NewIntentRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise intent repository", zap.Error(err))
	}
	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	addressRepo, err := firestoreRepo.NewAddressRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise address repository", zap.Error(err))
	}
	productRepo, err := firestoreRepo.NewProductRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise product repository", zap.Error(err))
	}

	gatewayLogger := logger.Named("razorpay")
	gateway, err := payments.NewRazorpayGateway(payments.RazorpayConfig{
		KeyID:     cfg.Gateway.KeyID,
		KeySecret: cfg.Gateway.KeySecret,
		BaseURL:   cfg.Gateway.BaseURL,
		Timeout:   cfg.Gateway.Timeout,
		Logger:    zapEventLogger(gatewayLogger),
		Clock:     time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise razorpay gateway", zap.Error(err))
	}

	cartService, err := services.NewCartService(services.CartServiceDeps{
		Repository:  cartRepo,
		Products:    productRepo,
		Clock:       time.Now,
		MaxItems:    cfg.Cart.MaxItems,
		MaxQuantity: cfg.Cart.MaxQuantity,
		Logger:      zapEventLogger(logger.Named("cart")),
	})
	if err != nil {
		logger.Fatal("failed to initialise cart service", zap.Error(err))
	}

	checkoutService, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:     cartRepo,
		Products:  productRepo,
		Addresses: addressRepo,
		Intents:   intentRepo,
		Gateway:   gateway,
		Clock:     time.Now,
		Currency:  cfg.Payments.Currency,
		Logger:    zapEventLogger(logger.Named("checkout")),
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout service", zap.Error(err))
	}

	reconciliationService, err := services.NewReconciliationService(services.ReconciliationServiceDeps{
		Intents:   intentRepo,
		Gateway:   gateway,
		Clock:     time.Now,
		IntentTTL: cfg.Intents.TTL,
		Logger:    zapEventLogger(logger.Named("reconcile")),
	})
	if err != nil {
		logger.Fatal("failed to initialise reconciliation service", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Repository: orderRepo,
		Logger:     zapEventLogger(logger.Named("orders")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	systemService, err := newSystemService(firestoreClient, buildInfo)
	if err != nil {
		logger.Warn("health: system service init failed", zap.Error(err))
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	var backgroundWG sync.WaitGroup

	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		backgroundWG.Add(1)
		go func() {
			defer backgroundWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(backgroundCtx, time.Minute)
					removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-backgroundCtx.Done():
					return
				}
			}
		}()
	}

	var sweepTicker *time.Ticker
	if cfg.Intents.SweepInterval > 0 {
		sweepTicker = time.NewTicker(cfg.Intents.SweepInterval)
		backgroundWG.Add(1)
		go func() {
			defer backgroundWG.Done()
			sweepLogger := logger.Named("sweeper")
			for {
				select {
				case <-sweepTicker.C:
					runCtx, cancel := context.WithTimeout(backgroundCtx, time.Minute)
					swept, err := reconciliationService.SweepExpired(runCtx)
					cancel()
					if err != nil {
						sweepLogger.Error("intent sweep error", zap.Error(err))
						continue
					}
					if swept > 0 {
						sweepLogger.Info("expired intents failed", zap.Int("count", swept))
					}
				case <-backgroundCtx.Done():
					return
				}
			}
		}()
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(cfg.Firestore.ProjectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID),
	}
	if cfg.RateLimits.DefaultPerMinute > 0 {
		middlewares = append(middlewares, handlers.RateLimitMiddleware(cfg.RateLimits.DefaultPerMinute, time.Minute))
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(systemService),
	)
	cartHandlers := handlers.NewCartHandlers(cartService, productRepo)
	paymentHandlers := handlers.NewPaymentHandlers(checkoutService, reconciliationService)
	orderHandlers := handlers.NewOrderHandlers(orderService)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithPaymentMiddlewares(idempotencyMiddleware),
		handlers.WithOrderRoutes(orderHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("ll-cart api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	if sweepTicker != nil {
		sweepTicker.Stop()
	}
	backgroundCancel()
	backgroundWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// zapEventLogger adapts a zap logger to the event-map logging contract the
// services and the gateway use.
func zapEventLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("event", zFields...)
	}
}

func buildInfoFromEnv(started time.Time) services.BuildInfo {
	return services.BuildInfo{
		Version:     os.Getenv("API_BUILD_VERSION"),
		CommitSHA:   os.Getenv("API_BUILD_COMMIT"),
		Environment: os.Getenv("API_ENVIRONMENT"),
		StartedAt:   started,
	}
}

func newSystemService(client *firestore.Client, build services.BuildInfo) (services.SystemService, error) {
	if client == nil {
		return nil, errors.New("system service requires firestore client")
	}

	checks := []repositories.DependencyCheck{
		{
			Name: "firestore",
			Check: func(ctx context.Context) error {
				iter := client.Collections(ctx)
				if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
					return err
				}
				return nil
			},
		},
	}

	healthRepo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	return services.NewSystemService(services.SystemServiceDeps{
		Health: healthRepo,
		Build:  build,
		Clock:  time.Now,
	})
}
