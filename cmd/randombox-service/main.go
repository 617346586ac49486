package main

import (
	"context"
	"errors"
	"log"
	"math/rand/v2"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/api"
	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/application"
	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/config"
	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/infrastructure/cache"
	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/infrastructure/messaging"
	outboxinfra "github.com/RodolfoDevApp/eventshop-randombox-go/internal/infrastructure/outbox"
	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Esperar señal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("randombox service stopped with error", zap.Error(err))
	}
	logger.Info("randombox service stopped")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	logger.Info("starting randombox service",
		zap.String("port", cfg.HttpPort),
		zap.String("store", cfg.StoreDriver))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(reg)

	// Repos
	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.close()

	stockCache, err := cache.NewLRUStockCache(cfg.StockCacheSize)
	if err != nil {
		return err
	}

	// Event buses
	buses := messaging.NewEventBuses(cfg.RabbitUri)

	// Outbox writer + dispatcher + scheduler
	outboxWriter := application.NewOutboxWriter(be.outbox)
	notifier := application.NewOutboxNotifier(outboxWriter)
	dispatcher := outboxinfra.NewDispatcher(
		be.outbox,
		buses.Producer,
		cfg.OutboxMaxRetry,
		cfg.OutboxBatchSize,
		logger,
		metrics,
	)
	scheduler := outboxinfra.NewScheduler(dispatcher, cfg.OutboxInterval, logger)

	// Application services
	ledgerOpts := application.LedgerOptions{LockWait: cfg.LockWait, LockLease: cfg.LockLease}
	ledger := application.NewInventoryLedger(be.lots, stockCache, be.locker, ledgerOpts, logger, metrics)
	queue := application.NewAdmissionQueue(cfg.PerUserProcessing, metrics)
	janitor := application.NewQueueJanitor(queue, notifier, cfg.QueueHeadTimeout, cfg.QueueSweepInterval, logger)

	purchaseSvc := application.NewPurchaseService(application.PurchaseDeps{
		Lots:      be.lots,
		Coupons:   be.coupons,
		Purchases: be.purchases,
		Queue:     queue,
		Ledger:    ledger,
		Drawer:    application.NewRewardDrawer(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		Notifier:  notifier,
		Outbox:    outboxWriter,
		Logger:    logger,
		Metrics:   metrics,
	})
	cancelSvc := application.NewCancelPurchaseService(
		be.purchases, ledger, notifier, outboxWriter, cfg.CancellationWindow, logger, metrics)
	catalogSvc := application.NewCatalogService(be.lots, ledger, be.locker, ledgerOpts, logger)
	couponSvc := application.NewCouponService(be.coupons, logger)

	// Suscripciones de catalog.events
	if err := messaging.RegisterCatalogSubscriptions(
		ctx,
		buses.CatalogConsumer,
		application.NewLotCreatedHandler(ledger, logger),
		application.NewLotStockEditedHandler(ledger, logger),
	); err != nil {
		return err
	}

	// HTTP API
	mux := http.NewServeMux()
	api.NewServer(api.Deps{
		Purchases: purchaseSvc,
		Cancels:   cancelSvc,
		Queue:     queue,
		Janitor:   janitor,
		Ledger:    ledger,
		Catalog:   catalogSvc,
		Coupons:   couponSvc,
		Gatherer:  reg,
		Logger:    logger,
	}).RegisterRoutes(mux)

	httpSrv := &http.Server{
		Addr:              ":" + cfg.HttpPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return janitor.Run(gctx) })
	g.Go(func() error {
		logger.Info("HTTP listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down randombox service")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
