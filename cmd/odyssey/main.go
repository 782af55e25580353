package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/app"
	"github.com/odyssey-erp/odyssey-pos/internal/conflicts"
	"github.com/odyssey-erp/odyssey-pos/internal/folio"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	"github.com/odyssey-erp/odyssey-pos/internal/offline"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelServiceName,
		Insecure:    cfg.OTelInsecure,
	})
	if err != nil {
		logger.Error("setup tracing", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", slog.Any("error", err))
		}
	}()

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PoolOptions())
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if cfg.DBAutoMigrate {
		if err := db.Migrate(ctx, dbpool); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("schema migrated")
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	switch {
	case errors.Is(err, cache.ErrDisabled):
		logger.Info("redis disabled, sync receipts and locks off")
	case err != nil:
		logger.Warn("redis unavailable, sync receipts and locks off", slog.Any("error", err))
	default:
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	folioLoc, err := cfg.FolioLocation()
	if err != nil {
		logger.Error("folio timezone", slog.Any("error", err))
		os.Exit(1)
	}
	folios, err := folio.NewGenerator(folio.Config{
		MaxAttempts: cfg.FolioMaxAttempts,
		Location:    folioLoc,
		NodeID:      cfg.FolioNodeID,
	}, logger)
	if err != nil {
		logger.Error("folio generator", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	ledger := inventory.NewLedger(inventory.NewJournal(), logger, inventory.LedgerConfig{})

	inventoryService := inventory.NewService(inventory.NewRepository(dbpool), ledger, auditLogger, logger)
	salesRepo := sales.NewRepository(dbpool)
	intake := sales.NewIntake(salesRepo, ledger, folios, sales.IntakeConfig{DefaultWarehouseID: cfg.DefaultWarehouseID}, logger)
	coordinator := offline.NewCoordinator(
		salesRepo,
		intake,
		offline.NewReceiptCache(redisClient, cfg.SyncReceiptTTL),
		offline.NewLocker(redisClient, cfg.SyncLockTTL),
		metrics,
		offline.Config{MaxBatch: cfg.SyncMaxBatch},
		logger,
	)
	workflow := conflicts.NewWorkflow(salesRepo, ledger, folios, metrics, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Health:           salesRepo,
		SalesHandler:     sales.NewHandler(logger, intake),
		SyncHandler:      offline.NewHandler(logger, coordinator, cfg.SyncRateLimitPerMinute),
		ConflictsHandler: conflicts.NewHandler(logger, workflow),
		InventoryHandler: inventory.NewHandler(logger, inventoryService),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
