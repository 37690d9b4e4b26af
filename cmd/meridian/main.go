package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-dms/meridian-dms/internal/app"
	"github.com/meridian-dms/meridian-dms/internal/collection"
	"github.com/meridian-dms/meridian-dms/internal/dispatch"
	"github.com/meridian-dms/meridian-dms/internal/masterdata/drivers"
	"github.com/meridian-dms/meridian-dms/internal/masterdata/products"
	"github.com/meridian-dms/meridian-dms/internal/masterdata/retailers"
	"github.com/meridian-dms/meridian-dms/internal/observability"
	"github.com/meridian-dms/meridian-dms/internal/picklist"
	"github.com/meridian-dms/meridian-dms/internal/platform/cache"
	"github.com/meridian-dms/meridian-dms/internal/recon"
	"github.com/meridian-dms/meridian-dms/internal/rgb"
	"github.com/meridian-dms/meridian-dms/internal/sale"
	"github.com/meridian-dms/meridian-dms/internal/shared"
	"github.com/meridian-dms/meridian-dms/internal/stock"
	"github.com/meridian-dms/meridian-dms/jobs"
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

	dbpool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, summary cache disabled", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}
	summaryCache := cache.NewJSONCache(redisClient, cfg.StockSummaryTTL)

	auditLogger := shared.NewAuditLogger(dbpool)

	productRepo := products.NewRepository(dbpool)
	driverRepo := drivers.NewRepository(dbpool)
	retailerRepo := retailers.NewRepository(dbpool)

	stockRepo := stock.NewRepository(dbpool)
	stockService := stock.NewService(stockRepo, productRepo, summaryCache, logger, cfg.LowStockThreshold)
	stockHandler := stock.NewHandler(logger, stockService)

	dispatchRepo := dispatch.NewRepository(dbpool)
	dispatchService := dispatch.NewService(dispatchRepo, driverRepo, productRepo, logger)
	dispatchHandler := dispatch.NewHandler(logger, dispatchService)

	saleRepo := sale.NewRepository(dbpool)
	saleService := sale.NewService(saleRepo, productRepo, retailerRepo, logger)
	saleHandler := sale.NewHandler(logger, saleService)

	collectionRepo := collection.NewRepository(dbpool)
	collectionService := collection.NewService(collectionRepo, logger)
	collectionHandler := collection.NewHandler(logger, collectionService)

	pickListRepo := picklist.NewRepository(dbpool)
	pickListService := picklist.NewService(pickListRepo, productRepo, logger)
	pickListHandler := picklist.NewHandler(logger, pickListService)

	rgbRepo := rgb.NewRepository(dbpool)
	rgbEngine := rgb.NewEngine(rgbRepo, productRepo, auditLogger, cfg.EmptyCrateValue, logger)
	rgbHandler := rgb.NewHandler(logger, rgbEngine)

	reconRepo := recon.NewRepository(dbpool)
	reconService := recon.NewService(reconRepo, productRepo, recon.Tolerances{
		Amount:  cfg.ReconToleranceAmount,
		Percent: cfg.ReconTolerancePercent,
	}, cfg.FullCrateValue, logger)
	reconHandler := recon.NewHandler(logger, reconService)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		StockHandler:      stockHandler,
		DispatchHandler:   dispatchHandler,
		SaleHandler:       saleHandler,
		CollectionHandler: collectionHandler,
		PickListHandler:   pickListHandler,
		RGBHandler:        rgbHandler,
		ReconHandler:      reconHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
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
