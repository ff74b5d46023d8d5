package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bridgesync/backend/internal/application/catalogsync"
	"github.com/bridgesync/backend/internal/application/ordersync"
	"github.com/bridgesync/backend/internal/domain/order"
	"github.com/bridgesync/backend/internal/infrastructure/cache"
	"github.com/bridgesync/backend/internal/infrastructure/config"
	"github.com/bridgesync/backend/internal/infrastructure/destination"
	"github.com/bridgesync/backend/internal/infrastructure/feedclient"
	"github.com/bridgesync/backend/internal/infrastructure/logger"
	"github.com/bridgesync/backend/internal/infrastructure/persistence"
	"github.com/bridgesync/backend/internal/infrastructure/retry"
	"github.com/bridgesync/backend/internal/infrastructure/source"
	"github.com/bridgesync/backend/internal/infrastructure/storage"
	"github.com/bridgesync/backend/internal/interfaces/http/handler"
	"github.com/bridgesync/backend/internal/interfaces/http/middleware"
	"github.com/bridgesync/backend/internal/interfaces/http/router"
)

func main() {
	var (
		once        bool
		catalogType string
	)
	flag.BoolVar(&once, "once", false, "Run one catalog sync and exit")
	flag.StringVar(&catalogType, "catalog", "full", "Catalog feed type: full or segment")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting BridgeSync",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database connection with SQL logging routed through zap
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithGormLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	repo := persistence.NewGormSyncedProductRepository(db.DB)

	retrier := retry.New(retry.Config{
		MaxAttempts:      cfg.Sync.Retry.MaxAttempts,
		InitialDelay:     cfg.Sync.Retry.InitialDelay,
		MinDelay:         cfg.Sync.Retry.MinDelay,
		JitterFraction:   cfg.Sync.Retry.JitterFraction,
		RetryAfterMargin: cfg.Sync.Retry.RetryAfterMargin,
	}, retry.WithLogger(log))

	// Feed client, with optional S3 archive of fetched files
	feedOpts := []feedclient.Option{feedclient.WithLogger(log)}
	if cfg.Storage.Enabled {
		archive, err := storage.NewS3FeedArchive(&cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to initialize feed archive", zap.Error(err))
		}
		ensureCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := archive.EnsureBucket(ensureCtx); err != nil {
			log.Warn("Feed archive bucket unavailable", zap.Error(err))
		}
		cancel()
		feedOpts = append(feedOpts, feedclient.WithArchiver(archive))
	}
	feedClient := feedclient.NewClient(feedclient.Config{
		BaseURL: cfg.Feed.BaseURL,
		WorkDir: cfg.Feed.WorkDir,
		Timeout: cfg.Feed.Timeout,
	}, feedclient.NewSignedAuthHeader(cfg.Feed.AccessKey, cfg.Feed.SecretKey), feedOpts...)

	destClient := destination.NewClient(destination.Config{
		Endpoint:    cfg.Destination.Endpoint,
		AccessToken: cfg.Destination.AccessToken,
		Timeout:     cfg.Destination.Timeout,
	}, destination.WithLogger(log))

	sourceClient := source.NewClient(source.Config{
		BaseURL:     cfg.Source.BaseURL,
		AccessToken: cfg.Source.AccessToken,
		Timeout:     cfg.Source.Timeout,
	}, source.WithLogger(log))

	// Order idempotency store: Redis when configured, in-memory otherwise
	storeFactory := cache.NewIdempotencyStoreFactory(cfg.Redis, cache.WithLogger(log))
	var store order.IdempotencyStore
	if cfg.Redis.Enabled {
		store, err = storeFactory.CreateStore()
		if err != nil {
			log.Fatal("Failed to create idempotency store", zap.Error(err))
		}
	} else {
		store = storeFactory.CreateInMemoryStore()
		log.Warn("Using in-memory idempotency store; duplicate webhook deliveries are only deduplicated within this process")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	orchestrator := catalogsync.NewOrchestrator(repo, destClient, retrier, catalogsync.Config{
		GroupSize:         cfg.Sync.GroupSize,
		ExchangeRate:      cfg.Sync.ExchangeRateDecimal(),
		MarkupPercent:     cfg.Sync.MarkupPercentDecimal(),
		HandlingFee:       cfg.Sync.HandlingFeeDecimal(),
		ForceResync:       cfg.Sync.ForceResync,
		LocationID:        cfg.Destination.LocationID,
		ChannelIDs:        cfg.Destination.ChannelIDs,
		CategoryAllowList: cfg.Feed.CategoryAllowList,
		ImageResolution:   cfg.Feed.ImageResolution,
	}, catalogsync.WithLogger(log), catalogsync.WithFetcher(feedClient))

	reconciler := ordersync.NewReconciler(sourceClient, destClient, store, retrier, ordersync.Config{
		IdempotencyTTL: cfg.Order.IdempotencyTTL,
	}, ordersync.WithLogger(log))

	feedType := feedclient.CatalogType(catalogType)

	if once {
		if err := runFeedSync(ctx, orchestrator, feedType, log); err != nil {
			log.Fatal("Catalog sync failed", zap.Error(err))
		}
		return
	}

	// Webhook intake server
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.RequestID(),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Invalid trusted proxies", zap.Error(err))
		}
	}

	r := router.NewRouter(engine)
	r.Register(handler.NewHealthHandler(db))
	r.Setup()

	hooks := engine.Group("/", middleware.VerifySignature(cfg.HTTP.WebhookSecret))
	handler.NewOrderWebhookHandler(reconciler, log).RegisterRoutes(hooks)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("Webhook server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Scheduler loop for periodic catalog syncs
	go func() {
		if cfg.Sync.RunOnStart {
			if err := runFeedSync(ctx, orchestrator, feedType, log); err != nil {
				log.Error("Catalog sync failed", zap.Error(err))
			}
		}
		ticker := time.NewTicker(cfg.Sync.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := runFeedSync(ctx, orchestrator, feedType, log); err != nil {
					log.Error("Catalog sync failed", zap.Error(err))
				}
			}
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Shutdown complete")
}

// runFeedSync executes one catalog sync cycle under a cycle-scoped logger.
func runFeedSync(ctx context.Context, orchestrator *catalogsync.Orchestrator, feedType feedclient.CatalogType, log *zap.Logger) error {
	start := time.Now()
	summary, err := orchestrator.RunFeedSync(ctx, feedType, start.UTC())
	if err != nil {
		return err
	}
	log.Info("Catalog sync cycle finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("errored", summary.Errored),
		zap.Int("skipped_filter", summary.SkippedFilter),
		zap.Int("skipped_unchanged", summary.SkippedUnchanged),
	)
	return nil
}
