package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"marketplace-sync-service/internal/cache"
	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/clients/amazon"
	"marketplace-sync-service/internal/clients/dukaan"
	"marketplace-sync-service/internal/clients/shopify"
	"marketplace-sync-service/internal/config"
	"marketplace-sync-service/internal/credits"
	"marketplace-sync-service/internal/database"
	"marketplace-sync-service/internal/events"
	"marketplace-sync-service/internal/handlers"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/repository"
	"marketplace-sync-service/internal/secrets"
	"marketplace-sync-service/internal/services"
)

func main() {
	// .env is optional outside local development
	_ = godotenv.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg := config.Load()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	log := logger.WithField("service", "marketplace-sync-service")

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		log.WithError(err).Fatal("Failed to migrate database")
	}
	log.Info("Database models migrated")

	// Credential store
	var store secrets.CredentialStore
	switch cfg.CredentialBackend {
	case config.CredentialBackendGCP:
		gcpStore, err := secrets.NewGCPStore(ctx, cfg.GCPProjectID, cfg.CredentialCacheTTL)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize GCP Secret Manager")
		}
		defer gcpStore.Close()
		store = gcpStore
	default:
		key, _ := cfg.EncryptionKey()
		aeadStore, err := secrets.NewAEADStore(key)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize credential store")
		}
		store = aeadStore
	}
	log.WithField("backend", cfg.CredentialBackend).Info("Credential store initialized")

	// Marketplace adapters
	registry := clients.NewRegistry(clients.Deps{
		Limiter: rateLimiter(cfg),
		RetryPolicy: clients.RetryPolicy{
			InitialDelay:   cfg.RetryInitialDelay,
			MaxDelay:       cfg.RetryMaxDelay,
			MaxRetries:     cfg.RetryMaxRetries,
			AttemptTimeout: cfg.RequestTimeout,
		},
		HTTPClient: &http.Client{Timeout: cfg.RequestTimeout},
		Logger:     logger.WithField("component", "clients"),
		BaseURLs:   baseURLs(cfg),
	})
	registry.Register(models.MarketplaceShopify, shopify.New)
	registry.Register(models.MarketplaceAmazon, amazon.New)
	registry.Register(models.MarketplaceDukaan, dukaan.New)

	// Shared state: redis when configured, process memory otherwise
	var (
		seen services.SeenSet         = cache.NewMemorySeenSet()
		lock services.DistributedLock = cache.NewMemoryLock()
	)
	if cfg.RedisURL != "" {
		redisClient, err := cache.NewRedisClient(ctx, cfg.RedisURL, cfg.RedisPassword)
		if err != nil {
			log.WithError(err).Warn("Redis unavailable, using in-process webhook dedup and sync locks")
		} else {
			defer redisClient.Close()
			seen = cache.NewRedisSeenSet(redisClient)
			lock = cache.NewRedisLock(redisClient)
			log.Info("Redis connected")
		}
	}

	var notifier services.Notifier = events.NewLogNotifier(logger)
	if cfg.NATSURL != "" {
		natsNotifier, err := events.NewNATSNotifier(cfg.NATSURL, logger)
		if err != nil {
			log.WithError(err).Warn("NATS unavailable, notifications are logged only")
		} else {
			defer natsNotifier.Close()
			notifier = natsNotifier
			log.Info("NATS connected")
		}
	}

	var ledger services.CreditLedger = credits.Unlimited{}
	if cfg.CreditsServiceURL != "" {
		ledger = credits.NewHTTPClient(cfg.CreditsServiceURL, 5*time.Second)
	}

	// Repositories
	connectionRepo := repository.NewConnectionRepository(db)
	syncRepo := repository.NewSyncRepository(db)
	productRepo := repository.NewProductRepository(db)
	inventoryRepo := repository.NewInventoryRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	conflictRepo := repository.NewConflictRepository(db)
	webhookRepo := repository.NewWebhookRepository(db)

	// Services
	reconciler := services.NewStockReconciler(db, notifier, log)
	ingestion := services.NewIngestionService(productRepo, orderRepo, conflictRepo, reconciler, notifier, log)
	connectionService := services.NewConnectionService(connectionRepo, syncRepo, productRepo, store, registry, log)
	syncService := services.NewSyncService(connectionRepo, syncRepo, connectionService, ingestion,
		services.NewConnectionLocker(lock, cfg.SyncLockTTL), notifier, ledger,
		services.SyncOptions{
			BatchSize:      cfg.SyncBatchSize,
			MaxParallel:    cfg.SyncMaxParallel,
			Timeout:        cfg.SyncTimeout,
			CreditsPerSync: cfg.CreditsPerSync,
		}, log)
	webhookService := services.NewWebhookService(webhookRepo, connectionRepo, connectionService, syncService, ingestion, services.NewEventOrdering(db), seen, cfg.WebhookDedupTTL, log)
	pushService := services.NewProductPushService(productRepo, connectionRepo, connectionService, reconciler, ledger, cfg.CreditsPerPush, log)
	syncConfigService := services.NewSyncConfigService(connectionRepo, syncRepo, inventoryRepo)
	conflictService := services.NewConflictService(conflictRepo, log)

	router := handlers.NewRouter(handlers.Handlers{
		Health:      handlers.NewHealthHandler(db),
		Connections: handlers.NewConnectionHandler(connectionService, syncConfigService),
		Sync:        handlers.NewSyncHandler(syncService),
		Webhooks:    handlers.NewWebhookHandler(webhookService),
		Products:    handlers.NewProductHandler(pushService),
		Conflicts:   handlers.NewConflictHandler(conflictService),
	}, handlers.RouterOptions{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         log,
	})

	go syncService.Start(ctx, cfg.SyncInterval)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"port":        cfg.Port,
			"environment": cfg.Environment,
		}).Info("Marketplace sync service starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}
}

// rateLimiter starts from each marketplace's published buckets and applies
// RATE_LIMIT_<MARKETPLACE>_<CLASS>_* overrides
func rateLimiter(cfg *config.Config) *clients.RateLimiter {
	buckets := make(map[clients.BucketKey]clients.BucketConfig)
	for _, defaults := range []map[clients.BucketKey]clients.BucketConfig{
		shopify.DefaultBuckets(),
		amazon.DefaultBuckets(),
		dukaan.DefaultBuckets(),
	} {
		for key, bucket := range defaults {
			buckets[key] = bucket
		}
	}

	for name, override := range cfg.RateLimits {
		marketplace, class, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		key := clients.BucketKey{
			Marketplace: models.MarketplaceType(marketplace),
			Class:       clients.OperationClass(strings.ToLower(class)),
		}
		bucket := buckets[key]
		if override.RPS > 0 {
			bucket.RestoreRatePerSecond = override.RPS
		}
		if override.Burst > 0 {
			bucket.BurstCapacity = override.Burst
		}
		buckets[key] = bucket
	}

	return clients.NewRateLimiter(buckets, clients.BucketConfig{BurstCapacity: 2, RestoreRatePerSecond: 2})
}

func baseURLs(cfg *config.Config) map[models.MarketplaceType]string {
	urls := make(map[models.MarketplaceType]string, len(cfg.MarketplaceBaseURLs))
	for name, url := range cfg.MarketplaceBaseURLs {
		urls[models.MarketplaceType(strings.ToUpper(name))] = url
	}
	return urls
}
