package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/SergeiKhy/link-registry/internal/config"
	"github.com/SergeiKhy/link-registry/internal/handler"
	"github.com/SergeiKhy/link-registry/internal/kv"
	"github.com/SergeiKhy/link-registry/internal/middleware"
	"github.com/SergeiKhy/link-registry/internal/repository"
	"github.com/SergeiKhy/link-registry/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const purgeInterval = 10 * time.Minute

func main() {
	// Загрузка конфига
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	// Запись metadata: синхронно или через worker pool
	listerOpts := []service.ListerOption{service.WithPageSize(cfg.Links.ListPageSize)}
	var repairStats handler.RepairStatsSource
	if cfg.Links.RepairAsync {
		repairProcessor := service.NewRepairProcessor(store, cfg.Links.RepairWorkers, logger)
		repairProcessor.Start()
		defer repairProcessor.Stop()
		listerOpts = append(listerOpts, service.WithRepairer(repairProcessor))
		repairStats = repairProcessor
	}

	linkRepo := repository.NewLinkRepository(store)
	lister := service.NewLinkLister(store, logger, listerOpts...)
	linkService := service.NewLinkService(linkRepo, lister, service.LinkServiceConfig{
		CaseSensitive: cfg.Links.CaseSensitive,
		Expiration: service.ExpirationPolicy{
			PreviewMode: cfg.Links.PreviewMode,
			PreviewTTL:  cfg.Links.PreviewTTL,
		},
	}, logger)

	// Инициализация middleware
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
	})
	defer rateLimiter.Stop()

	var apiKeyMiddleware gin.HandlerFunc
	if len(cfg.Auth.APIKeys) > 0 {
		apiKeyMiddleware = middleware.NewAPIKeyAuth(cfg.Auth.APIKeys).Middleware()
		logger.Info("API key authentication enabled", zap.Int("keys_count", len(cfg.Auth.APIKeys)))
	} else {
		logger.Warn("API_KEYS is empty, link management is not protected")
	}

	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(linkService, rateLimiter, apiKeyMiddleware, handler.RouterConfig{
		BaseURL:     cfg.App.BaseURL,
		PreviewMode: cfg.Links.PreviewMode,
		Repair:      repairStats,
	}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second, // листинг большого хранилища может занять время
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting",
			zap.String("port", cfg.App.Port),
			zap.String("store", cfg.Store.Driver),
			zap.Bool("preview_mode", cfg.Links.PreviewMode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	<-ctx.Done()

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// openStore подключает выбранный драйвер хранилища
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (kv.Store, func()) {
	switch cfg.Store.Driver {
	case config.StoreRedis:
		client, err := kv.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		logger.Info("Connected to Redis")
		return kv.NewRedisStore(client), func() { _ = client.Close() }

	case config.StorePostgres:
		pool, err := kv.NewPostgresPool(cfg.DB)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		if err := kv.Migrate(pool); err != nil {
			pool.Close()
			logger.Fatal("Failed to apply migrations", zap.Error(err))
		}
		logger.Info("Connected to PostgreSQL")

		store := kv.NewPostgresStore(pool)
		go purgeExpired(ctx, store, logger)
		return store, pool.Close

	default:
		logger.Warn("Using in-memory store, links are lost on restart")
		return kv.NewMemoryStore(), func() {}
	}
}

// purgeExpired периодически удаляет просроченные строки kv_entries
func purgeExpired(ctx context.Context, store *kv.PostgresStore, logger *zap.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("Failed to purge expired entries", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("Purged expired entries", zap.Int64("count", n))
			}
		}
	}
}
