package handler

import (
	"github.com/SergeiKhy/link-registry/internal/middleware"
	"github.com/SergeiKhy/link-registry/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RouterConfig struct {
	BaseURL     string
	PreviewMode bool
	// Repair очередь фоновой записи metadata, nil при синхронной записи
	Repair      RepairStatsSource
}

func NewRouter(
	linkService service.LinkService,
	rateLimiter *middleware.RateLimiter,
	apiKeyMiddleware gin.HandlerFunc,
	cfg RouterConfig,
	logger *zap.Logger,
) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	RegisterValidators()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))

	// Rate limiting для всех запросов
	if rateLimiter != nil {
		router.Use(rateLimiter.Middleware())
	}

	linkHandler := NewLinkHandler(linkService, cfg.BaseURL, logger)

	api := router.Group("/api")
	api.GET("/health", HealthCheck(cfg.Repair))

	link := api.Group("/link")
	{
		// API key только для управления ссылками
		if apiKeyMiddleware != nil {
			link.Use(apiKeyMiddleware)
		}

		preview := middleware.RejectInPreview(cfg.PreviewMode)

		link.POST("/create", linkHandler.CreateLink)
		link.PUT("/edit", preview, linkHandler.EditLink)
		link.POST("/delete", preview, linkHandler.DeleteLink)
		link.GET("/search", linkHandler.SearchLinks)
		link.GET("/query", linkHandler.QueryLink)
	}

	// Редирект без API key
	router.GET("/:slug", linkHandler.Redirect)

	return router
}
