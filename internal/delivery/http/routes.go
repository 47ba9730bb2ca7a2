package http

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/quotedesk/backend/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, log zerolog.Logger) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware())
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(RateLimitMiddleware(cfg.RateLimit.PerIP, cfg.RateLimit.Burst))

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.POST("/orgs", handler.CreateOrganization)

		org := v1.Group("/orgs/:orgID")
		{
			org.POST("/catalog/import", handler.ImportCatalog)
			org.GET("/catalog", handler.ListCatalog)
			org.POST("/competitor-refs", handler.UploadCompetitorRefs)

			org.POST("/match", handler.MatchItem)
			org.POST("/match/batch", handler.MatchBatch)
			org.GET("/suggestions", handler.Suggestions)

			quotes := org.Group("/quotes")
			{
				quotes.POST("", handler.CreateQuote)
				quotes.GET("/:quoteID", handler.GetQuote)
				quotes.POST("/:quoteID/items", handler.AddQuoteItem)
				quotes.PUT("/:quoteID/items/:itemID", handler.UpdateQuoteItem)
				quotes.DELETE("/:quoteID/items/:itemID", handler.RemoveQuoteItem)
				quotes.POST("/:quoteID/auto-match", handler.AutoMatch)
			}
		}
	}

	return router
}
