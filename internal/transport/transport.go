package transport

import (
	"net/http"
	"time"

	"github.com/ds124wfegd/shortlink/internal/service"
	"github.com/ds124wfegd/shortlink/internal/transport/middleware"
	"github.com/gin-gonic/gin"
)

func InitRoutes(
	authHandler *AuthHandler,
	urlHandler *URLHandler,
	statsHandler *StatsHandler,
	redirectHandler *RedirectHandler,
	apiKeys service.APIKeyService,
	requestTimeout time.Duration,
) *gin.Engine {

	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.Timeout(requestTimeout))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authHandler.RegisterRoutes(router.Group("/auth"))

	protected := router.Group("", middleware.Auth(apiKeys))
	{
		urlHandler.RegisterRoutes(protected.Group("/url"))
		statsHandler.RegisterRoutes(protected.Group("/stats"))
	}

	// Public redirect, must stay last among top-level paths
	router.GET("/:code", redirectHandler.Redirect)

	return router
}
