package api_gateway

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/progress-ledger/internal/api_gateway/handler"
	"github.com/progress-ledger/internal/api_gateway/middleware"
	"github.com/progress-ledger/internal/config"
	"github.com/progress-ledger/internal/platform/metrics"
	"go.uber.org/zap"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *zap.Logger,
	r *gin.Engine,
	cfg *config.ServerConfig,
	progressHandler *handler.ProgressHandler,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))
	r.Use(metrics.PrometheusMiddleware())

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSAllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", middleware.CorrelationIDHeader},
			ExposeHeaders:    []string{middleware.CorrelationIDHeader},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	// API v1 endpoints
	v1 := r.Group("/api/v1", limiter.Middleware())
	{
		projects := v1.Group("/projects/:project_id")
		{
			projects.POST("/progress", progressHandler.Report)
			projects.GET("/progress", progressHandler.History)
			projects.GET("/progress/latest", progressHandler.Latest)
			projects.GET("/verify", progressHandler.Verify)

			// Records are append-only
			projects.PUT("/progress/:record_id", progressHandler.RejectMutation)
			projects.PATCH("/progress/:record_id", progressHandler.RejectMutation)
			projects.DELETE("/progress/:record_id", progressHandler.RejectMutation)
		}
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
	r.GET("/metrics", metrics.Handler())
}
