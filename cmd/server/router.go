package main

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/ZanzyTHEbar/blind-match/docs"
	"github.com/ZanzyTHEbar/blind-match/internal/errors"
	"github.com/ZanzyTHEbar/blind-match/internal/monitoring"
	"github.com/ZanzyTHEbar/blind-match/internal/security"
)

// setupRouter registers middleware and routes.
func setupRouter(app *application) *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies(app.cfg.Server.TrustedProxies); err != nil {
		app.logger.SystemLogger("trusted_proxies_invalid", err.Error())
	}

	// Monitoring first so it sees every request.
	r.Use(monitoring.MonitoringMiddleware(app.metrics, app.logger))
	r.Use(monitoring.SecurityMonitoringMiddleware(app.logger))

	r.Use(errors.RecoveryHandler())
	r.Use(errors.ErrorHandler())

	r.Use(security.SecurityHeadersMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     app.cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	if app.compress != nil {
		r.Use(app.compress.Handler())
	}
	r.Use(app.security.LimitBody)
	r.Use(app.security.RequestTimeout)
	r.Use(app.security.ValidateContentType)
	r.Use(app.limiter.IPRateLimitMiddleware())

	r.GET("/health", app.handleHealth)
	r.GET("/metrics", app.handleMetrics)
	r.GET("/cache/stats", app.handleCacheStats)
	r.GET("/pools/database", app.handleDatabasePool)
	r.GET("/pools/redis", app.handleRedisPool)
	r.GET("/ratelimit/status", app.limiter.HandleRateLimitStatus())

	if app.cfg.Server.Swagger {
		docs.SwaggerInfo.Version = version
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	scoreLimit := app.limiter.EndpointRateLimitMiddleware("compatibility", app.cfg.RateLimit.ScorePerMinute)

	api := r.Group("/api")
	{
		api.POST("/compatibility", scoreLimit, app.handleCompatibility)
		api.POST("/compatibility/group", scoreLimit, app.handleGroup)
		api.POST("/compatibility/preview", app.auth.RequireAdmin(), app.handlePreview)
		api.POST("/questions", app.limiter.EndpointRateLimitMiddleware("questions", app.cfg.RateLimit.ScorePerMinute), app.handleQuestions)
		api.POST("/admin/login", app.handleLogin)
	}

	admin := api.Group("/admin", app.auth.RequireAdmin())
	{
		admin.PUT("/participants", app.handleSaveParticipant)
		admin.GET("/participants/:number", app.handleGetParticipant)

		admin.GET("/events/:event/participants", app.handleListEventParticipants)
		admin.GET("/events/:event/results", app.handleListResults)
		admin.POST("/events/:event/advance", app.handleAdvanceEvent)
		admin.DELETE("/events/:event/run", app.handleCancelRun)

		admin.GET("/locks", app.handleListLocks)
		admin.POST("/locks", app.handleCreateLock)
		admin.DELETE("/locks/:id", app.handleDeleteLock)

		admin.GET("/exclusions", app.handleListExclusions)
		admin.POST("/exclusions/pairs", app.handleExcludePair)
		admin.DELETE("/exclusions/pairs", app.handleRemovePairExclusion)
		admin.POST("/exclusions/participants", app.handleExcludeParticipant)
		admin.DELETE("/exclusions/participants/:number", app.handleRemoveParticipantExclusion)
		admin.POST("/exclusions/clear-temporary", app.handleClearTemporaryExclusions)

		admin.GET("/sessions", app.handleListSessions)
		admin.POST("/cache/invalidate", app.handleInvalidateCache)
		admin.POST("/llm/reset", app.handleResetLLM)
		admin.GET("/policy", app.handlePolicy)
		admin.GET("/privacy", app.handlePrivacy)

		admin.GET("/ratelimits", app.limiter.HandleAdminRateLimits())
		admin.DELETE("/ratelimits/:ip", app.limiter.HandleAdminInvalidateIP())

		if app.cfg.Server.Profiling {
			app.logger.SystemLogger("profiling_enabled", "/api/admin/debug/pprof")
			pprof.RouteRegister(admin, "debug/pprof")
		}
	}

	return r
}
