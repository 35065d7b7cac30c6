package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ragserve/core/internal/infra/config"
)

// NewRouter wires up the HTTP handlers and returns a configured server.
func NewRouter(cfg *config.Config, handler *Handler) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		requestIDMiddleware(),
		errorHandlingMiddleware(handler.logger),
		requestLogger(handler.logger),
		corsMiddleware(cfg.HTTP.AllowedOrigins),
		rateLimitMiddleware(cfg.HTTP.RateLimit, handler.logger),
	)

	router.GET("/health", handler.Health)
	router.GET("/readiness", handler.Readiness)
	router.GET("/liveness", handler.Liveness)

	api := router.Group("/api/v1")
	protected := api.Group("/")
	protected.Use(authMiddleware(handler.verifier))
	{
		protected.POST("/ingest", handler.Ingest)
		protected.POST("/query", handler.Query)
		protected.GET("/history/:session_id", handler.History)
		protected.GET("/sessions", handler.ListSessions)
		protected.DELETE("/sessions/:session_id", handler.DeleteSession)
		protected.POST("/evaluate", handler.Evaluate)
	}

	return &http.Server{
		Addr:           cfg.HTTP.Address,
		Handler:        withRetry(router, cfg.HTTP.Retry, handler.logger),
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("http request", "method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status(), "request_id", requestID(c), "latency_ms", latency.Milliseconds())
	}
}
