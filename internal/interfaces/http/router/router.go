// Package router wires the gin engine and owns the HTTP server lifecycle.
package router

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crewbill/keysvc/internal/config"
	"github.com/crewbill/keysvc/internal/interfaces/http/handlers"
	"github.com/crewbill/keysvc/internal/infrastructure/monitoring"
	"github.com/crewbill/keysvc/internal/infrastructure/ratelimit"
	"github.com/crewbill/keysvc/internal/interfaces/http/middleware"
	"github.com/crewbill/keysvc/pkg/logger"
)

// Router assembles the admin HTTP surface.
type Router struct {
	engine        *gin.Engine
	config        *config.Config
	logger        logger.Logger
	keyHandler    *handlers.KeyHandler
	tokenHandler  *handlers.TokenHandler
	healthHandler *handlers.HealthHandler
	tracing       *monitoring.TracingManager
	metrics       *monitoring.Metrics
	limiter       *ratelimit.RedisRateLimiter
	server        *http.Server
}

// NewRouter creates the router. Routes are registered on Start.
func NewRouter(
	cfg *config.Config,
	log logger.Logger,
	keyHandler *handlers.KeyHandler,
	tokenHandler *handlers.TokenHandler,
	healthHandler *handlers.HealthHandler,
	tracing *monitoring.TracingManager,
	metrics *monitoring.Metrics,
	limiter *ratelimit.RedisRateLimiter,
) *Router {
	gin.SetMode(gin.ReleaseMode)

	return &Router{
		engine:        gin.New(),
		config:        cfg,
		logger:        log.WithComponent("router"),
		keyHandler:    keyHandler,
		tokenHandler:  tokenHandler,
		healthHandler: healthHandler,
		tracing:       tracing,
		metrics:       metrics,
		limiter:       limiter,
	}
}

// SetupRoutes registers middleware and routes.
func (r *Router) SetupRoutes() {
	r.engine.Use(gin.Recovery())
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.Observability(r.tracing, r.metrics, r.logger))

	r.engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.engine.GET("/health/live", r.healthHandler.Live)
	r.engine.GET("/health/ready", r.healthHandler.Ready)

	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if r.config.Server.PprofEnabled {
		pprof.Register(r.engine)
	}

	v1 := r.engine.Group("/api/v1")
	if r.limiter != nil {
		v1.Use(middleware.RateLimit(r.limiter))
	}
	{
		keys := v1.Group("/keys")
		{
			keys.GET("", r.keyHandler.ListKeys)
			keys.GET("/health", r.healthHandler.Status)
			keys.GET("/:key_id", r.keyHandler.GetKey)
			keys.POST("/rotate", r.keyHandler.Rotate)
			keys.POST("/emergency-rotate", r.keyHandler.EmergencyRotate)
			keys.POST("/cleanup", r.keyHandler.Cleanup)
			keys.POST("/:key_id/revoke", r.keyHandler.Revoke)
			keys.POST("/:key_id/activate", r.keyHandler.Activate)
		}

		tokens := v1.Group("/tokens")
		{
			tokens.POST("", r.tokenHandler.Generate)
			tokens.POST("/verify", r.tokenHandler.Verify)
		}
	}

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":             "not_found",
			"error_description": "The requested resource was not found",
		})
	})
}

// Start registers routes and serves until the listener fails or Shutdown is
// called. It blocks.
func (r *Router) Start() error {
	r.SetupRoutes()

	addr := fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	r.server = &http.Server{
		Addr:           addr,
		Handler:        r.engine,
		ReadTimeout:    time.Duration(r.config.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(r.config.Server.WriteTimeout) * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	r.logger.Info(context.Background(), "starting http server", logger.String("address", addr))

	if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (r *Router) Shutdown(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	r.logger.Info(ctx, "shutting down http server")
	return r.server.Shutdown(ctx)
}
