package routes

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/edutech/marketplace-server-go/internal/features/auth"
	"github.com/edutech/marketplace-server-go/internal/features/chat"
	"github.com/edutech/marketplace-server-go/internal/features/course"
	"github.com/edutech/marketplace-server-go/internal/features/progress"
	"github.com/edutech/marketplace-server-go/internal/features/user"
	"github.com/edutech/marketplace-server-go/pkg/cache"
	"github.com/edutech/marketplace-server-go/pkg/config"
	"github.com/edutech/marketplace-server-go/pkg/email"
	"github.com/edutech/marketplace-server-go/pkg/health"
	"github.com/edutech/marketplace-server-go/pkg/middleware"
	"github.com/edutech/marketplace-server-go/pkg/objectstore"
	"github.com/edutech/marketplace-server-go/pkg/transcription"
)

// Dependencies carries the shared clients the feature routes need.
type Dependencies struct {
	Cache          *cache.RedisClient
	Storage        *objectstore.Client
	Transcriber    *transcription.Client
	Email          *email.Client
	GoogleVerifier auth.GoogleVerifier
	ChatService    *chat.Service
	Recorder       *progress.Recorder
}

// Register wires all feature routes onto the engine.
func Register(engine *gin.Engine, cfg *config.Config, db *gorm.DB, logger *slog.Logger, deps Dependencies) {
	// Health check endpoints (no /api prefix for Kubernetes probes)
	healthHandler := health.NewHandler(db, deps.Cache, logger)
	engine.GET("/health", healthHandler.Health)
	engine.GET("/ready", healthHandler.Ready)
	engine.GET("/version", healthHandler.Version)

	// Metrics endpoint for Prometheus
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Database stats endpoint (protected in production)
	if !cfg.IsProduction() {
		engine.GET("/debug/db-stats", healthHandler.DBStats)
	}

	api := engine.Group("/api")

	// Public surface: registration, login, and the course catalog.
	authHandler := auth.NewHandler(db, logger, cfg, deps.Email, deps.GoogleVerifier)
	auth.RegisterRoutes(api, authHandler)

	courseHandler := course.NewHandler(db, deps.Storage, deps.Transcriber, deps.Cache, logger)
	course.RegisterRoutes(api, courseHandler, db, cfg.JWTSecret, logger)

	// Everything below requires an authenticated user.
	authed := api.Group("")
	authed.Use(middleware.AuthMiddleware(db, cfg.JWTSecret, logger))

	userHandler := user.NewHandler(db, deps.Storage, logger)
	user.RegisterRoutes(authed, userHandler)

	chatHandler := chat.NewHandler(deps.ChatService, logger)
	chat.RegisterRoutes(authed, chatHandler)

	progressHandler := progress.NewHandler(db, deps.Recorder, logger)
	progress.RegisterRoutes(authed, progressHandler)
}
