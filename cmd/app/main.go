package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edutech/marketplace-server-go/internal/features/auth"
	"github.com/edutech/marketplace-server-go/internal/features/chat"
	"github.com/edutech/marketplace-server-go/internal/features/progress"
	"github.com/edutech/marketplace-server-go/internal/http/routes"
	"github.com/edutech/marketplace-server-go/pkg/cache"
	"github.com/edutech/marketplace-server-go/pkg/config"
	"github.com/edutech/marketplace-server-go/pkg/database"
	"github.com/edutech/marketplace-server-go/pkg/email"
	"github.com/edutech/marketplace-server-go/pkg/jobs"
	"github.com/edutech/marketplace-server-go/pkg/logger"
	"github.com/edutech/marketplace-server-go/pkg/metrics"
	"github.com/edutech/marketplace-server-go/pkg/middleware"
	"github.com/edutech/marketplace-server-go/pkg/objectstore"
	"github.com/edutech/marketplace-server-go/pkg/realtime"
	"github.com/edutech/marketplace-server-go/pkg/request"
	"github.com/edutech/marketplace-server-go/pkg/transcription"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Connect(ctx, cfg.Database, appLogger)
	if err != nil {
		appLogger.Error("database connection failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		if err := database.Close(db, appLogger); err != nil {
			appLogger.Error("database close failed", slog.String("error", err.Error()))
		}
	}()

	cacheClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		appLogger.Error("redis connection failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer cacheClient.Close()

	if !cacheClient.Enabled() {
		appLogger.Warn("redis address not configured, caching disabled")
	}

	storageClient := objectstore.NewClient(
		cfg.Storage.Bucket,
		cfg.Storage.APIKey,
		cfg.Storage.BaseURL,
		cfg.Storage.CDNURL,
	)

	transcriber := transcription.NewClient(
		cfg.Transcription.APIKey,
		cfg.Transcription.BaseURL,
		cfg.Transcription.Model,
	)

	emailClient := email.NewClient(
		cfg.Email.Host,
		cfg.Email.Port,
		cfg.Email.Username,
		cfg.Email.Password,
		cfg.Email.From,
		cfg.Email.Secure,
	)

	googleVerifier := auth.NewGoogleVerifier(
		cfg.Google.ClientID,
		cfg.Google.ClientSecret,
		cfg.Google.RedirectURL,
	)

	// Real-time layer: room registry, Socket.IO server, and the
	// broadcast engine that the chat service publishes through.
	registry := realtime.NewRegistry()
	rtServer, err := realtime.NewServer(db, appLogger, registry, cfg.JWTSecret)
	if err != nil {
		appLogger.Error("socket.io server initialization failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer rtServer.Close()

	appLogger.Info("socket.io server initialized")

	chatService := chat.NewService(
		db,
		chat.GormCourseDirectory{DB: db},
		chat.GormUserDirectory{DB: db},
		rtServer.Engine(),
		appLogger,
	)

	recorder := progress.NewRecorder(db, cacheClient, appLogger)

	scheduler := jobs.NewScheduler(appLogger)
	scheduler.AddJob(progress.FlushJob{Recorder: recorder}, 30*time.Second)
	scheduler.Start()
	defer scheduler.Stop()

	router := gin.New()

	// Socket.IO needs minimal middleware - just recovery and CORS
	router.Use(middleware.Recovery(appLogger))
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	router.GET("/socket.io/*any", gin.WrapH(rtServer.GetHandler()))
	router.POST("/socket.io/*any", gin.WrapH(rtServer.GetHandler()))

	// Full middleware stack for all other routes
	router.Use(middleware.RequestID())
	router.Use(middleware.Compression(middleware.BestSpeed))
	router.Use(middleware.RequestLogger(appLogger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CacheControl())
	router.Use(middleware.RequestSizeLimit(10 * 1024 * 1024)) // 10MB limit
	router.Use(metrics.Middleware())
	router.Use(request.Handler(appLogger))

	// Rate limiting (100 requests per minute per IP)
	rateLimiter := middleware.NewRateLimiter(100, time.Minute)
	router.Use(rateLimiter.Middleware())

	routes.Register(router, cfg, db, appLogger, routes.Dependencies{
		Cache:          cacheClient,
		Storage:        storageClient,
		Transcriber:    transcriber,
		Email:          emailClient,
		GoogleVerifier: googleVerifier,
		ChatService:    chatService,
		Recorder:       recorder,
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddress(),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	go func() {
		appLogger.Info("server starting",
			slog.String("addr", cfg.ServerAddress()),
			slog.String("env", cfg.Env),
			slog.String("log_level", cfg.LogLevel),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("server listen failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	appLogger.Info("server started successfully")

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("server shutdown failed", slog.String("error", err.Error()))
	} else {
		appLogger.Info("server stopped gracefully")
	}

	// Persist any progress updates still buffered in memory.
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := recorder.Flush(flushCtx); err != nil {
		appLogger.Error("final progress flush failed", slog.String("error", err.Error()))
	}
}
