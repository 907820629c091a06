package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/helmintheca/archive-api/api/swagger"
	"github.com/helmintheca/archive-api/internal/handler"
	"github.com/helmintheca/archive-api/internal/middleware"
	"github.com/helmintheca/archive-api/internal/models"
	"github.com/helmintheca/archive-api/internal/repository"
	"github.com/helmintheca/archive-api/internal/service"
	"github.com/helmintheca/archive-api/pkg/cache"
	"github.com/helmintheca/archive-api/pkg/config"
	"github.com/helmintheca/archive-api/pkg/database"
	"github.com/helmintheca/archive-api/pkg/logger"
	corsmiddleware "github.com/helmintheca/archive-api/pkg/middleware/cors"
	reqidmiddleware "github.com/helmintheca/archive-api/pkg/middleware/requestid"
	"github.com/helmintheca/archive-api/pkg/storage"
)

// @title Parasitology Archive API
// @version 1.0.0
// @description University parasitology specimen archive: catalog, review workflow, statistics and exports.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Catalog.CacheTTL, logr, true)
	}

	userRepo := repository.NewUserRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	exportRepo := repository.NewExportRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "archive-api",
	})

	catalogSvc := service.NewCatalogService(recordRepo, cacheSvc, metricsSvc, cfg.Catalog.CacheTTL, logr)
	userSvc := service.NewUserService(userRepo, validate, logr)
	recordSvc := service.NewRecordService(recordRepo, userRepo, catalogSvc, validate, logr)
	reviewSvc := service.NewReviewService(recordRepo, userRepo, catalogSvc, logr)
	statsSvc := service.NewStatsService(catalogSvc, cacheSvc, cfg.Stats.CacheTTL, cfg.Stats.TopContributors, logr)

	imageStore, err := storage.NewLocalStorage(cfg.Images.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init image storage", "error", err)
	}
	imageResolver := storage.NewPublicURLResolver(cfg.Images.PublicBaseURL)

	var exportSvc *service.ExportService
	if cfg.Exports.Enabled {
		exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportSvc = service.NewExportService(exportRepo, catalogSvc, exportStore, signer, validate, service.ExportServiceConfig{
			WorkerConcurrency: cfg.Exports.WorkerConcurrency,
			WorkerRetries:     cfg.Exports.WorkerRetries,
			RetentionTTL:      cfg.Exports.RetentionTTL,
			CleanupInterval:   cfg.Exports.CleanupInterval,
		}, logr)
		exportSvc.Start(ctx)
		defer exportSvc.Stop()
	}

	authHandler := handler.NewAuthHandler(authSvc)
	recordHandler := handler.NewRecordHandler(recordSvc, imageStore, imageResolver, handler.ImageUploadConfig{
		MaxFileSizeBytes: cfg.Images.MaxFileSizeBytes,
		AllowedMIMEs:     cfg.Images.AllowedMIMEs,
	})
	userHandler := handler.NewUserHandler(userSvc)
	catalogHandler := handler.NewCatalogHandler(catalogSvc, imageResolver)
	reviewHandler := handler.NewReviewHandler(reviewSvc)
	statsHandler := handler.NewStatsHandler(statsSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.WithResponseMeta())
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/reset-password", authHandler.ResetPassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	api.GET("/catalog", catalogHandler.Browse)
	api.GET("/catalog/facets", catalogHandler.Facets)

	api.GET("/records/:id", middleware.OptionalJWT(authSvc), recordHandler.Get)

	reviewerOnly := middleware.RequireRoles(models.RoleAdmin, models.RoleReviewer)
	authed := api.Group("", middleware.JWT(authSvc))
	{
		authed.POST("/submissions", recordHandler.Submit)
		authed.POST("/records/:id/image", recordHandler.UploadImage)

		authed.GET("/records", reviewerOnly, recordHandler.List)
		authed.POST("/records", reviewerOnly, recordHandler.Create)
		authed.PUT("/records/:id", recordHandler.Update)
		authed.DELETE("/records/:id", reviewerOnly, recordHandler.Delete)

		authed.GET("/review/queue", reviewerOnly, reviewHandler.Queue)
		authed.PUT("/records/:id/status", reviewerOnly, reviewHandler.Decide)

		adminOnly := middleware.RequireRoles(models.RoleAdmin)
		users := authed.Group("/users", adminOnly)
		{
			users.GET("", userHandler.List)
			users.POST("", userHandler.Create)
			users.GET("/:id", userHandler.Get)
			users.PUT("/:id", userHandler.Update)
			users.DELETE("/:id", userHandler.Delete)
		}
	}

	if cfg.Stats.Enabled {
		api.GET("/stats/summary", statsHandler.Summary)
		api.GET("/stats/groups/:field", statsHandler.GroupBy)
		api.GET("/stats/timeline", statsHandler.Timeline)
		api.GET("/stats/contributors", statsHandler.Contributors)
		api.GET("/stats/system", middleware.JWT(authSvc), reviewerOnly, metricsHandler.System)
	}

	if exportSvc != nil {
		exportHandler := handler.NewExportHandler(exportSvc)
		api.POST("/exports", middleware.JWT(authSvc), exportHandler.Create)
		api.GET("/exports/:id", middleware.JWT(authSvc), exportHandler.Status)
		api.GET("/exports/download", middleware.Audit(userRepo, models.AuditActionExportDownload, "export"), exportHandler.Download)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
}
