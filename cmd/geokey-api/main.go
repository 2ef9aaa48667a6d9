package main

import (
	"context"
	"errors"
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

	_ "github.com/geokey/geokey-api/api/swagger"
	"github.com/geokey/geokey-api/internal/handler"
	"github.com/geokey/geokey-api/internal/repository"
	"github.com/geokey/geokey-api/internal/service"
	"github.com/geokey/geokey-api/pkg/cache"
	"github.com/geokey/geokey-api/pkg/config"
	"github.com/geokey/geokey-api/pkg/database"
	"github.com/geokey/geokey-api/pkg/export"
	"github.com/geokey/geokey-api/pkg/logger"
	corsmiddleware "github.com/geokey/geokey-api/pkg/middleware/cors"
	reqidmiddleware "github.com/geokey/geokey-api/pkg/middleware/requestid"
	"github.com/geokey/geokey-api/pkg/storage"
)

// @title GeoKey API
// @version 1.0.0
// @description Participatory mapping backend: projects, typed category schemas, observations, moderation and reporting
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Schema caching degrades to direct reads without Redis.
		logr.Sugar().Warnw("redis unavailable, schema cache disabled", "error", err)
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	userRepo := repository.NewUserRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	observationRepo := repository.NewObservationRepository(db)
	groupRepo := repository.NewUserGroupRepository(db)
	subsetRepo := repository.NewSubsetRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	mediaRepo := repository.NewMediaRepository(db)
	reportRepo := repository.NewReportRepository(db)

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "geokey-api",
		Audience:           []string{"geokey"},
	})

	projectSvc := service.NewProjectService(projectRepo, groupRepo, validate, logr)
	categorySvc := service.NewCategoryService(categoryRepo, cacheRepo, cfg.Schema.CacheTTL, validate, logr).
		WithMetrics(metricsSvc)
	visibilitySvc := service.NewVisibilityService(categorySvc, subsetRepo, logr)
	observationSvc := service.NewObservationService(observationRepo, categorySvc, visibilitySvc, validate, logr)
	groupSvc := service.NewUserGroupService(groupRepo, categorySvc, validate, logr)
	subsetSvc := service.NewSubsetService(subsetRepo, categorySvc, validate, logr)
	commentSvc := service.NewCommentService(commentRepo, observationSvc, observationRepo, validate, logr)
	mediaSvc := service.NewMediaService(mediaRepo, observationSvc, observationRepo, validate, logr)

	reindexSvc := service.NewReindexService(observationRepo, categorySvc, service.ReindexConfig{
		Workers:   cfg.Search.ReindexWorkers,
		BatchSize: cfg.Search.ReindexBatchSize,
	}, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var reportSvc *service.ReportService
	if cfg.Reports.Enabled {
		reportStorage, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init report storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		reportSvc = service.NewReportService(reportRepo, observationRepo, categorySvc, export.NewPDFExporter(), reportStorage, signer, service.ReportConfig{
			WorkerConcurrency: cfg.Reports.WorkerConcurrency,
			WorkerRetries:     cfg.Reports.WorkerRetries,
			BaseURL:           cfg.Reports.BaseURL,
		}, logr)

		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					removed, err := reportStorage.CleanupOlderThan(cfg.Reports.SignedURLTTL)
					if err != nil {
						logr.Sugar().Warnw("report file cleanup failed", "error", err)
					} else if len(removed) > 0 {
						logr.Sugar().Infow("removed expired report files", "count", len(removed))
					}
				}
			}
		}()
	}

	reindexSvc.Start(ctx)
	defer reindexSvc.Stop()
	if reportSvc != nil {
		reportSvc.Start(ctx)
		defer reportSvc.Stop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	handler.RegisterRoutes(r, cfg.APIPrefix, handler.Handlers{
		Auth:         handler.NewAuthHandler(authSvc),
		Projects:     handler.NewProjectHandler(projectSvc, reindexSvc),
		Categories:   handler.NewCategoryHandler(projectSvc, categorySvc),
		Observations: handler.NewObservationHandler(projectSvc, observationSvc, metricsSvc),
		Groups:       handler.NewUserGroupHandler(projectSvc, groupSvc),
		Subsets:      handler.NewSubsetHandler(projectSvc, subsetSvc),
		Comments:     handler.NewCommentHandler(projectSvc, commentSvc),
		Media:        handler.NewMediaHandler(projectSvc, mediaSvc),
		Reports:      handler.NewReportHandler(projectSvc, reportSvc),
	}, authSvc, metricsSvc)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
