package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/uniportal-api/api/swagger"
	"github.com/noah-isme/uniportal-api/internal/handler"
	"github.com/noah-isme/uniportal-api/internal/repository"
	"github.com/noah-isme/uniportal-api/internal/router"
	"github.com/noah-isme/uniportal-api/internal/service"
	"github.com/noah-isme/uniportal-api/pkg/cache"
	"github.com/noah-isme/uniportal-api/pkg/config"
	"github.com/noah-isme/uniportal-api/pkg/database"
	"github.com/noah-isme/uniportal-api/pkg/export"
	"github.com/noah-isme/uniportal-api/pkg/logger"
	"github.com/noah-isme/uniportal-api/pkg/mailer"
	"github.com/noah-isme/uniportal-api/pkg/signedlink"
)

// @title University Portal Registration API
// @version 1.0.0
// @description Semester registration workflow: drafts, course uploads, approval and registration cards.
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, cfg.Database.MigrationsDir, logr); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	metricsSvc := service.NewMetricsService()
	cacheSvc := newCache(cfg, metricsSvc, logr)

	registrationRepo := repository.NewRegistrationRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	userRepo := repository.NewUserRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var notifier service.Notifier = service.NopNotifier{}
	if cfg.Notifications.Enabled {
		notifications := service.NewNotificationService(notificationRepo, userRepo, mailer.NewSMTPMailer(cfg.Mail, logr), cfg.Notifications, metricsSvc, logr)
		notifications.Start(ctx)
		defer notifications.Stop()
		if recovered, err := notifications.RecoverPending(ctx); err != nil {
			logr.Warn("failed to recover pending notifications", zap.Error(err))
		} else if recovered > 0 {
			logr.Info("recovered pending notifications", zap.Int("count", recovered))
		}
		notifier = notifications
	}

	registrationSvc := service.NewRegistrationService(registrationRepo, catalogRepo, cfg.Registration, logr,
		service.WithRegistrationNotifier(notifier),
		service.WithRegistrationCache(cacheSvc),
		service.WithRegistrationMetrics(metricsSvc),
	)
	exportSvc := service.NewExportService(registrationSvc, signedlink.NewSigner(cfg.Cards.SignedURLSecret, cfg.Cards.SignedURLTTL), service.ExportConfig{
		APIPrefix:       cfg.APIPrefix,
		InstitutionName: cfg.Cards.InstitutionName,
	}, logr, export.NewCardRenderer())
	authSvc := service.NewAuthService(userRepo, validator.New(), logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	engine := router.New(router.Dependencies{
		Config:        cfg,
		Logger:        logr,
		Tokens:        authSvc,
		Audit:         userRepo,
		Metrics:       metricsSvc,
		Auth:          handler.NewAuthHandler(authSvc),
		Registrations: handler.NewRegistrationHandler(registrationSvc, exportSvc),
		Health: handler.NewMetricsHandler(metricsSvc, map[string]handler.Pinger{
			"database": handler.PingFunc(db.PingContext),
			"cache":    cacheSvc,
		}),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

// newCache prefers Redis and falls back to the in-process store when Redis is
// disabled or unreachable.
func newCache(cfg *config.Config, metrics *service.MetricsService, logr *zap.Logger) *service.CacheService {
	var repo service.CacheRepository
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, using in-memory cache", zap.Error(err))
		} else {
			repo = repository.NewCacheRepository(client, logr)
		}
	}
	if repo == nil {
		repo = repository.NewMemoryCacheRepository(cache.NewMemory(cfg.Cache))
	}
	return service.NewCacheService(repo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled)
}
