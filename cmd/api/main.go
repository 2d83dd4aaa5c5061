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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-substitute-api/api/swagger"
	"github.com/noah-isme/sma-substitute-api/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-substitute-api/internal/middleware"
	"github.com/noah-isme/sma-substitute-api/internal/repository"
	"github.com/noah-isme/sma-substitute-api/internal/service"
	"github.com/noah-isme/sma-substitute-api/pkg/cache"
	"github.com/noah-isme/sma-substitute-api/pkg/config"
	"github.com/noah-isme/sma-substitute-api/pkg/database"
	"github.com/noah-isme/sma-substitute-api/pkg/jobs"
	"github.com/noah-isme/sma-substitute-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-substitute-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-substitute-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-substitute-api/pkg/observability"
	"github.com/noah-isme/sma-substitute-api/pkg/storage"
)

// @title Substitute Teacher API
// @version 1.0.0
// @description Weekly schedules, substitute candidates and the substitution ledger of an elementary school.
// @BasePath /api/v1
// @schemes http
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

	flush, err := observability.InitSentry(cfg.Sentry.DSN, cfg.Env, cfg.Release)
	if err != nil {
		logr.Warn("sentry disabled", zap.Error(err))
	}
	defer flush()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsSvc := service.NewMetricsService()
	checks := map[string]handler.ReadinessCheck{}

	repos := service.Repositories{}
	if cfg.Storage.Driver == config.StoragePostgres {
		db, err := openDatabase(ctx, cfg, logr)
		if err != nil {
			logr.Fatal("failed to open database", zap.Error(err))
		}
		defer db.Close()
		repos = service.Repositories{
			Teachers:    repository.NewTeacherRepository(db),
			Substitutes: repository.NewSubstituteRepository(db),
			Settings:    repository.NewSettingRepository(db),
			Snapshots:   repository.NewSnapshotRepository(db),
		}
		checks["database"] = db.PingContext
	} else {
		logr.Warn("using in-memory storage; state is lost on restart")
	}

	var cacheSvc *service.CacheService
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, statistics cache disabled", zap.Error(err))
		} else {
			defer client.Close() //nolint:errcheck
			cacheRepo := repository.NewCacheRepository(client, "substitute", logr.Named("cache"))
			cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Stats.CacheTTL, logr.Named("cache"), cfg.Stats.CacheEnabled)
			checks["redis"] = redisCheck(client)
		}
	}

	files, err := storage.NewLocalStorage(cfg.Export.Dir)
	if err != nil {
		logr.Fatal("failed to prepare export directory", zap.Error(err))
	}

	svc := service.NewServices(repos, service.Options{
		DefaultSlots:  cfg.School.DefaultSlots,
		Location:      cfg.School.Location(),
		Cache:         cacheSvc,
		StatsCacheTTL: cfg.Stats.CacheTTL,
		Files:         files,
		Signer:        storage.NewSignedURLSigner(cfg.Export.URLSecret, cfg.Export.URLTTL),
		Export:        service.ExportConfig{APIPrefix: cfg.APIPrefix},
		Auth:          service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer},
		Metrics:       metricsSvc,
		Logger:        logr,
	})
	if err := svc.Load(ctx); err != nil {
		logr.Fatal("failed to load state", zap.Error(err))
	}

	runner := jobs.NewRunner(jobs.RunnerConfig{
		MaxRetries: 2,
		RetryDelay: 5 * time.Second,
		Logger:     logr.Named("jobs"),
		Observer:   metricsSvc,
	})
	if cfg.Rollover.Enabled {
		mustRegister(logr, runner, jobs.Job{
			Name:       "counter_rollover",
			Interval:   cfg.Rollover.Interval,
			RunAtStart: true,
			Timeout:    time.Minute,
			Fn: func(ctx context.Context) error {
				_, err := svc.Rollover.Rollover(ctx, false)
				return err
			},
		})
	}
	mustRegister(logr, runner, jobs.Job{
		Name:     "export_cleanup",
		Interval: cfg.Export.CleanupInterval,
		Timeout:  time.Minute,
		Fn:       svc.Exports.Cleanup,
	})
	runner.Start(ctx)
	defer runner.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))
	r.Use(internalmiddleware.ReportServerErrors(observability.CaptureTagged))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	if !cfg.JWT.Enabled {
		logr.Warn("authentication disabled; every request is treated as admin")
	}
	handler.RegisterRoutes(r, handler.NewHandlers(svc, checks), handler.RouteConfig{
		Prefix:      cfg.APIPrefix,
		AuthEnabled: cfg.JWT.Enabled,
		Auth:        svc.Auth,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.Env),
			zap.String("storage", cfg.Storage.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
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

func openDatabase(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*sqlx.DB, error) {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		version, _ := database.Version(ctx, db)
		logr.Info("database migrated", zap.Int64("version", version))
	}
	return db, nil
}

func redisCheck(client *redis.Client) handler.ReadinessCheck {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

func mustRegister(logr *zap.Logger, runner *jobs.Runner, job jobs.Job) {
	if err := runner.Register(job); err != nil {
		logr.Fatal("failed to register job", zap.String("job", job.Name), zap.Error(err))
	}
}
