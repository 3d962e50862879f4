package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-timetable-api/api/swagger"
	"github.com/noah-isme/sma-timetable-api/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/migrations"
	"github.com/noah-isme/sma-timetable-api/pkg/cache"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/database"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
	"github.com/noah-isme/sma-timetable-api/pkg/storage"
)

// App owns the wired services and background workers of the timetable API.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	db    *sqlx.DB
	redis *redis.Client
	queue *jobs.Queue

	metrics    *service.MetricsService
	auth       *service.AuthService
	exports    *service.ExportService
	timetables *handler.TimetableHandler
	probes     *handler.MetricsHandler
}

// New connects the optional backing stores and wires every service. Postgres is only dialled
// when run history is enabled and Redis only when the result cache is.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: log, metrics: service.NewMetricsService()}
	validate := validator.New()
	checks := make(map[string]handler.Pinger)

	var runs *repository.TimetableRunRepository
	if cfg.History.Enabled {
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := migrations.Up(db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		a.db = db
		runs = repository.NewTimetableRunRepository(db)
		checks["postgres"] = runs
	}

	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.redis = client
		repo := repository.NewCacheRepository(client, log)
		cacheRepo = repo
		checks["redis"] = repo
	}
	cacheSvc := service.NewCacheService(cacheRepo, a.metrics, cfg.Cache.TTL, log, cfg.Cache.Enabled)

	tcfg := service.TimetableConfig{
		MaxDepth:       cfg.Scheduler.MaxDepth,
		Timeout:        cfg.Scheduler.Timeout,
		MaxClasses:     cfg.Scheduler.MaxClasses,
		CacheTTL:       cfg.Cache.TTL,
		HistoryEnabled: cfg.History.Enabled,
	}
	var timetableSvc *service.TimetableService
	if runs != nil {
		timetableSvc = service.NewTimetableService(runs, cacheSvc, a.metrics, validate, log, tcfg)
	} else {
		timetableSvc = service.NewTimetableService(nil, cacheSvc, a.metrics, validate, log, tcfg)
	}

	store := service.NewJobStore(cfg.Jobs.ResultTTL)
	worker := service.NewGenerationWorker(store, timetableSvc, a.metrics, cfg.Jobs.MaxRetries, log)
	a.queue = jobs.NewQueue("timetable", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		BufferSize: cfg.Jobs.BufferSize,
		MaxRetries: cfg.Jobs.MaxRetries,
		Logger:     log,
	})
	jobSvc := service.NewJobService(store, a.queue, timetableSvc, log)

	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("prepare export storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	a.exports = service.NewExportService(timetableSvc, files, signer, validate, log, service.ExportConfig{
		APIPrefix:       cfg.APIPrefix,
		ResultTTL:       cfg.Exports.SignedURLTTL,
		CleanupInterval: cfg.Exports.CleanupInterval,
	}, nil, nil)

	a.auth = service.NewAuthService(service.AuthConfig{
		APIKey:     cfg.Auth.APIKey,
		APIKeyHash: cfg.Auth.APIKeyHash,
		JWTSecret:  cfg.Auth.JWTSecret,
		Issuer:     cfg.Auth.JWTIssuer,
	}, log)

	a.timetables = handler.NewTimetableHandler(timetableSvc, jobSvc, a.exports, cacheSvc)
	a.probes = handler.NewMetricsHandler(a.metrics, checks)
	return a, nil
}

// Start launches the generation workers and the export cleanup loop.
func (a *App) Start(ctx context.Context) {
	a.queue.Start(ctx)
	a.exports.StartCleanup(ctx)
}

// Close stops the workers and releases backing connections.
func (a *App) Close() {
	if a.queue != nil {
		a.queue.Stop()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close postgres", zap.Error(err))
		}
	}
}

// Router builds the gin engine serving the legacy routes, the versioned API and the probes.
func (a *App) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.logger))
	r.Use(corsmiddleware.New(a.cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(a.metrics))

	r.GET("/health", a.probes.Health)
	r.GET("/ready", a.probes.Ready)
	r.GET("/metrics", a.probes.Prometheus)
	if a.cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	r.GET("/progress", a.timetables.Progress)

	origins := a.cfg.CORS.AllowedOrigins
	legacy := r.Group("/")
	legacy.Use(internalmiddleware.Auth(a.auth, origins, response.LegacyFailure, a.logger))
	legacy.POST("/generate", a.timetables.LegacyGenerate)
	legacy.GET("/test", a.timetables.Test)

	prefix := "/" + strings.Trim(a.cfg.APIPrefix, "/")
	api := r.Group(prefix)

	// Signed links carry their own authorisation.
	api.GET("/timetables/exports/:token", a.timetables.Download)

	secured := api.Group("/timetables")
	secured.Use(internalmiddleware.Auth(a.auth, origins, response.Error, a.logger))
	secured.POST("/generate", a.timetables.Generate)
	secured.POST("/jobs", a.timetables.SubmitJob)
	secured.GET("/jobs/:id", a.timetables.GetJob)
	secured.GET("/runs", a.timetables.ListRuns)
	secured.GET("/runs/:id", a.timetables.GetRun)
	secured.POST("/runs/:id/exports", a.timetables.CreateExport)
	secured.DELETE("/cache", a.timetables.InvalidateCache)

	return r
}
