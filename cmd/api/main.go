package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/process-tracker/internal/api/http"
	"github.com/spec-kit/process-tracker/internal/api/http/handlers"
	"github.com/spec-kit/process-tracker/internal/auth"
	"github.com/spec-kit/process-tracker/internal/cache"
	"github.com/spec-kit/process-tracker/internal/catalog"
	"github.com/spec-kit/process-tracker/internal/config"
	"github.com/spec-kit/process-tracker/internal/events"
	"github.com/spec-kit/process-tracker/internal/observability"
	"github.com/spec-kit/process-tracker/internal/persistence"
	"github.com/spec-kit/process-tracker/internal/repository"
	"github.com/spec-kit/process-tracker/internal/service"
	"github.com/spec-kit/process-tracker/internal/worker"
)

const cacheJanitorInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	departmentRepo := repository.NewDepartmentRepository(pool)
	processRepo := repository.NewProcessRepository(pool)
	historyRepo := repository.NewHistoryRepository(pool)
	responsibilityRepo := repository.NewResponsibilityRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)

	departments := catalog.New(departmentRepo)
	if err := departments.Refresh(ctx); err != nil {
		logger.Warn("initial catalog load failed", zap.Error(err))
	}

	refresher := worker.NewCatalogRefresher(worker.CatalogRefresherConfig{
		Catalog:  departments,
		Client:   redis.Client,
		Channel:  cfg.Catalog.RefreshChannel,
		Interval: cfg.Catalog.RefreshInterval(),
		Logger:   logger,
		Metrics:  metrics,
	})
	worker.StartCatalogRefresher(ctx, refresher)

	store := newResponsibilityStore(ctx, cfg.Responsibility, redis, logger)
	dispatcher := events.NewInMemoryDispatcher(logger)

	notificationService := service.NewNotificationService(service.NotificationDependencies{
		UserRepo:         userRepo,
		NotificationRepo: notificationRepo,
		Dispatcher:       dispatcher,
		Logger:           logger,
		Metrics:          metrics,
		MovedType:        cfg.Process.MovedNotification,
	})
	worker.StartNotificationWorker(notificationService, logger)

	responsibilityService := service.NewResponsibilityService(service.ResponsibilityDependencies{
		Repo:       responsibilityRepo,
		Store:      store,
		TTL:        cfg.Responsibility.CacheTTL(),
		Notifier:   notificationService,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
	})

	movementService := service.NewMovementService(service.MovementDependencies{
		Transactor:         persistence.NewTransactor(pool),
		ProcessRepo:        processRepo,
		HistoryRepo:        historyRepo,
		ResponsibilityRepo: responsibilityRepo,
		Catalog:            departments,
		Invalidator:        responsibilityService,
		Dispatcher:         dispatcher,
		Logger:             logger,
		Metrics:            metrics,
		DefaultDuration:    cfg.Process.DefaultDuration(),
	})

	processService := service.NewProcessService(service.ProcessDependencies{
		ProcessRepo:    processRepo,
		HistoryRepo:    historyRepo,
		UserRepo:       userRepo,
		Catalog:        departments,
		Movement:       movementService,
		Responsibility: responsibilityService,
		Logger:         logger,
	})

	departmentService := service.NewDepartmentService(service.DepartmentDependencies{
		Repo:     departmentRepo,
		Catalog:  departments,
		Notifier: refresher,
		Logger:   logger,
	})

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo: userRepo,
		Catalog:  departments,
		Logger:   logger,
	})
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	probes := map[string]handlers.Pinger{"postgres": pg}
	if redis.Enabled() {
		probes["redis"] = redis
	}

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, probes, departments.Len),
		Auth:           handlers.NewAuthHandler(authService),
		Departments:    handlers.NewDepartmentsHandler(departmentService),
		Processes:      handlers.NewProcessesHandler(processService),
		Notifications:  handlers.NewNotificationsHandler(notificationService),
		AuthMiddleware: authMiddleware,
		Metrics:        adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

// newResponsibilityStore picks the lookup cache backend. Redis is shared
// across instances; the memory store needs a janitor to drop expired keys.
func newResponsibilityStore(ctx context.Context, cfg config.ResponsibilityConfig, redis *persistence.Redis, logger *zap.Logger) cache.Store {
	if cfg.CacheBackend == config.CacheBackendRedis {
		if redis.Enabled() {
			return cache.NewRedisStore(redis.Client, "resp")
		}
		logger.Warn("redis cache backend requested without REDIS_ADDR; using memory")
	}
	store := cache.NewMemoryStore(time.Now)
	worker.StartCacheJanitor(ctx, store, cacheJanitorInterval, logger)
	return store
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
