package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/activity-tracker/internal/api/http"
	"github.com/spec-kit/activity-tracker/internal/api/http/handlers"
	"github.com/spec-kit/activity-tracker/internal/auth"
	"github.com/spec-kit/activity-tracker/internal/config"
	"github.com/spec-kit/activity-tracker/internal/events"
	"github.com/spec-kit/activity-tracker/internal/observability"
	"github.com/spec-kit/activity-tracker/internal/persistence"
	"github.com/spec-kit/activity-tracker/internal/service"
	"github.com/spec-kit/activity-tracker/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
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

	if cfg.Tracker.Store == config.StorePostgres && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	stores, err := buildStores(cfg, pg, logger)
	if err != nil {
		logger.Fatal("failed to open stores", zap.Error(err))
	}
	logger.Info("stores ready", zap.String("backend", cfg.Tracker.Store))

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	service.NewNotificationService(dispatcher, logger).RegisterHandlers()

	var fanout *events.RedisFanout
	if redis.Enabled() {
		fanout = events.NewRedisFanout(redis.Client, cfg.Redis.StatusChannel, logger)
		fanout.Attach(dispatcher)
	}

	opts := service.TrackerOptions{
		DefaultMemo: cfg.Tracker.DefaultMemo,
		Location:    cfg.Tracker.Location,
		Lock:        &sync.Mutex{},
	}
	statusService := service.NewStatusService(service.StatusDependencies{
		Statuses:   stores.statuses,
		Users:      stores.users,
		Dispatcher: dispatcher,
		Logger:     logger,
	}, opts)
	deriver := service.NewDeriver(service.DeriverDependencies{
		Users:      stores.users,
		Statuses:   statusService,
		Store:      stores.sessions,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	}, opts)
	activeTimeService := service.NewActiveTimeService(service.ActiveTimeDependencies{
		Users:      stores.users,
		Statuses:   statusService,
		Store:      stores.sessions,
		Dispatcher: dispatcher,
		Logger:     logger,
	}, opts)
	authService := service.NewAuthService(cfg.Auth, stores.users)

	trackerCfg := worker.TrackerConfig{
		Deriver:             deriver,
		Dispatcher:          dispatcher,
		PollInterval:        cfg.Tracker.PollInterval(),
		LiveRefreshInterval: cfg.Tracker.LiveRefreshInterval(),
		Logger:              logger,
	}
	if fanout != nil {
		trackerCfg.Remote = fanout
	}
	tracker := worker.NewTracker(trackerCfg)
	tracker.Start(ctx)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, Immutable: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, metrics, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}),
		Users:          handlers.NewUsersHandler(authService, stores.users),
		Status:         handlers.NewStatusHandler(statusService, activeTimeService.Today),
		ActiveTime:     handlers.NewActiveTimeHandler(activeTimeService),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), stores.users),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
	cancel()
	tracker.Wait()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
