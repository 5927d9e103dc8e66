package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/taskforge-hq/taskforge/internal/app"
	"github.com/taskforge-hq/taskforge/internal/audit"
	"github.com/taskforge-hq/taskforge/internal/engine"
	"github.com/taskforge-hq/taskforge/internal/entitlement"
	"github.com/taskforge-hq/taskforge/internal/hierarchy"
	"github.com/taskforge-hq/taskforge/internal/membership"
	"github.com/taskforge-hq/taskforge/internal/observability"
	"github.com/taskforge-hq/taskforge/internal/platform/cache"
	"github.com/taskforge-hq/taskforge/internal/platform/db"
	"github.com/taskforge-hq/taskforge/internal/roles"
	"github.com/taskforge-hq/taskforge/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	pgSink := audit.NewPGSink(pool)
	recorder := audit.NewRecorder(pgSink, audit.NewAsyncSink(jobsClient), logger)

	registry := roles.NewRegistry(roles.NewRepository(pool))
	if err := registry.Load(ctx); err != nil {
		// A fresh database has no role rows yet; the seeded defaults
		// keep the engine deciding until an administrator loads custom
		// roles.
		logger.Warn("loading role table failed, using seeded defaults", slog.Any("error", err))
		registry = roles.NewStaticRegistry(roles.DefaultRoles())
	}

	entResolver, err := entitlement.DefaultResolver()
	if err != nil {
		logger.Error("build entitlement tables", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	hierStore := hierarchy.NewStore(pool)
	bus := engine.NewInvalidationBus(redisClient, logger)
	snapshots := engine.NewSnapshotCache(hierStore, bus, engine.SnapshotCacheConfig{
		TTL:              cfg.SnapshotTTL,
		RefreshTimeout:   cfg.SnapshotRefreshTimeout,
		StalenessCeiling: cfg.SnapshotStalenessCeiling,
		Metrics:          metrics,
	}, logger)
	go func() {
		if err := bus.Subscribe(ctx, snapshots.DropLocal); err != nil && ctx.Err() == nil {
			logger.Error("invalidation subscription", slog.Any("error", err))
		}
	}()
	go func() {
		// Keep the staleness gauge moving even when refreshes stop.
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snapshots.RecordAges()
			}
		}
	}()

	memberships := membership.NewCache(membership.NewRepository(pool), cfg.MembershipTTL, cfg.MembershipStalenessCeiling)

	eng := engine.New(registry, entResolver, snapshots, memberships, metrics, logger)
	decisionHandler := engine.NewHandler(logger, eng, recorder)

	hierService := hierarchy.NewService(hierStore, snapshots, logger)
	hierHandler := hierarchy.NewHandler(logger, hierService, hierStore)

	rolesHandler := roles.NewHandler(logger, registry)
	auditHandler := audit.NewHandler(logger, audit.NewTimelineService(audit.NewTimelineRepo(pool)))

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		DecisionHandler:  decisionHandler,
		RolesHandler:     rolesHandler,
		HierarchyHandler: hierHandler,
		AuditHandler:     auditHandler,
		JobsHandler:      jobsHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
