package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/taskforge-hq/taskforge/internal/app"
	"github.com/taskforge-hq/taskforge/internal/audit"
	"github.com/taskforge-hq/taskforge/internal/engine"
	"github.com/taskforge-hq/taskforge/internal/hierarchy"
	jobmetrics "github.com/taskforge-hq/taskforge/internal/jobs"
	"github.com/taskforge-hq/taskforge/internal/platform/db"
	"github.com/taskforge-hq/taskforge/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	hierStore := hierarchy.NewStore(pool)
	// The worker warms its own local cache; invalidations are not
	// broadcast from here.
	snapshots := engine.NewSnapshotCache(hierStore, nil, engine.SnapshotCacheConfig{
		TTL:              cfg.SnapshotTTL,
		RefreshTimeout:   2 * time.Second,
		StalenessCeiling: cfg.SnapshotStalenessCeiling,
	}, logger)

	auditSink := audit.NewPGSink(pool)
	timelineRepo := audit.NewTimelineRepo(pool)
	metrics := jobmetrics.NewMetrics(nil)

	warmupTask, err := jobs.NewSnapshotWarmupTask(time.Now())
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}
	purgeTask, err := jobs.NewAuditPurgeTask(90 * 24 * time.Hour)
	if err != nil {
		logger.Error("build purge task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuditRecord, Handler: jobs.Instrument(jobs.TaskAuditRecord, metrics, jobs.NewAuditRecordHandler(auditSink, logger))},
			{Type: jobs.TaskSnapshotWarmup, Handler: jobs.Instrument(jobs.TaskSnapshotWarmup, metrics, jobs.NewSnapshotWarmupHandler(hierStore, snapshots, logger))},
			{Type: jobs.TaskAuditPurge, Handler: jobs.Instrument(jobs.TaskAuditPurge, metrics, jobs.NewAuditPurgeHandler(timelineRepo, logger))},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/10 * * * *", Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 2 * * *", Task: purgeTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
