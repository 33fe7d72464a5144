package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/campuscore/campuscore/internal/app"
	"github.com/campuscore/campuscore/internal/audit"
	"github.com/campuscore/campuscore/internal/observability"
	"github.com/campuscore/campuscore/internal/platform/db"
	"github.com/campuscore/campuscore/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	metrics := observability.NewMetrics()

	auditRepo := audit.NewRepo(dbpool)
	auditWriter := audit.NewWriter(auditRepo, logger, cfg.AuditCriticalTables).WithMetrics(metrics)
	persistJob := jobs.NewAuditPersistJob(auditWriter, logger)

	sweeper := audit.NewSweeper(auditRepo, audit.RetentionConfig{
		AuditRecords:  cfg.RetentionAuditRecords,
		AccessRecords: cfg.RetentionAccessRecords,
		SystemEvents:  cfg.RetentionSystemEvents,
	}, logger)
	sweepJob := jobs.NewRetentionSweepJob(sweeper, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuditRecord, Handler: persistJob.HandleRecord},
			{Type: jobs.TaskAuditAccess, Handler: persistJob.HandleAccess},
			{Type: jobs.TaskAuditEvent, Handler: persistJob.HandleEvent},
			{Type: jobs.TaskRetentionSweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RetentionSweepCron, Task: jobs.NewRetentionSweepTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
