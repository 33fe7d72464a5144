package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/campuscore/campuscore/internal/app"
	"github.com/campuscore/campuscore/internal/audit"
	"github.com/campuscore/campuscore/internal/authz"
	"github.com/campuscore/campuscore/internal/observability"
	"github.com/campuscore/campuscore/internal/platform/cache"
	"github.com/campuscore/campuscore/internal/platform/db"
	"github.com/campuscore/campuscore/internal/principals"
	"github.com/campuscore/campuscore/internal/roles"
	"github.com/campuscore/campuscore/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, audit queue falls back to direct writes", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()

	auditRepo := audit.NewRepo(dbpool)
	auditWriter := audit.NewWriter(auditRepo, logger, cfg.AuditCriticalTables).WithMetrics(metrics)
	auditBuilder := audit.NewBuilder(cfg.AuditSensitiveFields)

	var queue audit.Queue
	var jobsHandler *jobs.Handler
	if redisClient != nil {
		client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		if err != nil {
			logger.Error("init jobs client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("jobs client close", slog.Any("error", err))
			}
		}()
		queue = client
		jobsHandler = jobs.NewHandler(asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr}), logger)
	}
	recorder := audit.NewRecorder(auditBuilder, queue, auditWriter, logger)

	permStore := authz.NewStore(dbpool)
	permCache := authz.NewCache(permStore, cfg.AuthzCacheTTL, cfg.AuthzCacheSize)
	authzService := authz.NewService(permCache, authz.RoleName(cfg.AuthzSuperAdminRole), logger)
	guard := authz.Middleware{Service: authzService, Logger: logger, Metrics: metrics}

	rolesRepo := roles.NewRepo(dbpool)
	rolesService := roles.NewService(rolesRepo, authzService, recorder)
	rolesHandler := roles.NewHandler(logger, rolesService, guard)

	principalsRepo := principals.NewRepo(dbpool)
	principalsService := principals.NewService(principalsRepo, authzService, recorder)
	principalsHandler := principals.NewHandler(logger, principalsService, authzService, guard)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		RolesHandler:      rolesHandler,
		PrincipalsHandler: principalsHandler,
		JobHandler:        jobsHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server run", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
