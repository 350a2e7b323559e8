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

	"github.com/odyssey-erp/odyssey-statements/internal/app"
	"github.com/odyssey-erp/odyssey-statements/internal/observability"
	"github.com/odyssey-erp/odyssey-statements/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-statements/internal/platform/db"
	"github.com/odyssey-erp/odyssey-statements/internal/recompute"
	"github.com/odyssey-erp/odyssey-statements/internal/statements"
	"github.com/odyssey-erp/odyssey-statements/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	if cfg.SkipBackends() {
		logger.Info("test mode detected, skipping worker startup")
		return
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.WithMaxConns(cfg.PGMaxConns))
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
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

	metrics := observability.NewMetrics()
	stack := app.NewStatements(cfg, pool, redisClient, metrics.Registerer(), logger)

	if err := stack.Cache.ListenForInvalidation(ctx, recompute.BumpChannel); err != nil {
		logger.Warn("grid invalidation listener", slog.Any("error", err))
	}

	recomputeJob := jobs.NewRecomputeJob(stack.Service, logger, stack.Metrics)
	consolidateJob := jobs.NewConsolidateJob(stack.Service, logger, stack.Metrics)
	sweepJob := jobs.NewSweepJob(stack.Service, stack.Repository, logger, stack.Metrics)

	sweepTask, err := jobs.NewSweepTask(string(statements.PeriodMonthly))
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers:    jobs.StatementHandlers(recomputeJob, consolidateJob, sweepJob),
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RecomputeCron, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(redisOpts)
	defer inspector.Close()

	opsServer := &http.Server{
		Addr: cfg.OpsAddr,
		Handler: app.NewRouter(app.RouterParams{
			Logger:     logger,
			Config:     cfg,
			Metrics:    metrics,
			JobHandler: jobs.NewHandler(inspector, logger),
			Grids:      stack.Service,
		}),
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}
	go func() {
		logger.Info("ops server listening", slog.String("addr", cfg.OpsAddr))
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("ops server shutdown", slog.Any("error", err))
		}
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
