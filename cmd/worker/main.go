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
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/toolcrib/toolcrib/internal/app"
	jobmetrics "github.com/toolcrib/toolcrib/internal/jobs"
	"github.com/toolcrib/toolcrib/internal/observability"
	"github.com/toolcrib/toolcrib/internal/platform/cache"
	"github.com/toolcrib/toolcrib/internal/platform/db"
	"github.com/toolcrib/toolcrib/internal/shared"
	"github.com/toolcrib/toolcrib/internal/tools"
	"github.com/toolcrib/toolcrib/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg).With(slog.String("process", "worker"))

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		_ = redisClient.Close()
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	toolsService := tools.NewService(tools.NewRepository(pool), shared.NewAuditLogger(pool), shared.NewIdempotencyStore(pool), logger)
	repairJob := jobs.NewLedgerRepairJob(toolsService, shared.NewLocker(redisClient), cfg.LedgerRepairLockTTL, logger, jobMetrics)
	cleanupJob := &jobs.IdempotencyCleanupJob{
		Store:   shared.NewIdempotencyStore(pool),
		TTL:     cfg.IdempotencyTTL,
		Logger:  logger,
		Metrics: jobMetrics,
	}

	repairTask, err := jobs.NewLedgerRepairTask(jobs.LedgerRepairPayload{})
	if err != nil {
		logger.Error("build ledger repair task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerRepair, Handler: repairJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.LedgerRepairCron, Task: repairTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.IdempotencyCleanupCron, Task: jobs.NewIdempotencyCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return worker.Run(groupCtx)
	})
	group.Go(func() error {
		logger.Info("starting worker metrics server", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
