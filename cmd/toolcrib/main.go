package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/toolcrib/toolcrib/cmd/toolcrib/cli"
	"github.com/toolcrib/toolcrib/internal/app"
	"github.com/toolcrib/toolcrib/internal/inventory"
	jobmetrics "github.com/toolcrib/toolcrib/internal/jobs"
	"github.com/toolcrib/toolcrib/internal/observability"
	"github.com/toolcrib/toolcrib/internal/platform/cache"
	"github.com/toolcrib/toolcrib/internal/platform/db"
	"github.com/toolcrib/toolcrib/internal/rbac"
	"github.com/toolcrib/toolcrib/internal/shared"
	"github.com/toolcrib/toolcrib/internal/tools"
	"github.com/toolcrib/toolcrib/jobs"
)

const usage = `usage: toolcrib [command]

commands:
  serve                           run the HTTP API (default)
  migrate                         apply pending schema migrations
  ledger-repair [--dry-run] [--json] [--batch N]
                                  re-derive tool statuses and report drift
  jobs trigger <name> [--dry-run] enqueue ledger-repair or idempotency-cleanup
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	_ = godotenv.Load()

	command := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	var code int
	switch command {
	case "serve":
		code = serve(ctx, stop, cfg, logger)
	case "migrate":
		code = migrate(ctx, cfg, logger)
	case "ledger-repair":
		code = ledgerRepair(ctx, cfg, logger, args)
	case "jobs":
		code = jobsCommand(ctx, cfg, args)
	default:
		_, _ = fmt.Fprint(os.Stderr, usage)
		code = 2
	}
	stop()
	os.Exit(code)
}

type services struct {
	pool      *pgxpool.Pool
	redis     *redis.Client
	tools     *tools.Service
	inventory *inventory.Service
	metrics   *observability.Metrics
}

func buildServices(ctx context.Context, cfg *app.Config, logger *slog.Logger) (*services, func(), error) {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.MigrateOnBoot {
		if err := db.Migrate(ctx, pool, logger, db.Migrations); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, ledger repair locking will fail", slog.Any("error", err))
	}
	cleanup := func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
		pool.Close()
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	toolsService := tools.NewService(tools.NewRepository(pool), auditLogger, idempotencyStore, logger)
	events := app.EventRecorder{Logger: logger, Metrics: metrics}
	inventoryService := inventory.NewService(inventory.NewRepository(pool), auditLogger, events, logger)

	return &services{
		pool:      pool,
		redis:     redisClient,
		tools:     toolsService,
		inventory: inventoryService,
		metrics:   metrics,
	}, cleanup, nil
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) int {
	svc, cleanup, err := buildServices(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap", slog.Any("error", err))
		return 1
	}
	defer cleanup()

	rbacMiddleware := rbac.Middleware{Policy: rbac.NewPolicy(cfg.PrivilegedRoles), Logger: logger}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		DB:               svc.pool,
		RBACMiddleware:   rbacMiddleware,
		ToolsHandler:     tools.NewHandler(logger, svc.tools, rbacMiddleware),
		InventoryHandler: inventory.NewHandler(logger, svc.inventory, rbacMiddleware),
		JobHandler:       jobs.NewHandler(inspector, jobClient, rbacMiddleware, logger),
		Metrics:          svc.metrics,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
		return 1
	}
	return 0
}

func migrate(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool, logger, db.Migrations); err != nil {
		logger.Error("migrate", slog.Any("error", err))
		return 1
	}
	return 0
}

func ledgerRepair(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("ledger-repair", flag.ContinueOnError)
	dryRun := fs.Bool("dry-run", false, "report drift without rewriting statuses")
	jsonOut := fs.Bool("json", false, "print the report as JSON")
	batch := fs.Int("batch", 0, "tools per page")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	svc, cleanup, err := buildServices(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap", slog.Any("error", err))
		return 1
	}
	defer cleanup()

	job := jobs.NewLedgerRepairJob(svc.tools, shared.NewLocker(svc.redis), cfg.LedgerRepairLockTTL, logger, jobmetrics.NewMetrics(svc.metrics.Registerer()))
	return cli.RepairCommand(ctx, job, cli.RepairOptions{DryRun: *dryRun, BatchSize: *batch, JSONOutput: *jsonOut})
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) < 2 || args[0] != "trigger" {
		_, _ = fmt.Fprint(os.Stderr, usage)
		return 2
	}
	name := args[1]
	fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
	dryRun := fs.Bool("dry-run", false, "dry run where supported")
	if err := fs.Parse(args[2:]); err != nil {
		return 2
	}

	client, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return 1
	}
	defer func() { _ = client.Close() }()

	info, err := client.Trigger(ctx, name, *dryRun)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return 1
	}
	stats, err := client.InspectQueue(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stdout, "enqueued %s (%s)\n", info.ID, info.Type)
		return 0
	}
	_, _ = fmt.Fprintf(os.Stdout, "enqueued %s (%s); queue %s pending=%d active=%d\n", info.ID, info.Type, stats.Queue, stats.Pending, stats.Active)
	return 0
}
