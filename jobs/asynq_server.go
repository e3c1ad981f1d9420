package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/toolcrib/toolcrib/internal/platform/httpx"
	"github.com/toolcrib/toolcrib/internal/rbac"
)

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts asynq.RedisClientOpt
	Logger    *slog.Logger
	Handlers  []TaskHandler
	Cron      []CronRegistration
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			QueueDefault: 1,
		},
		Logger: newAsynqLogger(cfg.Logger),
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	client := asynq.NewClient(redisOpts)
	return &Client{client: client}, nil
}

// EnqueueLedgerRepair enqueues a ledger repair sweep. A sweep already queued
// or running under the same id is not duplicated.
func (c *Client) EnqueueLedgerRepair(ctx context.Context, payload LedgerRepairPayload) (*asynq.TaskInfo, error) {
	task, err := NewLedgerRepairTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(3), asynq.Unique(time.Minute))
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// QueueInspector reports queue depth.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// RepairEnqueuer schedules ledger repair sweeps.
type RepairEnqueuer interface {
	EnqueueLedgerRepair(ctx context.Context, payload LedgerRepairPayload) (*asynq.TaskInfo, error)
}

// Handler exposes HTTP endpoints for job observability and manual triggers.
type Handler struct {
	inspector QueueInspector
	enqueuer  RepairEnqueuer
	rbac      rbac.Middleware
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector QueueInspector, enqueuer RepairEnqueuer, mw rbac.Middleware, logger *slog.Logger) *Handler {
	return &Handler{inspector: inspector, enqueuer: enqueuer, rbac: mw, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.With(h.rbac.RequirePrivileged).Post("/ledger-repair", h.triggerRepair)
}

type queueHealth struct {
	Queue   string `json:"queue"`
	Pending int    `json:"pending"`
	Active  int    `json:"active"`
	Failed  int    `json:"failed"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, queueHealth{Queue: QueueDefault})
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue unavailable", "")
		return
	}
	out := queueHealth{Queue: QueueDefault}
	if info != nil {
		out = queueHealth{Queue: info.Queue, Pending: info.Pending, Active: info.Active, Failed: info.Failed}
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) triggerRepair(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue unavailable", "")
		return
	}
	dryRun, err := httpx.QueryBool(r, "dry_run")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payload := LedgerRepairPayload{DryRun: dryRun}
	info, err := h.enqueuer.EnqueueLedgerRepair(r.Context(), payload)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			httpx.Problem(w, http.StatusConflict, "Repair already queued", "")
			return
		}
		h.logger.Error("enqueue ledger repair", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal error", "")
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"task_id": info.ID, "queue": info.Queue, "dry_run": payload.DryRun})
}
