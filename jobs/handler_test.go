package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/toolcrib/toolcrib/internal/rbac"
)

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

type stubEnqueuer struct {
	payloads []LedgerRepairPayload
	err      error
}

func (s *stubEnqueuer) EnqueueLedgerRepair(ctx context.Context, p LedgerRepairPayload) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.payloads = append(s.payloads, p)
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

func newJobsRouter(inspector QueueInspector, enqueuer RepairEnqueuer) http.Handler {
	mw := rbac.Middleware{Policy: rbac.NewPolicy([]string{"admin"}), Logger: quietLogger()}
	r := chi.NewRouter()
	r.Use(mw.Principal)
	r.Route("/jobs", NewHandler(inspector, enqueuer, mw, quietLogger()).MountRoutes)
	return r
}

func TestJobsHealth(t *testing.T) {
	h := newJobsRouter(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 2, Failed: 1}}, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body queueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, queueHealth{Queue: QueueDefault, Pending: 2, Failed: 1}, body)

	h = newJobsRouter(stubInspector{err: errors.New("redis down")}, nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestJobsTriggerRepair(t *testing.T) {
	enqueuer := &stubEnqueuer{}
	h := newJobsRouter(nil, enqueuer)

	send := func(role string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/jobs/ledger-repair?dry_run=true", nil)
		req.Header.Set(rbac.HeaderUserID, "9")
		req.Header.Set(rbac.HeaderUserRole, role)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusForbidden, send("worker").Code)
	rec := send("admin")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Equal(t, []LedgerRepairPayload{{DryRun: true}}, enqueuer.payloads)

	enqueuer.err = asynq.ErrDuplicateTask
	require.Equal(t, http.StatusConflict, send("admin").Code)
}

func TestJobsTriggerRepairRejectsBadDryRun(t *testing.T) {
	enqueuer := &stubEnqueuer{}
	h := newJobsRouter(nil, enqueuer)
	req := httptest.NewRequest(http.MethodPost, "/jobs/ledger-repair?dry_run=maybe", nil)
	req.Header.Set(rbac.HeaderUserID, "9")
	req.Header.Set(rbac.HeaderUserRole, "admin")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, enqueuer.payloads)
}
