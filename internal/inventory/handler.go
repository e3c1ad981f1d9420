package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/toolcrib/toolcrib/internal/platform/httpx"
	"github.com/toolcrib/toolcrib/internal/rbac"
	"github.com/toolcrib/toolcrib/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/sessions", h.handleListSessions)
	r.Get("/sessions/{id}", h.handleGetSession)
	r.Get("/sessions/{id}/differences", h.handleDifferences)
	r.Get("/sessions/{id}/corrections", h.handleListCorrections)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireUser)
		r.Post("/sessions", h.handleCreateSession)
		r.Put("/sessions/{id}/status", h.handleChangeStatus)
		r.Delete("/sessions/{id}", h.handleDeleteSession)
		r.Post("/sessions/{id}/scan", h.handleScan)
		r.Post("/sessions/{id}/corrections", h.handlePropose)
		r.Post("/corrections/{id}/accept", h.handleAccept)
		r.Delete("/corrections/{id}", h.handleDeleteCorrection)
	})
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, err := h.service.CreateSession(r.Context(), CreateSessionInput{
		Name:  req.Name,
		Notes: req.Notes,
		Actor: principal(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, session)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	pg := shared.NewPagination(page, perPage)
	sessions, total, err := h.service.ListSessions(r.Context(), SessionFilter{
		Status: SessionStatus(strings.TrimSpace(q.Get("status"))),
		Limit:  pg.PerPage,
		Offset: pg.Offset(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sessionListResponse{Items: sessions, Pagination: pg.WithTotal(total)})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	session, err := h.service.GetSession(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req changeStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, err := h.service.ChangeStatus(r.Context(), ChangeStatusInput{
		SessionID: id,
		Action:    SessionAction(req.Action),
		Actor:     principal(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteSession(r.Context(), id, principal(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

func (h *Handler) handleScan(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req scanRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.Scan(r.Context(), ScanInput{
		SessionID: id,
		Code:      req.Code,
		Quantity:  req.Quantity,
		Actor:     principal(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleDifferences(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	diffs, err := h.service.Differences(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, diffs)
}

func (h *Handler) handlePropose(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req proposeRequest
	if !h.decode(w, r, &req) {
		return
	}
	correction, err := h.service.ProposeCorrection(r.Context(), ProposeInput{
		SessionID:     id,
		ToolID:        req.ToolID,
		DifferenceQty: req.DifferenceQty,
		Reason:        req.Reason,
		CountedQty:    req.CountedQty,
		Actor:         principal(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, correction)
}

func (h *Handler) handleListCorrections(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	corrections, err := h.service.ListCorrections(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, corrections)
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	correction, err := h.service.AcceptCorrection(r.Context(), id, principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, correction)
}

func (h *Handler) handleDeleteCorrection(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteCorrection(r.Context(), id, principal(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if fields := httpx.Validate(target); fields != nil {
		httpx.FieldProblem(w, fields)
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if shared.UserSafeMessage(err) == "internal error" && !errors.Is(err, r.Context().Err()) {
		h.logger.Error("inventory request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func principal(r *http.Request) shared.Principal {
	p, _ := shared.PrincipalFromContext(r.Context())
	return p
}
