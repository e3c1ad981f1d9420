package tools

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

// Handler wires HTTP endpoints for the tool ledger.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs tools handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers tool routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Get("/{id}/issues", h.handleListIssues)
	r.Get("/{id}/service/history", h.handleServiceHistory)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireUser)
		r.Post("/", h.handleCreate)
		r.Post("/{id}/issue", h.handleIssue)
		r.Post("/{id}/return", h.handleReturn)
		r.Post("/{id}/service", h.handleSendToService)
		r.Post("/{id}/service/receive", h.handleReceiveFromService)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePrivileged)
		r.Post("/repair-status", h.handleRepair)
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createToolRequest
	if !h.decode(w, r, &req) {
		return
	}
	tool, err := h.service.CreateTool(r.Context(), CreateToolInput{
		Name:            req.Name,
		SKU:             req.SKU,
		Barcode:         req.Barcode,
		QRCode:          req.QRCode,
		InventoryNumber: req.InventoryNumber,
		Quantity:        req.Quantity,
		ActorID:         actorID(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tool)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	ledger, err := h.service.GetTool(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ledger)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pg := shared.NewPagination(atoiDefault(q.Get("page"), 1), atoiDefault(q.Get("per_page"), shared.DefaultPerPage))
	filter := ListFilter{
		Status: Status(strings.TrimSpace(q.Get("status"))),
		Search: NormalizeCode(q.Get("q")),
		Limit:  pg.PerPage,
		Offset: pg.Offset(),
	}
	items, total, err := h.service.ListTools(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Items: items, Pagination: pg.WithTotal(total)})
}

func (h *Handler) handleListIssues(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	issues, err := h.service.ListIssues(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, issues)
}

func (h *Handler) handleServiceHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	entries, err := h.service.ServiceHistory(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req issueRequest
	if !h.decode(w, r, &req) {
		return
	}
	issue, err := h.service.Issue(r.Context(), IssueInput{
		ToolID:         id,
		EmployeeID:     req.EmployeeID,
		Quantity:       req.Quantity,
		ActorID:        actorID(r),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, issue)
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req returnRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.Return(r.Context(), ReturnInput{
		ToolID:   id,
		IssueID:  req.IssueID,
		Quantity: req.Quantity,
		ActorID:  actorID(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleSendToService(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req sendToServiceRequest
	if !h.decode(w, r, &req) {
		return
	}
	tool, err := h.service.SendToService(r.Context(), SendToServiceInput{
		ToolID:      id,
		Quantity:    req.Quantity,
		OrderNumber: req.ServiceOrderNumber,
		ActorID:     actorID(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tool)
}

func (h *Handler) handleReceiveFromService(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req receiveRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.ReceiveFromService(r.Context(), ReceiveFromServiceInput{
		ToolID:   id,
		Quantity: req.Quantity,
		ActorID:  actorID(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleRepair(w http.ResponseWriter, r *http.Request) {
	dryRun, err := httpx.QueryBool(r, "dry_run")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.RepairStatuses(r.Context(), RepairOptions{DryRun: dryRun})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
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
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid tool id")
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if shared.UserSafeMessage(err) == "internal error" && !errors.Is(err, r.Context().Err()) {
		h.logger.Error("tools request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func actorID(r *http.Request) int64 {
	p, _ := shared.PrincipalFromContext(r.Context())
	return p.UserID
}

func atoiDefault(raw string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
