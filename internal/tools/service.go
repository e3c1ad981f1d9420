package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/toolcrib/toolcrib/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateTool(ctx context.Context, tool Tool) (Tool, error)
	GetLedger(ctx context.Context, toolID int64) (Ledger, error)
	ListTools(ctx context.Context, filter ListFilter) ([]Tool, int, error)
	ListIssues(ctx context.Context, toolID int64) ([]Issue, error)
	ServiceHistory(ctx context.Context, toolID int64) ([]ServiceHistoryEntry, error)
	ToolIDsAfter(ctx context.Context, afterID int64, limit int) ([]int64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards replayed requests.
type IdempotencyPort interface {
	Claim(ctx context.Context, scope, key string) error
	Release(ctx context.Context, scope, key string) error
}

const issueIdempotencyScope = "tools.issue"

// Service coordinates ledger mutations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		audit:       audit,
		idempotency: idem,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// NormalizeCode canonicalises a scanned or typed identifier.
func NormalizeCode(code string) string {
	return strings.TrimSpace(norm.NFKC.String(code))
}

// CreateTool registers a tool with no issued or serviced units.
func (s *Service) CreateTool(ctx context.Context, input CreateToolInput) (Tool, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Tool{}, fmt.Errorf("%w: name required", shared.ErrValidation)
	}
	if input.Quantity < 0 {
		return Tool{}, fmt.Errorf("%w: quantity must not be negative", shared.ErrValidation)
	}
	tool := Tool{
		Name:            name,
		SKU:             NormalizeCode(input.SKU),
		Barcode:         NormalizeCode(input.Barcode),
		QRCode:          NormalizeCode(input.QRCode),
		InventoryNumber: NormalizeCode(input.InventoryNumber),
		Quantity:        input.Quantity,
		Status:          DeriveStatus(input.Quantity, 0, 0),
	}
	created, err := s.repo.CreateTool(ctx, tool)
	if err != nil {
		return Tool{}, err
	}
	s.record(ctx, input.ActorID, "tools:create", created.ID, map[string]any{"quantity": created.Quantity})
	return created, nil
}

// GetTool returns the tool with its live issued quantity.
func (s *Service) GetTool(ctx context.Context, toolID int64) (Ledger, error) {
	return s.repo.GetLedger(ctx, toolID)
}

// ListTools lists tools and the total matching the filter.
func (s *Service) ListTools(ctx context.Context, filter ListFilter) ([]Tool, int, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, filter.Status)
	}
	return s.repo.ListTools(ctx, filter)
}

// ListIssues returns the issue records of a tool.
func (s *Service) ListIssues(ctx context.Context, toolID int64) ([]Issue, error) {
	if _, err := s.repo.GetLedger(ctx, toolID); err != nil {
		return nil, err
	}
	return s.repo.ListIssues(ctx, toolID)
}

// ServiceHistory returns the service log of a tool.
func (s *Service) ServiceHistory(ctx context.Context, toolID int64) ([]ServiceHistoryEntry, error) {
	if _, err := s.repo.GetLedger(ctx, toolID); err != nil {
		return nil, err
	}
	return s.repo.ServiceHistory(ctx, toolID)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, toolID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "tool",
		EntityID: strconv.FormatInt(toolID, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("tools audit record", slog.String("action", action), slog.Any("error", err))
	}
}
