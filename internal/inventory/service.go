package inventory

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/toolcrib/toolcrib/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateSession(ctx context.Context, s Session) (Session, error)
	GetSession(ctx context.Context, id int64) (Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]Session, int, error)
	Differences(ctx context.Context, sessionID int64) ([]Difference, error)
	ListCorrections(ctx context.Context, sessionID int64) ([]Correction, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates stocktake sessions, counts and corrections.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	events EventHandler
	logger *slog.Logger
	diffs  singleflight.Group
	now    func() time.Time
}

// NewService builds Service. audit and events may be nil.
func NewService(repo RepositoryPort, audit AuditPort, events EventHandler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		audit:  audit,
		events: events,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func requirePrivileged(actor shared.Principal) error {
	if actor.UserID == 0 || !actor.Privileged {
		return ErrNotPrivileged
	}
	return nil
}

func (s *Service) record(ctx context.Context, actor shared.Principal, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("inventory audit record", slog.String("action", action), slog.Any("error", err))
	}
}
