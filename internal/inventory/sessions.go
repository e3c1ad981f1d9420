package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/toolcrib/toolcrib/internal/shared"
)

// CreateSession opens an active session owned by the caller.
func (s *Service) CreateSession(ctx context.Context, input CreateSessionInput) (Session, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Session{}, fmt.Errorf("%w: name required", shared.ErrValidation)
	}
	session, err := s.repo.CreateSession(ctx, Session{
		Name:        name,
		Notes:       strings.TrimSpace(input.Notes),
		Status:      SessionActive,
		StartedAt:   s.now(),
		OwnerUserID: input.Actor.UserID,
	})
	if err != nil {
		return Session{}, err
	}
	s.record(ctx, input.Actor, "inventory:session_create", "inventory_session", session.ID, map[string]any{"name": name})
	return session, nil
}

// GetSession returns one session.
func (s *Service) GetSession(ctx context.Context, id int64) (Session, error) {
	return s.repo.GetSession(ctx, id)
}

// ListSessions lists one page of sessions with the total match count.
func (s *Service) ListSessions(ctx context.Context, filter SessionFilter) ([]Session, int, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, filter.Status)
	}
	return s.repo.ListSessions(ctx, filter)
}

// ChangeStatus pauses, resumes or ends a session.
func (s *Service) ChangeStatus(ctx context.Context, input ChangeStatusInput) (Session, error) {
	switch input.Action {
	case ActionPause, ActionResume, ActionEnd:
	default:
		return Session{}, fmt.Errorf("%w: action must be pause, resume or end", shared.ErrValidation)
	}
	if err := requirePrivileged(input.Actor); err != nil {
		return Session{}, err
	}
	var updated Session
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		session, err := tx.LockSession(ctx, input.SessionID, true)
		if err != nil {
			return err
		}
		next, err := session.Status.Next(input.Action)
		if err != nil {
			return err
		}
		now := s.now()
		switch input.Action {
		case ActionPause:
			session.PausedAt = &now
		case ActionResume:
			session.PausedAt = nil
		case ActionEnd:
			session.FinishedAt = &now
		}
		session.Status = next
		if err := tx.UpdateSession(ctx, session); err != nil {
			return err
		}
		updated = session
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	s.record(ctx, input.Actor, "inventory:session_"+string(input.Action), "inventory_session", updated.ID, map[string]any{
		"status": string(updated.Status),
	})
	if updated.Status == SessionEnded && s.events != nil {
		evt := SessionEndedEvent{SessionID: updated.ID, FinishedAt: *updated.FinishedAt}
		if err := s.events.HandleSessionEnded(ctx, evt); err != nil {
			s.logger.Warn("inventory session ended hook", slog.Int64("session_id", updated.ID), slog.Any("error", err))
		}
	}
	return updated, nil
}

// DeleteSession removes an ended session with its counts and pending
// corrections. Accepted corrections are kept, detached from the session.
func (s *Service) DeleteSession(ctx context.Context, id int64, actor shared.Principal) error {
	if err := requirePrivileged(actor); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		session, err := tx.LockSession(ctx, id, true)
		if err != nil {
			return err
		}
		if session.Status != SessionEnded {
			return ErrSessionNotEnded
		}
		return tx.DeleteSession(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actor, "inventory:session_delete", "inventory_session", id, nil)
	return nil
}
