package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/toolcrib/toolcrib/internal/shared"
	"github.com/toolcrib/toolcrib/internal/tools"
)

// ProposeCorrection records a pending correction for a tool in a session.
func (s *Service) ProposeCorrection(ctx context.Context, input ProposeInput) (Correction, error) {
	if input.ToolID <= 0 {
		return Correction{}, fmt.Errorf("%w: tool_id required", shared.ErrValidation)
	}
	if input.DifferenceQty == 0 {
		return Correction{}, ErrZeroDifference
	}
	if input.CountedQty != nil && *input.CountedQty < 0 {
		return Correction{}, fmt.Errorf("%w: counted_qty must not be negative", shared.ErrValidation)
	}
	var created Correction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		session, err := tx.LockSession(ctx, input.SessionID, false)
		if err != nil {
			return err
		}
		exists, err := tx.ToolExists(ctx, input.ToolID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrInvalidTool
		}
		now := s.now()
		if input.CountedQty != nil {
			if _, err := tx.SetCount(ctx, session.ID, input.ToolID, *input.CountedQty, now); err != nil {
				return err
			}
		}
		sessionID := session.ID
		created, err = tx.InsertCorrection(ctx, Correction{
			SessionID:       &sessionID,
			ToolID:          input.ToolID,
			DifferenceQty:   input.DifferenceQty,
			Reason:          strings.TrimSpace(input.Reason),
			CreatedByUserID: input.Actor.UserID,
			CreatedAt:       now,
		})
		return err
	})
	if err != nil {
		return Correction{}, err
	}
	s.record(ctx, input.Actor, "inventory:correction_propose", "inventory_correction", created.ID, map[string]any{
		"session_id":     input.SessionID,
		"tool_id":        input.ToolID,
		"difference_qty": input.DifferenceQty,
	})
	return created, nil
}

// ListCorrections lists corrections of a session.
func (s *Service) ListCorrections(ctx context.Context, sessionID int64) ([]Correction, error) {
	if _, err := s.repo.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.ListCorrections(ctx, sessionID)
}

// AcceptCorrection applies a pending correction to the tool ledger exactly once.
func (s *Service) AcceptCorrection(ctx context.Context, id int64, actor shared.Principal) (Correction, error) {
	if err := requirePrivileged(actor); err != nil {
		return Correction{}, err
	}
	var accepted Correction
	var tool tools.Tool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err := tx.GetCorrectionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if c.Accepted() {
			return ErrAlreadyAccepted
		}
		tool, err = tools.ApplyQuantityDelta(ctx, tx, c.ToolID, c.DifferenceQty)
		if err != nil {
			return err
		}
		now := s.now()
		if err := tx.MarkCorrectionAccepted(ctx, c.ID, actor.UserID, now); err != nil {
			return err
		}
		userID := actor.UserID
		c.AcceptedByUserID = &userID
		c.AcceptedAt = &now
		accepted = c
		return nil
	})
	if err != nil {
		return Correction{}, err
	}
	s.record(ctx, actor, "inventory:correction_accept", "inventory_correction", accepted.ID, map[string]any{
		"tool_id":        accepted.ToolID,
		"difference_qty": accepted.DifferenceQty,
		"new_quantity":   tool.Quantity,
		"status":         string(tool.Status),
	})
	if s.events != nil {
		evt := CorrectionAcceptedEvent{
			CorrectionID:  accepted.ID,
			SessionID:     accepted.SessionID,
			ToolID:        accepted.ToolID,
			DifferenceQty: accepted.DifferenceQty,
			NewQuantity:   tool.Quantity,
			AcceptedBy:    actor.UserID,
			AcceptedAt:    *accepted.AcceptedAt,
		}
		if err := s.events.HandleCorrectionAccepted(ctx, evt); err != nil {
			s.logger.Warn("inventory correction accepted hook", slog.Int64("correction_id", accepted.ID), slog.Any("error", err))
		}
	}
	return accepted, nil
}

// DeleteCorrection removes a pending correction.
func (s *Service) DeleteCorrection(ctx context.Context, id int64, actor shared.Principal) error {
	if err := requirePrivileged(actor); err != nil {
		return err
	}
	var removed Correction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err := tx.GetCorrectionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if c.Accepted() {
			return ErrAlreadyAccepted
		}
		removed = c
		return tx.DeleteCorrection(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actor, "inventory:correction_delete", "inventory_correction", id, map[string]any{
		"tool_id":        removed.ToolID,
		"difference_qty": removed.DifferenceQty,
	})
	return nil
}
