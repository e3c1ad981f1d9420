package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/toolcrib/toolcrib/internal/shared"
)

// Issue hands units of a tool to an employee.
func (s *Service) Issue(ctx context.Context, input IssueInput) (Issue, error) {
	if input.ToolID == 0 || input.EmployeeID == 0 {
		return Issue{}, fmt.Errorf("%w: tool and employee required", shared.ErrValidation)
	}
	if input.Quantity < 1 {
		return Issue{}, ErrInvalidQuantity
	}

	insertedKey := false
	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.Claim(ctx, issueIdempotencyScope, input.IdempotencyKey); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Issue{}, ErrDuplicateRequest
			}
			return Issue{}, err
		}
		insertedKey = true
	}

	var issued Issue
	var tool Tool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ledger, err := tx.LockLedger(ctx, input.ToolID)
		if err != nil {
			return err
		}
		if input.Quantity > ledger.Available() {
			return ErrInsufficientAvailableQuantity
		}
		issued, err = tx.InsertIssue(ctx, Issue{
			ToolID:     input.ToolID,
			EmployeeID: input.EmployeeID,
			Quantity:   input.Quantity,
			IssuedAt:   s.now(),
			Status:     IssueStatusIssued,
		})
		if err != nil {
			return err
		}
		ledger.IssuedQty += input.Quantity
		tool, err = persistLedger(ctx, tx, ledger)
		return err
	})
	if err != nil {
		if insertedKey {
			if derr := s.idempotency.Release(ctx, issueIdempotencyScope, input.IdempotencyKey); derr != nil {
				s.logger.Warn("tools release idempotency key", slog.Any("error", derr))
			}
		}
		return Issue{}, err
	}
	s.record(ctx, input.ActorID, "tools:issue", input.ToolID, map[string]any{
		"issue_id":    issued.ID,
		"employee_id": input.EmployeeID,
		"quantity":    input.Quantity,
		"status":      string(tool.Status),
	})
	return issued, nil
}

// Return records units coming back against an open issue.
func (s *Service) Return(ctx context.Context, input ReturnInput) (ReturnResult, error) {
	if input.ToolID == 0 || input.IssueID == 0 {
		return ReturnResult{}, fmt.Errorf("%w: tool and issue required", shared.ErrValidation)
	}
	if input.Quantity < 1 {
		return ReturnResult{}, ErrInvalidQuantity
	}

	var result ReturnResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// Tool row first so every ledger mutation takes locks in the same order.
		ledger, err := tx.LockLedger(ctx, input.ToolID)
		if err != nil {
			return err
		}
		issue, err := tx.GetIssueForUpdate(ctx, input.IssueID)
		if err != nil {
			return err
		}
		if issue.ToolID != input.ToolID || issue.Status != IssueStatusIssued {
			return ErrIssueNotFound
		}
		if input.Quantity > issue.Outstanding() {
			return ErrOverReturn
		}
		now := s.now()
		issue.ReturnedQuantity += input.Quantity
		if issue.Outstanding() == 0 {
			issue.Status = IssueStatusReturned
			issue.ReturnedAt = &now
		}
		if err := tx.UpdateIssue(ctx, issue); err != nil {
			return err
		}
		if err := tx.InsertIssueReturn(ctx, IssueReturn{IssueID: issue.ID, Quantity: input.Quantity, ReturnedAt: now}); err != nil {
			return err
		}
		ledger.IssuedQty -= input.Quantity
		tool, err := persistLedger(ctx, tx, ledger)
		if err != nil {
			return err
		}
		result = ReturnResult{Tool: tool, Issue: issue}
		return nil
	})
	if err != nil {
		return ReturnResult{}, err
	}
	s.record(ctx, input.ActorID, "tools:return", input.ToolID, map[string]any{
		"issue_id": input.IssueID,
		"quantity": input.Quantity,
		"closed":   result.Issue.Status == IssueStatusReturned,
		"status":   string(result.Status),
	})
	return result, nil
}
