package tools

import (
	"context"
	"fmt"

	"github.com/toolcrib/toolcrib/internal/shared"
)

// SendToService moves available units to external service.
func (s *Service) SendToService(ctx context.Context, input SendToServiceInput) (Tool, error) {
	if input.ToolID == 0 {
		return Tool{}, fmt.Errorf("%w: tool required", shared.ErrValidation)
	}
	if input.Quantity < 1 {
		return Tool{}, ErrInvalidQuantity
	}
	order := NormalizeCode(input.OrderNumber)

	var tool Tool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ledger, err := tx.LockLedger(ctx, input.ToolID)
		if err != nil {
			return err
		}
		if input.Quantity > ledger.Available() {
			return ErrInsufficientAvailableQuantity
		}
		ledger.ServiceQuantity += input.Quantity
		if order != "" {
			ledger.ServiceOrderNumber = order
		}
		if _, err := tx.InsertServiceEntry(ctx, ServiceHistoryEntry{
			ToolID:      input.ToolID,
			Action:      ServiceActionSent,
			Quantity:    input.Quantity,
			OrderNumber: order,
			CreatedAt:   s.now(),
		}); err != nil {
			return err
		}
		tool, err = persistLedger(ctx, tx, ledger)
		return err
	})
	if err != nil {
		return Tool{}, err
	}
	s.record(ctx, input.ActorID, "tools:service_send", input.ToolID, map[string]any{
		"quantity":     input.Quantity,
		"order_number": order,
		"status":       string(tool.Status),
	})
	return tool, nil
}

// ReceiveFromService brings units back from service.
func (s *Service) ReceiveFromService(ctx context.Context, input ReceiveFromServiceInput) (ReceiveResult, error) {
	if input.ToolID == 0 {
		return ReceiveResult{}, fmt.Errorf("%w: tool required", shared.ErrValidation)
	}
	if input.Quantity < 1 {
		return ReceiveResult{}, ErrInvalidQuantity
	}

	var result ReceiveResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ledger, err := tx.LockLedger(ctx, input.ToolID)
		if err != nil {
			return err
		}
		if input.Quantity > ledger.ServiceQuantity {
			return ErrOverReceive
		}
		if _, err := tx.InsertServiceEntry(ctx, ServiceHistoryEntry{
			ToolID:      input.ToolID,
			Action:      ServiceActionReceived,
			Quantity:    input.Quantity,
			OrderNumber: ledger.ServiceOrderNumber,
			CreatedAt:   s.now(),
		}); err != nil {
			return err
		}
		ledger.ServiceQuantity -= input.Quantity
		if ledger.ServiceQuantity == 0 {
			ledger.ServiceOrderNumber = ""
		}
		tool, err := persistLedger(ctx, tx, ledger)
		if err != nil {
			return err
		}
		result = ReceiveResult{Tool: tool, Remaining: tool.ServiceQuantity}
		return nil
	})
	if err != nil {
		return ReceiveResult{}, err
	}
	s.record(ctx, input.ActorID, "tools:service_receive", input.ToolID, map[string]any{
		"quantity":  input.Quantity,
		"remaining": result.Remaining,
		"status":    string(result.Status),
	})
	return result, nil
}
