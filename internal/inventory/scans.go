package inventory

import (
	"context"
	"fmt"

	"github.com/toolcrib/toolcrib/internal/shared"
	"github.com/toolcrib/toolcrib/internal/tools"
)

// Scan resolves code to a tool and adds quantity to the session's count.
func (s *Service) Scan(ctx context.Context, input ScanInput) (ScanResult, error) {
	code := tools.NormalizeCode(input.Code)
	if code == "" {
		return ScanResult{}, fmt.Errorf("%w: code required", shared.ErrValidation)
	}
	if input.Quantity < 1 {
		return ScanResult{}, ErrInvalidQuantity
	}
	var result ScanResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// Share lock keeps the session from leaving active until this count commits.
		session, err := tx.LockSession(ctx, input.SessionID, false)
		if err != nil {
			return err
		}
		if session.Status != SessionActive {
			return fmt.Errorf("%w: session is %s", ErrInvalidSessionState, session.Status)
		}
		tool, err := tx.ResolveCode(ctx, code)
		if err != nil {
			return err
		}
		count, err := tx.AddCount(ctx, session.ID, tool.ID, input.Quantity, s.now())
		if err != nil {
			return err
		}
		result = ScanResult{Tool: tool, CountedQty: count.CountedQty}
		return nil
	})
	if err != nil {
		return ScanResult{}, err
	}
	return result, nil
}
