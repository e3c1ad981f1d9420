package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

const defaultRepairBatch = 200

// RepairOptions tune a status repair sweep.
type RepairOptions struct {
	DryRun    bool
	BatchSize int
}

// Drift describes one tool whose stored ledger state is inconsistent.
type Drift struct {
	ToolID          int64  `json:"tool_id"`
	StoredStatus    Status `json:"stored_status"`
	DerivedStatus   Status `json:"derived_status"`
	Quantity        int    `json:"quantity"`
	IssuedQty       int    `json:"issued_qty"`
	ServiceQuantity int    `json:"service_quantity"`
	StatusMismatch  bool   `json:"status_mismatch"`
	Overallocated   bool   `json:"overallocated"`
	Corrected       bool   `json:"corrected"`
}

// RepairReport summarises a sweep.
type RepairReport struct {
	DryRun  bool    `json:"dry_run"`
	Checked int     `json:"checked"`
	Drifts  []Drift `json:"drifts"`
}

// Corrected counts drifts whose status was rewritten.
func (r RepairReport) Corrected() int {
	n := 0
	for _, d := range r.Drifts {
		if d.Corrected {
			n++
		}
	}
	return n
}

// Err returns ErrLedgerDriftDetected when any drift was found.
func (r RepairReport) Err() error {
	if len(r.Drifts) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d of %d tools", ErrLedgerDriftDetected, len(r.Drifts), r.Checked)
}

// persistLedger recomputes status from the ledger and writes the tool row.
func persistLedger(ctx context.Context, tx LedgerTx, ledger Ledger) (Tool, error) {
	ledger.Status = ledger.Derived()
	if err := tx.UpdateLedger(ctx, ledger.Tool); err != nil {
		return Tool{}, err
	}
	return ledger.Tool, nil
}

// ApplyQuantityDelta adds delta to a tool's total quantity inside tx. The new
// total must still cover every issued and serviced unit.
func ApplyQuantityDelta(ctx context.Context, tx LedgerTx, toolID int64, delta int) (Tool, error) {
	ledger, err := tx.LockLedger(ctx, toolID)
	if err != nil {
		return Tool{}, err
	}
	next := ledger.Quantity + delta
	if next < 0 || next < ledger.IssuedQty+ledger.ServiceQuantity {
		return Tool{}, ErrAllocationExceeded
	}
	ledger.Quantity = next
	return persistLedger(ctx, tx, ledger)
}

// RepairStatuses walks every tool, one row lock at a time, and realigns stored
// status with derived status. Overallocation is reported only.
func (s *Service) RepairStatuses(ctx context.Context, opts RepairOptions) (RepairReport, error) {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = defaultRepairBatch
	}
	report := RepairReport{DryRun: opts.DryRun, Drifts: []Drift{}}
	var after int64
	for {
		ids, err := s.repo.ToolIDsAfter(ctx, after, batch)
		if err != nil {
			return report, fmt.Errorf("tools: list for repair: %w", err)
		}
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			drift, found, err := s.repairOne(ctx, id, opts.DryRun)
			if err != nil {
				return report, err
			}
			if !found {
				continue
			}
			report.Checked++
			if drift != nil {
				report.Drifts = append(report.Drifts, *drift)
				s.logger.Warn("ledger drift detected",
					slog.Int64("tool_id", drift.ToolID),
					slog.String("stored", string(drift.StoredStatus)),
					slog.String("derived", string(drift.DerivedStatus)),
					slog.Bool("overallocated", drift.Overallocated),
					slog.Bool("corrected", drift.Corrected))
			}
		}
		after = ids[len(ids)-1]
		if len(ids) < batch {
			break
		}
	}
	return report, nil
}

func (s *Service) repairOne(ctx context.Context, toolID int64, dryRun bool) (*Drift, bool, error) {
	var drift *Drift
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ledger, err := tx.LockLedger(ctx, toolID)
		if err != nil {
			return err
		}
		derived := ledger.Derived()
		mismatch := derived != ledger.Status
		over := ledger.Overallocated()
		if !mismatch && !over {
			return nil
		}
		drift = &Drift{
			ToolID:          toolID,
			StoredStatus:    ledger.Status,
			DerivedStatus:   derived,
			Quantity:        ledger.Quantity,
			IssuedQty:       ledger.IssuedQty,
			ServiceQuantity: ledger.ServiceQuantity,
			StatusMismatch:  mismatch,
			Overallocated:   over,
		}
		if !mismatch || dryRun {
			return nil
		}
		if _, err := persistLedger(ctx, tx, ledger); err != nil {
			return err
		}
		drift.Corrected = true
		return nil
	})
	if errors.Is(err, ErrToolNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("tools: repair tool %d: %w", toolID, err)
	}
	return drift, true, nil
}
