package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/toolcrib/toolcrib/internal/shared"
	"github.com/toolcrib/toolcrib/internal/tools"
	"github.com/toolcrib/toolcrib/jobs"
)

// Exit codes returned by RepairCommand.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitDrift    = 10
	ExitLockHeld = 11
)

// LedgerRunner executes one repair sweep.
type LedgerRunner interface {
	Run(ctx context.Context, payload jobs.LedgerRepairPayload) (tools.RepairReport, error)
}

// RepairOptions defines available flags for the ledger-repair command.
type RepairOptions struct {
	DryRun     bool
	BatchSize  int
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// RepairSummary describes the JSON response for ledger-repair.
type RepairSummary struct {
	OK            bool          `json:"ok"`
	DryRun        bool          `json:"dry_run"`
	Checked       int           `json:"checked"`
	Corrected     int           `json:"corrected"`
	Overallocated int           `json:"overallocated"`
	Drifts        []tools.Drift `json:"drifts"`
}

// RepairCommand runs the sweep synchronously and prints the outcome. Drift
// that remains after the run yields ExitDrift so cron wrappers can alert.
func RepairCommand(ctx context.Context, runner LedgerRunner, opts RepairOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.BatchSize < 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "ledger-repair: --batch must not be negative")
		return ExitFailure
	}
	report, err := runner.Run(ctx, jobs.LedgerRepairPayload{DryRun: opts.DryRun, BatchSize: opts.BatchSize})
	if err != nil {
		if errors.Is(err, shared.ErrLockHeld) {
			_, _ = fmt.Fprintln(opts.Stderr, "ledger-repair: another sweep is running")
			return ExitLockHeld
		}
		_, _ = fmt.Fprintf(opts.Stderr, "ledger-repair: %v\n", err)
		return ExitFailure
	}

	summary := buildRepairSummary(report)
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "ledger-repair: encode json: %v\n", err)
			return ExitFailure
		}
	} else {
		renderRepairHuman(opts.Stdout, summary)
	}
	if !summary.OK {
		return ExitDrift
	}
	return ExitOK
}

func buildRepairSummary(report tools.RepairReport) RepairSummary {
	summary := RepairSummary{
		DryRun:    report.DryRun,
		Checked:   report.Checked,
		Corrected: report.Corrected(),
		Drifts:    report.Drifts,
	}
	if summary.Drifts == nil {
		summary.Drifts = []tools.Drift{}
	}
	unresolved := 0
	for _, d := range report.Drifts {
		if d.Overallocated {
			summary.Overallocated++
		}
		if d.Overallocated || (d.StatusMismatch && !d.Corrected) {
			unresolved++
		}
	}
	summary.OK = unresolved == 0
	return summary
}

func renderRepairHuman(out io.Writer, summary RepairSummary) {
	mode := "repair"
	if summary.DryRun {
		mode = "dry run"
	}
	_, _ = fmt.Fprintf(out, "Ledger %s: %d tool(s) checked\n", mode, summary.Checked)
	if len(summary.Drifts) == 0 {
		_, _ = fmt.Fprintln(out, "No drift detected.")
		return
	}
	for _, d := range summary.Drifts {
		switch {
		case d.Overallocated:
			_, _ = fmt.Fprintf(out, " - tool %d overallocated: quantity %d, issued %d, in service %d\n",
				d.ToolID, d.Quantity, d.IssuedQty, d.ServiceQuantity)
		case d.Corrected:
			_, _ = fmt.Fprintf(out, " - tool %d status %s -> %s (fixed)\n", d.ToolID, d.StoredStatus, d.DerivedStatus)
		default:
			_, _ = fmt.Fprintf(out, " - tool %d status %s, expected %s\n", d.ToolID, d.StoredStatus, d.DerivedStatus)
		}
	}
	_, _ = fmt.Fprintf(out, "%d corrected, %d overallocated\n", summary.Corrected, summary.Overallocated)
}
