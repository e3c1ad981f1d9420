package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toolcrib/toolcrib/internal/shared"
	"github.com/toolcrib/toolcrib/internal/tools"
	"github.com/toolcrib/toolcrib/jobs"
)

type stubRunner struct {
	report  tools.RepairReport
	err     error
	payload jobs.LedgerRepairPayload
}

func (s *stubRunner) Run(ctx context.Context, payload jobs.LedgerRepairPayload) (tools.RepairReport, error) {
	s.payload = payload
	return s.report, s.err
}

func TestRepairCommandJSONClean(t *testing.T) {
	runner := &stubRunner{report: tools.RepairReport{Checked: 5}}
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	code := RepairCommand(context.Background(), runner, RepairOptions{DryRun: true, BatchSize: 20, JSONOutput: true, Stdout: stdout, Stderr: stderr})
	require.Equal(t, ExitOK, code)
	require.Empty(t, stderr.String())
	require.Equal(t, jobs.LedgerRepairPayload{DryRun: true, BatchSize: 20}, runner.payload)

	var summary RepairSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.True(t, summary.OK)
	require.Equal(t, 5, summary.Checked)
	require.NotNil(t, summary.Drifts)
}

func TestRepairCommandCorrectedDriftIsOK(t *testing.T) {
	runner := &stubRunner{report: tools.RepairReport{Checked: 2, Drifts: []tools.Drift{
		{ToolID: 1, StoredStatus: tools.StatusAvailable, DerivedStatus: tools.StatusIssued, StatusMismatch: true, Corrected: true},
	}}}
	stdout := new(bytes.Buffer)
	code := RepairCommand(context.Background(), runner, RepairOptions{Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, ExitOK, code)
	require.Contains(t, stdout.String(), "tool 1 status available -> issued (fixed)")
}

func TestRepairCommandReportsUnresolvedDrift(t *testing.T) {
	runner := &stubRunner{report: tools.RepairReport{DryRun: true, Checked: 2, Drifts: []tools.Drift{
		{ToolID: 1, StatusMismatch: true},
		{ToolID: 2, Overallocated: true, Quantity: 1, IssuedQty: 3},
	}}}
	stdout := new(bytes.Buffer)
	code := RepairCommand(context.Background(), runner, RepairOptions{JSONOutput: true, Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, ExitDrift, code)

	var summary RepairSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.False(t, summary.OK)
	require.Equal(t, 1, summary.Overallocated)
	require.Len(t, summary.Drifts, 2)
}

func TestRepairCommandErrors(t *testing.T) {
	stderr := new(bytes.Buffer)
	code := RepairCommand(context.Background(), &stubRunner{err: shared.ErrLockHeld}, RepairOptions{Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, ExitLockHeld, code)
	require.Contains(t, stderr.String(), "another sweep")

	code = RepairCommand(context.Background(), &stubRunner{err: errors.New("db down")}, RepairOptions{Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer)})
	require.Equal(t, ExitFailure, code)

	code = RepairCommand(context.Background(), &stubRunner{}, RepairOptions{BatchSize: -1, Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer)})
	require.Equal(t, ExitFailure, code)
}

func TestBuildTask(t *testing.T) {
	task, err := BuildTask("ledger-repair", true)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskLedgerRepair, task.Type())
	require.JSONEq(t, `{"dry_run":true}`, string(task.Payload()))

	task, err = BuildTask(jobs.TaskIdempotencyCleanup, false)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskIdempotencyCleanup, task.Type())

	_, err = BuildTask("nope", false)
	require.Error(t, err)
}
