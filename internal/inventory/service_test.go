package inventory

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toolcrib/toolcrib/internal/shared"
	"github.com/toolcrib/toolcrib/internal/tools"
)

func newTestService(repo *memoryRepo) (*Service, *recordingEvents) {
	events := &recordingEvents{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, nil, events, logger), events
}

func openSession(t *testing.T, svc *Service) Session {
	t.Helper()
	s, err := svc.CreateSession(context.Background(), CreateSessionInput{Name: "Q3 stocktake", Actor: worker})
	require.NoError(t, err)
	require.Equal(t, SessionActive, s.Status)
	return s
}

func TestScanCountAndAcceptCorrection(t *testing.T) {
	repo := newMemoryRepo()
	svc, events := newTestService(repo)
	ctx := context.Background()
	tool := repo.seedTool(tools.Tool{Name: "Drill", SKU: "X", Quantity: 3}, 0)
	session := openSession(t, svc)

	_, err := svc.Scan(ctx, ScanInput{SessionID: session.ID, Code: "X", Quantity: 2, Actor: worker})
	require.NoError(t, err)
	res, err := svc.Scan(ctx, ScanInput{SessionID: session.ID, Code: " X ", Quantity: 2, Actor: worker})
	require.NoError(t, err)
	require.Equal(t, 4, res.CountedQty)
	require.Equal(t, tool.ID, res.ID)

	diffs, err := svc.Differences(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	require.Equal(t, Difference{ToolID: tool.ID, ToolName: "Drill", CountedQty: 4, SystemQty: 3, Difference: 1}, diffs[0])

	correction, err := svc.ProposeCorrection(ctx, ProposeInput{
		SessionID: session.ID, ToolID: tool.ID, DifferenceQty: diffs[0].Difference, Reason: "found spare", Actor: worker,
	})
	require.NoError(t, err)
	require.False(t, correction.Accepted())

	accepted, err := svc.AcceptCorrection(ctx, correction.ID, admin)
	require.NoError(t, err)
	require.True(t, accepted.Accepted())
	require.Equal(t, admin.UserID, *accepted.AcceptedByUserID)
	require.Equal(t, 4, repo.tool(tool.ID).Quantity)
	require.Equal(t, tools.StatusAvailable, repo.tool(tool.ID).Status)

	require.Len(t, events.accepted, 1)
	require.Equal(t, 4, events.accepted[0].NewQuantity)
}

func TestScanRejectsPausedSession(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()
	tool := repo.seedTool(tools.Tool{Name: "Saw", Barcode: "B-1", Quantity: 1}, 0)
	session := openSession(t, svc)

	_, err := svc.ChangeStatus(ctx, ChangeStatusInput{SessionID: session.ID, Action: ActionPause, Actor: admin})
	require.NoError(t, err)

	_, err = svc.Scan(ctx, ScanInput{SessionID: session.ID, Code: "B-1", Quantity: 1})
	require.ErrorIs(t, err, ErrInvalidSessionState)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	_, ok := repo.count(session.ID, tool.ID)
	require.False(t, ok)
}

func TestScansAccumulate(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()
	tool := repo.seedTool(tools.Tool{Name: "Gloves", InventoryNumber: "INV-9", Quantity: 10}, 0)
	session := openSession(t, svc)

	_, err := svc.Scan(ctx, ScanInput{SessionID: session.ID, Code: "INV-9", Quantity: 2})
	require.NoError(t, err)
	_, err = svc.Scan(ctx, ScanInput{SessionID: session.ID, Code: "INV-9", Quantity: 3})
	require.NoError(t, err)

	c, ok := repo.count(session.ID, tool.ID)
	require.True(t, ok)
	require.Equal(t, 5, c.CountedQty)
}

func TestScanResolutionPriorityAndMisses(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()
	byBarcode := repo.seedTool(tools.Tool{Name: "A", Barcode: "CODE", Quantity: 1}, 0)
	bySKU := repo.seedTool(tools.Tool{Name: "B", SKU: "CODE", Quantity: 1}, 0)
	session := openSession(t, svc)

	res, err := svc.Scan(ctx, ScanInput{SessionID: session.ID, Code: "CODE", Quantity: 1})
	require.NoError(t, err)
	require.Equal(t, bySKU.ID, res.ID)
	require.NotEqual(t, byBarcode.ID, res.ID)

	_, err = svc.Scan(ctx, ScanInput{SessionID: session.ID, Code: "nope", Quantity: 1})
	require.ErrorIs(t, err, ErrCodeNotFound)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.Scan(ctx, ScanInput{SessionID: session.ID, Code: "CODE", Quantity: 0})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Scan(ctx, ScanInput{SessionID: 999, Code: "CODE", Quantity: 1})
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAcceptIsAppliedExactlyOnce(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()
	tool := repo.seedTool(tools.Tool{Name: "Helmet", Quantity: 5}, 0)
	session := openSession(t, svc)

	c, err := svc.ProposeCorrection(ctx, ProposeInput{SessionID: session.ID, ToolID: tool.ID, DifferenceQty: -2, Actor: worker})
	require.NoError(t, err)

	_, err = svc.AcceptCorrection(ctx, c.ID, admin)
	require.NoError(t, err)
	_, err = svc.AcceptCorrection(ctx, c.ID, admin)
	require.ErrorIs(t, err, ErrAlreadyAccepted)
	require.Equal(t, 3, repo.tool(tool.ID).Quantity)

	err = svc.DeleteCorrection(ctx, c.ID, admin)
	require.ErrorIs(t, err, ErrAlreadyAccepted)
}

func TestCorrectionPermissions(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()
	tool := repo.seedTool(tools.Tool{Name: "Vest", Quantity: 2}, 0)
	session := openSession(t, svc)
	c, err := svc.ProposeCorrection(ctx, ProposeInput{SessionID: session.ID, ToolID: tool.ID, DifferenceQty: 1, Actor: worker})
	require.NoError(t, err)

	_, err = svc.AcceptCorrection(ctx, c.ID, worker)
	require.ErrorIs(t, err, shared.ErrPermission)
	err = svc.DeleteCorrection(ctx, c.ID, worker)
	require.ErrorIs(t, err, shared.ErrPermission)
	_, err = svc.ChangeStatus(ctx, ChangeStatusInput{SessionID: session.ID, Action: ActionEnd, Actor: worker})
	require.ErrorIs(t, err, shared.ErrPermission)
	require.Equal(t, 2, repo.tool(tool.ID).Quantity)

	require.NoError(t, svc.DeleteCorrection(ctx, c.ID, admin))
	_, ok := repo.correction(c.ID)
	require.False(t, ok)
	_, err = svc.AcceptCorrection(ctx, c.ID, admin)
	require.ErrorIs(t, err, ErrCorrectionNotFound)
}

func TestAcceptRejectsQuantityBelowAllocation(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()
	tool := repo.seedTool(tools.Tool{Name: "Ladder", Quantity: 3}, 2)
	session := openSession(t, svc)

	c, err := svc.ProposeCorrection(ctx, ProposeInput{SessionID: session.ID, ToolID: tool.ID, DifferenceQty: -2, Actor: worker})
	require.NoError(t, err)
	_, err = svc.AcceptCorrection(ctx, c.ID, admin)
	require.ErrorIs(t, err, tools.ErrAllocationExceeded)

	stored, ok := repo.correction(c.ID)
	require.True(t, ok)
	require.False(t, stored.Accepted())
	require.Equal(t, 3, repo.tool(tool.ID).Quantity)
}

func TestProposeValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()
	tool := repo.seedTool(tools.Tool{Name: "Boots", Quantity: 2}, 0)
	session := openSession(t, svc)

	_, err := svc.ProposeCorrection(ctx, ProposeInput{SessionID: session.ID, ToolID: 404, DifferenceQty: 1})
	require.ErrorIs(t, err, ErrInvalidTool)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.ProposeCorrection(ctx, ProposeInput{SessionID: session.ID, ToolID: tool.ID, DifferenceQty: 0})
	require.ErrorIs(t, err, ErrZeroDifference)

	_, err = svc.ProposeCorrection(ctx, ProposeInput{SessionID: 999, ToolID: tool.ID, DifferenceQty: 1})
	require.ErrorIs(t, err, ErrSessionNotFound)

	counted := 7
	_, err = svc.ProposeCorrection(ctx, ProposeInput{SessionID: session.ID, ToolID: tool.ID, DifferenceQty: 5, CountedQty: &counted})
	require.NoError(t, err)
	c, ok := repo.count(session.ID, tool.ID)
	require.True(t, ok)
	require.Equal(t, 7, c.CountedQty)
}

func TestSessionTransitions(t *testing.T) {
	cases := []struct {
		from   SessionStatus
		action SessionAction
		want   SessionStatus
		ok     bool
	}{
		{SessionActive, ActionPause, SessionPaused, true},
		{SessionActive, ActionResume, SessionActive, false},
		{SessionActive, ActionEnd, SessionEnded, true},
		{SessionPaused, ActionResume, SessionActive, true},
		{SessionPaused, ActionPause, SessionPaused, false},
		{SessionPaused, ActionEnd, SessionEnded, true},
		{SessionEnded, ActionPause, SessionEnded, false},
		{SessionEnded, ActionResume, SessionEnded, false},
		{SessionEnded, ActionEnd, SessionEnded, false},
	}
	for _, tc := range cases {
		got, err := tc.from.Next(tc.action)
		if tc.ok {
			require.NoError(t, err, "%s/%s", tc.from, tc.action)
		} else {
			require.ErrorIs(t, err, ErrInvalidSessionState, "%s/%s", tc.from, tc.action)
		}
		require.Equal(t, tc.want, got)
	}
}

func TestChangeStatusStampsTimes(t *testing.T) {
	repo := newMemoryRepo()
	svc, events := newTestService(repo)
	ctx := context.Background()
	session := openSession(t, svc)

	paused, err := svc.ChangeStatus(ctx, ChangeStatusInput{SessionID: session.ID, Action: ActionPause, Actor: admin})
	require.NoError(t, err)
	require.NotNil(t, paused.PausedAt)

	resumed, err := svc.ChangeStatus(ctx, ChangeStatusInput{SessionID: session.ID, Action: ActionResume, Actor: admin})
	require.NoError(t, err)
	require.Nil(t, resumed.PausedAt)
	require.Equal(t, SessionActive, resumed.Status)

	ended, err := svc.ChangeStatus(ctx, ChangeStatusInput{SessionID: session.ID, Action: ActionEnd, Actor: admin})
	require.NoError(t, err)
	require.NotNil(t, ended.FinishedAt)
	require.Len(t, events.ended, 1)

	_, err = svc.ChangeStatus(ctx, ChangeStatusInput{SessionID: session.ID, Action: ActionResume, Actor: admin})
	require.ErrorIs(t, err, ErrInvalidSessionState)

	_, err = svc.ChangeStatus(ctx, ChangeStatusInput{SessionID: session.ID, Action: "restart", Actor: admin})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDeleteSessionRules(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()
	tool := repo.seedTool(tools.Tool{Name: "Rope", SKU: "R", Quantity: 4}, 0)
	session := openSession(t, svc)

	_, err := svc.Scan(ctx, ScanInput{SessionID: session.ID, Code: "R", Quantity: 3})
	require.NoError(t, err)
	pending, err := svc.ProposeCorrection(ctx, ProposeInput{SessionID: session.ID, ToolID: tool.ID, DifferenceQty: -1, Actor: worker})
	require.NoError(t, err)
	applied, err := svc.ProposeCorrection(ctx, ProposeInput{SessionID: session.ID, ToolID: tool.ID, DifferenceQty: 1, Actor: worker})
	require.NoError(t, err)
	_, err = svc.AcceptCorrection(ctx, applied.ID, admin)
	require.NoError(t, err)

	err = svc.DeleteSession(ctx, session.ID, admin)
	require.ErrorIs(t, err, ErrSessionNotEnded)

	_, err = svc.ChangeStatus(ctx, ChangeStatusInput{SessionID: session.ID, Action: ActionEnd, Actor: admin})
	require.NoError(t, err)
	require.ErrorIs(t, svc.DeleteSession(ctx, session.ID, worker), shared.ErrPermission)
	require.NoError(t, svc.DeleteSession(ctx, session.ID, admin))

	_, err = svc.GetSession(ctx, session.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, ok := repo.count(session.ID, tool.ID)
	require.False(t, ok)
	_, ok = repo.correction(pending.ID)
	require.False(t, ok)
	kept, ok := repo.correction(applied.ID)
	require.True(t, ok)
	require.Nil(t, kept.SessionID)
	require.True(t, kept.Accepted())
}

func TestDifferencesUnknownSession(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	_, err := svc.Differences(context.Background(), 42)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDifferencesReflectLiveQuantity(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()
	tool := repo.seedTool(tools.Tool{Name: "Cable", SKU: "C", Quantity: 3}, 0)
	session := openSession(t, svc)
	_, err := svc.Scan(ctx, ScanInput{SessionID: session.ID, Code: "C", Quantity: 3})
	require.NoError(t, err)

	diffs, err := svc.Differences(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, 0, diffs[0].Difference)

	other := openSession(t, svc)
	c, err := svc.ProposeCorrection(ctx, ProposeInput{SessionID: other.ID, ToolID: tool.ID, DifferenceQty: 2, Actor: worker})
	require.NoError(t, err)
	_, err = svc.AcceptCorrection(ctx, c.ID, admin)
	require.NoError(t, err)

	diffs, err = svc.Differences(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, -2, diffs[0].Difference)
	require.Equal(t, 2, repo.diffQueries)
}

func TestDifferencesSharedQuerySurvivesFirstCallerCancel(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	repo.seedTool(tools.Tool{Name: "Saw", SKU: "S", Quantity: 1}, 0)
	session := openSession(t, svc)
	_, err := svc.Scan(context.Background(), ScanInput{SessionID: session.ID, Code: "S", Quantity: 2})
	require.NoError(t, err)

	repo.diffStarted = make(chan struct{})
	repo.diffGate = make(chan struct{})
	repo.diffDone = make(chan error, 2)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Differences(firstCtx, session.ID)
		firstErr <- err
	}()
	<-repo.diffStarted

	type result struct {
		diffs []Difference
		err   error
	}
	second := make(chan result, 1)
	go func() {
		diffs, err := svc.Differences(context.Background(), session.ID)
		second <- result{diffs: diffs, err: err}
	}()

	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(repo.diffGate)
	require.NoError(t, <-repo.diffDone)
	got := <-second
	require.NoError(t, got.err)
	require.Len(t, got.diffs, 1)
	require.Equal(t, 1, got.diffs[0].Difference)
}
