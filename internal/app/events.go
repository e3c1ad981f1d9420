package app

import (
	"context"
	"log/slog"

	"github.com/toolcrib/toolcrib/internal/inventory"
	"github.com/toolcrib/toolcrib/internal/observability"
)

// EventRecorder logs committed inventory events and counts them in metrics.
type EventRecorder struct {
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// HandleCorrectionAccepted implements inventory.EventHandler.
func (e EventRecorder) HandleCorrectionAccepted(ctx context.Context, evt inventory.CorrectionAcceptedEvent) error {
	attrs := []any{
		slog.Int64("correction_id", evt.CorrectionID),
		slog.Int64("tool_id", evt.ToolID),
		slog.Int("difference_qty", evt.DifferenceQty),
		slog.Int("new_quantity", evt.NewQuantity),
		slog.Int64("accepted_by", evt.AcceptedBy),
	}
	if evt.SessionID != nil {
		attrs = append(attrs, slog.Int64("session_id", *evt.SessionID))
	}
	e.logger().InfoContext(ctx, "inventory correction accepted", attrs...)
	e.Metrics.RecordEvent("inventory", "correction_accepted")
	return nil
}

// HandleSessionEnded implements inventory.EventHandler.
func (e EventRecorder) HandleSessionEnded(ctx context.Context, evt inventory.SessionEndedEvent) error {
	e.logger().InfoContext(ctx, "inventory session ended",
		slog.Int64("session_id", evt.SessionID),
		slog.Time("finished_at", evt.FinishedAt),
	)
	e.Metrics.RecordEvent("inventory", "session_ended")
	return nil
}

func (e EventRecorder) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
