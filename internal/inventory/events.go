package inventory

import (
	"context"
	"time"
)

// CorrectionAcceptedEvent is emitted after an accepted correction commits.
type CorrectionAcceptedEvent struct {
	CorrectionID  int64
	SessionID     *int64
	ToolID        int64
	DifferenceQty int
	NewQuantity   int
	AcceptedBy    int64
	AcceptedAt    time.Time
}

// SessionEndedEvent is emitted after a session reaches ended.
type SessionEndedEvent struct {
	SessionID  int64
	FinishedAt time.Time
}

// EventHandler receives committed inventory events. Failures are logged and
// never roll back the operation.
type EventHandler interface {
	HandleCorrectionAccepted(ctx context.Context, evt CorrectionAcceptedEvent) error
	HandleSessionEnded(ctx context.Context, evt SessionEndedEvent) error
}
