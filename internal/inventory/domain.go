package inventory

import (
	"fmt"
	"time"

	"github.com/toolcrib/toolcrib/internal/shared"
	"github.com/toolcrib/toolcrib/internal/tools"
)

// SessionStatus is the lifecycle state of a stocktake session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionPaused SessionStatus = "paused"
	SessionEnded  SessionStatus = "ended"
)

// IsValid checks if the status is one of the known values.
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionActive, SessionPaused, SessionEnded:
		return true
	default:
		return false
	}
}

// SessionAction requests a session transition.
type SessionAction string

const (
	ActionPause  SessionAction = "pause"
	ActionResume SessionAction = "resume"
	ActionEnd    SessionAction = "end"
)

// Next returns the status reached by applying action, or ErrInvalidSessionState.
func (s SessionStatus) Next(action SessionAction) (SessionStatus, error) {
	switch {
	case action == ActionPause && s == SessionActive:
		return SessionPaused, nil
	case action == ActionResume && s == SessionPaused:
		return SessionActive, nil
	case action == ActionEnd && (s == SessionActive || s == SessionPaused):
		return SessionEnded, nil
	}
	return s, fmt.Errorf("%w: cannot %s a %s session", ErrInvalidSessionState, action, s)
}

// Session is a bounded stocktake exercise.
type Session struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Notes       string        `json:"notes,omitempty"`
	Status      SessionStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	PausedAt    *time.Time    `json:"paused_at,omitempty"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
	OwnerUserID int64         `json:"owner_user_id"`
}

// Count is the accumulated quantity counted for one tool in one session.
type Count struct {
	SessionID  int64     `json:"session_id"`
	ToolID     int64     `json:"tool_id"`
	CountedQty int       `json:"counted_qty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Difference compares a count with the live ledger quantity.
type Difference struct {
	ToolID     int64  `json:"tool_id"`
	ToolName   string `json:"tool_name"`
	CountedQty int    `json:"counted_qty"`
	SystemQty  int    `json:"system_qty"`
	Difference int    `json:"difference"`
}

// Correction proposes a signed change to a tool's total quantity.
type Correction struct {
	ID               int64      `json:"id"`
	SessionID        *int64     `json:"session_id,omitempty"`
	ToolID           int64      `json:"tool_id"`
	DifferenceQty    int        `json:"difference_qty"`
	Reason           string     `json:"reason,omitempty"`
	CreatedByUserID  int64      `json:"created_by_user_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	AcceptedByUserID *int64     `json:"accepted_by_user_id,omitempty"`
	AcceptedAt       *time.Time `json:"accepted_at,omitempty"`
}

// Accepted reports whether the correction has been applied.
func (c Correction) Accepted() bool {
	return c.AcceptedAt != nil
}

// ScanResult is the tool a code resolved to and its running count.
type ScanResult struct {
	tools.Tool
	CountedQty int `json:"counted_qty"`
}

// CreateSessionInput opens a new session.
type CreateSessionInput struct {
	Name  string
	Notes string
	Actor shared.Principal
}

// ChangeStatusInput moves a session through its lifecycle.
type ChangeStatusInput struct {
	SessionID int64
	Action    SessionAction
	Actor     shared.Principal
}

// ScanInput records counted units for a code.
type ScanInput struct {
	SessionID int64
	Code      string
	Quantity  int
	Actor     shared.Principal
}

// ProposeInput proposes a correction. CountedQty, when set, overwrites the
// session's count for the tool.
type ProposeInput struct {
	SessionID     int64
	ToolID        int64
	DifferenceQty int
	Reason        string
	CountedQty    *int
	Actor         shared.Principal
}

// SessionFilter narrows session listings.
type SessionFilter struct {
	Status SessionStatus
	Limit  int
	Offset int
}

// Inventory errors.
var (
	ErrSessionNotFound     = fmt.Errorf("%w: inventory session not found", shared.ErrNotFound)
	ErrCorrectionNotFound  = fmt.Errorf("%w: correction not found", shared.ErrNotFound)
	ErrCodeNotFound        = fmt.Errorf("%w: no tool matches scanned code", shared.ErrNotFound)
	ErrInvalidSessionState = fmt.Errorf("%w: invalid session state", shared.ErrInvalidState)
	ErrSessionNotEnded     = fmt.Errorf("%w: session must be ended before deletion", shared.ErrInvalidState)
	ErrAlreadyAccepted     = fmt.Errorf("%w: correction already accepted", shared.ErrInvalidState)
	ErrNotPrivileged       = fmt.Errorf("%w: privileged role required", shared.ErrPermission)
	ErrInvalidTool         = fmt.Errorf("%w: unknown tool", shared.ErrValidation)
	ErrInvalidQuantity     = fmt.Errorf("%w: quantity must be at least 1", shared.ErrValidation)
	ErrZeroDifference      = fmt.Errorf("%w: difference must not be zero", shared.ErrValidation)
)
