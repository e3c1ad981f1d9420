package tools

import (
	"fmt"
	"time"

	"github.com/toolcrib/toolcrib/internal/shared"
)

// Status is the display status derived from a tool's quantities.
type Status string

const (
	// StatusAvailable means no units are issued.
	StatusAvailable Status = "available"
	// StatusPartiallyIssued means some but not all units are issued.
	StatusPartiallyIssued Status = "partially_issued"
	// StatusIssued means every unit is issued.
	StatusIssued Status = "issued"
	// StatusService marks a single-unit tool that is at external service.
	StatusService Status = "service"
)

// IsValid checks if the status is one of the known values.
func (s Status) IsValid() bool {
	switch s {
	case StatusAvailable, StatusPartiallyIssued, StatusIssued, StatusService:
		return true
	default:
		return false
	}
}

// DeriveStatus is the single source of truth for Tool.Status.
func DeriveStatus(total, issuedQty, serviceQty int) Status {
	switch {
	case total == 1 && serviceQty >= 1:
		return StatusService
	case issuedQty == 0:
		return StatusAvailable
	case issuedQty < total:
		return StatusPartiallyIssued
	default:
		return StatusIssued
	}
}

// IssueStatus is the lifecycle of a ToolIssue record.
type IssueStatus string

const (
	IssueStatusIssued   IssueStatus = "issued"
	IssueStatusReturned IssueStatus = "returned"
)

// ServiceAction labels service history entries.
type ServiceAction string

const (
	ServiceActionSent     ServiceAction = "sent"
	ServiceActionReceived ServiceAction = "received"
)

// Tool is a physical item tracked by quantity.
type Tool struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	SKU                string    `json:"sku,omitempty"`
	Barcode            string    `json:"barcode,omitempty"`
	QRCode             string    `json:"qr_code,omitempty"`
	InventoryNumber    string    `json:"inventory_number,omitempty"`
	Quantity           int       `json:"quantity"`
	ServiceQuantity    int       `json:"service_quantity"`
	ServiceOrderNumber string    `json:"service_order_number,omitempty"`
	Status             Status    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Ledger is a tool row together with the live sum of its open issues.
type Ledger struct {
	Tool
	IssuedQty int `json:"issued_qty"`
}

// Available returns the units that can still be issued or sent to service.
func (l Ledger) Available() int {
	return l.Quantity - l.IssuedQty - l.ServiceQuantity
}

// Derived returns the status the ledger row should carry.
func (l Ledger) Derived() Status {
	return DeriveStatus(l.Quantity, l.IssuedQty, l.ServiceQuantity)
}

// Overallocated reports a broken allocation invariant.
func (l Ledger) Overallocated() bool {
	return l.IssuedQty+l.ServiceQuantity > l.Quantity
}

// Issue records units of a tool handed to an employee.
type Issue struct {
	ID               int64       `json:"id"`
	ToolID           int64       `json:"tool_id"`
	EmployeeID       int64       `json:"employee_id"`
	Quantity         int         `json:"quantity"`
	ReturnedQuantity int         `json:"returned_quantity"`
	IssuedAt         time.Time   `json:"issued_at"`
	ReturnedAt       *time.Time  `json:"returned_at,omitempty"`
	Status           IssueStatus `json:"status"`
}

// Outstanding returns the units not yet returned.
func (i Issue) Outstanding() int {
	return i.Quantity - i.ReturnedQuantity
}

// IssueReturn is an append-only record of one return event.
type IssueReturn struct {
	ID         int64     `json:"id"`
	IssueID    int64     `json:"issue_id"`
	Quantity   int       `json:"quantity"`
	ReturnedAt time.Time `json:"returned_at"`
}

// ServiceHistoryEntry is an append-only service log line.
type ServiceHistoryEntry struct {
	ID          int64         `json:"id"`
	ToolID      int64         `json:"tool_id"`
	Action      ServiceAction `json:"action"`
	Quantity    int           `json:"quantity"`
	OrderNumber string        `json:"order_number,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// CreateToolInput registers a tool in the ledger.
type CreateToolInput struct {
	Name            string
	SKU             string
	Barcode         string
	QRCode          string
	InventoryNumber string
	Quantity        int
	ActorID         int64
}

// IssueInput requests units for an employee.
type IssueInput struct {
	ToolID         int64
	EmployeeID     int64
	Quantity       int
	ActorID        int64
	IdempotencyKey string
}

// ReturnInput closes or reduces an open issue.
type ReturnInput struct {
	ToolID   int64
	IssueID  int64
	Quantity int
	ActorID  int64
}

// SendToServiceInput moves units to external service.
type SendToServiceInput struct {
	ToolID      int64
	Quantity    int
	OrderNumber string
	ActorID     int64
}

// ReceiveFromServiceInput brings units back from service.
type ReceiveFromServiceInput struct {
	ToolID   int64
	Quantity int
	ActorID  int64
}

// ReturnResult carries the updated tool and the issue it was returned against.
type ReturnResult struct {
	Tool
	Issue Issue `json:"issue"`
}

// ReceiveResult carries the updated tool and the units still at service.
type ReceiveResult struct {
	Tool
	Remaining int `json:"remaining"`
}

// ListFilter narrows tool listings.
type ListFilter struct {
	Status Status
	Search string
	Limit  int
	Offset int
}

// Ledger errors.
var (
	ErrToolNotFound                  = fmt.Errorf("%w: tool not found", shared.ErrNotFound)
	ErrIssueNotFound                 = fmt.Errorf("%w: open issue not found", shared.ErrNotFound)
	ErrInvalidQuantity               = fmt.Errorf("%w: quantity must be at least 1", shared.ErrValidation)
	ErrInsufficientAvailableQuantity = fmt.Errorf("%w: insufficient available quantity", shared.ErrConflict)
	ErrOverReturn                    = fmt.Errorf("%w: return exceeds outstanding quantity", shared.ErrConflict)
	ErrOverReceive                   = fmt.Errorf("%w: receive exceeds quantity at service", shared.ErrConflict)
	ErrAllocationExceeded            = fmt.Errorf("%w: quantity would drop below issued and service units", shared.ErrConflict)
	ErrDuplicateIdentifier           = fmt.Errorf("%w: tool identifier already in use", shared.ErrDuplicate)
	ErrDuplicateRequest              = fmt.Errorf("%w: request already processed", shared.ErrDuplicate)
	ErrLedgerDriftDetected           = fmt.Errorf("%w: stored status disagrees with quantities", shared.ErrLedgerDrift)
)
